package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

func writeKey(path string, data []byte, mode os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", path)
	}
	return os.WriteFile(path, data, mode)
}

func main() {
	outDir := flag.String("out", ".", "output directory")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0700); err != nil {
		log.Fatal(err)
	}

	identity, err := vo.NewEd25519PrivKey()
	if err != nil {
		log.Fatal(err)
	}
	vrfPriv, err := vo.NewVRFPrivateKey()
	if err != nil {
		log.Fatal(err)
	}
	vrfPub, err := svc.NewVRFService().PublicKey(vrfPriv)
	if err != nil {
		log.Fatal(err)
	}

	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{"identity.pem", identity.ToPEM(), 0600},
		{"identity.pub.pem", identity.PublicKey().ToPEM(), 0644},
		{"vrf.pem", vrfPriv.ToPEM(), 0600},
		{"vrf.pub.pem", vrfPub.ToPEM(), 0644},
	}
	for _, f := range files {
		path := filepath.Join(*outDir, f.name)
		if err := writeKey(path, f.data, f.mode); err != nil {
			log.Fatal(err)
		}
		fmt.Println("wrote", path)
	}
}
