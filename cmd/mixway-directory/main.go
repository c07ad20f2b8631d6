package main

import (
	"crypto/rand"
	"flag"
	"log"
	"net/http"
	"os"

	"ikedadada/go-mixway/internal/config"
	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	"ikedadada/go-mixway/internal/handler"
	infsvc "ikedadada/go-mixway/internal/infrastructure/service"
	"ikedadada/go-mixway/internal/logging"
	"ikedadada/go-mixway/internal/usecase"
	usvc "ikedadada/go-mixway/internal/usecase/service"
)

func loadOrGenIdentity(path string) (*vo.Ed25519PrivKey, error) {
	if path == "" {
		return vo.NewEd25519PrivKey()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return vo.Ed25519PrivKeyFromPEM(b)
}

func main() {
	cfgFile := flag.String("f", "mixway.toml", "config file")
	listen := flag.String("listen", ":8081", "listen address")
	identityPath := flag.String("identity", "", "identity key PEM, ephemeral when empty")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgFile)
	if err != nil {
		log.Fatal(err)
	}
	backend, err := logging.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		log.Fatal(err)
	}
	lg := backend.GetLogger("directory")

	identity, err := loadOrGenIdentity(*identityPath)
	if err != nil {
		lg.Fatalf("identity key: %v", err)
	}
	if *identityPath == "" {
		lg.Warning("running with an ephemeral identity key, feeds must be handed the matching public key")
	}

	var entropy [vo.SelectionSeedSize]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		lg.Fatalf("seed entropy: %v", err)
	}
	seed := vo.NewSelectionSeed(1, entropy)

	var publisher usvc.DirectoryPublisher
	if cfg.Directory.RedisAddr != "" {
		feed := infsvc.NewRedisDirectoryFeed(cfg.Directory.RedisAddr, cfg.Directory.RedisKey, identity.PublicKey(), backend.GetLogger("redis"))
		defer feed.Close()
		publisher = feed
		lg.Noticef("mirroring documents to redis at %s", cfg.Directory.RedisAddr)
	}

	lottery := svc.NewLotteryService(svc.NewVRFService())
	authority := usecase.NewDirectoryAuthorityUseCase(identity, seed, lottery, publisher, lg, usecase.AuthorityConfig{
		EpochInterval: cfg.Directory.EpochIntervalDuration(),
	})
	defer authority.Shutdown()

	mux := handler.NewDirectoryHandler(authority, lg, nil).Mux()
	lg.Noticef("directory authority listening on %s, epoch %d", *listen, seed.Epoch())
	if err := http.ListenAndServe(*listen, mux); err != nil {
		lg.Fatalf("serve: %v", err)
	}
}
