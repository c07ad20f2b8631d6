package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ikedadada/go-mixway/internal/config"
	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	"ikedadada/go-mixway/internal/handler"
	repoimpl "ikedadada/go-mixway/internal/infrastructure/repository"
	infsvc "ikedadada/go-mixway/internal/infrastructure/service"
	"ikedadada/go-mixway/internal/logging"
	"ikedadada/go-mixway/internal/usecase"
	usvc "ikedadada/go-mixway/internal/usecase/service"
)

// linkTableSize bounds concurrently live circuits on this relay.
const linkTableSize = 4096

func loadIdentity(path string) (*vo.Ed25519PrivKey, error) {
	if path == "" {
		return vo.NewEd25519PrivKey()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return vo.Ed25519PrivKeyFromPEM(b)
}

func loadVRFKey(path string) (vo.VRFPrivateKey, error) {
	if path == "" {
		return vo.NewVRFPrivateKey()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return vo.VRFPrivateKey{}, err
	}
	return vo.VRFPrivateKeyFromPEM(b)
}

func loadDirectoryKey(path string) (vo.Ed25519PubKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return vo.Ed25519PubKey{}, err
	}
	return vo.Ed25519PubKeyFromPEM(b)
}

func main() {
	cfgFile := flag.String("f", "mixway.toml", "config file")
	identityPath := flag.String("identity", "", "identity key PEM, ephemeral when empty")
	vrfPath := flag.String("vrf", "", "VRF key PEM, ephemeral when empty")
	endpoint := flag.String("endpoint", "", "advertised host:port (required)")
	capacity := flag.Uint("capacity", 100, "advertised relay capacity")
	metricsAddr := flag.String("metrics", "", "prometheus listen address, disabled when empty")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgFile)
	if err != nil {
		log.Fatal(err)
	}
	backend, err := logging.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		log.Fatal(err)
	}
	lg := backend.GetLogger("relay")

	if *endpoint == "" {
		lg.Fatal("an advertised -endpoint is required")
	}
	ep, err := vo.EndpointFrom(*endpoint)
	if err != nil {
		lg.Fatalf("endpoint: %v", err)
	}
	if cfg.Directory.FeedURL == "" {
		lg.Fatal("config: Directory.FeedURL is required to register")
	}
	if cfg.Directory.IdentityKey == "" {
		lg.Fatal("config: Directory.IdentityKey is required to verify the feed")
	}
	dirKey, err := loadDirectoryKey(cfg.Directory.IdentityKey)
	if err != nil {
		lg.Fatalf("directory key: %v", err)
	}

	identity, err := loadIdentity(*identityPath)
	if err != nil {
		lg.Fatalf("identity key: %v", err)
	}
	vrfPriv, err := loadVRFKey(*vrfPath)
	if err != nil {
		lg.Fatalf("vrf key: %v", err)
	}
	vrf := svc.NewVRFService()
	vrfPub, err := vrf.PublicKey(vrfPriv)
	if err != nil {
		lg.Fatalf("vrf public key: %v", err)
	}
	if *identityPath == "" || *vrfPath == "" {
		lg.Warning("running with ephemeral keys, the relay loses its identity on restart")
	}

	states, err := repoimpl.NewConnStateRepository(linkTableSize)
	if err != nil {
		lg.Fatalf("link table: %v", err)
	}
	tel := infsvc.NewPrometheusTelemetry()
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", tel.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				lg.Errorf("metrics: %v", err)
			}
		}()
	}

	var sink usvc.ExitSink = usvc.DiscardSink{}
	if cfg.Relay.EchoExit {
		sink = usvc.EchoSink{}
	}

	cells := usvc.NewCellIOService()
	relayUC := usecase.NewRelayUseCase(
		identity,
		states,
		svc.NewHandshakeService(),
		svc.NewOnionService(),
		cells,
		infsvc.NewTCPDialer(),
		sink,
		tel,
		lg,
		usecase.RelayConfig{HopTimeout: cfg.Circuit.HopTimeoutDuration()},
	)
	h := handler.NewRelayHandler(relayUC, cells, states, lg, handler.RelayHandlerConfig{
		IdleTTL: cfg.Relay.IdleTTLDuration(),
	})

	ln, err := net.Listen("tcp", cfg.Relay.Listen)
	if err != nil {
		lg.Fatalf("listen: %v", err)
	}
	h.Serve(ln)
	lg.Noticef("relay listening on %s, advertised as %s", ln.Addr(), ep)

	feed := infsvc.NewHTTPDirectoryFeed(cfg.Directory.FeedURL, dirKey, backend.GetLogger("feed"))
	announce := usecase.NewAnnounceRelayUseCase(
		vo.NewRelayID(), ep, identity, vrfPriv, vrfPub, uint32(*capacity),
		feed, svc.NewLotteryService(vrf), feed, backend.GetLogger("announce"),
	)

	// re-register every tick; the usecase skips epochs it has already
	// announced for
	quit := make(chan struct{})
	go func() {
		t := time.NewTicker(cfg.Directory.RefreshIntervalDuration())
		defer t.Stop()
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := announce.Handle(ctx); err != nil {
				lg.Warningf("announce: %v", err)
			}
			cancel()
			select {
			case <-quit:
				return
			case <-t.C:
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	lg.Notice("shutting down")
	close(quit)
	h.Shutdown()
}
