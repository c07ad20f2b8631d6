package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ikedadada/go-mixway/internal/config"
	"ikedadada/go-mixway/internal/domain/entity"
	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	repoimpl "ikedadada/go-mixway/internal/infrastructure/repository"
	infsvc "ikedadada/go-mixway/internal/infrastructure/service"
	"ikedadada/go-mixway/internal/logging"
	"ikedadada/go-mixway/internal/usecase"
	usvc "ikedadada/go-mixway/internal/usecase/service"
)

// policyFromConfig maps the operator's tunables onto the domain policy.
func policyFromConfig(rep *config.Reputation, lot *config.Lottery) entity.ReputationPolicy {
	return entity.ReputationPolicy{
		Baseline:         rep.Baseline,
		Max:              rep.Max,
		HalfLife:         rep.HalfLifeDuration(),
		BuildSuccess:     rep.BuildSuccess,
		RelaySuccess:     rep.RelaySuccess,
		HandshakePenalty: rep.HandshakePenalty,
		TimeoutPenalty:   rep.TimeoutPenalty,
		IntegrityPenalty: rep.IntegrityPenalty,
		DegradeThreshold: rep.DegradeThreshold,
		ExcludeCooldown:  lot.ExcludeCooldownDuration(),
	}
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
	hops := flag.Int("hops", 0, "relays per circuit, 0 uses the config")
	sendMsg := flag.String("send", "", "send one payload through a fresh circuit, print the echo and exit")
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
	lg := backend.GetLogger("client")

	if cfg.Directory.FeedURL == "" && cfg.Directory.RedisAddr == "" {
		lg.Fatal("config: one of Directory.FeedURL or Directory.RedisAddr is required")
	}
	if cfg.Directory.IdentityKey == "" {
		lg.Fatal("config: Directory.IdentityKey is required to verify the feed")
	}
	dirKey, err := loadDirectoryKey(cfg.Directory.IdentityKey)
	if err != nil {
		lg.Fatalf("directory key: %v", err)
	}

	var feed usvc.DirectoryFeedService
	if cfg.Directory.RedisAddr != "" {
		rfeed := infsvc.NewRedisDirectoryFeed(cfg.Directory.RedisAddr, cfg.Directory.RedisKey, dirKey, backend.GetLogger("feed"))
		defer rfeed.Close()
		feed = rfeed
	} else {
		feed = infsvc.NewHTTPDirectoryFeed(cfg.Directory.FeedURL, dirKey, backend.GetLogger("feed"))
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

	relays := repoimpl.NewRelayRepository(policyFromConfig(cfg.Reputation, cfg.Lottery))
	circuits := repoimpl.NewCircuitRepository()
	refresher := usecase.NewRefreshDirectoryUseCase(feed, relays, backend.GetLogger("refresh"), usecase.RefresherConfig{
		Interval: cfg.Directory.RefreshIntervalDuration(),
	})
	defer refresher.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = refresher.RefreshNow(ctx)
	cancel()
	if err != nil {
		lg.Fatalf("initial directory fetch: %v", err)
	}

	onion := svc.NewOnionService()
	cells := usvc.NewCellIOService()
	sessions := usecase.NewSessionTable()
	builder := usecase.NewBuildCircuitUseCase(
		relays, circuits,
		svc.NewLotteryService(svc.NewVRFService()),
		svc.NewHandshakeService(),
		onion, cells,
		infsvc.NewTCPDialer(),
		tel, backend.GetLogger("build"),
		usecase.BuildCircuitConfig{
			Hops:                  cfg.Circuit.Hops,
			MinReputation:         cfg.Lottery.MinReputation,
			RequireDistinctSubnet: cfg.Lottery.RequireDistinctSubnet,
			HopTimeout:            cfg.Circuit.HopTimeoutDuration(),
		},
	)
	sender := usecase.NewSendDataUseCase(sessions, relays, onion, tel, backend.GetLogger("send"))
	destroyer := usecase.NewDestroyCircuitUseCase(sessions, circuits, tel, backend.GetLogger("destroy"))
	manager := usecase.NewCircuitManagerUseCase(builder, sender, destroyer, circuits, relays, sessions, tel, lg, usecase.ManagerConfig{
		BuildTimeout:     cfg.Circuit.BuildTimeoutDuration(),
		MaxBuildAttempts: cfg.Circuit.MaxBuildAttempts,
		BackoffBase:      cfg.Circuit.BackoffBaseDuration(),
		BackoffCap:       cfg.Circuit.BackoffCapDuration(),
		RotationInterval: cfg.Circuit.RotationIntervalDuration(),
		RotationGrace:    cfg.Circuit.RotationGraceDuration(),
	})
	defer manager.Shutdown()

	buildCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.Circuit.BuildTimeoutDuration())
	info, err := manager.Create(buildCtx, usecase.CreateCircuitInput{Hops: *hops})
	cancel()
	if err != nil {
		lg.Fatalf("circuit build: %v", err)
	}
	lg.Noticef("circuit %s established over %d hops", info.ID, len(info.Hops))

	if *sendMsg != "" {
		runEcho(manager, info.ID, []byte(*sendMsg), lg.Fatalf)
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	lg.Notice("shutting down")
}

// runEcho pushes one payload through the circuit and prints what the
// exit sends back.
func runEcho(manager usecase.CircuitManagerUseCase, id string, payload []byte, fatalf func(string, ...interface{})) {
	rx, err := manager.Recv(id)
	if err != nil {
		fatalf("recv: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	out, err := manager.Send(ctx, usecase.SendDataInput{CircuitID: id, Data: payload, AwaitAck: true})
	if err != nil {
		fatalf("send: %v", err)
	}
	select {
	case echo, ok := <-rx:
		if !ok {
			fatalf("circuit closed before the echo arrived")
		}
		fmt.Printf("%s\n", echo)
	case <-ctx.Done():
		fatalf("no echo within deadline (sent %d bytes in %d cells)", out.BytesSent, out.Fragments)
	}
	if _, err := manager.Destroy(id, vo.ReasonFinished); err != nil {
		fatalf("destroy: %v", err)
	}
}
