package usecase

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/repository"
	usvc "ikedadada/go-mixway/internal/usecase/service"
	"ikedadada/go-mixway/internal/worker"
)

// RefresherConfig carries the feed polling tunables.
type RefresherConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration // defaults to ten seconds
}

// RefreshDirectoryUseCase keeps the local relay book in step with the
// directory feed. Snapshots are merged whole; local reputation state
// survives every merge.
type RefreshDirectoryUseCase interface {
	// RefreshNow fetches and merges one snapshot.
	RefreshNow(ctx context.Context) error

	// Shutdown stops the polling loop.
	Shutdown()
}

type refreshDirectoryUseCaseImpl struct {
	worker.Worker

	feed   usvc.DirectoryFeedService
	relays repository.RelayRepository
	log    *logging.Logger
	cfg    RefresherConfig
}

// NewRefreshDirectoryUseCase wires the refresher and starts polling when
// an interval is configured.
func NewRefreshDirectoryUseCase(
	feed usvc.DirectoryFeedService,
	relays repository.RelayRepository,
	log *logging.Logger,
	cfg RefresherConfig,
) RefreshDirectoryUseCase {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	uc := &refreshDirectoryUseCaseImpl{feed: feed, relays: relays, log: log, cfg: cfg}
	if cfg.Interval > 0 {
		uc.Go(uc.run)
	}
	return uc
}

func (uc *refreshDirectoryUseCaseImpl) RefreshNow(ctx context.Context) error {
	dir, err := uc.feed.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("refresh directory: %w", err)
	}
	if err := uc.relays.UpdateFromDirectory(dir); err != nil {
		return fmt.Errorf("refresh directory: %w", err)
	}
	uc.log.Debugf("directory refreshed: epoch %d, %d relays", dir.Epoch(), dir.Len())
	return nil
}

func (uc *refreshDirectoryUseCaseImpl) Shutdown() { uc.Halt() }

func (uc *refreshDirectoryUseCaseImpl) run() {
	t := time.NewTicker(uc.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-uc.HaltCh():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), uc.cfg.FetchTimeout)
			if err := uc.RefreshNow(ctx); err != nil {
				uc.log.Warningf("%v", err)
			}
			cancel()
		}
	}
}
