package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/entity"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	usvc "ikedadada/go-mixway/internal/usecase/service"
)

var (
	_ usvc.DirectoryFeedService = (*RedisDirectoryFeed)(nil)
	_ usvc.DirectoryPublisher   = (*RedisDirectoryFeed)(nil)
)

// RedisDirectoryFeed distributes signed directory documents through a
// single redis key. The authority publishes the current document with
// Publish; clients and relays pointed at the same key pull it with Fetch.
// Documents are verified on the way out, so a compromised redis can at
// worst withhold updates.
type RedisDirectoryFeed struct {
	rdb      *redis.Client
	key      string
	identity vo.Ed25519PubKey
	log      *logging.Logger
}

// NewRedisDirectoryFeed connects to the redis instance at addr. The
// identity key is the directory's signing key used to verify documents.
func NewRedisDirectoryFeed(addr, key string, identity vo.Ed25519PubKey, log *logging.Logger) *RedisDirectoryFeed {
	return &RedisDirectoryFeed{
		rdb:      redis.NewClient(&redis.Options{Addr: addr}),
		key:      key,
		identity: identity,
		log:      log,
	}
}

func (f *RedisDirectoryFeed) Fetch(ctx context.Context) (*entity.Directory, error) {
	raw, err := f.rdb.Get(ctx, f.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("directory fetch: no document at %q", f.key)
	}
	if err != nil {
		return nil, fmt.Errorf("directory fetch: %w", err)
	}
	doc, err := vo.DecodeSignedDirectory(raw)
	if err != nil {
		return nil, fmt.Errorf("directory fetch: %w", err)
	}
	return directoryFromDoc(doc, f.identity, f.log)
}

func (f *RedisDirectoryFeed) Publish(ctx context.Context, doc *vo.SignedDirectory) error {
	raw, err := vo.EncodeSignedDirectory(doc)
	if err != nil {
		return fmt.Errorf("directory publish: %w", err)
	}
	if err := f.rdb.Set(ctx, f.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("directory publish: %w", err)
	}
	f.log.Debugf("directory publish: epoch %d, %d relays", doc.Epoch, len(doc.Relays))
	return nil
}

func (f *RedisDirectoryFeed) Close() error { return f.rdb.Close() }
