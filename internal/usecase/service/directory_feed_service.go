package service

import (
	"context"

	"ikedadada/go-mixway/internal/domain/entity"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// DirectoryFeedService pulls directory snapshots from a feed source.
// Implementations verify the directory signature and every descriptor
// signature before returning; callers never see unauthenticated data.
type DirectoryFeedService interface {
	Fetch(ctx context.Context) (*entity.Directory, error)
}

// DirectoryRegistrar publishes a relay's signed descriptor to the
// directory server. Relays re-register every epoch with a fresh ticket.
type DirectoryRegistrar interface {
	Register(ctx context.Context, rec *vo.RelayRecord) error
}

// DirectoryPublisher pushes a freshly signed directory document onto a
// distribution channel for feed consumers.
type DirectoryPublisher interface {
	Publish(ctx context.Context, doc *vo.SignedDirectory) error
}
