package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/entity"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	usvc "ikedadada/go-mixway/internal/usecase/service"
)

// maxDirectoryBytes bounds how much of a directory response is read.
const maxDirectoryBytes = 8 << 20

var (
	_ usvc.DirectoryFeedService = (*HTTPDirectoryFeed)(nil)
	_ usvc.DirectoryRegistrar   = (*HTTPDirectoryFeed)(nil)
)

// HTTPDirectoryFeed talks to a directory server over HTTP. Fetch pulls the
// signed document from GET /directory and Register posts a descriptor to
// POST /relays. Both sides carry CBOR bodies.
type HTTPDirectoryFeed struct {
	base     string
	client   *http.Client
	identity vo.Ed25519PubKey
	log      *logging.Logger
}

// NewHTTPDirectoryFeed builds a feed client for the given base URL. The
// identity key is the directory's signing key used to verify documents.
func NewHTTPDirectoryFeed(base string, identity vo.Ed25519PubKey, log *logging.Logger) *HTTPDirectoryFeed {
	return &HTTPDirectoryFeed{
		base:     strings.TrimRight(base, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
		identity: identity,
		log:      log,
	}
}

func (f *HTTPDirectoryFeed) Fetch(ctx context.Context) (*entity.Directory, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/directory", nil)
	if err != nil {
		return nil, fmt.Errorf("directory fetch: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory fetch: unexpected status %s: %s", resp.Status, string(body))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDirectoryBytes))
	if err != nil {
		return nil, fmt.Errorf("directory fetch: %w", err)
	}
	doc, err := vo.DecodeSignedDirectory(raw)
	if err != nil {
		return nil, fmt.Errorf("directory fetch: %w", err)
	}
	return directoryFromDoc(doc, f.identity, f.log)
}

func (f *HTTPDirectoryFeed) Register(ctx context.Context, rec *vo.RelayRecord) error {
	raw, err := vo.EncodeRelayRecord(rec)
	if err != nil {
		return fmt.Errorf("relay register: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.base+"/relays", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("relay register: %w", err)
	}
	req.Header.Set("Content-Type", "application/cbor")
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay register: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("relay register: unexpected status %s: %s", resp.Status, string(body))
	}
	return nil
}
