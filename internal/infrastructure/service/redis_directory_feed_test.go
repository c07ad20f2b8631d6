package service_test

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"

	vo "ikedadada/go-mixway/internal/domain/value_object"
	"ikedadada/go-mixway/internal/infrastructure/service"
)

func signedRecord(t *testing.T, epoch uint64) vo.RelayRecord {
	t.Helper()
	identity, err := vo.NewEd25519PrivKey()
	if err != nil {
		t.Fatalf("identity key: %v", err)
	}
	vrfKey := make([]byte, 32)
	if _, err := rand.Read(vrfKey); err != nil {
		t.Fatalf("vrf key: %v", err)
	}
	rec := vo.RelayRecord{
		ID:       vo.NewRelayID().String(),
		Endpoint: "127.0.0.1:5000",
		Identity: identity.PublicKey().Bytes(),
		VRFKey:   vrfKey,
		Capacity: 100,
		Score:    1,
		Status:   byte(vo.RelayActive),
		LastSeen: time.Now().Unix(),
		Ticket: vo.TicketRecord{
			Epoch:  epoch,
			Output: make([]byte, vo.VRFOutputSize),
			Proof:  make([]byte, vo.VRFProofSize),
		},
	}
	if err := rec.SignWith(identity); err != nil {
		t.Fatalf("sign record: %v", err)
	}
	return rec
}

func signedDoc(t *testing.T, dirKey *vo.Ed25519PrivKey, epoch uint64, recs ...vo.RelayRecord) *vo.SignedDirectory {
	t.Helper()
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	doc := &vo.SignedDirectory{
		Epoch:       epoch,
		Seed:        seed,
		GeneratedAt: time.Now().Unix(),
		Relays:      recs,
	}
	if err := doc.SignWith(dirKey); err != nil {
		t.Fatalf("sign doc: %v", err)
	}
	return doc
}

func TestRedisDirectoryFeed_PublishFetch(t *testing.T) {
	require := require.New(t)
	srv := miniredis.RunT(t)

	dirKey, err := vo.NewEd25519PrivKey()
	require.NoError(err)
	log := logging.MustGetLogger("test")

	feed := service.NewRedisDirectoryFeed(srv.Addr(), "mixway:directory", dirKey.PublicKey(), log)
	defer feed.Close()

	doc := signedDoc(t, dirKey, 7, signedRecord(t, 7), signedRecord(t, 7))
	require.NoError(feed.Publish(context.Background(), doc))

	dir, err := feed.Fetch(context.Background())
	require.NoError(err)
	require.Equal(uint64(7), dir.Epoch())
	require.Equal(2, dir.Len())
	for _, r := range dir.Relays {
		require.True(r.HasTicket, "current-epoch tickets should survive conversion")
	}
}

func TestRedisDirectoryFeed_EmptyKey(t *testing.T) {
	require := require.New(t)
	srv := miniredis.RunT(t)

	dirKey, err := vo.NewEd25519PrivKey()
	require.NoError(err)

	feed := service.NewRedisDirectoryFeed(srv.Addr(), "mixway:directory", dirKey.PublicKey(), logging.MustGetLogger("test"))
	defer feed.Close()

	_, err = feed.Fetch(context.Background())
	require.Error(err, "fetch before any publish must fail")
}

func TestRedisDirectoryFeed_RejectsTamperedDocument(t *testing.T) {
	require := require.New(t)
	srv := miniredis.RunT(t)

	dirKey, err := vo.NewEd25519PrivKey()
	require.NoError(err)

	feed := service.NewRedisDirectoryFeed(srv.Addr(), "mixway:directory", dirKey.PublicKey(), logging.MustGetLogger("test"))
	defer feed.Close()

	doc := signedDoc(t, dirKey, 3, signedRecord(t, 3))
	doc.Epoch = 4 // breaks the signature
	raw, err := vo.EncodeSignedDirectory(doc)
	require.NoError(err)
	require.NoError(srv.Set("mixway:directory", string(raw)))

	_, err = feed.Fetch(context.Background())
	require.Error(err)
}

func TestRedisDirectoryFeed_DropsBadDescriptor(t *testing.T) {
	require := require.New(t)
	srv := miniredis.RunT(t)

	dirKey, err := vo.NewEd25519PrivKey()
	require.NoError(err)

	good := signedRecord(t, 9)
	bad := signedRecord(t, 9)
	bad.Endpoint = "moved:9999" // record signature no longer matches
	stale := signedRecord(t, 8) // ticket from the previous epoch

	feed := service.NewRedisDirectoryFeed(srv.Addr(), "mixway:directory", dirKey.PublicKey(), logging.MustGetLogger("test"))
	defer feed.Close()

	require.NoError(feed.Publish(context.Background(), signedDoc(t, dirKey, 9, good, bad, stale)))

	dir, err := feed.Fetch(context.Background())
	require.NoError(err)
	require.Equal(2, dir.Len(), "tampered descriptor dropped, stale ticket kept")

	goodID, err := vo.RelayIDFrom(good.ID)
	require.NoError(err)
	info, ok := dir.Find(goodID)
	require.True(ok)
	require.True(info.HasTicket)

	staleID, err := vo.RelayIDFrom(stale.ID)
	require.NoError(err)
	info, ok = dir.Find(staleID)
	require.True(ok)
	require.False(info.HasTicket, "stale-epoch ticket must not attach")
}
