package usecase_test

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/entity"
	"ikedadada/go-mixway/internal/domain/repository"
	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	"ikedadada/go-mixway/internal/handler"
	repoimpl "ikedadada/go-mixway/internal/infrastructure/repository"
	infsvc "ikedadada/go-mixway/internal/infrastructure/service"
	"ikedadada/go-mixway/internal/usecase"
	usvc "ikedadada/go-mixway/internal/usecase/service"
)

func testSeed(t *testing.T, epoch uint64) vo.SelectionSeed {
	t.Helper()
	var entropy [vo.SelectionSeedSize]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return vo.NewSelectionSeed(epoch, entropy)
}

func testPolicy() entity.ReputationPolicy {
	return entity.ReputationPolicy{
		Baseline:         1,
		Max:              100,
		HalfLife:         time.Hour,
		BuildSuccess:     1,
		RelaySuccess:     0.2,
		HandshakePenalty: 2,
		TimeoutPenalty:   1,
		IntegrityPenalty: 10,
		DegradeThreshold: 0.5,
		ExcludeCooldown:  10 * time.Minute,
	}
}

// mixRelay is one live relay of the test network: real keys, a real link
// table and the real cell processor behind a MemNetwork address.
type mixRelay struct {
	id       vo.RelayID
	endpoint vo.Endpoint
	states   repository.ConnStateRepository
	handler  *handler.RelayHandler

	tamper   atomic.Bool
	tampered atomic.Bool
}

// tamperConn flips one byte of the first tagged cell the relay writes
// after it is armed, simulating a hop that corrupts traffic in transit.
type tamperConn struct {
	net.Conn
	armed *atomic.Bool
	done  *atomic.Bool
}

func (c *tamperConn) Write(b []byte) (int, error) {
	if c.armed.Load() && len(b) == vo.CellSize && !zeroTagFrame(b) && c.done.CompareAndSwap(false, true) {
		mut := append([]byte(nil), b...)
		mut[20] ^= 0x01
		return c.Conn.Write(mut)
	}
	return c.Conn.Write(b)
}

func zeroTagFrame(b []byte) bool {
	for _, x := range b[vo.CellSize-vo.CellTagSize:] {
		if x != 0 {
			return false
		}
	}
	return true
}

// mixnet is an in-process relay network plus the client stack built
// against it. Relays echo at the exit, so every sent payload comes back.
type mixnet struct {
	t   *testing.T
	log *logging.Logger

	net     *infsvc.MemNetwork
	cells   usvc.CellIOService
	onion   svc.OnionService
	lottery svc.LotteryService
	vrf     svc.VRFService
	seed    vo.SelectionSeed
	pol     entity.ReputationPolicy

	relays []*mixRelay
	infos  []entity.RelayInfo

	relayRepo repository.RelayRepository
	circuits  repository.CircuitRepository
	sessions  *usecase.SessionTable
	builder   usecase.BuildCircuitUseCase
	sender    usecase.SendDataUseCase
	destroyer usecase.DestroyCircuitUseCase
}

// startMixnet runs n echo relays and wires the client stack over them.
func startMixnet(t *testing.T, n int) *mixnet {
	t.Helper()
	m := &mixnet{
		t:     t,
		log:   logging.MustGetLogger("test"),
		net:   infsvc.NewMemNetwork(),
		cells: usvc.NewCellIOService(),
		onion: svc.NewOnionService(),
		vrf:   svc.NewVRFService(),
		pol:   testPolicy(),
	}
	m.lottery = svc.NewLotteryService(m.vrf)
	m.seed = testSeed(t, 1)

	for i := 0; i < n; i++ {
		m.startRelay(fmt.Sprintf("10.%d.0.1", i+1))
	}

	m.relayRepo = repoimpl.NewRelayRepository(m.pol)
	m.circuits = repoimpl.NewCircuitRepository()
	m.sessions = usecase.NewSessionTable()
	m.refreshDirectory()

	m.builder = usecase.NewBuildCircuitUseCase(
		m.relayRepo, m.circuits, m.lottery,
		svc.NewHandshakeService(), m.onion, m.cells, m.net,
		svc.NopTelemetry{}, m.log,
		usecase.BuildCircuitConfig{
			Hops:                  3,
			MinReputation:         0.5,
			RequireDistinctSubnet: true,
			HopTimeout:            2 * time.Second,
		})
	m.sender = usecase.NewSendDataUseCase(m.sessions, m.relayRepo, m.onion, svc.NopTelemetry{}, m.log)
	m.destroyer = usecase.NewDestroyCircuitUseCase(m.sessions, m.circuits, svc.NopTelemetry{}, m.log)
	return m
}

func (m *mixnet) startRelay(host string) *mixRelay {
	m.t.Helper()
	identity, err := vo.NewEd25519PrivKey()
	if err != nil {
		m.t.Fatalf("relay identity: %v", err)
	}
	vrfPriv, err := vo.NewVRFPrivateKey()
	if err != nil {
		m.t.Fatalf("vrf key: %v", err)
	}
	vrfPub, err := m.vrf.PublicKey(vrfPriv)
	if err != nil {
		m.t.Fatalf("vrf public key: %v", err)
	}
	ep, err := vo.NewEndpoint(host, 9000)
	if err != nil {
		m.t.Fatalf("endpoint: %v", err)
	}
	states, err := repoimpl.NewConnStateRepository(64)
	if err != nil {
		m.t.Fatalf("conn states: %v", err)
	}

	relay := usecase.NewRelayUseCase(
		identity, states,
		svc.NewHandshakeService(), m.onion, m.cells, m.net,
		usvc.EchoSink{}, svc.NopTelemetry{}, m.log,
		usecase.RelayConfig{HopTimeout: time.Second})
	h := handler.NewRelayHandler(relay, m.cells, states, m.log, handler.RelayHandlerConfig{})
	m.t.Cleanup(h.Shutdown)

	r := &mixRelay{id: vo.NewRelayID(), endpoint: ep, states: states, handler: h}
	m.net.Register(ep.String(), func(c net.Conn) {
		h.ServeConn(&tamperConn{Conn: c, armed: &r.tamper, done: &r.tampered})
	})
	m.relays = append(m.relays, r)
	m.addInfo(r.id, ep, identity.PublicKey(), vrfPriv, vrfPub)
	return r
}

// addPhantom lists a relay in the directory whose address runs serve
// instead of a real cell processor. A nil serve leaves the address dead.
func (m *mixnet) addPhantom(host string, serve func(net.Conn)) vo.RelayID {
	m.t.Helper()
	identity, err := vo.NewEd25519PrivKey()
	if err != nil {
		m.t.Fatalf("phantom identity: %v", err)
	}
	vrfPriv, err := vo.NewVRFPrivateKey()
	if err != nil {
		m.t.Fatalf("vrf key: %v", err)
	}
	vrfPub, err := m.vrf.PublicKey(vrfPriv)
	if err != nil {
		m.t.Fatalf("vrf public key: %v", err)
	}
	ep, err := vo.NewEndpoint(host, 9000)
	if err != nil {
		m.t.Fatalf("endpoint: %v", err)
	}
	if serve != nil {
		m.net.Register(ep.String(), serve)
	}
	id := vo.NewRelayID()
	m.addInfo(id, ep, identity.PublicKey(), vrfPriv, vrfPub)
	m.refreshDirectory()
	return id
}

func (m *mixnet) addInfo(id vo.RelayID, ep vo.Endpoint, identity vo.Ed25519PubKey, vrfPriv vo.VRFPrivateKey, vrfPub vo.VRFPublicKey) {
	m.t.Helper()
	ticket, err := m.lottery.MakeTicket(vrfPriv, m.seed, id)
	if err != nil {
		m.t.Fatalf("MakeTicket: %v", err)
	}
	m.infos = append(m.infos, entity.RelayInfo{
		ID:        id,
		Endpoint:  ep,
		Identity:  identity,
		VRFKey:    vrfPub,
		Capacity:  100,
		Status:    vo.RelayActive,
		LastSeen:  vo.Now(),
		Ticket:    ticket,
		HasTicket: true,
	})
}

// refreshDirectory feeds the current relay set to the client's book, as
// a directory refresh would.
func (m *mixnet) refreshDirectory() {
	m.t.Helper()
	dir := &entity.Directory{
		Seed:        m.seed,
		GeneratedAt: vo.Now(),
		Relays:      append([]entity.RelayInfo(nil), m.infos...),
	}
	if err := m.relayRepo.UpdateFromDirectory(dir); err != nil {
		m.t.Fatalf("UpdateFromDirectory: %v", err)
	}
}

func (m *mixnet) manager(cfg usecase.ManagerConfig) usecase.CircuitManagerUseCase {
	m.t.Helper()
	mgr := usecase.NewCircuitManagerUseCase(
		m.builder, m.sender, m.destroyer,
		m.circuits, m.relayRepo, m.sessions,
		svc.NopTelemetry{}, m.log, cfg)
	m.t.Cleanup(mgr.Shutdown)
	return mgr
}

func (m *mixnet) relayByID(id string) *mixRelay {
	m.t.Helper()
	for _, r := range m.relays {
		if r.id.String() == id {
			return r
		}
	}
	m.t.Fatalf("no live relay with id %s", id)
	return nil
}

func (m *mixnet) relayInfo(id vo.RelayID) entity.RelayInfo {
	m.t.Helper()
	dir, err := m.relayRepo.Snapshot(vo.Now())
	if err != nil {
		m.t.Fatalf("Snapshot: %v", err)
	}
	info, ok := dir.Find(id)
	if !ok {
		m.t.Fatalf("relay %s missing from snapshot", id)
	}
	return info
}

func (m *mixnet) score(id vo.RelayID) float64 { return m.relayInfo(id).Score }

// totalStates sums the live link states across every relay.
func (m *mixnet) totalStates() int {
	n := 0
	for _, r := range m.relays {
		n += r.states.Len()
	}
	return n
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
