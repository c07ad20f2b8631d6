package usecase

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/repository"
	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// SendDataInput carries one application payload for a circuit.
type SendDataInput struct {
	CircuitID string
	Data      []byte

	// AwaitAck blocks until the exit confirms the reassembled payload.
	AwaitAck bool
}

// SendDataOutput reports the transfer.
type SendDataOutput struct {
	BytesSent int    `json:"bytes_sent"`
	Fragments int    `json:"fragments"`
	Acked     uint32 `json:"acked,omitempty"`
}

// SendDataUseCase fragments a payload into sealed data cells and sends
// them down a circuit in order.
type SendDataUseCase interface {
	Handle(ctx context.Context, in SendDataInput) (SendDataOutput, error)
}

type sendDataUseCaseImpl struct {
	sessions *SessionTable
	relays   repository.RelayRepository
	onion    svc.OnionService
	tel      svc.TelemetrySink
	log      *logging.Logger
}

// NewSendDataUseCase returns a use case for sending data through built
// circuits.
func NewSendDataUseCase(sessions *SessionTable, rr repository.RelayRepository, on svc.OnionService, tel svc.TelemetrySink, log *logging.Logger) SendDataUseCase {
	return &sendDataUseCaseImpl{sessions: sessions, relays: rr, onion: on, tel: tel, log: log}
}

func (uc *sendDataUseCaseImpl) Handle(ctx context.Context, in SendDataInput) (SendDataOutput, error) {
	cid, err := vo.CircuitIDFrom(in.CircuitID)
	if err != nil {
		return SendDataOutput{}, fmt.Errorf("parse circuit id: %w", err)
	}
	session, ok := uc.sessions.Get(cid)
	if !ok {
		return SendDataOutput{}, fmt.Errorf("circuit %s: %w", in.CircuitID, repository.ErrNotFound)
	}
	circ := session.Circuit()
	if st := circ.State(); st != vo.StateEstablished && st != vo.StateRotating {
		return SendDataOutput{}, fmt.Errorf("circuit %s not in service (%s)", in.CircuitID, st)
	}

	depth := circ.EstablishedHops()
	// one byte of every fragment goes to the data payload flags
	budget := uc.onion.MaxPlaintext(depth) - 1
	if budget <= 0 {
		return SendDataOutput{}, fmt.Errorf("circuit %s: %w", in.CircuitID, vo.ErrCapacity)
	}

	out := SendDataOutput{}
	start := time.Now()
	if err := uc.sendAll(session, in.Data, budget, &out); err != nil {
		return out, err
	}

	if in.AwaitAck {
		select {
		case ack, ok := <-session.Acks():
			if !ok {
				return out, session.Err()
			}
			out.Acked = ack.Received
			uc.tel.RoundTripDone(time.Since(start))
			for _, id := range circ.HopIDs() {
				reportEvent(uc.relays, uc.tel, uc.log, id, vo.EventRelaySuccess)
			}
		case <-session.Done():
			return out, session.Err()
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
	return out, nil
}

// sendAll pushes one payload down the circuit as ordered fragments. The
// message lock keeps fragments of concurrent payloads from interleaving
// in the exit's reassembly.
func (uc *sendDataUseCaseImpl) sendAll(session *CircuitSession, data []byte, budget int, out *SendDataOutput) error {
	session.msgMu.Lock()
	defer session.msgMu.Unlock()
	depth := session.Circuit().EstablishedHops()
	remaining := data
	for {
		chunk := remaining
		more := false
		if len(chunk) > budget {
			chunk = remaining[:budget]
			remaining = remaining[budget:]
			more = true
		} else {
			remaining = nil
		}
		payload := vo.EncodeDataPayload(&vo.DataPayload{More: more, Data: chunk})
		if err := session.SendForward(vo.CmdData, depth, payload); err != nil {
			return fmt.Errorf("send data: %w", err)
		}
		out.BytesSent += len(chunk)
		out.Fragments++
		if !more {
			return nil
		}
	}
}
