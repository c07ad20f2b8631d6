package value_object_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

func TestCreateCreatedRoundTrip(t *testing.T) {
	cp := &vo.CreatePayload{Suite: vo.SuiteX25519Ed25519ChaCha20}
	rand.Read(cp.ClientEph[:])
	rand.Read(cp.ClientNonce[:])
	got, err := vo.DecodeCreatePayload(vo.EncodeCreatePayload(cp))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if *got != *cp {
		t.Fatal("create mismatch")
	}

	rp := &vo.CreatedPayload{Suite: vo.SuiteX25519Ed25519ChaCha20}
	rand.Read(rp.RelayEph[:])
	rand.Read(rp.Sig[:])
	got2, err := vo.DecodeCreatedPayload(vo.EncodeCreatedPayload(rp))
	if err != nil {
		t.Fatalf("created: %v", err)
	}
	if *got2 != *rp {
		t.Fatal("created mismatch")
	}
}

func TestCreatePayloadRejectsUnknownSuite(t *testing.T) {
	cp := &vo.CreatePayload{Suite: vo.SuiteX25519Ed25519ChaCha20}
	b := vo.EncodeCreatePayload(cp)
	b[0] = 0x7F
	if _, err := vo.DecodeCreatePayload(b); err == nil {
		t.Fatal("unknown suite accepted")
	}
	if _, err := vo.DecodeCreatePayload(b[:10]); err == nil {
		t.Fatal("truncated payload accepted")
	}
}

func TestExtendPayloadRoundTrip(t *testing.T) {
	p := &vo.ExtendPayload{
		NextHop: "10.0.0.2:5001",
		Create:  vo.CreatePayload{Suite: vo.SuiteX25519Ed25519ChaCha20},
	}
	rand.Read(p.Create.ClientEph[:])
	b, err := vo.EncodeExtendPayload(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := vo.DecodeExtendPayload(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.NextHop != p.NextHop || got.Create != p.Create {
		t.Fatal("mismatch")
	}

	if _, err := vo.DecodeExtendPayload(b[:len(b)-1]); err == nil {
		t.Fatal("truncated extend accepted")
	}
	if _, err := vo.EncodeExtendPayload(&vo.ExtendPayload{NextHop: ""}); err == nil {
		t.Fatal("empty next hop accepted")
	}
}

func TestDataPayloadFlags(t *testing.T) {
	p := &vo.DataPayload{More: true, Data: []byte("fragment")}
	got, err := vo.DecodeDataPayload(vo.EncodeDataPayload(p))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.More || !bytes.Equal(got.Data, p.Data) {
		t.Fatal("mismatch")
	}
	if _, err := vo.DecodeDataPayload([]byte{0x80, 'x'}); err == nil {
		t.Fatal("unknown flag accepted")
	}
	if _, err := vo.DecodeDataPayload(nil); err == nil {
		t.Fatal("empty payload accepted")
	}
}

func TestDestroyPayload(t *testing.T) {
	p, err := vo.DecodeDestroyPayload(vo.EncodeDestroyPayload(&vo.DestroyPayload{Reason: vo.ReasonProtocol}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Reason != vo.ReasonProtocol {
		t.Fatalf("reason = %v", p.Reason)
	}
	empty, err := vo.DecodeDestroyPayload(nil)
	if err != nil || empty.Reason != vo.ReasonFinished {
		t.Fatalf("empty destroy: %v %v", empty, err)
	}
}
