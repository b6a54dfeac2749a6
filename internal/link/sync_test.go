package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/pgplink/internal/pgp"
	"github.com/danmuck/pgplink/internal/protocol"
	"github.com/danmuck/pgplink/internal/protocol/routing"
	"github.com/danmuck/pgplink/internal/testutil/testlog"
)

// register lane 1 vc 2, command lane 3 vc 0, data lane 0 vc 1
const testLinkConfig routing.Config = 0x01301200

func newSyncUnderTest(ch pgp.Channel) *SyncTransport {
	return NewSyncTransport(ch, SyncOptions{
		Device:  "stub0",
		Profile: routing.ProfileLinkConfig,
		Mask:    pgp.DataMask{VCs: 0b0001, Lanes: 0b00000001},
	})
}

func TestSyncTransmitRegisterWrite(t *testing.T) {
	testlog.Start(t)
	stub := &stubChannel{}
	tr := newSyncUnderTest(stub)

	reg := NewRegister(0x1000, 2)
	reg.Data[0] = 0xAAAAAAAA
	reg.Data[1] = 0xBBBBBBBB
	n, err := tr.TransmitRegister(context.Background(), reg, true, 5, testLinkConfig)
	if err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if n != 5*protocol.WordBytes {
		t.Fatalf("bytes sent = %d, want %d", n, 5*protocol.WordBytes)
	}
	sent := stub.SentAt(0)
	if (sent.dst != routing.Destination{Lane: 1, VC: 2}) {
		t.Fatalf("register destination = %v, want lane=1 vc=2", sent.dst)
	}
	if sent.frame[1] != protocol.WriteFlag|(0x1000>>2) {
		t.Fatalf("header word1 = %#x", sent.frame[1])
	}
}

func TestSyncTransmitRetriesTransientBusy(t *testing.T) {
	testlog.Start(t)
	stub := &stubChannel{}
	stub.SetBusy(3)
	tr := newSyncUnderTest(stub)

	_, err := tr.TransmitCommand(context.Background(), Command{OpCode: 0x42}, testLinkConfig)
	if err != nil {
		t.Fatalf("transmit should survive transient busy: %v", err)
	}
	if stub.SentCount() != 1 {
		t.Fatalf("sent count = %d, want 1", stub.SentCount())
	}
	if (stub.SentAt(0).dst != routing.Destination{Lane: 3, VC: 0}) {
		t.Fatalf("command destination = %v, want lane=3 vc=0", stub.SentAt(0).dst)
	}
}

func TestSyncTransmitBusyRetryIsBounded(t *testing.T) {
	testlog.Start(t)
	stub := &stubChannel{}
	stub.SetBusy(1 << 20)
	tr := NewSyncTransport(stub, SyncOptions{
		Device:  "stub0",
		Profile: routing.ProfileLinkConfig,
		Backoff: BackoffConfig{
			InitialDelay: time.Microsecond,
			MaxDelay:     10 * time.Microsecond,
			Multiplier:   2.0,
			MaxAttempts:  8,
		},
	})
	_, err := tr.TransmitCommand(context.Background(), Command{OpCode: 0x42}, testLinkConfig)
	if !errors.Is(err, ErrSendTimeout) {
		t.Fatalf("expected ErrSendTimeout, got %v", err)
	}
}

func TestSyncReceiveNoData(t *testing.T) {
	testlog.Start(t)
	tr := newSyncUnderTest(&stubChannel{})
	res, n, err := tr.Receive(NewRegister(0, 2))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if res.Class != RxNone || n != 0 {
		t.Fatalf("expected empty poll, got class=%v n=%d", res.Class, n)
	}
}

func TestSyncReceiveClassifiesDataByMask(t *testing.T) {
	testlog.Start(t)
	stub := &stubChannel{}
	tr := newSyncUnderTest(stub)

	f := protocol.Frame{1, 2, 3, 4}
	stub.Inject(f, pgp.RxMeta{Lane: 0, VC: 0})
	res, n, err := tr.Receive(NewRegister(0, 2))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if res.Class != RxData {
		t.Fatalf("class = %v, want RxData", res.Class)
	}
	if n != f.ByteLen() {
		t.Fatalf("bytes = %d, want %d", n, f.ByteLen())
	}
}

func TestSyncReceiveClassifiesControlOutsideMask(t *testing.T) {
	testlog.Start(t)
	stub := &stubChannel{}
	tr := newSyncUnderTest(stub)

	reply := protocol.Frame{7, 0x1000 >> 2, 0xAAAAAAAA, 0xBBBBBBBB, 0}
	stub.Inject(reply, pgp.RxMeta{Lane: 1, VC: 1})

	reg := NewRegister(0, 2)
	res, _, err := tr.Receive(reg)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if res.Class != RxRegister {
		t.Fatalf("class = %v, want RxRegister", res.Class)
	}
	if res.Context != 7 {
		t.Fatalf("context = %d, want 7", res.Context)
	}
	if reg.Address != 0x1000 {
		t.Fatalf("address = %#x, want 0x1000", reg.Address)
	}
	if reg.Data[0] != 0xAAAAAAAA || reg.Data[1] != 0xBBBBBBBB {
		t.Fatalf("payload mismatch: %#x", reg.Data)
	}
	if reg.Status != 0 {
		t.Fatalf("status = %d, want 0", reg.Status)
	}
}

func TestSyncReceiveIntegrityFlagDropsFrame(t *testing.T) {
	testlog.Start(t)
	stub := &stubChannel{}
	tr := newSyncUnderTest(stub)

	stub.Inject(protocol.Frame{1, 2, 3, 4}, pgp.RxMeta{Lane: 0, VC: 0, EOFE: true})
	_, _, err := tr.Receive(NewRegister(0, 2))
	if !errors.Is(err, protocol.ErrFrameIntegrity) {
		t.Fatalf("expected ErrFrameIntegrity, got %v", err)
	}
	if tr.ErrorCount() != 1 {
		t.Fatalf("error count = %d, want 1", tr.ErrorCount())
	}
}

func TestSyncReceiveShortFrameDropped(t *testing.T) {
	testlog.Start(t)
	stub := &stubChannel{}
	tr := newSyncUnderTest(stub)

	stub.Inject(protocol.Frame{1, 2}, pgp.RxMeta{Lane: 1, VC: 1})
	_, _, err := tr.Receive(NewRegister(0, 2))
	if !errors.Is(err, protocol.ErrFrameIntegrity) {
		t.Fatalf("expected ErrFrameIntegrity, got %v", err)
	}
}

func TestSyncReceiveReplyOverflowRejectedWithoutPartialCopy(t *testing.T) {
	testlog.Start(t)
	stub := &stubChannel{}
	tr := newSyncUnderTest(stub)

	// Four payload words into a two-word register.
	reply := protocol.Frame{0, 0x1000 >> 2, 1, 2, 3, 4, 0}
	stub.Inject(reply, pgp.RxMeta{Lane: 1, VC: 1})

	reg := NewRegister(0, 2)
	_, _, err := tr.Receive(reg)
	if !errors.Is(err, protocol.ErrReplyOverflow) {
		t.Fatalf("expected ErrReplyOverflow, got %v", err)
	}
	if reg.Data[0] != 0 || reg.Data[1] != 0 {
		t.Fatalf("payload bytes written on overflow: %#x", reg.Data)
	}
}
