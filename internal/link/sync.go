package link

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/pgplink/internal/observability"
	"github.com/danmuck/pgplink/internal/pgp"
	"github.com/danmuck/pgplink/internal/protocol"
	"github.com/danmuck/pgplink/internal/protocol/routing"
)

// RxClass is the classification of one received frame.
type RxClass int

const (
	RxNone RxClass = iota
	RxData
	RxRegister
)

// RxResult describes one frame delivered by SyncTransport.Receive.
type RxResult struct {
	Class   RxClass
	Frame   protocol.Frame // data frames only
	Context uint32         // register replies only
	Write   bool
}

// SyncOptions configures a synchronous transport.
type SyncOptions struct {
	Device     string
	Profile    routing.Profile
	Mask       pgp.DataMask
	MaxRxWords int
	Backoff    BackoffConfig
}

// SyncTransport is the single-thread blocking strategy: the caller
// encodes, sends, and polls for the paired reply on its own thread. No
// background goroutines.
type SyncTransport struct {
	ch         pgp.Channel
	device     string
	profile    routing.Profile
	mask       pgp.DataMask
	maxRxWords int
	backoff    BackoffConfig
	rng        *rand.Rand
	errorCount atomic.Uint32
}

// NewSyncTransport wraps an opened channel. The destination mask must
// match the one the channel was opened with.
func NewSyncTransport(ch pgp.Channel, opts SyncOptions) *SyncTransport {
	if opts.MaxRxWords <= 0 {
		opts.MaxRxWords = 2048
	}
	if opts.Backoff == (BackoffConfig{}) {
		opts.Backoff = DefaultBackoff()
	}
	return &SyncTransport{
		ch:         ch,
		device:     opts.Device,
		profile:    opts.Profile,
		mask:       opts.Mask,
		maxRxWords: opts.MaxRxWords,
		backoff:    opts.Backoff,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ErrorCount returns the number of frames dropped for integrity
// failures or reply overflow.
func (t *SyncTransport) ErrorCount() uint32 { return t.errorCount.Load() }

// TransmitRegister encodes and sends one register transaction,
// returning the byte count accepted by the channel.
func (t *SyncTransport) TransmitRegister(ctx context.Context, reg *Register, write bool, regCtx uint32, cfg routing.Config) (int, error) {
	var (
		f   protocol.Frame
		err error
	)
	if write {
		f, err = protocol.EncodeRegisterWrite(regCtx, reg.Address, reg.Data, reg.Size())
	} else {
		f, err = protocol.EncodeRegisterRead(regCtx, reg.Address, reg.Size())
	}
	if err != nil {
		return 0, err
	}
	dst, err := routing.Resolve(KindRegister, t.profile, cfg, reg.Address)
	if err != nil {
		return 0, err
	}
	return t.send(ctx, KindRegister, f, dst)
}

// TransmitCommand encodes and sends one command transaction.
func (t *SyncTransport) TransmitCommand(ctx context.Context, cmd Command, cfg routing.Config) (int, error) {
	dst, err := routing.Resolve(KindCommand, t.profile, cfg, cmd.OpCode)
	if err != nil {
		return 0, err
	}
	return t.send(ctx, KindCommand, protocol.EncodeCommand(cmd.Opcode()), dst)
}

// TransmitRun encodes and sends one run-command transaction.
func (t *SyncTransport) TransmitRun(ctx context.Context, cmd Command, cfg routing.Config) (int, error) {
	dst, err := routing.Resolve(KindRun, t.profile, cfg, cmd.OpCode)
	if err != nil {
		return 0, err
	}
	return t.send(ctx, KindRun, protocol.EncodeRun(cmd.Opcode()), dst)
}

// TransmitData sends one raw data transaction.
func (t *SyncTransport) TransmitData(ctx context.Context, d Data, cfg routing.Config) (int, error) {
	f, err := protocol.EncodeData(d.Payload)
	if err != nil {
		return 0, err
	}
	addrOrOp := d.Dest
	dst, err := routing.Resolve(KindData, t.profile, cfg, addrOrOp)
	if err != nil {
		return 0, err
	}
	return t.send(ctx, KindData, f, dst)
}

// send retries on transient busy under a bounded backoff. Exhaustion or
// context expiry surfaces ErrSendTimeout, distinguishable from a hard
// channel failure.
func (t *SyncTransport) send(ctx context.Context, kind Kind, f protocol.Frame, dst routing.Destination) (int, error) {
	attempt := 0
	for {
		attempt++
		n, err := t.ch.Send(f, dst)
		if err == nil {
			observability.RecordFrameSent(t.device, kind.String())
			return n * protocol.WordBytes, nil
		}
		if !errors.Is(err, pgp.ErrWouldBlock) {
			return 0, fmt.Errorf("send %v to %v: %w", kind, dst, err)
		}
		observability.RecordBusyRetry(t.device)
		if t.backoff.MaxAttempts > 0 && attempt >= t.backoff.MaxAttempts {
			return 0, fmt.Errorf("%w: %v after %d attempts", ErrSendTimeout, kind, attempt)
		}
		delay := NextBackoffDelay(t.backoff, attempt, t.rng)
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %v", ErrSendTimeout, ctx.Err())
		case <-time.After(delay):
		}
	}
}

// Receive polls the channel once. No pending frame returns a zero
// RxResult and nil error. Integrity failures and reply overflow drop
// the frame, advance the error counter, and surface the sentinel.
func (t *SyncTransport) Receive(reg *Register) (RxResult, int, error) {
	f, meta, err := t.ch.Receive(t.maxRxWords)
	if err != nil {
		if errors.Is(err, pgp.ErrNoData) {
			return RxResult{}, 0, nil
		}
		return RxResult{}, 0, err
	}

	if meta.Integrity() || f.Words() < protocol.MinControlWords {
		t.errorCount.Add(1)
		observability.RecordRxError(t.device)
		log.Debug().
			Str("device", t.device).
			Uint8("lane", meta.Lane).Uint8("vc", meta.VC).
			Bool("eofe", meta.EOFE).Bool("fifo_err", meta.FIFOErr).Bool("length_err", meta.LengthErr).
			Int("words", f.Words()).
			Msg("receive integrity failure, frame dropped")
		return RxResult{}, 0, protocol.ErrFrameIntegrity
	}

	// Data or control, decided by the link-wide destination mask.
	if t.mask.Match(meta.Lane, meta.VC) {
		observability.RecordFrameReceived(t.device, "data")
		return RxResult{Class: RxData, Frame: f}, f.ByteLen(), nil
	}

	reply, err := protocol.DecodeRegisterReply(f)
	if err != nil {
		t.errorCount.Add(1)
		observability.RecordRxError(t.device)
		return RxResult{}, 0, err
	}

	if len(reply.Payload) > reg.Size() {
		t.errorCount.Add(1)
		observability.RecordReplyOverflow(t.device)
		log.Debug().
			Str("device", t.device).
			Uint32("address", reply.Address).
			Int("rx_words", len(reply.Payload)).
			Int("capacity", reg.Size()).
			Msg("register reply exceeds buffer capacity, frame dropped")
		return RxResult{}, 0, protocol.ErrReplyOverflow
	}

	reg.Address = reply.Address
	copy(reg.Data, reply.Payload)
	reg.Status = reply.Status
	observability.RecordFrameReceived(t.device, "register")
	return RxResult{Class: RxRegister, Context: reply.Context, Write: reply.Write}, f.ByteLen(), nil
}
