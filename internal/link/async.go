package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/pgplink/internal/observability"
	"github.com/danmuck/pgplink/internal/pgp"
	"github.com/danmuck/pgplink/internal/protocol"
	"github.com/danmuck/pgplink/internal/protocol/routing"
)

// regRequest is one posted register transaction.
type regRequest struct {
	Reg   *Register
	Write bool
}

// pendingRegister is the snapshot of the last transmitted register
// frame, used by the receive classifier to correlate the reply. Single
// slot: at most one register transaction is outstanding per link.
type pendingRegister struct {
	hdr    [2]uint32
	expect int
	write  bool
	reg    *Register
}

// AsyncOptions configures an asynchronous link.
type AsyncOptions struct {
	Device     string
	Mask       pgp.DataMask
	MaxRxWords int
	IdleWait   time.Duration
}

// AsyncLink is the dual-goroutine strategy: a transmit sequencer drains
// four single-slot mailboxes in fixed priority order, and a receive
// classifier splits inbound frames into data and control traffic. The
// caller never touches the device directly.
type AsyncLink struct {
	ch         pgp.Channel
	device     string
	mask       pgp.DataMask
	maxRxWords int
	idleWait   time.Duration

	runBox  Mailbox[Command]
	regBox  Mailbox[regRequest]
	cmdBox  Mailbox[Command]
	dataBox Mailbox[Data]

	counters Counters
	queue    *DataQueue

	pendingMu sync.Mutex
	pending   *pendingRegister

	txWake  chan struct{}
	regDone chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup

	errorCount atomic.Uint32
	unexpected atomic.Uint32
	closedFlag atomic.Bool
}

// OpenAsync wraps an opened channel and starts the two service
// goroutines. Close stops and joins them.
func OpenAsync(ch pgp.Channel, opts AsyncOptions) *AsyncLink {
	if opts.MaxRxWords <= 0 {
		opts.MaxRxWords = 2048
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = time.Millisecond
	}
	l := &AsyncLink{
		ch:         ch,
		device:     opts.Device,
		mask:       opts.Mask,
		maxRxWords: opts.MaxRxWords,
		idleWait:   opts.IdleWait,
		queue:      NewDataQueue(),
		txWake:     make(chan struct{}, 1),
		regDone:    make(chan struct{}, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.wg.Add(2)
	go l.runTx(ctx)
	go l.runRx(ctx)
	return l
}

// Close cancels both goroutines, joins them, and closes the channel.
// In-flight channel calls are not aborted; the loops are not re-entered.
func (l *AsyncLink) Close() error {
	if l.closedFlag.Swap(true) {
		return nil
	}
	l.cancel()
	l.wg.Wait()
	return l.ch.Close()
}

// Queue returns the FIFO of received data frames.
func (l *AsyncLink) Queue() *DataQueue { return l.queue }

// Counters exposes the per-kind request/response pairs.
func (l *AsyncLink) Counters() *Counters { return &l.counters }

// ErrorCount returns the number of frames dropped for integrity
// failures.
func (l *AsyncLink) ErrorCount() uint32 { return l.errorCount.Load() }

// UnexpectedCount returns the number of control frames matching no
// outstanding register request.
func (l *AsyncLink) UnexpectedCount() uint32 { return l.unexpected.Load() }

// Wakeup shortens the transmit sequencer's idle wait. Best-effort:
// delivery is never required for correctness, only latency.
func (l *AsyncLink) Wakeup() {
	select {
	case l.txWake <- struct{}{}:
	default:
	}
}

// SubmitRegisterRead posts a register read. At most one register
// transaction may be outstanding; a second post before resolution is
// rejected with ErrMailboxBusy.
func (l *AsyncLink) SubmitRegisterRead(reg *Register) error {
	return l.submitRegister(regRequest{Reg: reg, Write: false})
}

// SubmitRegisterWrite posts a register write.
func (l *AsyncLink) SubmitRegisterWrite(reg *Register) error {
	return l.submitRegister(regRequest{Reg: reg, Write: true})
}

func (l *AsyncLink) submitRegister(req regRequest) error {
	if l.closedFlag.Load() {
		return ErrClosed
	}
	if l.counters.InFlight(KindRegister) {
		return ErrMailboxBusy
	}
	if err := l.regBox.Post(req); err != nil {
		return err
	}
	l.counters.Request(KindRegister)
	l.Wakeup()
	return nil
}

// SubmitCommand posts an out-of-band command.
func (l *AsyncLink) SubmitCommand(cmd Command) error {
	return l.submit(KindCommand, &l.cmdBox, cmd)
}

// SubmitRun posts a run-command. Run traffic is serviced ahead of every
// other kind.
func (l *AsyncLink) SubmitRun(cmd Command) error {
	return l.submit(KindRun, &l.runBox, cmd)
}

func (l *AsyncLink) submit(k Kind, box *Mailbox[Command], cmd Command) error {
	if l.closedFlag.Load() {
		return ErrClosed
	}
	if l.counters.InFlight(k) {
		return ErrMailboxBusy
	}
	if err := box.Post(cmd); err != nil {
		return err
	}
	l.counters.Request(k)
	l.Wakeup()
	return nil
}

// SubmitData posts one bulk data transaction.
func (l *AsyncLink) SubmitData(d Data) error {
	if l.closedFlag.Load() {
		return ErrClosed
	}
	if l.counters.InFlight(KindData) {
		return ErrMailboxBusy
	}
	if err := l.dataBox.Post(d); err != nil {
		return err
	}
	l.counters.Request(KindData)
	l.Wakeup()
	return nil
}

// WaitRegister blocks until the outstanding register transaction
// resolves or the context expires. The completion notify only shortens
// the bounded re-poll.
func (l *AsyncLink) WaitRegister(ctx context.Context) error {
	for l.counters.InFlight(KindRegister) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.regDone:
		case <-time.After(l.idleWait):
		}
	}
	return nil
}

// runTx is the transmit sequencer. Mailboxes are checked in fixed
// priority order; sustained higher-priority load starves lower kinds by
// design.
func (l *AsyncLink) runTx(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if l.serviceNext() {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-l.txWake:
		case <-time.After(l.idleWait):
		}
	}
}

func (l *AsyncLink) serviceNext() bool {
	if cmd, ok := l.runBox.Take(); ok {
		l.sendCommand(KindRun, cmd)
		return true
	}
	if req, ok := l.regBox.Take(); ok {
		l.sendRegister(req)
		return true
	}
	if cmd, ok := l.cmdBox.Take(); ok {
		l.sendCommand(KindCommand, cmd)
		return true
	}
	if d, ok := l.dataBox.Take(); ok {
		l.sendData(d)
		return true
	}
	return false
}

// sendCommand services a run or command transaction: single attempt, no
// busy retry, acknowledgment immediately after the send.
func (l *AsyncLink) sendCommand(k Kind, cmd Command) {
	var f protocol.Frame
	if k == KindRun {
		f = protocol.EncodeRun(cmd.Opcode())
	} else {
		f = protocol.EncodeCommand(cmd.Opcode())
	}
	dst, err := routing.Resolve(k, routing.ProfileAddress, 0, cmd.OpCode)
	if err != nil {
		log.Error().Err(err).Str("device", l.device).Msg("command destination unresolvable, dropped")
		l.counters.Ack(k)
		return
	}
	l.sendOnce(k, f, dst)
	l.counters.Ack(k)
}

// sendRegister encodes and dispatches the register transaction. The
// pending snapshot is installed before the send so a fast reply cannot
// race the classifier. Acknowledgment happens on reply match, not here.
func (l *AsyncLink) sendRegister(req regRequest) {
	var (
		f   protocol.Frame
		err error
	)
	if req.Write {
		f, err = protocol.EncodeRegisterWrite(0, req.Reg.Address, req.Reg.Data, req.Reg.Size())
	} else {
		f, err = protocol.EncodeRegisterRead(0, req.Reg.Address, req.Reg.Size())
	}
	if err != nil {
		log.Error().Err(err).Str("device", l.device).Msg("register encode failed, dropped")
		l.counters.Ack(KindRegister)
		l.notifyRegDone()
		return
	}
	dst, err := routing.Resolve(KindRegister, routing.ProfileAddress, 0, req.Reg.Address)
	if err != nil {
		log.Error().Err(err).Str("device", l.device).Msg("register destination unresolvable, dropped")
		l.counters.Ack(KindRegister)
		l.notifyRegDone()
		return
	}

	l.pendingMu.Lock()
	l.pending = &pendingRegister{
		hdr:    f.HeaderWords(),
		expect: req.Reg.Size(),
		write:  req.Write,
		reg:    req.Reg,
	}
	l.pendingMu.Unlock()

	if !l.sendOnce(KindRegister, f, dst) {
		// A dropped register send resolves immediately with the
		// transaction's status untouched; no reply will ever arrive.
		l.pendingMu.Lock()
		l.pending = nil
		l.pendingMu.Unlock()
		l.counters.Ack(KindRegister)
		l.notifyRegDone()
	}
}

// sendData services a bulk data transaction: destination from the
// one-hot field, single attempt, acknowledgment after the send.
func (l *AsyncLink) sendData(d Data) {
	f, err := protocol.EncodeData(d.Payload)
	if err != nil {
		log.Error().Err(err).Str("device", l.device).Msg("data payload rejected, dropped")
		l.counters.Ack(KindData)
		return
	}
	dst, err := routing.Resolve(KindData, routing.ProfileAddress, 0, d.Dest)
	if err != nil {
		log.Error().Err(err).Str("device", l.device).Msg("data destination unresolvable, dropped")
		l.counters.Ack(KindData)
		return
	}
	l.sendOnce(KindData, f, dst)
	l.counters.Ack(KindData)
}

func (l *AsyncLink) sendOnce(k Kind, f protocol.Frame, dst routing.Destination) bool {
	_, err := l.ch.Send(f, dst)
	if err == nil {
		observability.RecordFrameSent(l.device, k.String())
		return true
	}
	if errors.Is(err, pgp.ErrWouldBlock) {
		observability.RecordBusyDrop(l.device, k.String())
		log.Warn().Str("device", l.device).Stringer("kind", k).
			Msg("channel busy on single-attempt send, frame dropped")
		return false
	}
	log.Error().Err(err).Str("device", l.device).Stringer("kind", k).Msg("send failed")
	return false
}

// runRx is the receive classifier.
func (l *AsyncLink) runRx(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := l.ch.WaitReady(); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("device", l.device).Msg("readiness wait failed")
			continue
		}

		f, meta, err := l.ch.Receive(l.maxRxWords)
		if err != nil {
			if errors.Is(err, pgp.ErrNoData) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("device", l.device).Msg("receive failed")
			continue
		}

		if meta.Integrity() || f.Words() < protocol.MinControlWords {
			l.errorCount.Add(1)
			observability.RecordRxError(l.device)
			log.Debug().
				Str("device", l.device).
				Uint8("lane", meta.Lane).Uint8("vc", meta.VC).
				Bool("eofe", meta.EOFE).Bool("fifo_err", meta.FIFOErr).Bool("length_err", meta.LengthErr).
				Int("words", f.Words()).
				Msg("receive integrity failure, frame dropped")
			continue
		}

		if l.mask.Match(meta.Lane, meta.VC) {
			l.queue.Push(f)
			observability.RecordFrameReceived(l.device, "data")
			observability.SetDataQueueDepth(l.device, l.queue.Len())
			continue
		}

		l.matchControl(f)
	}
}

// matchControl tests a control-classified frame against the one
// outstanding register request. Header words 0-1 and the reply word
// count must exactly equal the transmit-time snapshot.
func (l *AsyncLink) matchControl(f protocol.Frame) {
	l.pendingMu.Lock()
	p := l.pending
	matched := p != nil &&
		f[0] == p.hdr[0] && f[1] == p.hdr[1] &&
		protocol.PayloadWords(f.Words()) == p.expect
	if matched {
		l.pending = nil
	}
	l.pendingMu.Unlock()

	if !matched {
		l.unexpected.Add(1)
		observability.RecordUnexpectedFrame(l.device)
		log.Debug().
			Str("device", l.device).
			Uint32("word0", f[0]).Uint32("word1", f[1]).
			Int("payload_words", protocol.PayloadWords(f.Words())).
			Msg("unexpected control frame, dropped")
		return
	}

	status := f.Status()
	if !p.write {
		if status == 0 {
			copy(p.reg.Data, f[2:f.Words()-1])
		} else {
			// Fault reply carries no usable payload; the buffer is
			// filled with the all-ones sentinel.
			for i := range p.reg.Data {
				p.reg.Data[i] = 0xFFFFFFFF
			}
		}
	}
	p.reg.Status = status
	l.counters.Ack(KindRegister)
	observability.RecordFrameReceived(l.device, "register")
	l.notifyRegDone()
}

func (l *AsyncLink) notifyRegDone() {
	select {
	case l.regDone <- struct{}{}:
	default:
	}
}
