package serialchat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// MaxReceiveBuffer bounds the unread receive buffer; the oldest bytes
// are dropped first when it overflows.
const MaxReceiveBuffer = 64 * 1024

// readPollTimeout bounds each blocking Read so the reader loop can
// observe closeCh between quiet stretches on the line.
const readPollTimeout = 500 * time.Millisecond

// handleHooks carries the registry-side callbacks a handle reports into.
// Reader-originated events (received data, resource faults) go through
// the registry's dispatch channel; user-initiated status changes are
// delivered synchronously at the call site.
type handleHooks struct {
	onReceived func(Message)
	onStatus   func(PortStatus)
	onFault    func(reason string)
}

// PortHandle owns the lifecycle of one serial line and translates byte
// stream events into Message values. A message boundary equals one
// OS-delivered read event: no framing or reassembly is attempted.
//
// The handle holds a copy of its PortRecord; the registry's friends
// table remains the persisted source of truth.
type PortHandle struct {
	mu      sync.Mutex
	record  PortRecord
	port    SerialPort
	lastErr string
	recvBuf []byte
	closeCh chan struct{}
	doneCh  chan struct{}

	isOpen  atomic.Bool
	faulted atomic.Bool

	hooks   handleHooks
	metrics *Metrics
	log     zerolog.Logger
}

func newPortHandle(record PortRecord, hooks handleHooks, metrics *Metrics, log zerolog.Logger) *PortHandle {
	record.Normalize()
	record.Status = StatusOffline
	return &PortHandle{
		record:  record,
		hooks:   hooks,
		metrics: metrics,
		log:     log.With().Str("port", record.Name).Logger(),
	}
}

// Name returns the immutable port name.
func (h *PortHandle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record.Name
}

// Record returns a copy of the handle's record with the live status
// stamped in.
func (h *PortHandle) Record() PortRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := h.record
	rec.Status = h.statusLoad()
	return rec
}

// Status derives the connection state from the live resource.
func (h *PortHandle) Status() PortStatus {
	return h.statusLoad()
}

// statusLoad reads only the atomic flags; callers need not hold h.mu.
func (h *PortHandle) statusLoad() PortStatus {
	if h.isOpen.Load() {
		return StatusOnline
	}
	if h.faulted.Load() {
		return StatusError
	}
	return StatusOffline
}

func (h *PortHandle) IsOnline() bool {
	return h.isOpen.Load()
}

// LastError returns the human-readable reason of the most recent
// failure, empty after a successful connect.
func (h *PortHandle) LastError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// Connect opens the OS resource with the record's line parameters.
// Calling Connect on an online handle is a no-op. Failure leaves the
// handle in the Error state with a retrievable reason; no retry is
// attempted.
func (h *PortHandle) Connect() error {
	h.mu.Lock()

	if h.isOpen.Load() {
		h.mu.Unlock()
		return nil
	}

	if h.metrics != nil {
		h.metrics.ConnectionAttempts.Add(1)
	}

	rec := h.record
	if err := rec.Validate(); err != nil {
		h.lastErr = err.Error()
		h.faulted.Store(true)
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.ConnectionFailures.Add(1)
		}
		h.notifyStatus(StatusError)
		return fmt.Errorf("invalid port configuration: %w", err)
	}

	port, err := openPort(rec.Name, rec.Mode())
	if err != nil {
		h.lastErr = err.Error()
		h.faulted.Store(true)
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.ConnectionFailures.Add(1)
		}
		h.notifyStatus(StatusError)
		return fmt.Errorf("opening serial port %s: %w", rec.Name, err)
	}

	if err := port.SetReadTimeout(readPollTimeout); err != nil {
		h.log.Warn().Err(err).Msg("setting read timeout")
	}

	if rec.FlowControl == FlowHardware {
		if err := port.SetDTR(true); err != nil {
			h.log.Warn().Err(err).Msg("setting DTR")
		}
		if err := port.SetRTS(true); err != nil {
			h.log.Warn().Err(err).Msg("setting RTS")
		}
	}

	h.port = port
	h.lastErr = ""
	h.record.LastActiveTime = time.Now()
	h.closeCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	closeCh, doneCh := h.closeCh, h.doneCh

	h.faulted.Store(false)
	h.isOpen.Store(true)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SuccessfulConnects.Add(1)
		h.metrics.LastConnectTime.Store(time.Now().Unix())
	}

	go h.readerLoop(port, closeCh, doneCh)

	h.log.Info().Int("baud", rec.BaudRate.Int()).Msg("port connected")
	h.notifyStatus(StatusOnline)
	return nil
}

// Disconnect closes the resource if open. It is always safe to call on
// an already-closed handle. Buffered received data is kept.
func (h *PortHandle) Disconnect() {
	h.mu.Lock()
	if !h.isOpen.Load() {
		h.mu.Unlock()
		return
	}
	h.isOpen.Store(false)
	close(h.closeCh)
	port := h.port
	h.port = nil
	done := h.doneCh
	h.mu.Unlock()

	// Close the resource first to unblock the in-flight Read.
	_ = port.Close()
	<-done

	h.faulted.Store(false)
	if h.metrics != nil {
		h.metrics.Disconnections.Add(1)
	}

	h.log.Info().Msg("port disconnected")
	h.notifyStatus(StatusOffline)
}

// Send writes the payload and synthesizes the corresponding Sent
// message. Delivery is not guaranteed beyond the OS write buffer.
func (h *PortHandle) Send(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, ErrEmptyPayload
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.isOpen.Load() || h.port == nil {
		h.lastErr = "port is not open"
		return Message{}, ErrPortNotOpen
	}

	written := 0
	for written < len(data) {
		n, err := h.port.Write(data[written:])
		if err != nil {
			h.lastErr = err.Error()
			return Message{}, fmt.Errorf("writing to %s: %w", h.record.Name, err)
		}
		if n == 0 {
			break
		}
		written += n
	}
	if written < len(data) {
		h.lastErr = "partial write: not all bytes written"
		return Message{}, errors.New("serialchat: partial write")
	}

	h.record.LastActiveTime = time.Now()
	if h.metrics != nil {
		h.metrics.BytesSent.Add(int64(written))
		h.metrics.MessagesSent.Add(1)
		h.metrics.markActivity()
	}

	return NewMessage(h.record.Name, data, DirectionSent), nil
}

// SendText sends a UTF-8 payload.
func (h *PortHandle) SendText(text string) (Message, error) {
	return h.Send([]byte(text))
}

// SendHex decodes and sends a hex payload. Input that is non-empty but
// not valid hex is rejected with ErrInvalidHex.
func (h *PortHandle) SendHex(hexString string) (Message, error) {
	if !IsValidHexString(hexString) {
		h.mu.Lock()
		h.lastErr = "invalid hex string"
		h.mu.Unlock()
		return Message{}, ErrInvalidHex
	}
	return h.Send(DecodeHexString(hexString))
}

// ReadAll drains and returns the accumulated unread bytes.
func (h *PortHandle) ReadAll() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := h.recvBuf
	h.recvBuf = nil
	return buf
}

// SetRecord applies new settings. When the handle is online, this is a
// disconnect+reconnect cycle so the new line parameters take effect;
// unchanged line parameters skip the cycle. The name stays immutable.
func (h *PortHandle) SetRecord(rec PortRecord) error {
	rec.Normalize()

	h.mu.Lock()
	rec.Name = h.record.Name
	same := rec.BaudRate == h.record.BaudRate &&
		rec.DataBits == h.record.DataBits &&
		rec.StopBits == h.record.StopBits &&
		rec.Parity == h.record.Parity &&
		rec.FlowControl == h.record.FlowControl
	if same {
		h.record.Remark = rec.Remark
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	wasOpen := h.isOpen.Load()
	if wasOpen {
		h.Disconnect()
	}

	h.mu.Lock()
	last := h.record.LastActiveTime
	h.record = rec
	h.record.LastActiveTime = last
	h.mu.Unlock()

	if wasOpen {
		return h.Connect()
	}
	return nil
}

func (h *PortHandle) setRemark(remark string) {
	h.mu.Lock()
	h.record.Remark = remark
	h.mu.Unlock()
}

func (h *PortHandle) notifyStatus(status PortStatus) {
	if h.hooks.onStatus != nil {
		h.hooks.onStatus(status)
	}
}

// readerLoop drains all currently available bytes per read and emits
// exactly one Received message per read event.
func (h *PortHandle) readerLoop(port SerialPort, closeCh, doneCh chan struct{}) {
	defer close(doneCh)

	buf := readBufPool.Get()
	defer readBufPool.Put(buf)

	for {
		n, err := port.Read(buf)
		if err != nil {
			select {
			case <-closeCh:
				return // orderly shutdown
			default:
			}
			h.handleFault(err)
			return
		}
		if n == 0 {
			select {
			case <-closeCh:
				return
			default:
			}
			continue
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])

		h.mu.Lock()
		h.recvBuf = append(h.recvBuf, chunk...)
		if overflow := len(h.recvBuf) - MaxReceiveBuffer; overflow > 0 {
			h.recvBuf = h.recvBuf[overflow:]
		}
		h.record.LastActiveTime = time.Now()
		name := h.record.Name
		h.mu.Unlock()

		if h.metrics != nil {
			h.metrics.BytesReceived.Add(int64(n))
			h.metrics.MessagesReceived.Add(1)
			h.metrics.markActivity()
		}

		if h.hooks.onReceived != nil {
			h.hooks.onReceived(NewMessage(name, chunk, DirectionReceived))
		}
	}
}

// handleFault records a transport-level failure while open: the handle
// transitions to Error, the resource is released, and no reconnection
// is attempted.
func (h *PortHandle) handleFault(err error) {
	h.mu.Lock()
	if !h.isOpen.Load() {
		h.mu.Unlock()
		return
	}
	h.isOpen.Store(false)
	h.lastErr = err.Error()
	port := h.port
	h.port = nil
	h.mu.Unlock()

	h.faulted.Store(true)
	if port != nil {
		_ = port.Close()
	}
	if h.metrics != nil {
		h.metrics.ResourceFaults.Add(1)
	}

	h.log.Warn().Err(err).Msg("resource fault, port closed")
	if h.hooks.onFault != nil {
		h.hooks.onFault(err.Error())
	}
}
