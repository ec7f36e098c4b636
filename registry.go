package serialchat

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// DefaultRescanInterval is the period of the available-ports poll.
	DefaultRescanInterval = time.Second

	eventQueueSize = 256
)

type eventKind int

const (
	evReceived eventKind = iota
	evFault
	evRescan
)

type portEvent struct {
	kind     eventKind
	portName string
	msg      Message
	reason   string
}

// Registry is the single source of truth for which ports exist, their
// live connection state, and the known-ports ("friends") table used for
// persistence and display. Construct one explicitly with NewRegistry
// and inject it into consumers; there is no package-level instance.
//
// Inbound events from reader goroutines funnel through one buffered
// channel consumed by a single dispatch goroutine, so observers see a
// port's OS events in emission order.
type Registry struct {
	mu        sync.RWMutex
	handles   map[string]*PortHandle
	friends   map[string]*PortRecord
	available []string

	events  chan portEvent
	closeCh chan struct{}
	doneCh  chan struct{}
	closed  atomic.Bool

	rescanMu       sync.Mutex
	rescanStop     chan struct{}
	rescanInterval time.Duration

	obsMu        sync.RWMutex
	statusObs    []func(portName string, status PortStatus)
	receivedObs  []func(portName string, msg Message)
	sentObs      []func(portName string, msg Message)
	availableObs []func(ports []string)
	friendsObs   []func()

	metrics *Metrics
	log     zerolog.Logger
}

// NewRegistry builds a registry, performs an initial port scan and
// starts the dispatch goroutine. Close releases it.
func NewRegistry(log zerolog.Logger) *Registry {
	r := &Registry{
		handles:        make(map[string]*PortHandle),
		friends:        make(map[string]*PortRecord),
		events:         make(chan portEvent, eventQueueSize),
		closeCh:        make(chan struct{}),
		doneCh:         make(chan struct{}),
		rescanInterval: DefaultRescanInterval,
		metrics:        &Metrics{},
		log:            log.With().Str("component", "registry").Logger(),
	}
	r.refreshAvailable()
	go r.dispatchLoop()
	return r
}

// Close disconnects every handle and stops the dispatch and rescan
// goroutines. Safe to call once.
func (r *Registry) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.SetAutoRefresh(false)
	r.DisconnectAll()
	close(r.closeCh)
	<-r.doneCh
}

func (r *Registry) dispatchLoop() {
	defer close(r.doneCh)
	for {
		select {
		case <-r.closeCh:
			return
		case ev := <-r.events:
			switch ev.kind {
			case evReceived:
				r.notifyReceived(ev.portName, ev.msg)
			case evFault:
				r.log.Warn().Str("port", ev.portName).Str("reason", ev.reason).Msg("resource fault")
				r.notifyStatus(ev.portName, StatusError)
			case evRescan:
				r.refreshAvailable()
			}
		}
	}
}

func (r *Registry) post(ev portEvent) {
	select {
	case r.events <- ev:
	case <-r.closeCh:
	}
}

// AvailablePorts returns the most recent OS enumeration result. The
// list is refreshed on demand and by the rescan timer; an enumeration
// failure yields an empty list, never an error.
func (r *Registry) AvailablePorts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.available...)
}

// RefreshAvailablePorts queries the OS immediately.
func (r *Registry) RefreshAvailablePorts() {
	r.refreshAvailable()
}

func (r *Registry) refreshAvailable() {
	ports, err := getPortsList()
	if err != nil {
		r.log.Debug().Err(err).Msg("listing ports failed")
		ports = nil
	}

	r.mu.Lock()
	changed := len(ports) != len(r.available)
	if !changed {
		for i := range ports {
			if ports[i] != r.available[i] {
				changed = true
				break
			}
		}
	}
	if changed {
		r.available = ports
	}
	r.mu.Unlock()

	if changed {
		r.notifyAvailable(append([]string(nil), ports...))
	}
}

// SetAutoRefresh starts or stops the periodic port rescan.
func (r *Registry) SetAutoRefresh(enabled bool) {
	r.rescanMu.Lock()
	defer r.rescanMu.Unlock()

	if enabled && r.rescanStop == nil {
		stop := make(chan struct{})
		r.rescanStop = stop
		go r.rescanLoop(r.rescanInterval, stop)
	} else if !enabled && r.rescanStop != nil {
		close(r.rescanStop)
		r.rescanStop = nil
	}
}

// SetRefreshInterval retunes the rescan period; it takes effect
// immediately when the timer is running.
func (r *Registry) SetRefreshInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultRescanInterval
	}
	r.rescanMu.Lock()
	r.rescanInterval = d
	running := r.rescanStop != nil
	if running {
		close(r.rescanStop)
		stop := make(chan struct{})
		r.rescanStop = stop
		go r.rescanLoop(d, stop)
	}
	r.rescanMu.Unlock()
}

func (r *Registry) rescanLoop(interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-r.closeCh:
			return
		case <-ticker.C:
			r.post(portEvent{kind: evRescan})
		}
	}
}

// Handle returns the live handle for name, or nil.
func (r *Registry) Handle(name string) *PortHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[name]
}

// GetOrCreateHandle returns the existing handle for name or creates one
// with default line parameters, registering the name in the friends
// table. Idempotent.
func (r *Registry) GetOrCreateHandle(name string) *PortHandle {
	r.mu.RLock()
	h := r.handles[name]
	r.mu.RUnlock()
	if h != nil {
		return h
	}
	return r.GetOrCreateHandleRecord(NewPortRecord(name))
}

// GetOrCreateHandleRecord is GetOrCreateHandle with explicit settings.
// The supplied line parameters only seed a brand-new entry; an existing
// port keeps its stored settings (UpdateSettings is the way to change
// them). A non-empty remark fills a friend entry whose remark was
// empty, a user-set remark is never overwritten.
func (r *Registry) GetOrCreateHandleRecord(rec PortRecord) *PortHandle {
	rec.Normalize()

	r.mu.Lock()
	friendsChanged := r.addFriendLocked(rec)
	merged := *r.friends[rec.Name]

	if h, ok := r.handles[rec.Name]; ok {
		r.mu.Unlock()
		if friendsChanged {
			r.notifyFriends()
		}
		if err := h.SetRecord(merged); err != nil {
			r.log.Warn().Str("port", rec.Name).Err(err).Msg("applying settings failed")
		}
		return h
	}

	name := rec.Name
	h := newPortHandle(merged, handleHooks{
		onReceived: func(msg Message) {
			r.post(portEvent{kind: evReceived, portName: name, msg: msg})
		},
		onFault: func(reason string) {
			r.post(portEvent{kind: evFault, portName: name, reason: reason})
		},
		onStatus: func(status PortStatus) {
			r.notifyStatus(name, status)
		},
	}, r.metrics, r.log)
	r.handles[name] = h
	r.mu.Unlock()

	if friendsChanged {
		r.notifyFriends()
	}
	r.log.Debug().Str("port", name).Msg("handle created")
	return h
}

// addFriendLocked registers rec in the friends table. An existing
// entry's remark is only filled when it was previously empty. Reports
// whether the table changed.
func (r *Registry) addFriendLocked(rec PortRecord) bool {
	existing, ok := r.friends[rec.Name]
	if !ok {
		cp := rec
		cp.Status = StatusOffline
		r.friends[rec.Name] = &cp
		return true
	}
	if existing.Remark == "" && rec.Remark != "" {
		existing.Remark = rec.Remark
		return true
	}
	return false
}

// RemoveHandle disconnects and drops the live handle for name. The
// friends table is deliberately untouched: removing a known port is a
// separate, explicit decision (RemoveFriend).
func (r *Registry) RemoveHandle(name string) bool {
	r.mu.Lock()
	h, ok := r.handles[name]
	if ok {
		delete(r.handles, name)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	h.Disconnect()
	r.log.Debug().Str("port", name).Msg("handle removed")
	return true
}

// RemoveFriend drops name from the known-ports table. Callers removing
// a port entirely call RemoveHandle first.
func (r *Registry) RemoveFriend(name string) bool {
	r.mu.Lock()
	_, ok := r.friends[name]
	if ok {
		delete(r.friends, name)
	}
	r.mu.Unlock()
	if ok {
		r.notifyFriends()
	}
	return ok
}

// HasFriend reports whether name is in the known-ports table.
func (r *Registry) HasFriend(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.friends[name]
	return ok
}

// Connect opens the named port, creating its handle if needed.
func (r *Registry) Connect(name string) error {
	if r.closed.Load() {
		return ErrRegistryClosed
	}
	return r.GetOrCreateHandle(name).Connect()
}

// Disconnect closes the named port; a no-op for unknown or closed
// ports.
func (r *Registry) Disconnect(name string) {
	if h := r.Handle(name); h != nil {
		h.Disconnect()
	}
}

// DisconnectAll closes every live handle.
func (r *Registry) DisconnectAll() {
	r.mu.RLock()
	handles := make([]*PortHandle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.RUnlock()
	for _, h := range handles {
		h.Disconnect()
	}
}

// Send writes data to the named port and fans the resulting Sent
// message out to observers.
func (r *Registry) Send(name string, data []byte) (Message, error) {
	h := r.Handle(name)
	if h == nil {
		return Message{}, ErrUnknownPort
	}
	msg, err := h.Send(data)
	if err != nil {
		return Message{}, err
	}
	r.notifySent(name, msg)
	return msg, nil
}

// SendText sends a UTF-8 payload.
func (r *Registry) SendText(name, text string) (Message, error) {
	return r.Send(name, []byte(text))
}

// SendHex decodes and sends a hex payload.
func (r *Registry) SendHex(name, hexString string) (Message, error) {
	if !IsValidHexString(hexString) {
		return Message{}, ErrInvalidHex
	}
	return r.Send(name, DecodeHexString(hexString))
}

// SetRemark updates the alias in the friends table and on the live
// handle.
func (r *Registry) SetRemark(name, remark string) {
	r.mu.Lock()
	changed := false
	if rec, ok := r.friends[name]; ok {
		rec.Remark = remark
		changed = true
	}
	h := r.handles[name]
	r.mu.Unlock()

	if h != nil {
		h.setRemark(remark)
	}
	if changed {
		r.notifyFriends()
	}
}

// UpdateSettings stores new line parameters for rec.Name and propagates
// them to the live handle; an open handle goes through a
// disconnect+reconnect cycle so the parameters take effect. A non-empty
// remark replaces the stored one.
func (r *Registry) UpdateSettings(rec PortRecord) error {
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	existing, ok := r.friends[rec.Name]
	if !ok {
		cp := rec
		cp.Status = StatusOffline
		r.friends[rec.Name] = &cp
	} else {
		existing.BaudRate = rec.BaudRate
		existing.DataBits = rec.DataBits
		existing.StopBits = rec.StopBits
		existing.Parity = rec.Parity
		existing.FlowControl = rec.FlowControl
		if rec.Remark != "" {
			existing.Remark = rec.Remark
		}
		rec = *existing
	}
	h := r.handles[rec.Name]
	r.mu.Unlock()

	r.notifyFriends()

	if h != nil {
		return h.SetRecord(rec)
	}
	return nil
}

// LoadFriends seeds the known-ports table, typically from persistence.
// Loaded entries are always Offline.
func (r *Registry) LoadFriends(records []PortRecord) {
	r.mu.Lock()
	for _, rec := range records {
		if rec.Name == "" {
			continue
		}
		rec.Normalize()
		rec.Status = StatusOffline
		cp := rec
		r.friends[rec.Name] = &cp
	}
	r.mu.Unlock()
	r.notifyFriends()
}

// FriendList returns the known ports ordered by name, with live status
// stamped from the handles.
func (r *Registry) FriendList() []PortRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.friendsLocked(nil)
}

// OnlineFriends returns the known ports whose handle is online.
func (r *Registry) OnlineFriends() []PortRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.friendsLocked(func(status PortStatus) bool { return status == StatusOnline })
}

// OfflineFriends returns the known ports without an online handle.
func (r *Registry) OfflineFriends() []PortRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.friendsLocked(func(status PortStatus) bool { return status != StatusOnline })
}

func (r *Registry) friendsLocked(keep func(PortStatus) bool) []PortRecord {
	names := make([]string, 0, len(r.friends))
	for name := range r.friends {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]PortRecord, 0, len(names))
	for _, name := range names {
		rec := *r.friends[name]
		rec.Status = StatusOffline
		if h, ok := r.handles[name]; ok {
			rec.Status = h.Status()
		}
		if keep == nil || keep(rec.Status) {
			out = append(out, rec)
		}
	}
	return out
}

// OnlineCount returns the number of online handles.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, h := range r.handles {
		if h.IsOnline() {
			count++
		}
	}
	return count
}

// TotalCount returns the number of known ports.
func (r *Registry) TotalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.friends)
}

// Metrics exposes the registry-wide counters.
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

// Observer registration. Received and fault-status callbacks run on the
// dispatch goroutine in arrival order; sent and user-initiated status
// callbacks run synchronously at the call site.

func (r *Registry) OnStatusChanged(fn func(portName string, status PortStatus)) {
	r.obsMu.Lock()
	r.statusObs = append(r.statusObs, fn)
	r.obsMu.Unlock()
}

func (r *Registry) OnMessageReceived(fn func(portName string, msg Message)) {
	r.obsMu.Lock()
	r.receivedObs = append(r.receivedObs, fn)
	r.obsMu.Unlock()
}

func (r *Registry) OnMessageSent(fn func(portName string, msg Message)) {
	r.obsMu.Lock()
	r.sentObs = append(r.sentObs, fn)
	r.obsMu.Unlock()
}

func (r *Registry) OnAvailablePortsChanged(fn func(ports []string)) {
	r.obsMu.Lock()
	r.availableObs = append(r.availableObs, fn)
	r.obsMu.Unlock()
}

func (r *Registry) OnFriendListChanged(fn func()) {
	r.obsMu.Lock()
	r.friendsObs = append(r.friendsObs, fn)
	r.obsMu.Unlock()
}

func (r *Registry) notifyStatus(portName string, status PortStatus) {
	r.obsMu.RLock()
	obs := append(([]func(string, PortStatus))(nil), r.statusObs...)
	r.obsMu.RUnlock()
	for _, fn := range obs {
		fn(portName, status)
	}
}

func (r *Registry) notifyReceived(portName string, msg Message) {
	r.obsMu.RLock()
	obs := append(([]func(string, Message))(nil), r.receivedObs...)
	r.obsMu.RUnlock()
	for _, fn := range obs {
		fn(portName, msg)
	}
}

func (r *Registry) notifySent(portName string, msg Message) {
	r.obsMu.RLock()
	obs := append(([]func(string, Message))(nil), r.sentObs...)
	r.obsMu.RUnlock()
	for _, fn := range obs {
		fn(portName, msg)
	}
}

func (r *Registry) notifyAvailable(ports []string) {
	r.obsMu.RLock()
	obs := append(([]func([]string))(nil), r.availableObs...)
	r.obsMu.RUnlock()
	for _, fn := range obs {
		fn(ports)
	}
}

func (r *Registry) notifyFriends() {
	r.obsMu.RLock()
	obs := append(([]func())(nil), r.friendsObs...)
	r.obsMu.RUnlock()
	for _, fn := range obs {
		fn()
	}
}
