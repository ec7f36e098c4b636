package serialchat

import (
	"sync"

	"github.com/rs/zerolog"
)

// GroupRouter models N-to-N forwarding among named groups of ports. It
// subscribes once to the registry's message feed and filters by
// membership inside the handler, so removing a member only changes the
// membership check, never any wiring. A port may belong to several
// groups; every group containing the source port is offered the
// message.
type GroupRouter struct {
	mu     sync.RWMutex
	groups map[string]*GroupRecord
	order  []string // group ids in creation order

	registry *Registry
	store    *MessageStore
	log      zerolog.Logger

	obsMu        sync.RWMutex
	changedObs   []func(GroupRecord)
	removedObs   []func(groupID string)
	forwardedObs []func(fromPort, toPort string, msg Message)
}

// NewGroupRouter wires a router into the registry's received-message
// feed. The store receives group histories: the original inbound
// message plus every forwarded copy.
func NewGroupRouter(registry *Registry, store *MessageStore, log zerolog.Logger) *GroupRouter {
	rt := &GroupRouter{
		groups:   make(map[string]*GroupRecord),
		registry: registry,
		store:    store,
		log:      log.With().Str("component", "router").Logger(),
	}
	registry.OnMessageReceived(rt.handleInbound)
	return rt
}

// CreateGroup makes a new group with forwarding enabled.
func (rt *GroupRouter) CreateGroup(name, description string) GroupRecord {
	rec := NewGroupRecord(name)
	rec.Description = description

	rt.mu.Lock()
	cp := rec.Clone()
	rt.groups[rec.ID] = &cp
	rt.order = append(rt.order, rec.ID)
	rt.mu.Unlock()

	rt.notifyChanged(rec)
	return rec
}

// AddGroup registers an existing record, typically from persistence.
// A record with the same id replaces the old one in place.
func (rt *GroupRouter) AddGroup(rec GroupRecord) {
	if rec.ID == "" {
		return
	}
	rt.mu.Lock()
	if _, ok := rt.groups[rec.ID]; !ok {
		rt.order = append(rt.order, rec.ID)
	}
	cp := rec.Clone()
	rt.groups[rec.ID] = &cp
	rt.mu.Unlock()

	rt.notifyChanged(rec)
}

// RemoveGroup drops the group; its history in the store is untouched.
func (rt *GroupRouter) RemoveGroup(groupID string) bool {
	rt.mu.Lock()
	_, ok := rt.groups[groupID]
	if ok {
		delete(rt.groups, groupID)
		for i, id := range rt.order {
			if id == groupID {
				rt.order = append(rt.order[:i], rt.order[i+1:]...)
				break
			}
		}
	}
	rt.mu.Unlock()

	if ok {
		rt.notifyRemoved(groupID)
	}
	return ok
}

// Group returns a copy of the named group.
func (rt *GroupRouter) Group(groupID string) (GroupRecord, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	g, ok := rt.groups[groupID]
	if !ok {
		return GroupRecord{}, false
	}
	return g.Clone(), true
}

// Groups returns copies of all groups in creation order.
func (rt *GroupRouter) Groups() []GroupRecord {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]GroupRecord, 0, len(rt.order))
	for _, id := range rt.order {
		out = append(out, rt.groups[id].Clone())
	}
	return out
}

// AddMember adds portName to the group. Duplicate adds are no-ops and
// report false.
func (rt *GroupRouter) AddMember(groupID, portName string) bool {
	rt.mu.Lock()
	g, ok := rt.groups[groupID]
	added := ok && g.AddMember(portName)
	var rec GroupRecord
	if added {
		rec = g.Clone()
	}
	rt.mu.Unlock()

	if added {
		rt.notifyChanged(rec)
	}
	return added
}

// RemoveMember removes portName from the group; no-op when absent. The
// shared registry subscription stays in place, only the membership
// check changes.
func (rt *GroupRouter) RemoveMember(groupID, portName string) bool {
	rt.mu.Lock()
	g, ok := rt.groups[groupID]
	removed := ok && g.RemoveMember(portName)
	var rec GroupRecord
	if removed {
		rec = g.Clone()
	}
	rt.mu.Unlock()

	if removed {
		rt.notifyChanged(rec)
	}
	return removed
}

// MemberCount returns the group's membership size.
func (rt *GroupRouter) MemberCount(groupID string) int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if g, ok := rt.groups[groupID]; ok {
		return g.MemberCount()
	}
	return 0
}

// SetForwardingEnabled toggles rebroadcasting. Already-forwarded
// history is unaffected.
func (rt *GroupRouter) SetForwardingEnabled(groupID string, enabled bool) bool {
	rt.mu.Lock()
	g, ok := rt.groups[groupID]
	var rec GroupRecord
	changed := ok && g.ForwardingEnabled != enabled
	if changed {
		g.ForwardingEnabled = enabled
		rec = g.Clone()
	}
	rt.mu.Unlock()

	if changed {
		rt.notifyChanged(rec)
	}
	return ok
}

// SetGroupInfo renames the group and updates its description.
func (rt *GroupRouter) SetGroupInfo(groupID, name, description string) bool {
	rt.mu.Lock()
	g, ok := rt.groups[groupID]
	var rec GroupRecord
	if ok {
		g.Name = name
		g.Description = description
		rec = g.Clone()
	}
	rt.mu.Unlock()

	if ok {
		rt.notifyChanged(rec)
	}
	return ok
}

// OnGroupChanged registers an observer for membership, flag and info
// mutations, so list views and persistence stay in sync.
func (rt *GroupRouter) OnGroupChanged(fn func(GroupRecord)) {
	rt.obsMu.Lock()
	rt.changedObs = append(rt.changedObs, fn)
	rt.obsMu.Unlock()
}

// OnGroupRemoved registers an observer for group removal.
func (rt *GroupRouter) OnGroupRemoved(fn func(groupID string)) {
	rt.obsMu.Lock()
	rt.removedObs = append(rt.removedObs, fn)
	rt.obsMu.Unlock()
}

// OnMessageForwarded registers an observer for each forwarded copy.
func (rt *GroupRouter) OnMessageForwarded(fn func(fromPort, toPort string, msg Message)) {
	rt.obsMu.Lock()
	rt.forwardedObs = append(rt.forwardedObs, fn)
	rt.obsMu.Unlock()
}

// handleInbound runs on the registry's dispatch goroutine for every
// received message. Each group containing the source port records the
// message; groups with forwarding enabled rebroadcast it.
func (rt *GroupRouter) handleInbound(portName string, msg Message) {
	rt.mu.RLock()
	var targets []GroupRecord
	for _, id := range rt.order {
		if g := rt.groups[id]; g.HasMember(portName) {
			targets = append(targets, g.Clone())
		}
	}
	rt.mu.RUnlock()

	for _, g := range targets {
		if rt.store != nil {
			rt.store.AppendGroup(g.ID, msg)
		}
		if g.ForwardingEnabled {
			rt.forward(g, portName, msg)
		}
	}
}

// forward rebroadcasts the payload to every other online member in
// insertion order. Delivery is best-effort and independent per member:
// one member failing never blocks the rest, and the sender only sees a
// log-level notice.
func (rt *GroupRouter) forward(g GroupRecord, fromPort string, msg Message) {
	for _, member := range g.Members {
		if member == fromPort {
			continue
		}
		h := rt.registry.Handle(member)
		if h == nil || !h.IsOnline() {
			continue
		}

		fwd, err := rt.registry.Send(member, msg.Data)
		if err != nil {
			rt.log.Warn().
				Str("group", g.Name).
				Str("from", fromPort).
				Str("to", member).
				Err(err).
				Msg("forward failed")
			continue
		}

		rt.registry.Metrics().MessagesForwarded.Add(1)
		if rt.store != nil {
			rt.store.AppendGroup(g.ID, fwd)
		}
		rt.notifyForwarded(fromPort, member, fwd)
	}
}

func (rt *GroupRouter) notifyChanged(rec GroupRecord) {
	rt.obsMu.RLock()
	obs := append(([]func(GroupRecord))(nil), rt.changedObs...)
	rt.obsMu.RUnlock()
	for _, fn := range obs {
		fn(rec)
	}
}

func (rt *GroupRouter) notifyRemoved(groupID string) {
	rt.obsMu.RLock()
	obs := append(([]func(string))(nil), rt.removedObs...)
	rt.obsMu.RUnlock()
	for _, fn := range obs {
		fn(groupID)
	}
}

func (rt *GroupRouter) notifyForwarded(fromPort, toPort string, msg Message) {
	rt.obsMu.RLock()
	obs := append(([]func(string, string, Message))(nil), rt.forwardedObs...)
	rt.obsMu.RUnlock()
	for _, fn := range obs {
		fn(fromPort, toPort, msg)
	}
}
