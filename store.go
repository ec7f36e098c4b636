package serialchat

import (
	"sort"
	"sync"
)

// MaxMessagesPerPort caps each port's in-memory history; the oldest
// entries are evicted from the front. Group histories carry no cap:
// groups are low-cardinality and low-volume compared to a noisy sensor
// streaming on a single port.
const MaxMessagesPerPort = 1000

// MessageStore owns bounded, queryable per-port and per-group message
// histories. It is safe for concurrent use.
type MessageStore struct {
	mu            sync.RWMutex
	messages      map[string][]Message
	groupMessages map[string][]Message
	maxPerPort    int
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages:      make(map[string][]Message),
		groupMessages: make(map[string][]Message),
		maxPerPort:    MaxMessagesPerPort,
	}
}

// Append records msg under its owning port, evicting the oldest entries
// once the per-port cap is exceeded.
func (s *MessageStore) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := msg.PortName
	s.messages[key] = append(s.messages[key], msg)
	if excess := len(s.messages[key]) - s.maxPerPort; excess > 0 {
		s.messages[key] = append([]Message(nil), s.messages[key][excess:]...)
	}
}

// AppendGroup records msg under a group id. No cap applies.
func (s *MessageStore) AppendGroup(groupID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupMessages[groupID] = append(s.groupMessages[groupID], msg)
}

// Messages returns a copy of the port's history in insertion order.
func (s *MessageStore) Messages(portName string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages[portName]...)
}

// MessagesLimit returns the most recent limit entries in original
// chronological order. A non-positive limit returns everything.
func (s *MessageStore) MessagesLimit(portName string, limit int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[portName]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message(nil), msgs...)
}

// GroupMessages returns a copy of the group's history.
func (s *MessageStore) GroupMessages(groupID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.groupMessages[groupID]...)
}

// LastMessage returns the newest entry for the port, or the zero
// sentinel (empty PortName) when there is no history.
func (s *MessageStore) LastMessage(portName string) Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[portName]
	if len(msgs) == 0 {
		return Message{}
	}
	return msgs[len(msgs)-1]
}

// Count returns the port's history length.
func (s *MessageStore) Count(portName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[portName])
}

// GroupCount returns the group's history length.
func (s *MessageStore) GroupCount(groupID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groupMessages[groupID])
}

// TotalCount sums every port history.
func (s *MessageStore) TotalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, msgs := range s.messages {
		total += len(msgs)
	}
	return total
}

// Clear removes exactly the named port's history.
func (s *MessageStore) Clear(portName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, portName)
}

// ClearGroup removes exactly the named group's history.
func (s *MessageStore) ClearGroup(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupMessages, groupID)
}

// ClearAll removes every port and group history.
func (s *MessageStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make(map[string][]Message)
	s.groupMessages = make(map[string][]Message)
}

// AllMessagesSorted merges every port history (group histories are
// excluded) ordered by ascending timestamp; ties keep insertion order.
func (s *MessageStore) AllMessagesSorted() []Message {
	s.mu.RLock()
	keys := make([]string, 0, len(s.messages))
	for key := range s.messages {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var all []Message
	for _, key := range keys {
		all = append(all, s.messages[key]...)
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all
}

// PortKeys returns the port names with history, sorted.
func (s *MessageStore) PortKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.messages))
	for key := range s.messages {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// GroupKeys returns the group ids with history, sorted.
func (s *MessageStore) GroupKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.groupMessages))
	for key := range s.groupMessages {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// LoadMessages seeds a port history from persistence; the cap applies.
func (s *MessageStore) LoadMessages(portName string, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]Message(nil), msgs...)
	if excess := len(cp) - s.maxPerPort; excess > 0 {
		cp = cp[excess:]
	}
	s.messages[portName] = cp
}

// LoadGroupMessages seeds a group history from persistence.
func (s *MessageStore) LoadGroupMessages(groupID string, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupMessages[groupID] = append([]Message(nil), msgs...)
}
