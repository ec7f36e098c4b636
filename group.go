package serialchat

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// GroupRecord is a named set of member port names with a forwarding
// flag. Members keep insertion order and contain no duplicates. Equality
// is by ID.
type GroupRecord struct {
	ID                string
	Name              string
	Description       string
	Members           []string
	ForwardingEnabled bool
	CreatedTime       time.Time
}

// NewGroupRecord creates a group with a fresh ID, forwarding enabled.
func NewGroupRecord(name string) GroupRecord {
	return GroupRecord{
		ID:                uuid.NewString(),
		Name:              name,
		ForwardingEnabled: true,
		CreatedTime:       time.Now(),
	}
}

func (g GroupRecord) HasMember(portName string) bool {
	for _, m := range g.Members {
		if m == portName {
			return true
		}
	}
	return false
}

// AddMember appends portName unless already present. Returns false on a
// duplicate (no-op).
func (g *GroupRecord) AddMember(portName string) bool {
	if g.HasMember(portName) {
		return false
	}
	g.Members = append(g.Members, portName)
	return true
}

// RemoveMember removes portName; no-op when absent.
func (g *GroupRecord) RemoveMember(portName string) bool {
	for i, m := range g.Members {
		if m == portName {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return true
		}
	}
	return false
}

func (g GroupRecord) MemberCount() int {
	return len(g.Members)
}

// Equal compares by ID alone.
func (g GroupRecord) Equal(other GroupRecord) bool {
	return g.ID != "" && g.ID == other.ID
}

// Clone returns a copy with an independent members slice.
func (g GroupRecord) Clone() GroupRecord {
	cp := g
	cp.Members = append([]string(nil), g.Members...)
	return cp
}

type groupRecordJSON struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	ForwardingEnabled *bool    `json:"forwardingEnabled"`
	CreatedTime       string   `json:"createdTime"`
	Members           []string `json:"members"`
}

func (g GroupRecord) MarshalJSON() ([]byte, error) {
	fwd := g.ForwardingEnabled
	members := g.Members
	if members == nil {
		members = []string{}
	}
	return json.Marshal(groupRecordJSON{
		ID:                g.ID,
		Name:              g.Name,
		Description:       g.Description,
		ForwardingEnabled: &fwd,
		CreatedTime:       g.CreatedTime.Format(time.RFC3339),
		Members:           members,
	})
}

func (g *GroupRecord) UnmarshalJSON(data []byte) error {
	var raw groupRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = GroupRecord{
		ID:                raw.ID,
		Name:              raw.Name,
		Description:       raw.Description,
		ForwardingEnabled: true,
		Members:           raw.Members,
	}
	if raw.ForwardingEnabled != nil {
		g.ForwardingEnabled = *raw.ForwardingEnabled
	}
	if raw.CreatedTime != "" {
		if t, err := time.Parse(time.RFC3339, raw.CreatedTime); err == nil {
			g.CreatedTime = t
		}
	}
	return nil
}
