package serialchat

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobug "go.bug.st/serial"
)

// PortRecord describes one known port ("friend"): its OS device name,
// line parameters, user remark and derived status. Name is the unique
// key and never changes once the record exists. Status is reconstructed
// from the live handle and is always Offline after deserialization.
type PortRecord struct {
	Name           string
	Remark         string
	BaudRate       BaudRate
	DataBits       DataBits
	StopBits       StopBits
	Parity         Parity
	FlowControl    FlowControl
	Status         PortStatus
	LastActiveTime time.Time
}

// NewPortRecord returns a record for name with the default line
// parameters (115200 8N1, no flow control).
func NewPortRecord(name string) PortRecord {
	return PortRecord{
		Name:        name,
		BaudRate:    DefaultBaudRate,
		DataBits:    DefaultDataBits,
		StopBits:    DefaultStopBits,
		Parity:      DefaultParity,
		FlowControl: DefaultFlowControl,
		Status:      StatusOffline,
	}
}

// Normalize replaces zero-valued line parameters with the defaults.
func (r *PortRecord) Normalize() {
	if r.BaudRate == 0 {
		r.BaudRate = DefaultBaudRate
	}
	if r.DataBits == 0 {
		r.DataBits = DefaultDataBits
	}
	if r.StopBits == 0 {
		r.StopBits = DefaultStopBits
	}
}

// DisplayName returns "remark (name)" when a remark is set, otherwise
// the bare port name.
func (r PortRecord) DisplayName() string {
	if r.Remark == "" {
		return r.Name
	}
	return fmt.Sprintf("%s (%s)", r.Remark, r.Name)
}

// Mode builds the driver mode used to open the port.
func (r PortRecord) Mode() *gobug.Mode {
	return &gobug.Mode{
		BaudRate: r.BaudRate.Int(),
		DataBits: r.DataBits.Int(),
		StopBits: r.StopBits.Get(),
		Parity:   r.Parity.Get(),
	}
}

// Validate checks the record against the supported parameter sets.
func (r PortRecord) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPortName)
	}
	if strings.Contains(r.Name, "..") {
		return fmt.Errorf("%w: %q contains path traversal", ErrInvalidPortName, r.Name)
	}
	if !r.BaudRate.Valid() {
		return fmt.Errorf("invalid baud rate %d", r.BaudRate)
	}
	if !r.DataBits.Valid() {
		return fmt.Errorf("data bits must be 5-8, got: %d", r.DataBits)
	}
	if !r.StopBits.Valid() {
		return fmt.Errorf("stop bits must be 1, 2 or 3 (1.5), got: %d", r.StopBits)
	}
	if !r.Parity.Valid() {
		return fmt.Errorf("invalid parity value: %d", r.Parity)
	}
	if !r.FlowControl.Valid() {
		return fmt.Errorf("invalid flow control value: %d", r.FlowControl)
	}
	return nil
}

type portRecordJSON struct {
	PortName       string `json:"portName"`
	Remark         string `json:"remark"`
	BaudRate       int    `json:"baudRate"`
	DataBits       int    `json:"dataBits"`
	StopBits       int    `json:"stopBits"`
	Parity         int    `json:"parity"`
	FlowControl    int    `json:"flowControl"`
	LastActiveTime string `json:"lastActiveTime"`
}

// MarshalJSON writes the persisted form. Status is deliberately
// excluded: it is live state, not configuration.
func (r PortRecord) MarshalJSON() ([]byte, error) {
	last := ""
	if !r.LastActiveTime.IsZero() {
		last = r.LastActiveTime.Format(time.RFC3339)
	}
	return json.Marshal(portRecordJSON{
		PortName:       r.Name,
		Remark:         r.Remark,
		BaudRate:       r.BaudRate.Int(),
		DataBits:       r.DataBits.Int(),
		StopBits:       int(r.StopBits),
		Parity:         int(r.Parity),
		FlowControl:    r.FlowControl.Int(),
		LastActiveTime: last,
	})
}

func (r *PortRecord) UnmarshalJSON(data []byte) error {
	var raw portRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = PortRecord{
		Name:        raw.PortName,
		Remark:      raw.Remark,
		BaudRate:    BaudRate(raw.BaudRate),
		DataBits:    DataBits(raw.DataBits),
		StopBits:    StopBits(raw.StopBits),
		Parity:      Parity(raw.Parity),
		FlowControl: FlowControl(raw.FlowControl),
		Status:      StatusOffline,
	}
	if raw.LastActiveTime != "" {
		if t, err := time.Parse(time.RFC3339, raw.LastActiveTime); err == nil {
			r.LastActiveTime = t
		}
	}
	r.Normalize()
	return nil
}
