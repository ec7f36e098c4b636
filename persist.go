package serialchat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// ExportVersion tags combined export documents.
const ExportVersion = "1.0"

// DataStore persists friends, groups and message histories as indented
// JSON documents under one data directory. Core components never touch
// the filesystem; they hand collections to this collaborator. A failed
// load yields an empty collection, a failed save is reported and leaves
// in-memory state untouched.
//
// Layout: friends.json, groups.json, messages/<key>.json,
// group_messages/<id>.json. Path-unsafe characters in keys are replaced
// by underscores.
type DataStore struct {
	dir string
	log zerolog.Logger
}

func NewDataStore(dir string, log zerolog.Logger) (*DataStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return &DataStore{
		dir: dir,
		log: log.With().Str("component", "datastore").Logger(),
	}, nil
}

// Dir returns the data directory root.
func (s *DataStore) Dir() string {
	return s.dir
}

// SaveFriendList writes the known-ports list. Status is excluded by the
// record codec, so loaded ports always come back Offline.
func (s *DataStore) SaveFriendList(records []PortRecord) error {
	if records == nil {
		records = []PortRecord{}
	}
	return s.writeJSON(s.friendsPath(), records)
}

func (s *DataStore) LoadFriendList() ([]PortRecord, error) {
	var records []PortRecord
	if err := s.readJSON(s.friendsPath(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *DataStore) SaveChatGroups(groups []GroupRecord) error {
	if groups == nil {
		groups = []GroupRecord{}
	}
	return s.writeJSON(s.groupsPath(), groups)
}

func (s *DataStore) LoadChatGroups() ([]GroupRecord, error) {
	var groups []GroupRecord
	if err := s.readJSON(s.groupsPath(), &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *DataStore) SaveMessages(portName string, msgs []Message) error {
	if msgs == nil {
		msgs = []Message{}
	}
	return s.writeJSON(s.messagesPath(portName), msgs)
}

func (s *DataStore) LoadMessages(portName string) ([]Message, error) {
	var msgs []Message
	if err := s.readJSON(s.messagesPath(portName), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *DataStore) SaveGroupMessages(groupID string, msgs []Message) error {
	if msgs == nil {
		msgs = []Message{}
	}
	return s.writeJSON(s.groupMessagesPath(groupID), msgs)
}

func (s *DataStore) LoadGroupMessages(groupID string) ([]Message, error) {
	var msgs []Message
	if err := s.readJSON(s.groupMessagesPath(groupID), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ClearMessages removes every persisted port and group history.
func (s *DataStore) ClearMessages() error {
	if err := os.RemoveAll(filepath.Join(s.dir, "messages")); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(s.dir, "group_messages")); err != nil {
		return fmt.Errorf("clearing group messages: %w", err)
	}
	return nil
}

// ExportBundle is the combined document produced by Export.
type ExportBundle struct {
	Version       string               `json:"version"`
	ExportedAt    string               `json:"exportedAt"`
	Friends       []PortRecord         `json:"friends"`
	Groups        []GroupRecord        `json:"groups"`
	Messages      map[string][]Message `json:"messages"`
	GroupMessages map[string][]Message `json:"groupMessages"`
}

// Export bundles all state plus a timestamp and version tag into a
// single document at path.
func (s *DataStore) Export(path string, friends []PortRecord, groups []GroupRecord,
	messages, groupMessages map[string][]Message) error {

	bundle := ExportBundle{
		Version:       ExportVersion,
		ExportedAt:    time.Now().Format(time.RFC3339),
		Friends:       friends,
		Groups:        groups,
		Messages:      messages,
		GroupMessages: groupMessages,
	}
	if bundle.Friends == nil {
		bundle.Friends = []PortRecord{}
	}
	if bundle.Groups == nil {
		bundle.Groups = []GroupRecord{}
	}
	if bundle.Messages == nil {
		bundle.Messages = map[string][]Message{}
	}
	if bundle.GroupMessages == nil {
		bundle.GroupMessages = map[string][]Message{}
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing export %s: %w", path, err)
	}
	return nil
}

// ReadExport loads a combined document written by Export.
func ReadExport(path string) (ExportBundle, error) {
	var bundle ExportBundle
	data, err := os.ReadFile(path)
	if err != nil {
		return bundle, fmt.Errorf("reading export %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return bundle, fmt.Errorf("parsing export %s: %w", path, err)
	}
	return bundle, nil
}

func (s *DataStore) friendsPath() string {
	return filepath.Join(s.dir, "friends.json")
}

func (s *DataStore) groupsPath() string {
	return filepath.Join(s.dir, "groups.json")
}

func (s *DataStore) messagesPath(portName string) string {
	return filepath.Join(s.dir, "messages", sanitizeKey(portName)+".json")
}

func (s *DataStore) groupMessagesPath(groupID string) string {
	return filepath.Join(s.dir, "group_messages", sanitizeKey(groupID)+".json")
}

// sanitizeKey makes a key safe for use as a filename.
func sanitizeKey(key string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return replacer.Replace(key)
}

func (s *DataStore) writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	s.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("saved")
	return nil
}

// readJSON decodes path into v. A missing file is not an error: the
// target is simply left empty.
func (s *DataStore) readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.log.Warn().Str("path", path).Err(err).Msg("corrupt document, starting empty")
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
