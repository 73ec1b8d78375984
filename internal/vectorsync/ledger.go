package vectorsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const (
	entryKeyFileID       = "fileId"
	entryKeyContentHash  = "contentHash"
	entryKeyLastSyncedAt = "lastSyncedAt"
)

// Entry is one ledger record: the remote identity and change-detection
// metadata for a single external id. Metadata carries open-ended fields such
// as question-generation hashes and round-trips through save/load untouched.
type Entry struct {
	FileID       string
	ContentHash  string
	LastSyncedAt string
	Metadata     map[string]any
}

func (e *Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Metadata)+3)
	for key, value := range e.Metadata {
		out[key] = value
	}
	if e.FileID != "" {
		out[entryKeyFileID] = e.FileID
	}
	if e.ContentHash != "" {
		out[entryKeyContentHash] = e.ContentHash
	}
	if e.LastSyncedAt != "" {
		out[entryKeyLastSyncedAt] = e.LastSyncedAt
	}
	return json.Marshal(out)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	raw, err := decodeJSONValue(bytes.NewReader(data))
	if err != nil {
		return err
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("ledger entry: expected object, got %T", raw)
	}
	*e = Entry{Metadata: map[string]any{}}
	for key, value := range fields {
		switch key {
		case entryKeyFileID:
			e.FileID, _ = value.(string)
		case entryKeyContentHash:
			e.ContentHash, _ = value.(string)
		case entryKeyLastSyncedAt:
			e.LastSyncedAt, _ = value.(string)
		default:
			e.Metadata[key] = value
		}
	}
	return nil
}

// MetadataString returns the named metadata field when it is a string.
func (e *Entry) MetadataString(key string) string {
	if e == nil {
		return ""
	}
	value, _ := e.Metadata[key].(string)
	return value
}

type ledgerState struct {
	Docs map[string]*Entry `json:"docs"`
}

// Ledger is the durable mapping from external id to remote identity and
// content hash. It is mutated purely in memory and persisted as a whole
// through its backend; it performs no internal locking, so callers must
// serialize access (the cmd layer holds the pipeline lock).
type Ledger struct {
	backend StateBackend
	docs    map[string]*Entry
	now     func() time.Time
}

// OpenLedger loads the ledger from backend. An absent snapshot initializes an
// empty ledger and persists it immediately so concurrent readers of the
// backing file never observe a missing or partial state.
func OpenLedger(backend StateBackend) (*Ledger, error) {
	if backend == nil {
		return nil, fmt.Errorf("ledger: %w: backend is required", ErrInvalidInput)
	}
	ledger := &Ledger{backend: backend, docs: map[string]*Entry{}, now: time.Now}
	state, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("ledger: load: %w", err)
	}
	if state == nil {
		if err := ledger.Save(); err != nil {
			return nil, err
		}
		return ledger, nil
	}
	if state.Docs != nil {
		ledger.docs = state.Docs
	}
	return ledger, nil
}

// Get returns the entry for externalID, or nil when untracked.
func (l *Ledger) Get(externalID string) *Entry {
	return l.docs[externalID]
}

// Len reports the number of tracked external ids.
func (l *Ledger) Len() int {
	return len(l.docs)
}

// ExternalIDs returns every tracked external id in sorted order.
func (l *Ledger) ExternalIDs() []string {
	ids := make([]string, 0, len(l.docs))
	for id := range l.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Upsert replaces the entry for externalID wholesale, defaulting the sync
// timestamp to now. metadata may be nil.
func (l *Ledger) Upsert(externalID, fileID, contentHash string, metadata map[string]any) *Entry {
	return l.UpsertAt(externalID, fileID, contentHash, "", metadata)
}

// UpsertAt is Upsert with an explicit lastSyncedAt timestamp.
func (l *Ledger) UpsertAt(externalID, fileID, contentHash, lastSyncedAt string, metadata map[string]any) *Entry {
	if lastSyncedAt == "" {
		lastSyncedAt = utcTimestamp(l.now())
	}
	entry := &Entry{
		FileID:       fileID,
		ContentHash:  contentHash,
		LastSyncedAt: lastSyncedAt,
		Metadata:     map[string]any{},
	}
	for key, value := range metadata {
		entry.Metadata[key] = value
	}
	l.docs[externalID] = entry
	return entry
}

// SetMetadata merges fields into the entry for externalID, creating it when
// absent. Unrelated fields are preserved; per-field last write wins. The
// reserved fileId/contentHash/lastSyncedAt keys update the typed fields.
func (l *Ledger) SetMetadata(externalID string, fields map[string]any) *Entry {
	entry := l.docs[externalID]
	if entry == nil {
		entry = &Entry{Metadata: map[string]any{}}
		l.docs[externalID] = entry
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	for key, value := range fields {
		switch key {
		case entryKeyFileID:
			entry.FileID, _ = value.(string)
		case entryKeyContentHash:
			entry.ContentHash, _ = value.(string)
		case entryKeyLastSyncedAt:
			entry.LastSyncedAt, _ = value.(string)
		default:
			entry.Metadata[key] = value
		}
	}
	return entry
}

// Remove forgets externalID. Removing an untracked id is a no-op.
func (l *Ledger) Remove(externalID string) {
	delete(l.docs, externalID)
}

// Save persists the full ledger through the backend. The JSON-file backend
// writes temp-file-then-rename so readers only ever see a complete snapshot.
func (l *Ledger) Save() error {
	if err := l.backend.Save(&ledgerState{Docs: l.docs}); err != nil {
		return fmt.Errorf("ledger: save: %w", err)
	}
	return nil
}

func utcTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}
