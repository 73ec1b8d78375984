package vectorsync

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpenLedgerCreatesEmptySnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "vector_state.json")
	ledger, err := OpenLedger(NewJSONFileStateBackend(path))
	if err != nil {
		t.Fatalf("open ledger failed: %v", err)
	}
	if ledger.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d entries", ledger.Len())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}
	if !strings.Contains(string(data), `"docs"`) {
		t.Fatalf("expected docs key in snapshot, got %s", data)
	}
}

func TestLedgerRoundTripPreservesMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vector_state.json")
	ledger, err := OpenLedger(NewJSONFileStateBackend(path))
	if err != nil {
		t.Fatalf("open ledger failed: %v", err)
	}
	ledger.Upsert("POL-1.json", "file_abc", "hash1", map[string]any{
		"documentType": "Policy",
		"title":        "Admissions",
	})
	ledger.SetMetadata("POL-1.json", map[string]any{"policyQuestionsHash": "qhash"})
	if err := ledger.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reopened, err := OpenLedger(NewJSONFileStateBackend(path))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	entry := reopened.Get("POL-1.json")
	if entry == nil {
		t.Fatalf("expected entry to survive round trip")
	}
	if entry.FileID != "file_abc" || entry.ContentHash != "hash1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.MetadataString("documentType") != "Policy" {
		t.Fatalf("expected documentType metadata, got %+v", entry.Metadata)
	}
	if entry.MetadataString("policyQuestionsHash") != "qhash" {
		t.Fatalf("expected question hash metadata, got %+v", entry.Metadata)
	}
}

func TestLedgerUpsertDefaultsTimestamp(t *testing.T) {
	ledger, err := OpenLedger(NewInMemoryStateBackend())
	if err != nil {
		t.Fatalf("open ledger failed: %v", err)
	}
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 500, time.UTC)
	ledger.now = func() time.Time { return fixed }

	entry := ledger.Upsert("doc.json", "file_1", "hash", nil)
	if entry.LastSyncedAt != "2025-03-14T09:26:53Z" {
		t.Fatalf("expected second-precision UTC timestamp, got %q", entry.LastSyncedAt)
	}
}

func TestLedgerUpsertReplacesEntryWholesale(t *testing.T) {
	ledger, _ := OpenLedger(NewInMemoryStateBackend())
	ledger.Upsert("doc.json", "file_1", "hash1", map[string]any{"title": "Old"})
	ledger.Upsert("doc.json", "file_2", "hash2", nil)

	entry := ledger.Get("doc.json")
	if entry.FileID != "file_2" || entry.ContentHash != "hash2" {
		t.Fatalf("expected replaced entry, got %+v", entry)
	}
	if entry.MetadataString("title") != "" {
		t.Fatalf("expected upsert to drop stale metadata, got %+v", entry.Metadata)
	}
}

func TestSetMetadataMergesAndRoutesReservedKeys(t *testing.T) {
	ledger, _ := OpenLedger(NewInMemoryStateBackend())
	ledger.SetMetadata("doc.json", map[string]any{
		"questionsHash": "q1",
		"fileId":        "file_9",
	})
	ledger.SetMetadata("doc.json", map[string]any{"questionsUpdatedAt": "2025-01-01T00:00:00Z"})

	entry := ledger.Get("doc.json")
	if entry.FileID != "file_9" {
		t.Fatalf("expected reserved fileId key routed to typed field, got %+v", entry)
	}
	if entry.MetadataString("questionsHash") != "q1" || entry.MetadataString("questionsUpdatedAt") == "" {
		t.Fatalf("expected merged metadata, got %+v", entry.Metadata)
	}
}

func TestLedgerRemoveForgetsEntry(t *testing.T) {
	ledger, _ := OpenLedger(NewInMemoryStateBackend())
	ledger.Upsert("a.json", "f1", "h1", nil)
	ledger.Remove("a.json")
	ledger.Remove("never-tracked.json")
	if ledger.Get("a.json") != nil {
		t.Fatalf("expected removed entry to be gone")
	}
}

func TestLedgerExternalIDsSorted(t *testing.T) {
	ledger, _ := OpenLedger(NewInMemoryStateBackend())
	for _, id := range []string{"c.json", "a.json", "b.json"} {
		ledger.Upsert(id, "f", "h", nil)
	}
	ids := ledger.ExternalIDs()
	if len(ids) != 3 || ids[0] != "a.json" || ids[2] != "c.json" {
		t.Fatalf("expected sorted ids, got %v", ids)
	}
}

func TestEntrySerializationFlattensMetadata(t *testing.T) {
	entry := &Entry{
		FileID:      "file_1",
		ContentHash: "hash",
		Metadata:    map[string]any{"title": "Doc"},
	}
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if flat["fileId"] != "file_1" || flat["title"] != "Doc" {
		t.Fatalf("expected flattened entry, got %v", flat)
	}
	if _, ok := flat["lastSyncedAt"]; ok {
		t.Fatalf("expected empty lastSyncedAt omitted, got %v", flat)
	}
}

func TestEnsureLedgerFileIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := EnsureLedgerFile(path); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	backend := NewJSONFileStateBackend(path)
	ledger, _ := OpenLedger(backend)
	ledger.Upsert("doc.json", "file_1", "hash", nil)
	if err := ledger.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := EnsureLedgerFile(path); err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	reopened, _ := OpenLedger(backend)
	if reopened.Get("doc.json") == nil {
		t.Fatalf("expected ensure to keep existing content")
	}
}
