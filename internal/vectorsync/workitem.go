package vectorsync

import (
	"path/filepath"
	"strings"
)

// WorkItem joins one combined-index entry with its JSON payload and ledger
// entry. Work items are recomputed every run and never persisted.
type WorkItem struct {
	ExternalID   string
	SourcePath   string
	DocumentType string
	IndexRecord  IndexEntry
	Document     Document
	RawPayload   any
	ContentHash  string
	LedgerEntry  *Entry
}

// Title resolves the human-readable name: payload title, then the index
// record's Document field, then the external id.
func (w WorkItem) Title() string {
	if w.Document.Title != "" {
		return w.Document.Title
	}
	if w.IndexRecord.Document != "" {
		return w.IndexRecord.Document
	}
	return w.ExternalID
}

// WorkItemBuilder resolves combined-index entries against the local JSON
// directories. Directories are explicit configuration so tests can point at
// isolated temp dirs.
type WorkItemBuilder struct {
	PolicyDir      string
	GuideDir       string
	VolatileFields []string
}

// Build produces one work item per entry, in entry order. A missing File
// field or a missing source JSON fails the whole build; malformed entries are
// never silently skipped here.
func (b WorkItemBuilder) Build(entries []IndexEntry, ledger *Ledger) ([]WorkItem, error) {
	items := make([]WorkItem, 0, len(entries))
	for _, entry := range entries {
		if entry.File == "" {
			return nil, &MissingFieldError{Field: "File", Document: entry.Document}
		}
		sourcePath := b.resolveSourcePath(entry.DocumentType, entry.File)
		raw, err := loadJSONValue(sourcePath)
		if err != nil {
			if isNotExist(err) {
				return nil, &SourceNotFoundError{ExternalID: entry.File, Path: sourcePath}
			}
			return nil, err
		}
		hash, err := ContentHash(raw, b.VolatileFields)
		if err != nil {
			return nil, err
		}
		items = append(items, WorkItem{
			ExternalID:   entry.File,
			SourcePath:   sourcePath,
			DocumentType: entry.DocumentType,
			IndexRecord:  entry,
			Document:     documentFromValue(raw),
			RawPayload:   raw,
			ContentHash:  hash,
			LedgerEntry:  ledger.Get(entry.File),
		})
	}
	return items, nil
}

// BuildIndexItem constructs the synthetic work item for the combined index
// file itself. The hash runs over a normalized copy with the document list
// sorted by File, so reordering alone never triggers a re-upload; the upload
// still ships the on-disk file.
func (b WorkItemBuilder) BuildIndexItem(indexPath string, ledger *Ledger) (WorkItem, error) {
	payload, err := LoadCombinedIndexPayload(indexPath)
	if err != nil {
		return WorkItem{}, err
	}
	normalized, err := NormalizeCombinedIndexPayload(payload)
	if err != nil {
		return WorkItem{}, err
	}
	hash, err := ContentHash(normalized, b.VolatileFields)
	if err != nil {
		return WorkItem{}, err
	}
	externalID := filepath.Base(indexPath)
	return WorkItem{
		ExternalID:   externalID,
		SourcePath:   indexPath,
		DocumentType: "Index",
		IndexRecord: IndexEntry{
			File:         externalID,
			DocumentType: "Index",
			Document:     "MHA Documents Combined Index",
		},
		RawPayload:  payload,
		ContentHash: hash,
		LedgerEntry: ledger.Get(externalID),
	}, nil
}

func (b WorkItemBuilder) resolveSourcePath(documentType, fileName string) string {
	if strings.EqualFold(documentType, "policy") {
		return filepath.Join(b.PolicyDir, fileName)
	}
	return filepath.Join(b.GuideDir, fileName)
}
