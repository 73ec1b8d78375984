package vectorsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CombinedIndexKey is the document-list key inside the combined index file.
const CombinedIndexKey = "MHA Documents"

// GuideIndexKey and PolicyIndexKey are the document-list keys of the two
// source index files merged by CombineIndexes.
const (
	GuideIndexKey  = "Guide Documents"
	PolicyIndexKey = "Policy Documents"
)

// IndexEntry describes one document in the combined index: the external id
// (File), its classification, and the full raw record for round-tripping.
type IndexEntry struct {
	File         string
	DocumentType string
	Document     string
	Record       map[string]any
}

func indexEntryFromRecord(record map[string]any) IndexEntry {
	entry := IndexEntry{
		File:         stringField(record, "File"),
		DocumentType: stringField(record, "Document Type"),
		Document:     stringField(record, "Document"),
		Record:       record,
	}
	if entry.DocumentType == "" {
		entry.DocumentType = "Policy"
	}
	return entry
}

// LoadCombinedIndex reads the combined index file and returns its document
// entries in on-disk order.
func LoadCombinedIndex(path string) ([]IndexEntry, error) {
	payload, err := LoadCombinedIndexPayload(path)
	if err != nil {
		return nil, err
	}
	return combinedIndexEntries(payload, path)
}

// LoadCombinedIndexPayload reads the full combined index payload.
func LoadCombinedIndexPayload(path string) (map[string]any, error) {
	value, err := loadJSONValue(path)
	if err != nil {
		return nil, err
	}
	payload, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("combined index %s: expected object, got %T", path, value)
	}
	return payload, nil
}

func combinedIndexEntries(payload map[string]any, path string) ([]IndexEntry, error) {
	list, ok := payload[CombinedIndexKey].([]any)
	if !ok {
		return nil, fmt.Errorf("combined index %s is missing %q array", path, CombinedIndexKey)
	}
	entries := make([]IndexEntry, 0, len(list))
	for _, item := range list {
		record, _ := item.(map[string]any)
		entries = append(entries, indexEntryFromRecord(record))
	}
	return entries, nil
}

// LoadIndex reads an index file and returns both the full payload and the
// entries under key. Entry records alias the payload's maps, so in-place
// record edits survive a later SaveIndexPayload of the same payload.
func LoadIndex(path, key string) (map[string]any, []IndexEntry, error) {
	value, err := loadJSONValue(path)
	if err != nil {
		return nil, nil, err
	}
	payload, ok := value.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("index %s: expected object, got %T", path, value)
	}
	list, ok := payload[key].([]any)
	if !ok {
		return nil, nil, fmt.Errorf("index %s is missing %q array", path, key)
	}
	entries := make([]IndexEntry, 0, len(list))
	for _, item := range list {
		record, _ := item.(map[string]any)
		entries = append(entries, indexEntryFromRecord(record))
	}
	return payload, entries, nil
}

// SaveIndexPayload writes an index payload back to disk atomically in the
// corpus's four-space-indent layout.
func SaveIndexPayload(path string, payload map[string]any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(payload); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes(), 0o644)
}

// NormalizeCombinedIndexPayload returns a shallow copy of the payload with
// the document list sorted by File, so pure reordering of the index never
// appears as a content change.
func NormalizeCombinedIndexPayload(payload map[string]any) (map[string]any, error) {
	list, ok := payload[CombinedIndexKey].([]any)
	if !ok {
		return nil, fmt.Errorf("combined index payload is missing %q array", CombinedIndexKey)
	}
	sorted := make([]any, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		return indexSortKey(sorted[i]) < indexSortKey(sorted[j])
	})
	normalized := make(map[string]any, len(payload))
	for key, value := range payload {
		normalized[key] = value
	}
	normalized[CombinedIndexKey] = sorted
	return normalized, nil
}

func indexSortKey(item any) string {
	record, _ := item.(map[string]any)
	return stringField(record, "File")
}

// AllowedExternalIDs collects the non-empty File values from entries: the
// allow-list of external ids that should exist remotely.
func AllowedExternalIDs(entries []IndexEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.File != "" {
			ids = append(ids, entry.File)
		}
	}
	return ids
}

// CombineResult reports what CombineIndexes produced, including entries the
// verification pass still found incomplete.
type CombineResult struct {
	GuideCount       int
	PolicyCount      int
	Total            int
	MissingExtension []string
	MissingType      []string
}

// CombineIndexes merges the guide and policy index files into one combined
// index at outPath, normalizing File extensions to .json and defaulting the
// Document Type field.
func CombineIndexes(guidePath, policyPath, outPath string) (CombineResult, error) {
	var result CombineResult
	guides, err := loadIndexList(guidePath, GuideIndexKey)
	if err != nil {
		return result, err
	}
	policies, err := loadIndexList(policyPath, PolicyIndexKey)
	if err != nil {
		return result, err
	}

	combined := make([]any, 0, len(guides)+len(policies))
	for _, record := range guides {
		combined = append(combined, normalizeIndexRecord(record, "Guide"))
		result.GuideCount++
	}
	for _, record := range policies {
		combined = append(combined, normalizeIndexRecord(record, "Policy"))
		result.PolicyCount++
	}
	result.Total = result.GuideCount + result.PolicyCount

	payload := map[string]any{CombinedIndexKey: combined}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(payload); err != nil {
		return result, err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return result, err
	}
	if err := writeFileAtomic(outPath, buf.Bytes(), 0o644); err != nil {
		return result, err
	}

	for _, item := range combined {
		record, _ := item.(map[string]any)
		file := stringField(record, "File")
		if file != "" && !strings.HasSuffix(file, ".json") {
			result.MissingExtension = append(result.MissingExtension, file)
		}
		if stringField(record, "Document Type") == "" {
			result.MissingType = append(result.MissingType, stringField(record, "Document"))
		}
	}
	return result, nil
}

func loadIndexList(path, key string) ([]map[string]any, error) {
	value, err := loadJSONValue(path)
	if err != nil {
		return nil, err
	}
	payload, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("index %s: expected object, got %T", path, value)
	}
	list, _ := payload[key].([]any)
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if record, ok := item.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func normalizeIndexRecord(record map[string]any, documentType string) map[string]any {
	out := make(map[string]any, len(record)+1)
	for key, value := range record {
		out[key] = value
	}
	if file := stringField(out, "File"); file != "" {
		switch {
		case strings.HasSuffix(file, ".txt"):
			out["File"] = strings.TrimSuffix(file, ".txt") + ".json"
		case !strings.HasSuffix(file, ".json"):
			out["File"] = file + ".json"
		}
	}
	if stringField(out, "Document Type") == "" {
		out["Document Type"] = documentType
	}
	return out
}
