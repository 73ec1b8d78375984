package vectorsync

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Enrichment plan actions and skip reasons.
const (
	EnrichActionUpdate = "update"
	EnrichActionSkip   = "skip"

	EnrichReasonMissingFile  = "missing_file"
	EnrichReasonJSONNotFound = "json_not_found"
	EnrichReasonUnchanged    = "unchanged"
)

// EnrichmentItem is one planned enrichment decision. Items filtered out by
// EnrichmentOptions.Filters are omitted from the plan entirely; everything
// else appears with an action and, for skips, a reason.
type EnrichmentItem struct {
	Entry        IndexEntry
	JSONFilename string
	Path         string
	Payload      any
	Document     Document
	ContentHash  string
	PreviousHash string
	Action       string
	Reason       string
}

// EnrichmentOptions controls the filter-aware planner used by content
// enrichment flows such as question regeneration.
//
// HashFields names the ledger metadata fields holding the enrichment's own
// hash, checked in order; enrichment state is tracked separately from the
// primary contentHash so enrichment and structural sync evolve
// independently.
type EnrichmentOptions struct {
	Dir            string
	HashFields     []string
	Force          bool
	Filters        []string
	VolatileFields []string
}

// CollectEnrichmentPlan classifies combined-index entries for an enrichment
// pass. Unlike the work-item builder, content-level problems (missing or
// malformed JSON) mark the individual item skipped instead of failing the
// batch.
func CollectEnrichmentPlan(entries []IndexEntry, ledger *Ledger, opts EnrichmentOptions) []EnrichmentItem {
	filters := lowerSet(opts.Filters)
	plan := make([]EnrichmentItem, 0, len(entries))
	for _, entry := range entries {
		if entry.File == "" {
			plan = append(plan, EnrichmentItem{
				Entry:  entry,
				Action: EnrichActionSkip,
				Reason: EnrichReasonMissingFile,
			})
			continue
		}

		jsonFilename := entry.File
		if strings.HasSuffix(jsonFilename, ".txt") {
			jsonFilename = strings.TrimSuffix(jsonFilename, ".txt") + ".json"
		}
		path := filepath.Join(opts.Dir, jsonFilename)

		if !matchesFilters(jsonFilename, entry.File, entry.Document, filters) {
			continue
		}

		item := EnrichmentItem{
			Entry:        entry,
			JSONFilename: jsonFilename,
			Path:         path,
		}

		raw, err := loadJSONValue(path)
		if err != nil {
			item.Action = EnrichActionSkip
			if isNotExist(err) {
				item.Reason = EnrichReasonJSONNotFound
			} else {
				item.Reason = fmt.Sprintf("load_error: %v", err)
			}
			plan = append(plan, item)
			continue
		}
		item.Payload = raw
		item.Document = documentFromValue(raw)

		hash, err := ContentHash(raw, opts.VolatileFields)
		if err != nil {
			item.Action = EnrichActionSkip
			item.Reason = fmt.Sprintf("load_error: %v", err)
			plan = append(plan, item)
			continue
		}
		item.ContentHash = hash
		item.PreviousHash = previousEnrichmentHash(ledger.Get(jsonFilename), opts.HashFields)

		if !opts.Force && item.PreviousHash == hash {
			item.Action = EnrichActionSkip
			item.Reason = EnrichReasonUnchanged
			plan = append(plan, item)
			continue
		}

		item.Action = EnrichActionUpdate
		plan = append(plan, item)
	}
	return plan
}

func previousEnrichmentHash(entry *Entry, hashFields []string) string {
	for _, field := range hashFields {
		if value := entry.MetadataString(field); value != "" {
			return value
		}
	}
	return ""
}

func matchesFilters(jsonFilename, fileField, document string, filters map[string]struct{}) bool {
	if len(filters) == 0 {
		return true
	}
	for _, candidate := range []string{jsonFilename, fileField, document} {
		if _, ok := filters[strings.ToLower(candidate)]; ok {
			return true
		}
	}
	return false
}

func lowerSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[strings.ToLower(value)] = struct{}{}
	}
	return set
}
