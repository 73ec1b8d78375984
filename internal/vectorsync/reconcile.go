package vectorsync

// RemoteFileRecord is one file as reported by the remote store listing.
// ExternalID may be empty: the store cannot carry metadata on upload, so
// identity is normally resolved through the ledger (ResolveExternalIDs).
type RemoteFileRecord struct {
	ID         string
	ExternalID string
	Metadata   map[string]string
}

// Deletion reasons.
const (
	ReasonNotInCombinedIndex  = "not_in_combined_index"
	ReasonDuplicateExternalID = "duplicate_external_id"
	ReasonUnknownFile         = "unknown_file"
)

// Deletion is one planned remote removal. RemoveFromLedger marks deletions
// whose success must also forget the ledger entry; duplicate removals leave
// the ledger alone because it already points at the kept copy.
type Deletion struct {
	FileID           string
	ExternalID       string
	Reason           string
	RemoveFromLedger bool
}

// ReconcilePlan lists planned remote deletions plus external ids whose
// ledger entries are stale but carry no remote identity to delete.
type ReconcilePlan struct {
	Deletions         []Deletion
	StateOnlyRemovals []string
}

type ReconcileOptions struct {
	// IncludeUnknown also schedules remote files with no resolvable
	// external id. Off by default: ambiguous remote content is preserved.
	IncludeUnknown bool
}

// ResolveExternalIDs fills each record's missing ExternalID from the
// ledger's fileId reverse index and returns the updated slice.
func ResolveExternalIDs(records []RemoteFileRecord, ledger *Ledger) []RemoteFileRecord {
	byFileID := make(map[string]string, ledger.Len())
	for _, externalID := range ledger.ExternalIDs() {
		if entry := ledger.Get(externalID); entry != nil && entry.FileID != "" {
			byFileID[entry.FileID] = externalID
		}
	}
	resolved := make([]RemoteFileRecord, len(records))
	for i, record := range records {
		if record.ExternalID == "" {
			record.ExternalID = byFileID[record.ID]
		}
		resolved[i] = record
	}
	return resolved
}

// PlanReconciliation computes the deletions needed to make the remote store
// mirror the allow-list. Two strategies run unconditionally: a ledger-driven
// stale scan and a duplicate scan over the remote listing. An external id on
// the allow-list is never scheduled for deletion; at most its surplus
// duplicate copies are.
func PlanReconciliation(records []RemoteFileRecord, allowedExternalIDs []string, ledger *Ledger, opts ReconcileOptions) ReconcilePlan {
	allowed := make(map[string]struct{}, len(allowedExternalIDs))
	for _, id := range allowedExternalIDs {
		allowed[id] = struct{}{}
	}

	var plan ReconcilePlan
	plannedFileIDs := map[string]struct{}{}

	// The ledger is authoritative for tracked documents: anything it maps
	// that the combined index no longer lists is stale.
	for _, externalID := range ledger.ExternalIDs() {
		if _, ok := allowed[externalID]; ok {
			continue
		}
		entry := ledger.Get(externalID)
		if entry == nil {
			continue
		}
		if entry.FileID == "" {
			plan.StateOnlyRemovals = append(plan.StateOnlyRemovals, externalID)
			continue
		}
		plan.Deletions = append(plan.Deletions, Deletion{
			FileID:           entry.FileID,
			ExternalID:       externalID,
			Reason:           ReasonNotInCombinedIndex,
			RemoveFromLedger: true,
		})
		plannedFileIDs[entry.FileID] = struct{}{}
	}

	// Remote listing scan: the first file per external id is the kept copy,
	// later ones are duplicate uploads. Files with no identity are preserved
	// unless the caller opts in.
	seen := map[string]struct{}{}
	for _, record := range records {
		if _, alreadyPlanned := plannedFileIDs[record.ID]; alreadyPlanned {
			// A copy already planned by the stale scan still counts as the
			// observed first copy; its remaining duplicates must not
			// outlive it.
			if record.ExternalID != "" {
				seen[record.ExternalID] = struct{}{}
			}
			continue
		}
		if record.ExternalID == "" {
			if opts.IncludeUnknown {
				plan.Deletions = append(plan.Deletions, Deletion{
					FileID: record.ID,
					Reason: ReasonUnknownFile,
				})
				plannedFileIDs[record.ID] = struct{}{}
			}
			continue
		}
		if _, dup := seen[record.ExternalID]; dup {
			plan.Deletions = append(plan.Deletions, Deletion{
				FileID:     record.ID,
				ExternalID: record.ExternalID,
				Reason:     ReasonDuplicateExternalID,
			})
			plannedFileIDs[record.ID] = struct{}{}
			continue
		}
		seen[record.ExternalID] = struct{}{}

		_, isAllowed := allowed[record.ExternalID]
		if !isAllowed && ledger.Get(record.ExternalID) == nil && opts.IncludeUnknown {
			// Untracked and not allowed: stale content from outside this
			// pipeline, opt-in like identity-less files.
			plan.Deletions = append(plan.Deletions, Deletion{
				FileID:     record.ID,
				ExternalID: record.ExternalID,
				Reason:     ReasonUnknownFile,
			})
			plannedFileIDs[record.ID] = struct{}{}
		}
	}
	return plan
}
