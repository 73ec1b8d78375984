package vectorsync

import (
	"context"
	"fmt"
	"path/filepath"
)

// RemoteStore is the remote vector-store surface the core consumes. Upload
// covers both the raw file upload and its attachment to the store, returning
// the store-scoped file id recorded in the ledger.
type RemoteStore interface {
	Upload(ctx context.Context, path, externalID string) (string, error)
	Delete(ctx context.Context, fileID string) error
	List(ctx context.Context) ([]RemoteFileRecord, error)
}

// Failure records one item that exhausted its retries. The run continues
// past failures; they only decide the final status.
type Failure struct {
	ExternalID string `json:"externalId"`
	FileID     string `json:"fileId,omitempty"`
	Error      string `json:"error"`
}

// SyncResult is the outcome of one upsert pass, exposed so the caller can
// log every planning decision and map failures to an exit status.
type SyncResult struct {
	Plan     ActionPlan
	Uploaded int
	Failures []Failure
	DryRun   bool
}

// ReconcileResult is the outcome of one reconciliation pass.
type ReconcileResult struct {
	Plan     ReconcilePlan
	Deleted  int
	Failures []Failure
	DryRun   bool
}

// Syncer drives one synchronization run: plan against the ledger, apply
// uploads and deletions through the retrying executor, keep the ledger
// consistent. Single-threaded by design; cross-process exclusion over the
// ledger file is the caller's job.
type Syncer struct {
	store  RemoteStore
	ledger *Ledger
	cfg    Config
	exec   *Executor
	logger EventLogger
}

func NewSyncer(store RemoteStore, ledger *Ledger, cfg Config, logger EventLogger) (*Syncer, error) {
	cfg.ApplyDefaults()
	if ledger == nil {
		return nil, fmt.Errorf("syncer: %w: ledger is required", ErrInvalidInput)
	}
	if store == nil && !cfg.DryRun {
		return nil, fmt.Errorf("syncer: %w: remote store is required", ErrInvalidInput)
	}
	return &Syncer{
		store:  store,
		ledger: ledger,
		cfg:    cfg,
		exec:   NewExecutor(cfg.MaxRetries, cfg.RetryBaseDelay, logger),
		logger: logger,
	}, nil
}

// Plan builds the work items and classifies them without touching the
// remote store. The combined index's own synthetic item is prepended;
// planning errors for it are logged and non-fatal.
func (s *Syncer) Plan() ([]WorkItem, ActionPlan, error) {
	entries, err := LoadCombinedIndex(s.cfg.CombinedIndexPath)
	if err != nil {
		return nil, ActionPlan{}, err
	}
	builder := s.builder()
	items, err := builder.Build(entries, s.ledger)
	if err != nil {
		return nil, ActionPlan{}, err
	}
	if indexItem, err := builder.BuildIndexItem(s.cfg.CombinedIndexPath, s.ledger); err != nil {
		logEvent(s.logger, "planning.index.error", map[string]any{
			"error":         err.Error(),
			"combinedIndex": s.cfg.CombinedIndexPath,
		})
	} else {
		items = append([]WorkItem{indexItem}, items...)
	}
	return items, DetermineActions(items), nil
}

// Sync runs the upsert pass. Work items are processed in combined-index
// order; the ledger is updated in memory per item, saved partially as soon
// as any item fails, and saved once at the end, so successfully processed
// items are never lost.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	if err := s.cfg.Validate(); err != nil {
		return SyncResult{}, err
	}
	_, plan, err := s.Plan()
	if err != nil {
		return SyncResult{}, err
	}
	result := SyncResult{Plan: plan, DryRun: s.cfg.DryRun}

	logEvent(s.logger, "planning.summary", map[string]any{
		"totals":        plan.Totals(),
		"combinedIndex": s.cfg.CombinedIndexPath,
		"stateFile":     s.cfg.StateDSN,
	})

	if s.cfg.DryRun {
		s.logPlanItems(plan)
		logEvent(s.logger, "run.complete", map[string]any{"dryRun": true})
		return result, nil
	}

	dirty := false
	for _, bucket := range []struct {
		action string
		items  []WorkItem
	}{
		{"create", plan.Create},
		{"update", plan.Update},
	} {
		for _, item := range bucket.items {
			if s.cfg.Limit > 0 && result.Uploaded >= s.cfg.Limit {
				break
			}
			if err := s.applyUpsert(ctx, bucket.action, item); err != nil {
				result.Failures = append(result.Failures, Failure{
					ExternalID: item.ExternalID,
					Error:      err.Error(),
				})
				logEvent(s.logger, "vector.error", map[string]any{
					"externalId": item.ExternalID,
					"error":      err.Error(),
				})
				if dirty {
					// Partial save: completed items survive later failures.
					if saveErr := s.ledger.Save(); saveErr != nil {
						return result, saveErr
					}
				}
				continue
			}
			dirty = true
			result.Uploaded++
		}
	}

	if dirty {
		if err := s.ledger.Save(); err != nil {
			return result, err
		}
	}
	logEvent(s.logger, "run.complete", map[string]any{
		"dryRun":   false,
		"totals":   plan.Totals(),
		"failures": len(result.Failures),
	})
	return result, nil
}

func (s *Syncer) applyUpsert(ctx context.Context, action string, item WorkItem) error {
	evctx := EventContext{
		"externalId":   item.ExternalID,
		"documentType": item.DocumentType,
	}
	if action == "update" && item.LedgerEntry != nil && item.LedgerEntry.FileID != "" {
		oldFileID := item.LedgerEntry.FileID
		err := s.exec.Do(ctx, "delete", evctx, func(ctx context.Context) error {
			return s.store.Delete(ctx, oldFileID)
		})
		if err != nil {
			return err
		}
		logEvent(s.logger, "vector.delete", map[string]any{
			"externalId": item.ExternalID,
			"fileId":     oldFileID,
		})
	}

	fileID, err := Retry(ctx, s.exec, "upload", evctx, func(ctx context.Context) (string, error) {
		return s.store.Upload(ctx, item.SourcePath, item.ExternalID)
	})
	if err != nil {
		return err
	}
	logEvent(s.logger, "vector.upload", map[string]any{
		"externalId": item.ExternalID,
		"fileId":     fileID,
		"action":     action,
	})
	s.ledger.Upsert(item.ExternalID, fileID, item.ContentHash, map[string]any{
		"documentType": item.DocumentType,
		"sourcePath":   item.SourcePath,
		"title":        item.Title(),
	})
	return nil
}

// reconcileItemLogCap bounds per-item plan logging on very large stores.
const reconcileItemLogCap = 50

// Reconcile lists the remote store, plans stale and duplicate deletions
// against the combined index allow-list, and applies them. The ledger is
// saved even when deletions fail so successful removals are never lost.
func (s *Syncer) Reconcile(ctx context.Context) (ReconcileResult, error) {
	if err := s.cfg.Validate(); err != nil {
		return ReconcileResult{}, err
	}
	entries, err := LoadCombinedIndex(s.cfg.CombinedIndexPath)
	if err != nil {
		return ReconcileResult{}, err
	}
	// The index's own upload is tracked under its filename; it must never
	// be reconciled away.
	allowed := append(AllowedExternalIDs(entries), filepath.Base(s.cfg.CombinedIndexPath))

	var records []RemoteFileRecord
	if s.store != nil {
		records, err = Retry(ctx, s.exec, "list", EventContext{}, func(ctx context.Context) ([]RemoteFileRecord, error) {
			return s.store.List(ctx)
		})
		if err != nil {
			return ReconcileResult{}, err
		}
	}
	records = ResolveExternalIDs(records, s.ledger)

	plan := PlanReconciliation(records, allowed, s.ledger, ReconcileOptions{
		IncludeUnknown: s.cfg.IncludeUnknown,
	})
	result := ReconcileResult{Plan: plan, DryRun: s.cfg.DryRun}

	logEvent(s.logger, "reconcile.list", map[string]any{
		"counts": map[string]any{
			"vectorFiles":        len(records),
			"allowedExternalIds": len(allowed),
			"toDelete":           len(plan.Deletions),
			"stateOnlyRemovals":  len(plan.StateOnlyRemovals),
		},
	})
	for i, deletion := range plan.Deletions {
		if i >= reconcileItemLogCap {
			break
		}
		logEvent(s.logger, "reconcile.item", map[string]any{
			"externalId": deletion.ExternalID,
			"fileId":     deletion.FileID,
			"reason":     deletion.Reason,
		})
	}

	if s.cfg.DryRun {
		logEvent(s.logger, "reconcile.complete", map[string]any{"dryRun": true})
		return result, nil
	}

	dirty := false
	for _, deletion := range plan.Deletions {
		evctx := EventContext{
			"externalId": deletion.ExternalID,
			"fileId":     deletion.FileID,
		}
		err := s.exec.Do(ctx, "delete", evctx, func(ctx context.Context) error {
			return s.store.Delete(ctx, deletion.FileID)
		})
		if err != nil {
			result.Failures = append(result.Failures, Failure{
				ExternalID: deletion.ExternalID,
				FileID:     deletion.FileID,
				Error:      err.Error(),
			})
			logEvent(s.logger, "reconcile.error", map[string]any{
				"externalId": deletion.ExternalID,
				"fileId":     deletion.FileID,
				"error":      err.Error(),
			})
			continue
		}
		logEvent(s.logger, "reconcile.deleted", map[string]any{
			"externalId": deletion.ExternalID,
			"fileId":     deletion.FileID,
			"reason":     deletion.Reason,
		})
		result.Deleted++
		if deletion.RemoveFromLedger && s.ledger.Get(deletion.ExternalID) != nil {
			s.ledger.Remove(deletion.ExternalID)
			dirty = true
		}
	}
	for _, externalID := range plan.StateOnlyRemovals {
		s.ledger.Remove(externalID)
		dirty = true
	}

	if dirty || len(result.Failures) > 0 {
		if err := s.ledger.Save(); err != nil {
			return result, err
		}
	}
	logEvent(s.logger, "reconcile.complete", map[string]any{
		"dryRun":   false,
		"deleted":  result.Deleted,
		"failures": len(result.Failures),
	})
	return result, nil
}

func (s *Syncer) logPlanItems(plan ActionPlan) {
	for _, bucket := range []struct {
		action string
		items  []WorkItem
	}{
		{"create", plan.Create},
		{"update", plan.Update},
		{"skip", plan.Skip},
	} {
		for _, item := range bucket.items {
			fields := map[string]any{
				"action":       bucket.action,
				"externalId":   item.ExternalID,
				"documentType": item.DocumentType,
				"contentHash":  item.ContentHash,
			}
			if item.LedgerEntry != nil {
				fields["stateHash"] = item.LedgerEntry.ContentHash
			}
			logEvent(s.logger, "planning.item", fields)
		}
	}
}

func (s *Syncer) builder() WorkItemBuilder {
	return WorkItemBuilder{
		PolicyDir:      s.cfg.PolicyDir,
		GuideDir:       s.cfg.GuideDir,
		VolatileFields: s.cfg.VolatileFields,
	}
}
