package questions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jasonlryan/mha-vectorsync/internal/vectorsync"
)

// DefaultSaveInterval is how many updates pass between progress saves of
// the index file.
const DefaultSaveInterval = 5

// RunnerOptions configures one regeneration pass over a single source
// index. HashField and UpdatedAtField name the ledger metadata keys
// tracking this enrichment's own change state.
type RunnerOptions struct {
	IndexPath      string
	IndexKey       string
	Dir            string
	HashField      string
	UpdatedAtField string
	Filters        []string
	Force          bool
	DryRun         bool
	Sleep          time.Duration
	SaveInterval   int
}

// RunResult summarizes one pass.
type RunResult struct {
	Considered int
	Updated    int
	Skipped    int
	Fallbacks  int
	DryRun     bool
}

// Runner regenerates index questions for documents whose content changed
// since the last pass.
type Runner struct {
	ledger *vectorsync.Ledger
	gen    Generator
	logger vectorsync.EventLogger
	now    func() time.Time
}

func NewRunner(ledger *vectorsync.Ledger, gen Generator, logger vectorsync.EventLogger) (*Runner, error) {
	if ledger == nil {
		return nil, fmt.Errorf("questions: %w: ledger is required", vectorsync.ErrInvalidInput)
	}
	return &Runner{ledger: ledger, gen: gen, logger: logger, now: time.Now}, nil
}

// Run plans against the ledger's enrichment hashes, regenerates questions
// for changed documents, rewrites the index in place, and records the new
// hashes. Progress saves every SaveInterval updates bound the loss from an
// interrupted run.
func (r *Runner) Run(ctx context.Context, opts RunnerOptions) (RunResult, error) {
	if opts.SaveInterval == 0 {
		opts.SaveInterval = DefaultSaveInterval
	}
	hashFields := []string{opts.HashField}
	if opts.HashField != "questionsHash" {
		// Older ledgers tracked every document under questionsHash.
		hashFields = append(hashFields, "questionsHash")
	}

	payload, entries, err := vectorsync.LoadIndex(opts.IndexPath, opts.IndexKey)
	if err != nil {
		return RunResult{}, err
	}
	plan := vectorsync.CollectEnrichmentPlan(entries, r.ledger, vectorsync.EnrichmentOptions{
		Dir:        opts.Dir,
		HashFields: hashFields,
		Force:      opts.Force,
		Filters:    opts.Filters,
	})

	result := RunResult{Considered: len(plan), DryRun: opts.DryRun}
	var updates []vectorsync.EnrichmentItem
	for _, item := range plan {
		switch item.Action {
		case vectorsync.EnrichActionUpdate:
			updates = append(updates, item)
		default:
			result.Skipped++
			r.event("questions.skip", map[string]any{
				"document": item.Entry.Document,
				"file":     item.JSONFilename,
				"reason":   item.Reason,
			})
		}
	}
	r.event("questions.plan", map[string]any{
		"considered": result.Considered,
		"toUpdate":   len(updates),
		"skipped":    result.Skipped,
	})
	if len(updates) == 0 {
		return result, nil
	}
	if opts.DryRun {
		for _, item := range updates {
			r.event("questions.item", map[string]any{
				"action":   "update",
				"document": item.Entry.Document,
				"file":     item.JSONFilename,
			})
		}
		return result, nil
	}
	if r.gen == nil {
		return result, fmt.Errorf("questions: %w: generator is required", vectorsync.ErrInvalidInput)
	}

	if backupPath, err := backupIndex(opts.IndexPath, r.now()); err != nil {
		r.event("questions.backup.error", map[string]any{"error": err.Error()})
	} else if backupPath != "" {
		r.event("questions.backup", map[string]any{"path": backupPath})
	}

	ledgerDirty := false
	for i, item := range updates {
		generated, err := r.gen.Generate(ctx, PrepareContent(item.Payload))
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			r.event("questions.error", map[string]any{
				"document": item.Entry.Document,
				"file":     item.JSONFilename,
				"error":    err.Error(),
			})
			generated = FallbackQuestions
			result.Fallbacks++
		}
		item.Entry.Record["Questions Answered"] = generated
		r.ledger.SetMetadata(item.JSONFilename, map[string]any{
			opts.HashField:      item.ContentHash,
			opts.UpdatedAtField: r.now().UTC().Format("2006-01-02T15:04:05Z"),
		})
		ledgerDirty = true
		result.Updated++
		r.event("questions.updated", map[string]any{
			"document":  item.Entry.Document,
			"file":      item.JSONFilename,
			"questions": generated,
		})

		if opts.SaveInterval > 0 && result.Updated%opts.SaveInterval == 0 {
			if err := vectorsync.SaveIndexPayload(opts.IndexPath, payload); err != nil {
				return result, err
			}
			r.event("questions.progress", map[string]any{"updated": result.Updated})
		}
		if opts.Sleep > 0 && i < len(updates)-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(opts.Sleep):
			}
		}
	}

	if err := vectorsync.SaveIndexPayload(opts.IndexPath, payload); err != nil {
		return result, err
	}
	if ledgerDirty {
		if err := r.ledger.Save(); err != nil {
			return result, err
		}
	}
	r.event("questions.complete", map[string]any{
		"updated":   result.Updated,
		"fallbacks": result.Fallbacks,
	})
	return result, nil
}

// backupIndex copies the index aside before a mutating pass. A missing
// index is not an error; the load would have failed already.
func backupIndex(indexPath string, now time.Time) (string, error) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	ext := filepath.Ext(indexPath)
	stem := strings.TrimSuffix(indexPath, ext)
	backupPath := fmt.Sprintf("%s_%s%s", stem, now.Format("20060102_150405"), ext)
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", err
	}
	return backupPath, nil
}

func (r *Runner) event(name string, fields map[string]any) {
	if r.logger != nil {
		r.logger.Event(name, fields)
	}
}
