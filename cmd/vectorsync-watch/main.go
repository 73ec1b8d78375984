// Command vectorsync-watch watches the document directories and the
// combined index and runs a sync pass after each burst of changes.
// Filesystem events are debounced so a bulk regeneration triggers one run.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jasonlryan/mha-vectorsync/internal/openaistore"
	"github.com/jasonlryan/mha-vectorsync/internal/vectorsync"
)

func main() {
	combinedIndex := flag.String("combined-index", envOrDefault("VECTORSYNC_COMBINED_INDEX", vectorsync.DefaultCombinedIndexPath), "combined index path")
	policyDir := flag.String("policy-dir", envOrDefault("VECTORSYNC_POLICY_DIR", vectorsync.DefaultPolicyDir), "policy documents directory")
	guideDir := flag.String("guide-dir", envOrDefault("VECTORSYNC_GUIDE_DIR", vectorsync.DefaultGuideDir), "guide documents directory")
	stateDSN := flag.String("state", envOrDefault("VECTORSYNC_STATE_DSN", vectorsync.DefaultStateDSN), "state ledger DSN")
	storeID := flag.String("vector-store-id", "", "target vector store id (defaults from environment)")
	debounce := flag.Duration("debounce", durationEnv("VECTORSYNC_WATCH_DEBOUNCE", 2*time.Second), "quiet period after a change before syncing")
	timeout := flag.Duration("timeout", durationEnv("VECTORSYNC_WATCH_TIMEOUT", 10*time.Minute), "per-sync timeout")
	dryRun := flag.Bool("dry-run", false, "plan without uploading")
	once := flag.Bool("once", false, "run one sync pass and exit")
	flag.Parse()

	log.SetFlags(0)
	logger := vectorsync.NewEventLogger(log.New(os.Stdout, "", 0))

	cfg := vectorsync.Config{
		CombinedIndexPath: *combinedIndex,
		PolicyDir:         *policyDir,
		GuideDir:          *guideDir,
		StateDSN:          *stateDSN,
		DryRun:            *dryRun,
	}
	cfg.VectorStoreID, _ = vectorsync.ResolveVectorStoreID(*storeID, os.Getenv)

	syncer, err := buildSyncer(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize syncer: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := func() {
		ctx, cancel := context.WithTimeout(rootCtx, *timeout)
		defer cancel()
		result, err := syncer.Sync(ctx)
		if err != nil {
			log.Printf("sync pass failed: %v", err)
			return
		}
		if len(result.Failures) > 0 {
			log.Printf("sync pass completed with %d failures", len(result.Failures))
			return
		}
		log.Printf("sync pass completed: %d uploaded", result.Uploaded)
	}

	run()
	if *once {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Close()

	for _, path := range []string{*policyDir, *guideDir} {
		if err := watcher.Add(path); err != nil {
			log.Fatalf("failed to watch %s: %v", path, err)
		}
	}
	// Editors replace the index via rename, so watch its directory.
	indexDir := filepath.Dir(*combinedIndex)
	if indexDir != *policyDir && indexDir != *guideDir {
		if err := watcher.Add(indexDir); err != nil {
			log.Fatalf("failed to watch %s: %v", indexDir, err)
		}
	}

	var pending *time.Timer
	var pendingC <-chan time.Time
	for {
		select {
		case <-rootCtx.Done():
			log.Printf("watch stopping: %v", rootCtx.Err())
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !relevantEvent(event) {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(*debounce)
				pendingC = pending.C
			} else {
				if !pending.Stop() {
					select {
					case <-pending.C:
					default:
					}
				}
				pending.Reset(*debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watch error: %v", err)
		case <-pendingC:
			pending = nil
			pendingC = nil
			run()
		}
	}
}

// relevantEvent filters to JSON content mutations; chmod-only events and
// editor scratch files never warrant a run.
func relevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := strings.ToLower(event.Name)
	return strings.HasSuffix(name, ".json")
}

func buildSyncer(cfg vectorsync.Config, logger vectorsync.EventLogger) (*vectorsync.Syncer, error) {
	backend, err := vectorsync.BuildStateBackendFromDSN(cfg.StateDSN)
	if err != nil {
		return nil, err
	}
	ledger, err := vectorsync.OpenLedger(backend)
	if err != nil {
		return nil, err
	}
	var store vectorsync.RemoteStore
	if !cfg.DryRun {
		apiKey := vectorsync.ResolveAPIKey(os.Getenv)
		client, err := openaistore.New(apiKey, cfg.VectorStoreID)
		if err != nil {
			return nil, err
		}
		store = client
	}
	return vectorsync.NewSyncer(store, ledger, cfg, logger)
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
