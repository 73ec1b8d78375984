// Command vectorsync mirrors the local document corpus into an OpenAI
// vector store. Subcommands cover the pipeline stages: combining the source
// indexes, validating outputs, regenerating AI questions, the upsert sync
// itself, and reconciliation of the remote store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jasonlryan/mha-vectorsync/internal/lockfile"
	"github.com/jasonlryan/mha-vectorsync/internal/openaistore"
	"github.com/jasonlryan/mha-vectorsync/internal/questions"
	"github.com/jasonlryan/mha-vectorsync/internal/schema"
	"github.com/jasonlryan/mha-vectorsync/internal/vectorsync"
)

const usage = `usage: vectorsync <command> [flags]

commands:
  sync           upsert changed documents into the vector store
  reconcile      delete stale and duplicate remote files
  combine-index  merge the guide and policy indexes into the combined index
  validate       check documents and indexes against their JSON Schemas
  questions      regenerate AI questions for changed documents
  check-env      report whether the environment is ready to run
`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "sync":
		err = runSync(ctx, os.Args[2:])
	case "reconcile":
		err = runReconcile(ctx, os.Args[2:])
	case "combine-index":
		err = runCombineIndex(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "questions":
		err = runQuestions(ctx, os.Args[2:])
	case "check-env":
		err = runCheckEnv(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("vectorsync %s: %v", os.Args[1], err)
	}
}

// commonFlags are the pipeline-layout flags shared by the mutating
// commands, defaulting from the environment.
type commonFlags struct {
	combinedIndex string
	policyDir     string
	guideDir      string
	stateDSN      string
	dryRun        bool
}

func registerCommonFlags(fs *flag.FlagSet, cf *commonFlags) {
	fs.StringVar(&cf.combinedIndex, "combined-index", strEnv("VECTORSYNC_COMBINED_INDEX", vectorsync.DefaultCombinedIndexPath), "combined index path")
	fs.StringVar(&cf.policyDir, "policy-dir", strEnv("VECTORSYNC_POLICY_DIR", vectorsync.DefaultPolicyDir), "policy documents directory")
	fs.StringVar(&cf.guideDir, "guide-dir", strEnv("VECTORSYNC_GUIDE_DIR", vectorsync.DefaultGuideDir), "guide documents directory")
	fs.StringVar(&cf.stateDSN, "state", strEnv("VECTORSYNC_STATE_DSN", vectorsync.DefaultStateDSN), "state ledger DSN (file path, file://, memory://, or postgres://)")
	fs.BoolVar(&cf.dryRun, "dry-run", false, "plan without mutating anything")
}

func runSync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	var cf commonFlags
	registerCommonFlags(fs, &cf)
	storeID := fs.String("vector-store-id", "", "target vector store id (defaults from environment)")
	limit := fs.Int("limit", 0, "max uploads this run, 0 for unlimited")
	maxRetries := fs.Int("max-retries", intEnv("VECTORSYNC_MAX_RETRIES", vectorsync.DefaultMaxRetries), "retry attempts per remote call")
	baseDelay := fs.Duration("retry-base-delay", durationEnv("VECTORSYNC_RETRY_BASE_DELAY", vectorsync.DefaultBaseDelay), "base delay for retry backoff")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := vectorsync.Config{
		CombinedIndexPath: cf.combinedIndex,
		PolicyDir:         cf.policyDir,
		GuideDir:          cf.guideDir,
		StateDSN:          cf.stateDSN,
		MaxRetries:        *maxRetries,
		RetryBaseDelay:    *baseDelay,
		DryRun:            cf.dryRun,
		Limit:             *limit,
	}
	cfg.VectorStoreID, _ = vectorsync.ResolveVectorStoreID(*storeID, os.Getenv)

	logger := newLogger()
	syncer, release, err := buildSyncer(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	result, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d of %d uploads failed", len(result.Failures), result.Uploaded+len(result.Failures))
	}
	return nil
}

func runReconcile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	var cf commonFlags
	registerCommonFlags(fs, &cf)
	storeID := fs.String("vector-store-id", "", "target vector store id (defaults from environment)")
	includeUnknown := fs.Bool("include-unknown", false, "also delete remote files absent from both index and ledger")
	maxRetries := fs.Int("max-retries", intEnv("VECTORSYNC_MAX_RETRIES", vectorsync.DefaultMaxRetries), "retry attempts per remote call")
	baseDelay := fs.Duration("retry-base-delay", durationEnv("VECTORSYNC_RETRY_BASE_DELAY", vectorsync.DefaultBaseDelay), "base delay for retry backoff")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := vectorsync.Config{
		CombinedIndexPath: cf.combinedIndex,
		PolicyDir:         cf.policyDir,
		GuideDir:          cf.guideDir,
		StateDSN:          cf.stateDSN,
		MaxRetries:        *maxRetries,
		RetryBaseDelay:    *baseDelay,
		DryRun:            cf.dryRun,
		IncludeUnknown:    *includeUnknown,
	}
	cfg.VectorStoreID, _ = vectorsync.ResolveVectorStoreID(*storeID, os.Getenv)

	logger := newLogger()
	syncer, release, err := buildSyncer(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	result, err := syncer.Reconcile(ctx)
	if err != nil {
		return err
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d of %d deletions failed", len(result.Failures), result.Deleted+len(result.Failures))
	}
	return nil
}

// buildSyncer wires the ledger backend, remote store, and pipeline lock.
// Dry runs skip the store and the lock; they mutate nothing.
func buildSyncer(cfg vectorsync.Config, logger vectorsync.EventLogger) (*vectorsync.Syncer, func(), error) {
	cfg.ApplyDefaults()
	release := func() {}

	if !cfg.DryRun {
		lock := lockfile.New(
			strEnv("VECTORSYNC_LOCK_PATH", filepath.Join("state", "pipeline.lock")),
			durationEnv("VECTORSYNC_LOCK_TIMEOUT", 30*time.Second),
			durationEnv("VECTORSYNC_LOCK_STALE_AFTER", time.Hour),
		)
		if err := lock.Acquire(context.Background()); err != nil {
			return nil, nil, err
		}
		logger.Event("lock.acquired", map[string]any{"path": lock.Path})
		release = func() {
			if err := lock.Release(); err != nil {
				log.Printf("lock release failed: %v", err)
				return
			}
			logger.Event("lock.released", map[string]any{"path": lock.Path})
		}
	}

	backend, err := vectorsync.BuildStateBackendFromDSN(cfg.StateDSN)
	if err != nil {
		release()
		return nil, nil, err
	}
	ledger, err := vectorsync.OpenLedger(backend)
	if err != nil {
		release()
		return nil, nil, err
	}

	var store vectorsync.RemoteStore
	if !cfg.DryRun {
		apiKey := vectorsync.ResolveAPIKey(os.Getenv)
		client, err := openaistore.New(apiKey, cfg.VectorStoreID)
		if err != nil {
			release()
			return nil, nil, err
		}
		store = client
	}

	syncer, err := vectorsync.NewSyncer(store, ledger, cfg, logger)
	if err != nil {
		release()
		return nil, nil, err
	}
	return syncer, release, nil
}

func runCombineIndex(args []string) error {
	fs := flag.NewFlagSet("combine-index", flag.ExitOnError)
	guideIndex := fs.String("guide-index", strEnv("VECTORSYNC_GUIDE_INDEX", "Guide_Documents_Metadata_Index.json"), "guide index path")
	policyIndex := fs.String("policy-index", strEnv("VECTORSYNC_POLICY_INDEX", "Policy_Documents_Metadata_Index.json"), "policy index path")
	out := fs.String("out", strEnv("VECTORSYNC_COMBINED_INDEX", vectorsync.DefaultCombinedIndexPath), "combined index output path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := newLogger()
	result, err := vectorsync.CombineIndexes(*guideIndex, *policyIndex, *out)
	if err != nil {
		return err
	}
	logger.Event("combine.complete", map[string]any{
		"guides":           result.GuideCount,
		"policies":         result.PolicyCount,
		"total":            result.Total,
		"missingExtension": result.MissingExtension,
		"missingType":      result.MissingType,
	})
	return nil
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	schemasDir := fs.String("schemas-dir", strEnv("VECTORSYNC_SCHEMAS_DIR", "schemas"), "JSON Schema directory")
	policyDir := fs.String("policy-dir", strEnv("VECTORSYNC_POLICY_DIR", vectorsync.DefaultPolicyDir), "policy documents directory")
	guideDir := fs.String("guide-dir", strEnv("VECTORSYNC_GUIDE_DIR", vectorsync.DefaultGuideDir), "guide documents directory")
	policyIndex := fs.String("policy-index", strEnv("VECTORSYNC_POLICY_INDEX", "Policy_Documents_Metadata_Index.json"), "policy index path")
	guideIndex := fs.String("guide-index", strEnv("VECTORSYNC_GUIDE_INDEX", "Guide_Documents_Metadata_Index.json"), "guide index path")
	combinedIndex := fs.String("combined-index", strEnv("VECTORSYNC_COMBINED_INDEX", vectorsync.DefaultCombinedIndexPath), "combined index path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	policyFiles, err := schema.GatherJSONFiles(*policyDir)
	if err != nil {
		return err
	}
	guideFiles, err := schema.GatherJSONFiles(*guideDir)
	if err != nil {
		return err
	}
	datasets := []schema.Dataset{
		{Label: "policy_documents", Files: policyFiles, SchemaName: "policy_document.schema.json"},
		{Label: "guide_documents", Files: guideFiles, SchemaName: "guide_document.schema.json"},
		{Label: "policy_index", Files: []string{*policyIndex}, SchemaName: "policy_index.schema.json"},
		{Label: "guide_index", Files: []string{*guideIndex}, SchemaName: "guide_index.schema.json"},
		{Label: "combined_index", Files: []string{*combinedIndex}, SchemaName: "combined_index.schema.json"},
	}

	logger := newLogger()
	passed, err := schema.RunDatasets(*schemasDir, datasets, logger)
	if err != nil {
		return err
	}
	if !passed {
		logger.Event("run.complete", map[string]any{"status": "failed"})
		os.Exit(1)
	}
	logger.Event("run.complete", map[string]any{"status": "passed"})
	return nil
}

func runQuestions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("questions", flag.ExitOnError)
	indexPath := fs.String("index", "", "source index path (defaults from -guides)")
	dir := fs.String("dir", "", "documents directory (defaults from -guides)")
	stateDSN := fs.String("state", strEnv("VECTORSYNC_STATE_DSN", vectorsync.DefaultStateDSN), "state ledger DSN")
	guides := fs.Bool("guides", false, "operate on the guide index instead of the policy index")
	model := fs.String("model", strEnv("VECTORSYNC_QUESTIONS_MODEL", questions.DefaultModel), "chat model for question generation")
	dryRun := fs.Bool("dry-run", false, "show planned updates without calling the API or writing files")
	force := fs.Bool("force", false, "regenerate even when content hash is unchanged")
	only := fs.String("only", "", "comma-separated document titles or filenames to limit regeneration to")
	sleep := fs.Duration("sleep", time.Second, "delay between API calls")
	saveInterval := fs.Int("save-interval", questions.DefaultSaveInterval, "write index to disk every N updates")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := questions.RunnerOptions{
		IndexPath:      *indexPath,
		IndexKey:       vectorsync.PolicyIndexKey,
		Dir:            *dir,
		HashField:      "policyQuestionsHash",
		UpdatedAtField: "policyQuestionsUpdatedAt",
		Force:          *force,
		DryRun:         *dryRun,
		Sleep:          *sleep,
		SaveInterval:   *saveInterval,
	}
	if *guides {
		opts.IndexKey = vectorsync.GuideIndexKey
		opts.HashField = "questionsHash"
		opts.UpdatedAtField = "questionsUpdatedAt"
		if opts.IndexPath == "" {
			opts.IndexPath = strEnv("VECTORSYNC_GUIDE_INDEX", "Guide_Documents_Metadata_Index.json")
		}
		if opts.Dir == "" {
			opts.Dir = strEnv("VECTORSYNC_GUIDE_DIR", vectorsync.DefaultGuideDir)
		}
	}
	if opts.IndexPath == "" {
		opts.IndexPath = strEnv("VECTORSYNC_POLICY_INDEX", "Policy_Documents_Metadata_Index.json")
	}
	if opts.Dir == "" {
		opts.Dir = strEnv("VECTORSYNC_POLICY_DIR", vectorsync.DefaultPolicyDir)
	}
	if *only != "" {
		for _, filter := range strings.Split(*only, ",") {
			if filter = strings.TrimSpace(filter); filter != "" {
				opts.Filters = append(opts.Filters, filter)
			}
		}
	}

	backend, err := vectorsync.BuildStateBackendFromDSN(*stateDSN)
	if err != nil {
		return err
	}
	ledger, err := vectorsync.OpenLedger(backend)
	if err != nil {
		return err
	}

	var gen questions.Generator
	if !*dryRun {
		apiKey := vectorsync.ResolveAPIKey(os.Getenv)
		if apiKey == "" {
			return fmt.Errorf("%w: set VITE_OPENAI_API_KEY or OPENAI_API_KEY", vectorsync.ErrMissingConfig)
		}
		gen = questions.NewOpenAIGenerator(apiKey, *model)
	}

	runner, err := questions.NewRunner(ledger, gen, newLogger())
	if err != nil {
		return err
	}
	_, err = runner.Run(ctx, opts)
	return err
}

func runCheckEnv(args []string) error {
	fs := flag.NewFlagSet("check-env", flag.ExitOnError)
	stateDSN := fs.String("state", strEnv("VECTORSYNC_STATE_DSN", vectorsync.DefaultStateDSN), "state ledger DSN")
	asJSON := fs.Bool("json", false, "emit JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	apiKey := vectorsync.ResolveAPIKey(os.Getenv)
	testStoreID, _ := vectorsync.ResolveVectorStoreID("", func(name string) string {
		if strings.HasPrefix(name, "TEST_") || strings.HasPrefix(name, "VITE_TEST_") {
			return os.Getenv(name)
		}
		return ""
	})
	prodStoreID, _ := vectorsync.ResolveVectorStoreID("", func(name string) string {
		if strings.HasPrefix(name, "TEST_") || strings.HasPrefix(name, "VITE_TEST_") {
			return ""
		}
		return os.Getenv(name)
	})

	statePath := vectorsync.DSNPath(*stateDSN)
	stateExists := false
	if statePath != "" {
		if _, err := os.Stat(statePath); err == nil {
			stateExists = true
		}
	}

	status := map[string]any{
		"openai_key_present":                 apiKey != "",
		"test_vector_store_id_present":       testStoreID != "",
		"production_vector_store_id_present": prodStoreID != "",
		"state_file_exists":                  stateExists,
		"state_file_path":                    statePath,
	}
	if *asJSON {
		newLogger().Event("env.status", status)
	} else {
		fmt.Println("Environment check summary:")
		fmt.Printf("- OpenAI API key present: %s\n", yesNo(apiKey != ""))
		fmt.Printf("- Test vector store id present: %s\n", yesNo(testStoreID != ""))
		fmt.Printf("- Production vector store id present: %s\n", yesNo(prodStoreID != ""))
		fmt.Printf("- State file exists (%s): %s\n", statePath, yesNo(stateExists))
	}

	if apiKey == "" || testStoreID == "" {
		os.Exit(1)
	}
	return nil
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

func newLogger() vectorsync.EventLogger {
	return vectorsync.NewEventLogger(log.New(os.Stdout, "", 0))
}

func strEnv(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
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
