package vectorsync

import (
	"fmt"
	"time"
)

// Default local layout, matching the document pipeline's repository shape.
const (
	DefaultCombinedIndexPath = "MHA_Documents_Metadata_Index.json"
	DefaultPolicyDir         = "VECTOR_JSON"
	DefaultGuideDir          = "VECTOR_GUIDES_JSON"
	DefaultStateDSN          = "state/vector_state.json"
)

// Config carries everything the sync core needs. It is explicit rather than
// environment-derived so tests can substitute isolated temp directories; the
// cmd layer owns environment resolution.
type Config struct {
	CombinedIndexPath string
	PolicyDir         string
	GuideDir          string
	StateDSN          string
	VectorStoreID     string
	MaxRetries        int
	RetryBaseDelay    time.Duration
	DryRun            bool
	IncludeUnknown    bool
	// Limit caps create/update uploads per run; zero means unlimited.
	Limit          int
	VolatileFields []string
}

// ApplyDefaults fills unset fields with the standard pipeline layout.
func (c *Config) ApplyDefaults() {
	if c.CombinedIndexPath == "" {
		c.CombinedIndexPath = DefaultCombinedIndexPath
	}
	if c.PolicyDir == "" {
		c.PolicyDir = DefaultPolicyDir
	}
	if c.GuideDir == "" {
		c.GuideDir = DefaultGuideDir
	}
	if c.StateDSN == "" {
		c.StateDSN = DefaultStateDSN
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = DefaultBaseDelay
	}
}

// Validate reports configuration errors that must abort before any remote
// call. Dry runs never reach the remote store and need no store identity.
func (c Config) Validate() error {
	if c.DryRun {
		return nil
	}
	if c.VectorStoreID == "" {
		return fmt.Errorf("%w: vector store id (flag -vector-store-id or TEST_VECTOR_STORE_ID / VECTOR_STORE_ID)", ErrMissingConfig)
	}
	return nil
}

// ResolveVectorStoreID applies the store-id precedence: explicit value, then
// the test store, then the production store. The returned source names which
// level won, for logging.
func ResolveVectorStoreID(explicit string, getenv func(string) string) (id, source string) {
	if explicit != "" {
		return explicit, "arg"
	}
	for _, name := range []string{"TEST_VECTOR_STORE_ID", "VITE_TEST_VECTOR_STORE_ID"} {
		if value := getenv(name); value != "" {
			return value, "test-env"
		}
	}
	for _, name := range []string{"VECTOR_STORE_ID", "VITE_OPENAI_VECTOR_STORE_ID", "VITE_VECTOR_STORE_ID"} {
		if value := getenv(name); value != "" {
			return value, "prod-env"
		}
	}
	return "", ""
}

// ResolveAPIKey returns the OpenAI API key from the environment.
func ResolveAPIKey(getenv func(string) string) string {
	for _, name := range []string{"VITE_OPENAI_API_KEY", "OPENAI_API_KEY"} {
		if value := getenv(name); value != "" {
			return value
		}
	}
	return ""
}
