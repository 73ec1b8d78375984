package vectorsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// StateBackend persists ledger snapshots. Load returns (nil, nil) when no
// snapshot exists yet.
type StateBackend interface {
	Load() (*ledgerState, error)
	Save(state *ledgerState) error
}

// JSONFileStateBackend stores the ledger as a pretty-printed JSON file with
// sorted keys, written via temp-file-then-rename in the target directory.
type JSONFileStateBackend struct {
	path string
}

func NewJSONFileStateBackend(path string) *JSONFileStateBackend {
	return &JSONFileStateBackend{path: path}
}

func (b *JSONFileStateBackend) Path() string {
	return b.path
}

func (b *JSONFileStateBackend) Load() (*ledgerState, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.UseNumber()
	var state ledgerState
	if err := dec.Decode(&state); err != nil {
		return nil, err
	}
	if state.Docs == nil {
		state.Docs = map[string]*Entry{}
	}
	return &state, nil
}

func (b *JSONFileStateBackend) Save(state *ledgerState) error {
	if state == nil {
		return ErrInvalidInput
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(b.path, buf.Bytes(), 0o644)
}

// InMemoryStateBackend keeps the snapshot in process memory. Used by tests
// and dry runs that must not touch the durable ledger.
type InMemoryStateBackend struct {
	mu       sync.Mutex
	snapshot []byte
}

func NewInMemoryStateBackend() *InMemoryStateBackend {
	return &InMemoryStateBackend{}
}

func (b *InMemoryStateBackend) Load() (*ledgerState, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b.snapshot))
	dec.UseNumber()
	var state ledgerState
	if err := dec.Decode(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (b *InMemoryStateBackend) Save(state *ledgerState) error {
	if b == nil || state == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = data
	return nil
}

// EnsureLedgerFile creates the ledger file at path with the empty shape when
// it does not exist yet, atomically so a concurrent reader never observes a
// half-written file.
func EnsureLedgerFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	backend := NewJSONFileStateBackend(path)
	return backend.Save(&ledgerState{Docs: map[string]*Entry{}})
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
