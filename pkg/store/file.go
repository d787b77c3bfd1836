package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// File is a filesystem Store. Cache entries are addressed by
// fingerprint in sharded directories (entries/<first two hex>/<fp>.json);
// outcomes append to a JSONL log. Expiry is enforced lazily on read.
// The capacity bound is the memory backend's concern; this backend
// relies on TTL plus Purge.
type File struct {
	base  string
	clock Clock
	mu    sync.Mutex // serializes outcome appends
}

// NewFile builds a file store rooted at basePath, defaulting to
// ~/.tiergate/store.
func NewFile(basePath string, clock Clock) (*File, error) {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Join(home, ".tiergate", "store")
	}
	if clock == nil {
		clock = SystemClock()
	}
	if err := os.MkdirAll(filepath.Join(basePath, "entries"), 0755); err != nil {
		return nil, err
	}
	return &File{base: basePath, clock: clock}, nil
}

func (f *File) entryPath(key schema.Fingerprint) string {
	shard := string(key)[:2]
	return filepath.Join(f.base, "entries", shard, string(key)+".json")
}

func (f *File) Get(_ context.Context, key schema.Fingerprint) (*schema.CacheEntry, bool, error) {
	if !key.Valid() {
		return nil, false, nil
	}
	data, err := os.ReadFile(f.entryPath(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	var entry schema.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	if entry.Expired(f.clock.Now()) {
		os.Remove(f.entryPath(key))
		return nil, false, nil
	}
	return &entry, true, nil
}

func (f *File) Put(_ context.Context, entry schema.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	path := f.entryPath(entry.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (f *File) Delete(_ context.Context, key schema.Fingerprint) error {
	if !key.Valid() {
		return nil
	}
	err := os.Remove(f.entryPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *File) Len(_ context.Context) (int, error) {
	n := 0
	err := f.walkEntries(func(string) { n++ })
	return n, err
}

func (f *File) Purge(_ context.Context) error {
	if err := os.RemoveAll(filepath.Join(f.base, "entries")); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(f.base, "entries"), 0755)
}

func (f *File) walkEntries(visit func(path string)) error {
	root := filepath.Join(f.base, "entries")
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") {
			visit(path)
		}
		return nil
	})
}

func (f *File) outcomePath() string {
	return filepath.Join(f.base, "outcomes.jsonl")
}

func (f *File) LogOutcome(_ context.Context, outcome schema.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return fmt.Errorf("log outcome: %w", err)
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := os.OpenFile(f.outcomePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open outcome log: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

func (f *File) History(_ context.Context, limit int) ([]schema.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.outcomePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read outcome log: %w", err)
	}

	var outcomes []schema.Outcome
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var o schema.Outcome
		if err := json.Unmarshal([]byte(line), &o); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}

	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].At.Before(outcomes[j].At) })
	if limit > 0 && len(outcomes) > limit {
		outcomes = outcomes[len(outcomes)-limit:]
	}
	return outcomes, nil
}
