package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/stellar-expert/relgraph/pkg/graph"
)

// FileStore keeps snapshots as JSON files in a directory.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileStore creates a file store rooted at dir.
// If dir is empty, defaults to $XDG_CONFIG_HOME/relgraph/snapshots.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("get config dir: %w", err)
		}
		dir = filepath.Join(base, "relgraph", "snapshots")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory snapshots are written to.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Save(ctx context.Context, snap *graph.Snapshot) (string, error) {
	c, err := prepare(snap)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".snap-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(c.ID)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return c.ID, nil
}

func (s *FileStore) Load(ctx context.Context, id string) (*graph.Snapshot, error) {
	if checkID(id) != nil {
		return nil, notFound(id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(s.path(id), id)
}

func (s *FileStore) read(path, id string) (*graph.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	var snap graph.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", id, err)
	}
	return &snap, nil
}

func (s *FileStore) List(ctx context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	var sums []Summary
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".json")
		if e.IsDir() || !ok || checkID(id) != nil {
			continue
		}
		snap, err := s.read(filepath.Join(s.dir, e.Name()), id)
		if err != nil {
			continue
		}
		sums = append(sums, summarize(snap))
	}
	sortNewestFirst(sums)
	return sums[:min(len(sums), listLimit(limit))], nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if checkID(id) != nil {
		return notFound(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return notFound(id)
		}
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
