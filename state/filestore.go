package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore persists the snapshot as a JSON file. Writes go to a temp file in
// the same directory followed by a rename, so a crash mid-write never leaves a
// truncated state file behind.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the state file. A missing file yields an empty snapshot; a
// malformed one is logged and also yields an empty snapshot, since losing
// tracker configuration beats refusing to start.
func (f *FileStore) Load(_ context.Context) (Snapshot, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return EmptySnapshot(), nil
		}
		slog.Error("failed to read state file; starting empty", slog.String("path", f.Path), slog.Any("err", err))
		return EmptySnapshot(), nil
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		slog.Error("malformed state file; starting empty", slog.String("path", f.Path), slog.Any("err", err))
		return EmptySnapshot(), nil
	}
	if snap.Selected == nil {
		snap.Selected = map[string]string{}
	}
	if snap.Trackers == nil {
		snap.Trackers = map[string]map[string]string{}
	}
	return snap, nil
}

// Save writes the snapshot atomically. Map keys are emitted in sorted order by
// encoding/json, so saving an unchanged snapshot produces identical bytes.
func (f *FileStore) Save(_ context.Context, snap Snapshot) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
