package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileFlags is a reading.FlagStore persisted as a JSON object of flag -> set time.
type fileFlags struct {
	mu   sync.Mutex
	path string
}

func newFileFlags(path string) (*fileFlags, error) {
	if path == "" {
		return nil, errors.New("flags file path is required")
	}
	return &fileFlags{path: path}, nil
}

func (f *fileFlags) HasFlag(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flags, err := f.load()
	if err != nil {
		return false, err
	}
	_, ok := flags[key]
	return ok, nil
}

func (f *fileFlags) SetFlag(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	flags, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := flags[key]; ok {
		return nil
	}
	flags[key] = time.Now().UTC()
	return f.save(flags)
}

func (f *fileFlags) load() (map[string]time.Time, error) {
	flags := map[string]time.Time{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return flags, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read flags file: %w", err)
	}
	if len(data) == 0 {
		return flags, nil
	}
	if err := json.Unmarshal(data, &flags); err != nil {
		return nil, fmt.Errorf("failed to parse flags file: %w", err)
	}
	return flags, nil
}

// save writes through a temp file so a crash never leaves a torn file.
func (f *fileFlags) save(flags map[string]time.Time) error {
	data, err := json.MarshalIndent(flags, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create flags dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write flags file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func defaultFlagsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".arcana_guest_flags.json"
	}
	return filepath.Join(dir, "arcana", "guest_flags.json")
}
