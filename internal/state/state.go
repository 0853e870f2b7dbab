// ABOUTME: Durable state file for the dedup cache (seen keys + high-water mark)
// ABOUTME: JSON on disk, written atomically via temp-file-then-rename

package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the durable record of everything the dedup cache needs to
// survive a restart: the set of canonical keys already seen and the
// identity of the last processed message.
//
// Matrix event IDs are opaque, so ordering is carried by the origin
// server timestamp alongside the ID.
type State struct {
	SeenKeys      []string  `json:"seen_keys"`
	HighWaterMark string    `json:"high_water_mark,omitempty"`
	HighWaterTS   time.Time `json:"high_water_ts,omitempty"`
}

// Load reads the state file at path. A missing file is a fresh start and
// returns an empty state with no error. A file that exists but cannot be
// read or parsed is an error: silently discarding history would make the
// bot re-moderate from scratch, so the caller treats it as fatal.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("reading state file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return st, nil
}

// Save writes the state to path atomically: the record is written to a
// temporary file in the same directory and renamed into place, so a crash
// mid-write never leaves a truncated file. Parent directories are created
// if needed. The JSON is indented so the file stays human-inspectable.
func Save(path string, st State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing state temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
