// ABOUTME: Tests for the durable state file
// ABOUTME: Covers round-tripping, missing files, corrupt files, and atomic replacement

package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, st.SeenKeys)
	assert.Empty(t, st.HighWaterMark)
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing state file")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "state.json")
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := State{
		SeenKeys:      []string{"hello world", "second message", ""},
		HighWaterMark: "$abc123",
		HighWaterTS:   ts,
	}

	require.NoError(t, Save(path, st))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, st.SeenKeys, got.SeenKeys)
	assert.Equal(t, st.HighWaterMark, got.HighWaterMark)
	assert.True(t, st.HighWaterTS.Equal(got.HighWaterTS))
}

func TestSave_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Save(path, State{SeenKeys: []string{"old"}}))
	require.NoError(t, Save(path, State{SeenKeys: []string{"new"}}))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, got.SeenKeys)

	// No temp file left behind
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSave_HumanInspectable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Save(path, State{SeenKeys: []string{"a"}, HighWaterMark: "$ev"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "\n"), "state file should be indented JSON")
	assert.Contains(t, string(data), "high_water_mark")
}
