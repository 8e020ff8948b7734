package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestSplitKeyValuesIntoMap(t *testing.T) {
	t.Parallel()

	type testData struct {
		input  string
		result map[string]string
	}

	tests := []testData{
		{
			input: "some_key=value",
			result: map[string]string{
				"some_key": "value",
			},
		},
		{
			input: "key1=value1,key2=value2",
			result: map[string]string{
				"key1": "value1",
				"key2": "value2",
			},
		},
		{
			input: " lockInterval = 2s , noequals, dsn=a=b",
			result: map[string]string{
				"lockInterval": "2s",
				"dsn":          "a=b",
			},
		},
	}

	for _, test := range tests {
		out := SplitKeyValuesIntoMap(test.input)
		if diff := cmp.Diff(test.result, out); diff != "" {
			t.Errorf("SplitKeyValuesIntoMap() mismatch (-want +got):\n%s", diff)
		}
	}
}

// These tests change the process environment and cannot run in parallel.

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migrat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
user: sa
host: db.internal
port: 1444
enableLocking: true
migratSchema: ops
`), 0o644))

	t.Setenv("MIGRAT_HOST", "override.internal")
	t.Setenv("MIGRAT_LOCK_INTERVAL", "2s")

	bag, err := Load(path, false)
	require.NoError(t, err)
	want := map[string]any{
		"user":          "sa",
		"host":          "override.internal",
		"port":          1444,
		"enableLocking": true,
		"migratSchema":  "ops",
		"lockInterval":  "2s",
	}
	if diff := cmp.Diff(want, bag); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	// Missing file
	_, err = Load(filepath.Join(dir, "missing.yaml"), false)
	require.Error(t, err)
	bag, err = Load(filepath.Join(dir, "missing.yaml"), true)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"host": "override.internal", "lockInterval": "2s"}, bag)

	// Empty file
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	bag, err = Load(empty, false)
	require.NoError(t, err)
	require.Len(t, bag, 2)

	// Invalid file
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("user: [unterminated"), 0o644))
	_, err = Load(invalid, false)
	require.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MIGRAT_DATABASE=fromfile\nMIGRAT_USER=fromfile\n"), 0o644))
	t.Setenv("MIGRAT_USER", "fromenv")
	// Registered so t.Setenv restores it after the test.
	t.Setenv("MIGRAT_DATABASE", "")
	require.NoError(t, os.Unsetenv("MIGRAT_DATABASE"))

	require.NoError(t, LoadEnvFile(path, false))
	require.Equal(t, "fromfile", os.Getenv("MIGRAT_DATABASE"))
	require.Equal(t, "fromenv", os.Getenv("MIGRAT_USER"))

	require.Error(t, LoadEnvFile(filepath.Join(dir, "missing.env"), false))
	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env"), true))
}

func TestList(t *testing.T) {
	t.Setenv("MIGRAT_PASSWORD", "secret")
	t.Setenv("MIGRAT_USER", "sa")
	vars := List()
	require.Len(t, vars, len(envKeys))
	got := make(map[string]string)
	for _, v := range vars {
		got[v.Name] = v.Value
	}
	require.Equal(t, "********", got["MIGRAT_PASSWORD"])
	require.Equal(t, "sa", got["MIGRAT_USER"])
}
