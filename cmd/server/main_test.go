package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "timesheet.yaml")
	require.NoError(t, os.WriteFile(valid, []byte("server:\n  port: 9191\n"), 0o600))
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("cache:\n  type: memcached\n"), 0o600))

	tests := []struct {
		name      string
		path      string
		wantFound bool
		wantPort  int
		wantErr   bool
	}{
		{"missing file falls back to defaults", filepath.Join(dir, "absent.yaml"), false, 8080, false},
		{"existing file is loaded", valid, true, 9191, false},
		{"invalid file is an error", broken, true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: a config path
			// WHEN: it is loaded
			cfg, found, err := loadConfig(tt.path)

			// THEN: the caller learns whether defaults were used
			assert.Equal(t, tt.wantFound, found)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, cfg.Server.Port)
		})
	}
}
