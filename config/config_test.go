package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \":9000\"\nexport:\n  file_mode: multi_file\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, "multi_file", cfg.Export.FileMode)
	assert.Equal(t, "_mask_", cfg.Export.AlphaName)
	assert.Equal(t, "simple", cfg.Export.AlphaNameMode)
	assert.Equal(t, "./output", cfg.Output.Dir)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, int64(64*1024*1024), cfg.Server.MaxBodySize)
	assert.Equal(t, []string{"image/jpeg", "image/png", "image/jpg"}, cfg.Upload.AllowedTypes)
}

func TestLoadRejectsUnknownModes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "file mode", body: "export:\n  file_mode: zip\n"},
		{name: "alpha name mode", body: "export:\n  alpha_name_mode: prefix\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, getDefaultConfig().Validate())
}
