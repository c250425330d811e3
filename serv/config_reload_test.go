package serv

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nolint:errcheck
func TestConfig_ReloadKeepsInheritedValues(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/dev.yml", []byte("app_name: \"App Name\"\napi:\n  base_url: \"http://localhost:8000\"\n  timeout: 5s\n"), 0o666)
	afero.WriteFile(fs, "/prod.yml", []byte("inherits: dev\ncache:\n  stale_time: 30s\n"), 0o666)

	c, err := ReadInConfigFS("/prod.yml", fs)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	afero.WriteFile(fs, "/prod.yml", []byte("inherits: dev\nlog_level: debug\ncache:\n  stale_time: 45s\n"), 0o666)

	nc, err := c.reload()
	require.NoError(t, err)
	require.NoError(t, nc.Validate())

	assert.Equal(t, "App Name", nc.AppName)
	assert.Equal(t, "http://localhost:8000", nc.API.BaseURL)
	assert.Equal(t, 5*time.Second, nc.API.Timeout)
	assert.Equal(t, 45*time.Second, nc.Cache.StaleTime)
	assert.Equal(t, "debug", nc.LogLevel)
	assert.Equal(t, c.ConfigFile(), nc.ConfigFile())
}
