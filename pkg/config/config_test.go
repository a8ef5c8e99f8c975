package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LITEGATE_REQUEST_TIMEOUT", "3")
	t.Setenv("LITEGATE_CACHE_ENABLED", "true")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadLiteserversFromFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "liteservers-*.json")
	require.NoError(t, err)
	_, err = f.WriteString(`{"liteservers":[{"ip":1495755434,"port":17728},{"host":"1.2.3.4","port":443,"archival":true}]}`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	servers, err := LoadLiteservers(f.Name())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, 0, servers[0].Index)
	assert.Equal(t, 17728, servers[0].Port)
	assert.NotEmpty(t, servers[0].Address)
	assert.True(t, servers[1].ArchivalHint)
	assert.Equal(t, "1.2.3.4", servers[1].Address)
}

func TestWorkerKeystore(t *testing.T) {
	assert.Equal(t, "./ton_keystore/worker_3", WorkerKeystore("./ton_keystore/", 3))
}
