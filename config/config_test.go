package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, `
brokerId: broker-1
store:
  driver: redis
  addr: localhost:6379
  topicSetKey: topics
  topicPrefix: "topic:"
  clientTopicsPrefix: "client:"
cluster:
  enabled: true
  driver: redis
  addr: localhost:6379
  channel: subindex.subscriptions
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "broker-1", cfg.BrokerID)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.True(t, cfg.Cluster.Enabled)
}

func TestLoadMissingRequiredField(t *testing.T) {
	path := writeConfig(t, `
store:
  topicSetKey: topics
  topicPrefix: "topic:"
  clientTopicsPrefix: "client:"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadClusterEnabledRequiresChannel(t *testing.T) {
	path := writeConfig(t, `
brokerId: broker-1
store:
  topicSetKey: topics
  topicPrefix: "topic:"
  clientTopicsPrefix: "client:"
cluster:
  enabled: true
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default("broker-1")
	assert.Equal(t, "broker-1", cfg.BrokerID)
	assert.False(t, cfg.Cluster.Enabled)
	assert.True(t, cfg.Cache.Enabled)
}
