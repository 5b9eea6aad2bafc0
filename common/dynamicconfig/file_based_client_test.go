package dynamicconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/common/log"
)

const testConfigContent = `
matching.maxTaskAttempts:
- value: 10
- constraints:
    namespace: accounting
  value: 3
matching.longPollExpirationInterval:
- value: 30s
frontend.rps:
- constraints:
    taskQueueName: billing
  value: 500
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dynamic_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileBasedClientLoadsValues(t *testing.T) {
	doneCh := make(chan interface{})
	defer close(doneCh)

	client, err := NewFileBasedClient(&FileBasedClientConfig{
		Filepath:     writeTestConfig(t, testConfigContent),
		PollInterval: 10 * time.Second,
	}, log.NewTestLogger(), doneCh)
	require.NoError(t, err)

	col := NewCollection(client, log.NewTestLogger())

	maxAttempts := col.GetIntPropertyFilteredByNamespace(MatchingMaxTaskAttempts, 0)
	require.Equal(t, 3, maxAttempts("accounting"))
	require.Equal(t, 10, maxAttempts("ops"))

	require.Equal(t, 30*time.Second,
		col.GetDurationProperty(MatchingLongPollExpirationInterval, time.Minute)())
}

func TestFileBasedClientKeysAreCaseInsensitive(t *testing.T) {
	doneCh := make(chan interface{})
	defer close(doneCh)

	client, err := NewFileBasedClient(&FileBasedClientConfig{
		Filepath:     writeTestConfig(t, "Matching.MaxTaskAttempts:\n- value: 7\n"),
		PollInterval: 10 * time.Second,
	}, log.NewTestLogger(), doneCh)
	require.NoError(t, err)

	require.Len(t, client.GetValue(MatchingMaxTaskAttempts), 1)
}

func TestFileBasedClientMissingFile(t *testing.T) {
	doneCh := make(chan interface{})
	defer close(doneCh)

	_, err := NewFileBasedClient(&FileBasedClientConfig{
		Filepath:     filepath.Join(t.TempDir(), "does-not-exist.yaml"),
		PollInterval: 10 * time.Second,
	}, log.NewTestLogger(), doneCh)
	require.Error(t, err)
}

func TestFileBasedClientRejectsShortPollInterval(t *testing.T) {
	doneCh := make(chan interface{})
	defer close(doneCh)

	_, err := NewFileBasedClient(&FileBasedClientConfig{
		Filepath:     writeTestConfig(t, testConfigContent),
		PollInterval: time.Second,
	}, log.NewTestLogger(), doneCh)
	require.Error(t, err)
}

func TestFileBasedClientUnknownConstraint(t *testing.T) {
	doneCh := make(chan interface{})
	defer close(doneCh)

	content := "frontend.rps:\n- constraints:\n    shardID: 5\n  value: 10\n"
	_, err := NewFileBasedClient(&FileBasedClientConfig{
		Filepath:     writeTestConfig(t, content),
		PollInterval: 10 * time.Second,
	}, log.NewTestLogger(), doneCh)
	require.Error(t, err)
}
