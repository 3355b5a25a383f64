package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"chatbridge/internal/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedHistory(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, history.DefaultFile)
	t.Setenv("CHATBRIDGE_HISTORY_FILE", path)

	cache := history.New(history.NewJSONFileStore(path))
	for _, c := range []string{"one", "two", "three"} {
		cache.Add("g1", history.Message{AuthorID: "u1", Content: c, Timestamp: "t"})
	}
	cache.Add("g2", history.Message{AuthorID: "u2", Content: "hi", Timestamp: "t"})
	require.NoError(t, cache.Close())
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestHistoryListsConversations(t *testing.T) {
	seedHistory(t)
	assert.Equal(t, "g1\t3\ng2\t1\n", run(t, "history"))
}

func TestHistoryPrintsRecentMessages(t *testing.T) {
	seedHistory(t)

	var msgs []history.Message
	require.NoError(t, json.Unmarshal([]byte(run(t, "history", "g1", "-n", "2")), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
}

func TestHistoryUnknownConversation(t *testing.T) {
	seedHistory(t)
	assert.Equal(t, "[]\n", run(t, "history", "nope"))
}
