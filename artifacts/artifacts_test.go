package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-dev/stepflow/types"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	sink, err := NewSink(t.TempDir(), "run-123", log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)
	return sink
}

func TestSinkCreatesRunDirectory(t *testing.T) {
	base := t.TempDir()
	sink, err := NewSink(base, "run-xyz", log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)

	assert.Equal(t, "run-xyz", sink.RunID())
	assert.Equal(t, filepath.Join(base, "run-xyz"), sink.RunDir())
	info, err := os.Stat(sink.RunDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteLogStripsANSI(t *testing.T) {
	sink := newTestSink(t)
	path, err := sink.WriteLog("colored output", "\x1b[31mred text\x1b[0m plain")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "red text plain", string(data))
}

func TestSanitizeFilename(t *testing.T) {
	sink := newTestSink(t)
	path, err := sink.WriteLog(`the user "alice" logs in / fails`, "content")
	require.NoError(t, err)

	base := filepath.Base(path)
	assert.Equal(t, "the_user_alice_logs_in_fails.log", base)
}

func TestRecorderWritesFailedScenariosOnly(t *testing.T) {
	sink := newTestSink(t)
	rec := NewScenarioRecorder(sink, log.NewLogger(log.DiscardHandler()))
	ctx := context.Background()

	passed := &types.ScenarioResult{Name: "green", Status: types.StatusPassed}
	require.NoError(t, rec.Start(ctx, &types.Scenario{Name: "green"}))
	paths, err := rec.Stop(ctx, passed)
	require.NoError(t, err)
	assert.Empty(t, paths, "passing scenarios leave no artifact")

	failed := &types.ScenarioResult{
		Name:   "red",
		Status: types.StatusFailed,
		Error:  errors.New("assertion failed"),
		Steps: []*types.StepResult{
			{Keyword: "Given", Text: "a precondition", Status: types.StatusPassed},
			{Keyword: "When", Text: "it breaks", Status: types.StatusFailed, Error: errors.New("assertion failed")},
			{Keyword: "Then", Text: "never checked", Status: types.StatusSkipped, Reason: types.SkipReasonPreviousFailed},
		},
	}
	paths, err = rec.Stop(ctx, failed)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "scenario: red")
	assert.Contains(t, content, "[failed] When it breaks")
	assert.Contains(t, content, "(previous step failed)")
}
