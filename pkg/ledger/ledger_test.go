package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDefaults(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "costs.json"))

	l.Bind("task-1")
	l.Record(APICallRecord{
		Model:            "gpt-4o-mini",
		PromptTokens:     100,
		CompletionTokens: 50,
		Cost:             0.0001,
		Operation:        OpSynthesis,
		Method:           "chat",
	})
	l.Unbind()
	l.Record(APICallRecord{
		Model:        "text-embedding-3-small",
		PromptTokens: 20,
		Cost:         0.000004,
		Operation:    OpEmbedding,
		Method:       "embed",
	})

	records := l.Records()
	require.Len(t, records, 2)

	assert.Equal(t, "task-1", records[0].TaskID)
	assert.Equal(t, 150, records[0].TotalTokens)
	assert.False(t, records[0].Timestamp.IsZero())

	// Recorded after Unbind: no task attribution.
	assert.Empty(t, records[1].TaskID)
}

func TestAggregations(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "costs.json"))

	l.Record(APICallRecord{TaskID: "t1", Model: "gpt-4o-mini", PromptTokens: 100, CompletionTokens: 10, Cost: 0.01, Operation: OpQueryExpansion})
	l.Record(APICallRecord{TaskID: "t1", Model: "gpt-4o-mini", PromptTokens: 200, CompletionTokens: 20, Cost: 0.02, Operation: OpSynthesis})
	l.Record(APICallRecord{TaskID: "t2", Model: "text-embedding-3-small", PromptTokens: 50, Cost: 0.001, Operation: OpEmbedding})

	byTask := l.TotalsByTask("t1")
	assert.Equal(t, 2, byTask.Records)
	assert.Equal(t, 300, byTask.PromptTokens)
	assert.InDelta(t, 0.03, byTask.Cost, 1e-9)

	byOp := l.TotalsByOperation(OpEmbedding)
	assert.Equal(t, 1, byOp.Records)
	assert.Equal(t, 50, byOp.TotalTokens)

	byModel := l.TotalsByModel("gpt-4o-mini")
	assert.Equal(t, 2, byModel.Records)

	grand := l.GrandTotal()
	assert.Equal(t, 3, grand.Records)
	assert.InDelta(t, 0.031, grand.Cost, 1e-9)

	breakdown := l.TaskBreakdown("t1")
	require.Len(t, breakdown, 2)
	assert.Equal(t, 1, breakdown[OpQueryExpansion].Records)
	assert.Equal(t, 1, breakdown[OpSynthesis].Records)
}

func TestFlushAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.json")

	l := New(path)
	l.Record(APICallRecord{TaskID: "t1", Model: "gpt-4o-mini", PromptTokens: 10, CompletionTokens: 5, Cost: 0.001, Operation: OpValidation})
	require.NoError(t, l.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var file struct {
		Records     []APICallRecord `json:"records"`
		LastUpdated time.Time       `json:"last_updated"`
	}
	require.NoError(t, json.Unmarshal(data, &file))
	require.Len(t, file.Records, 1)
	assert.False(t, file.LastUpdated.IsZero())

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 1, reloaded.GrandTotal().Records)
}

func TestLoadMissingFile(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, l.Load())
	assert.Zero(t, l.GrandTotal().Records)
}

func TestFlushEmptyLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.json")
	l := New(path)
	require.NoError(t, l.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"records": []`)
}

func TestConcurrentRecording(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "costs.json"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Record(APICallRecord{Model: "gpt-4o-mini", PromptTokens: 1, Operation: OpSynthesis})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, l.GrandTotal().Records)
}
