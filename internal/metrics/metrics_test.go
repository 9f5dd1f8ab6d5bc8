package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushingMemory struct {
	*Memory
	flushes int
}

func (f *flushingMemory) Flush() error {
	f.flushes++
	return nil
}

// Tests in this file swap the package backend and must not run in parallel.

func TestHelpersRecordIntoBackend(t *testing.T) {
	m := NewMemory()
	SetBackend(m)
	t.Cleanup(func() { SetBackend(nil) })

	RecordTable("ok")
	RecordTable("ok")
	RecordTable("failed")
	RecordRows(10)
	RecordRows(0)
	RecordStatements("insert", 3)
	RecordStatements("ddl", 0)
	RecordChunks(2)
	RecordStep("infer", time.Now().Add(-time.Second), nil)
	RecordStep("render", time.Now(), errors.New("x"))
	RecordHTTP(422, 5*time.Millisecond)

	assert.Equal(t, 2.0, m.Counter(TablesTotal, Labels{"status": "ok"}))
	assert.Equal(t, 1.0, m.Counter(TablesTotal, Labels{"status": "failed"}))
	assert.Equal(t, 10.0, m.Counter(RowsTotal, nil))
	assert.Equal(t, 3.0, m.Counter(StatementsTotal, Labels{"kind": "insert"}))
	assert.Zero(t, m.Counter(StatementsTotal, Labels{"kind": "ddl"}))
	assert.Equal(t, 2.0, m.Counter(ChunksTotal, nil))
	assert.Equal(t, 1.0, m.Counter(StepTotal, Labels{"step": "render", "status": "error"}))
	assert.Equal(t, 1.0, m.Counter(HTTPRequestsTotal, Labels{"status": "422"}))

	d := m.Samples(StepDurationSeconds, Labels{"step": "infer", "status": "ok"})
	require.Len(t, d, 1)
	assert.GreaterOrEqual(t, d[0], 1.0)
}

func TestFlush(t *testing.T) {
	SetBackend(nil)
	assert.NoError(t, Flush())

	f := &flushingMemory{Memory: NewMemory()}
	SetBackend(f)
	t.Cleanup(func() { SetBackend(nil) })

	require.NoError(t, Flush())
	assert.Equal(t, 1, f.flushes)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "m", Key("m", nil))
	assert.Equal(t, "m{a=1,b=2}", Key("m", Labels{"b": "2", "a": "1"}))
}
