package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Config tests mutate SQLCONV_* variables through t.Setenv and therefore do
// not run in parallel.

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sqlconv.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 255, cfg.Inference.VarcharThreshold)
	assert.Nil(t, cfg.Inference.TrueTokens)
	assert.Equal(t, 500, cfg.SQL.BatchSize)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.Equal(t, 50000, cfg.Split.MaxLines)
	assert.False(t, cfg.Split.OmitHeaders)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "none", cfg.Metrics.Backend)
	assert.Equal(t, 60*time.Second, cfg.Metrics.FlushEvery)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, int64(32<<20), cfg.HTTP.MaxBodyBytes)
	assert.Empty(t, cfg.Validate())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	p := writeFile(t, `
inference:
  varchar_threshold: 100
  true_tokens: [s, y]
  false_tokens: [n]
sql:
  batch_size: 50
  schema: staging
  column_comments: true
dialect:
  encodings: [utf-8, cp850]
batch:
  workers: 2
split:
  max_lines: 1000
  omit_headers: true
`)
	t.Setenv("SQLCONV_BATCH_SIZE", "75")

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Inference.VarcharThreshold)
	assert.Equal(t, []string{"s", "y"}, cfg.Inference.TrueTokens)
	assert.Equal(t, 75, cfg.SQL.BatchSize)
	assert.Equal(t, "staging", cfg.SQL.Schema)
	assert.True(t, cfg.SQL.ColumnComments)
	assert.Equal(t, []string{"utf-8", "cp850"}, cfg.Dialect.Encodings)
	assert.Equal(t, 2, cfg.Batch.Workers)
	assert.Equal(t, 1000, cfg.Split.MaxLines)
	assert.True(t, cfg.Split.OmitHeaders)
	assert.False(t, HasErrors(cfg.Validate()))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	p := writeFile(t, "batch: [oops\n")
	_, err = Load(p)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		path    string
		wantErr bool
	}{
		{name: "workers", mutate: func(c *Config) { c.Batch.Workers = 0 }, path: "batch.workers", wantErr: true},
		{name: "split", mutate: func(c *Config) { c.Split.MaxLines = 0 }, path: "split.max_lines", wantErr: true},
		{name: "encoding", mutate: func(c *Config) { c.Dialect.Encodings = []string{"ebcdic"} }, path: "dialect.encodings", wantErr: true},
		{name: "delimiter", mutate: func(c *Config) { c.Dialect.Delimiter = "\xff" }, path: "dialect.delimiter", wantErr: true},
		{name: "tokens_overlap", mutate: func(c *Config) {
			c.Inference.TrueTokens = []string{"x"}
			c.Inference.FalseTokens = []string{"X"}
		}, path: "inference.true_tokens", wantErr: true},
		{name: "metrics_backend", mutate: func(c *Config) { c.Metrics.Backend = "statsd" }, path: "metrics.backend", wantErr: true},
		{name: "layout_warning", mutate: func(c *Config) { c.Inference.TimestampLayouts = []string{"15:04"} }, path: "inference.timestamp_layouts"},
		{name: "schema_warning", mutate: func(c *Config) { c.SQL.Schema = "a.b" }, path: "sql.schema"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(cfg)

			issues := cfg.Validate()
			require.Len(t, issues, 1, "%v", issues)
			assert.Equal(t, tc.path, issues[0].Path)
			assert.Equal(t, tc.wantErr, HasErrors(issues))
		})
	}
}

func TestSourceOptions(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Dialect.Delimiter = "tab"
	cfg.Dialect.Encodings = []string{"utf-8", "latin1"}

	opts := cfg.SourceOptions()
	assert.Equal(t, '\t', opts.Rune("delimiter", 0))
	assert.Equal(t, "utf-8,latin1", opts.String("encodings", ""))
	assert.Equal(t, 20, opts.Int("detect_lines", 0))
	assert.Equal(t, 20, cfg.DialectOptions().MaxLines)

	so := cfg.SplitOptions("out")
	assert.Equal(t, 50000, so.MaxLines)
	assert.Equal(t, "out", so.OutDir)
	assert.True(t, so.Headers)
}

func TestWrite(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.Write(&buf))
	assert.Contains(t, buf.String(), "batch_size: 500")
	assert.Contains(t, buf.String(), "max_lines: 50000")
}
