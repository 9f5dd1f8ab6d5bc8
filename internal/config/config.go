// Package config loads sqlconv settings from an optional YAML file with
// SQLCONV_* environment overrides.
//
// Precedence, lowest first: env-default tags, YAML file, environment,
// command-line flags (applied by the CLI after Load).
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"sqlconv/internal/dialect"
	"sqlconv/internal/inference"
	"sqlconv/internal/source"
	"sqlconv/internal/splitter"
	"sqlconv/internal/sqlgen"
)

// Config is the complete runtime configuration.
type Config struct {
	Inference inference.Config `yaml:"inference"`
	SQL       sqlgen.Config    `yaml:"sql"`
	Dialect   DialectConfig    `yaml:"dialect"`
	Batch     BatchConfig      `yaml:"batch"`
	Split     SplitConfig      `yaml:"split"`
	Log       LogConfig        `yaml:"log"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	HTTP      HTTPConfig       `yaml:"http"`
}

// DialectConfig pins or tunes delimited-text detection.
type DialectConfig struct {
	// Encodings are tried in order; empty means utf-8 then latin1.
	Encodings []string `yaml:"encodings" env:"SQLCONV_ENCODINGS" env-separator:","`

	// MaxLines is the number of non-empty lines inspected.
	MaxLines int `yaml:"max_lines" env:"SQLCONV_DETECT_LINES" env-default:"20"`

	// Delimiter and Encoding skip detection when set.
	Delimiter string `yaml:"delimiter" env:"SQLCONV_DELIMITER"`
	Encoding  string `yaml:"encoding" env:"SQLCONV_ENCODING"`
}

// BatchConfig controls directory conversions.
type BatchConfig struct {
	// Workers bounds concurrent per-table inference.
	Workers int `yaml:"workers" env:"SQLCONV_WORKERS" env-default:"4"`

	// SampleRows caps the rows read for inference; 0 reads every row.
	SampleRows int `yaml:"sample_rows" env:"SQLCONV_SAMPLE_ROWS" env-default:"0"`

	// Summary is the path of the YAML run summary; empty disables it.
	Summary string `yaml:"summary" env:"SQLCONV_SUMMARY"`

	// Stamp adds a "Generated at" line to script headers.
	Stamp bool `yaml:"stamp" env:"SQLCONV_STAMP" env-default:"false"`
}

// SplitConfig controls the statement-aware splitter.
type SplitConfig struct {
	MaxLines int `yaml:"max_lines" env:"SQLCONV_SPLIT_MAX_LINES" env-default:"50000"`

	// OmitHeaders drops the "-- Part X of Y" comment block from chunk files.
	OmitHeaders bool `yaml:"omit_headers" env:"SQLCONV_SPLIT_OMIT_HEADERS" env-default:"false"`
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"SQLCONV_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"SQLCONV_LOG_FORMAT" env-default:"json"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is "none" or "datadog".
	Backend string `yaml:"backend" env:"SQLCONV_METRICS_BACKEND" env-default:"none"`

	// Job becomes the "job:<name>" tag.
	Job string `yaml:"job" env:"SQLCONV_METRICS_JOB" env-default:"sqlconv"`

	// Tags is a comma-separated tag list ("team:data,env:prod").
	Tags string `yaml:"tags" env:"SQLCONV_METRICS_TAGS"`

	FlushEvery time.Duration `yaml:"flush_every" env:"SQLCONV_METRICS_FLUSH_EVERY" env-default:"60s"`
}

// HTTPConfig controls the serve command.
type HTTPConfig struct {
	Addr           string        `yaml:"addr" env:"SQLCONV_HTTP_ADDR" env-default:":8080"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SQLCONV_HTTP_TIMEOUT" env-default:"60s"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" env:"SQLCONV_HTTP_MAX_BODY" env-default:"33554432"`
}

// Load reads path (YAML) and applies environment overrides. An empty path
// reads the environment and defaults only.
//
// Errors:
//   - The file cannot be read or parsed.
//   - An environment variable has the wrong type.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read env config: %w", err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the YAML path of the field.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// Validate reports problems in cfg. Warnings do not block a run.
func (c *Config) Validate() []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if c.Inference.VarcharThreshold < 0 {
		add(SeverityError, "inference.varchar_threshold", "must be >= 0, got %d", c.Inference.VarcharThreshold)
	}
	for _, lay := range c.Inference.TimestampLayouts {
		if !strings.Contains(lay, "2006") {
			add(SeverityWarning, "inference.timestamp_layouts", "layout %q has no year; Go layouts use 2006-01-02", lay)
		}
	}
	if overlap := overlapping(c.Inference.TrueTokens, c.Inference.FalseTokens); overlap != "" {
		add(SeverityError, "inference.true_tokens", "token %q is also a false token", overlap)
	}

	if c.SQL.BatchSize < 0 {
		add(SeverityError, "sql.batch_size", "must be >= 0, got %d", c.SQL.BatchSize)
	}
	if c.SQL.Schema != "" && strings.ContainsAny(c.SQL.Schema, " .\"") {
		add(SeverityWarning, "sql.schema", "%q will be quoted as a single identifier", c.SQL.Schema)
	}

	for _, e := range c.Dialect.Encodings {
		if !dialect.Supported(e) {
			add(SeverityError, "dialect.encodings", "unsupported encoding %q", e)
		}
	}
	if c.Dialect.Encoding != "" && !dialect.Supported(c.Dialect.Encoding) {
		add(SeverityError, "dialect.encoding", "unsupported encoding %q", c.Dialect.Encoding)
	}
	if c.Dialect.Delimiter != "" && (source.Options{"d": c.Dialect.Delimiter}).Rune("d", 0) == 0 {
		add(SeverityError, "dialect.delimiter", "unsupported delimiter %q", c.Dialect.Delimiter)
	}

	if c.Batch.Workers < 1 {
		add(SeverityError, "batch.workers", "must be >= 1, got %d", c.Batch.Workers)
	}
	if c.Batch.SampleRows < 0 {
		add(SeverityError, "batch.sample_rows", "must be >= 0, got %d", c.Batch.SampleRows)
	}
	if c.Split.MaxLines < 1 {
		add(SeverityError, "split.max_lines", "must be >= 1, got %d", c.Split.MaxLines)
	}

	switch c.Metrics.Backend {
	case "", "none", "datadog":
	default:
		add(SeverityError, "metrics.backend", "unknown backend %q (want none or datadog)", c.Metrics.Backend)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		add(SeverityError, "http.max_body_bytes", "must be > 0")
	}
	return out
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// SourceOptions returns the csv adapter options implied by the dialect
// settings.
func (c *Config) SourceOptions() source.Options {
	opts := source.Options{}
	if c.Dialect.Delimiter != "" {
		opts["delimiter"] = c.Dialect.Delimiter
	}
	if c.Dialect.Encoding != "" {
		opts["encoding"] = c.Dialect.Encoding
	}
	if len(c.Dialect.Encodings) > 0 {
		opts["encodings"] = strings.Join(c.Dialect.Encodings, ",")
	}
	if c.Dialect.MaxLines > 0 {
		opts["detect_lines"] = c.Dialect.MaxLines
	}
	return opts
}

// DialectOptions returns the detector options.
func (c *Config) DialectOptions() dialect.Options {
	return dialect.Options{Encodings: c.Dialect.Encodings, MaxLines: c.Dialect.MaxLines}
}

// SplitOptions returns splitter file options writing to outDir.
func (c *Config) SplitOptions(outDir string) splitter.FileOptions {
	return splitter.FileOptions{MaxLines: c.Split.MaxLines, OutDir: outDir, Headers: !c.Split.OmitHeaders}
}

// Write dumps cfg as YAML; used by "sqlconv config".
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

func overlapping(a, b []string) string {
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[strings.ToLower(strings.TrimSpace(s))]; ok {
			return s
		}
	}
	return ""
}

// Exists reports whether path names a readable file; the CLI uses it to
// pick up ./sqlconv.yaml implicitly.
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
