package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sqlconv/internal/batch"
	"sqlconv/internal/dialect"
	"sqlconv/internal/metrics"
	"sqlconv/internal/source"
	"sqlconv/internal/source/csv"
	"sqlconv/internal/splitter"
	"sqlconv/internal/sqlgen"
)

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ProfileResponse answers /api/v1/detect.
type ProfileResponse struct {
	Delimiter string `json:"delimiter"`
	Encoding  string `json:"encoding"`
	Quote     string `json:"quote"`
}

// ChunkResponse is one chunk of /api/v1/split.
type ChunkResponse struct {
	Name      string `json:"name"`
	FirstLine int    `json:"first_line"`
	LastLine  int    `json:"last_line"`
	Text      string `json:"text"`
}

// SplitResponse answers /api/v1/split.
type SplitResponse struct {
	Chunks []ChunkResponse `json:"chunks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	p, err := dialect.Detect(body, s.opts.Dialect)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{
		Delimiter: string(p.Delimiter),
		Encoding:  p.Encoding,
		Quote:     string(p.Quote),
	})
}

// handleConvert renders one table from a delimited body.
//
// Query parameters: table (default "dados"), schema, batch_size, delimiter,
// encoding, has_header, column_comments.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	sqlCfg := s.opts.SQL
	if v := q.Get("schema"); v != "" {
		sqlCfg.Schema = v
	}
	if v := q.Get("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "batch_size must be a positive integer"})
			return
		}
		sqlCfg.BatchSize = n
	}
	if v := q.Get("column_comments"); v != "" {
		sqlCfg.ColumnComments, _ = strconv.ParseBool(v)
	}

	opts := source.Options{}
	for k, v := range s.opts.SourceOptions {
		opts[k] = v
	}
	for _, k := range []string{"delimiter", "encoding", "has_header"} {
		if v := q.Get(k); v != "" {
			opts[k] = v
		}
	}

	name := strings.TrimSpace(q.Get("table"))
	if name == "" {
		name = "dados"
	}
	table := source.Table{
		Name:   name,
		Origin: "request body",
		Open: func(ctx context.Context) (source.RowReader, error) {
			return csv.NewReader(ctx, bytes.NewReader(body), opts)
		},
	}

	runner := batch.NewRunner(s.engine, sqlgen.New(sqlCfg, s.engine), s.logger)
	runner.Workers = 1
	runner.OpenSource = func(context.Context, source.Config) ([]source.Table, error) {
		return []source.Table{table}, nil
	}

	var out bytes.Buffer
	sum, err := runner.Run(r.Context(), batch.Job{Sources: []source.Config{{Kind: "csv"}}, Output: &out})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if sum.HasFailures() {
		s.respondError(w, r, fmt.Errorf("%s: %w", sum.Tables[0].Stage, conversionError(sum.Tables[0].Error)))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Run-Id", sum.RunID)
	w.Header().Set("X-Table-Name", sum.Tables[0].Name)
	w.Header().Set("X-Rows", strconv.FormatInt(sum.Rows, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Bytes())
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	maxLines := s.opts.SplitMaxLines
	if v := r.URL.Query().Get("max_lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "max_lines must be a positive integer"})
			return
		}
		maxLines = n
	}
	stem := r.URL.Query().Get("name")
	if stem == "" {
		stem = "script"
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	start := time.Now()
	var chunks []splitter.Chunk
	err := splitter.Scan(bytes.NewReader(body), maxLines, func(c splitter.Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	metrics.RecordStep("split", start, err)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	metrics.RecordChunks(len(chunks))

	resp := SplitResponse{Chunks: make([]ChunkResponse, len(chunks))}
	for i, c := range chunks {
		resp.Chunks[i] = ChunkResponse{
			Name:      splitter.ChunkName(stem, c.Index, len(chunks)),
			FirstLine: c.FirstLine,
			LastLine:  c.LastLine,
			Text:      c.Text,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// readBody reads the whole request body within the size cap. It answers
// the request itself when it returns false.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "too_large", Message: fmt.Sprintf("body exceeds %d bytes", mbe.Limit)})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "cannot read body"})
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "empty body"})
		return nil, false
	}
	return body, true
}

// conversionError marks a per-table failure from the batch summary.
type conversionError string

func (e conversionError) Error() string { return string(e) }

// respondError maps domain errors onto status codes and logs the cause.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		code   = "internal"
		ce     conversionError
	)
	switch {
	case errors.Is(err, dialect.ErrDialectDetection):
		status, code = http.StatusUnprocessableEntity, "dialect_detection"
	case errors.Is(err, splitter.ErrUnterminatedStatement):
		status, code = http.StatusUnprocessableEntity, "unterminated_statement"
	case errors.As(err, &ce):
		status, code = http.StatusUnprocessableEntity, "conversion_failed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status, code = http.StatusServiceUnavailable, "timeout"
	}

	s.logger.Warn("request error",
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("code", code),
		zap.Error(err),
	)
	writeJSON(w, status, ErrorResponse{Error: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
