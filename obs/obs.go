// Package obs provides SQLite-native observability for the redline service:
// an async HTTP request log and a document-edit event log.
//
// Only request metadata is recorded — sizes, counts, outcome codes,
// durations. Document content never reaches the observability database.
//
// All persistence is async and non-blocking: buffer overflow silently drops
// rows rather than applying backpressure to request handling.
package obs

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/redline/idgen"
)

// Schema contains the DDL for the observability tables. Pass it to
// dbopen.WithSchema, or apply it with Init.
const Schema = `
CREATE TABLE IF NOT EXISTS http_request_logs (
    request_id   TEXT PRIMARY KEY,
    trace_id     TEXT NOT NULL,
    method       TEXT NOT NULL,
    path         TEXT NOT NULL,
    status       INTEGER NOT NULL,
    duration_ms  REAL NOT NULL,
    bytes_in     INTEGER NOT NULL DEFAULT 0,
    bytes_out    INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_http_logs_created
    ON http_request_logs(created_at DESC);

CREATE TABLE IF NOT EXISTS edit_event_logs (
    event_id     TEXT PRIMARY KEY,
    trace_id     TEXT NOT NULL,
    outcome      TEXT NOT NULL,          -- 'ok', 'dry_run' or an error code
    doc_bytes    INTEGER NOT NULL,
    edits_total  INTEGER NOT NULL,
    applied      INTEGER NOT NULL DEFAULT 0,
    skipped      INTEGER NOT NULL DEFAULT 0,
    failed       INTEGER NOT NULL DEFAULT 0,
    warnings     INTEGER NOT NULL DEFAULT 0,
    repacked     INTEGER NOT NULL DEFAULT 0,
    duration_ms  REAL NOT NULL,
    created_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_edit_events_created
    ON edit_event_logs(created_at DESC);
`

// Init applies the observability schema.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// RequestLog is one HTTP request row.
type RequestLog struct {
	TraceID  string
	Method   string
	Path     string
	Status   int
	Duration time.Duration
	BytesIn  int64
	BytesOut int64
}

// EditEvent is one document-edit pipeline run.
type EditEvent struct {
	TraceID  string
	Outcome  string
	DocBytes int
	Edits    int
	Applied  int
	Skipped  int
	Failed   int
	Warnings int
	Repacked bool
	Duration time.Duration
}

// Recorder buffers rows and writes them from a single background goroutine.
type Recorder struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan any
	done  chan struct{}
}

// NewRecorder starts the writer goroutine. Call Close to flush and stop.
func NewRecorder(db *sql.DB) *Recorder {
	r := &Recorder{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
		ch:    make(chan any, 256),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues a row for async persistence. Non-blocking: when the buffer
// is full the row is dropped.
func (r *Recorder) Record(row any) {
	select {
	case r.ch <- row:
	default:
	}
}

// Close stops the writer after draining buffered rows.
func (r *Recorder) Close() {
	close(r.ch)
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)
	for row := range r.ch {
		switch v := row.(type) {
		case RequestLog:
			r.writeRequest(v)
		case EditEvent:
			r.writeEvent(v)
		}
	}
}

func (r *Recorder) writeRequest(v RequestLog) {
	_, err := r.db.ExecContext(context.Background(), `
		INSERT INTO http_request_logs
			(request_id, trace_id, method, path, status, duration_ms, bytes_in, bytes_out)
		VALUES (?,?,?,?,?,?,?,?)`,
		r.newID(), v.TraceID, v.Method, v.Path, v.Status,
		float64(v.Duration.Microseconds())/1000, v.BytesIn, v.BytesOut)
	if err != nil {
		slog.Warn("obs: request log failed", "error", err)
	}
}

func (r *Recorder) writeEvent(v EditEvent) {
	_, err := r.db.ExecContext(context.Background(), `
		INSERT INTO edit_event_logs
			(event_id, trace_id, outcome, doc_bytes, edits_total,
			 applied, skipped, failed, warnings, repacked, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		r.newID(), v.TraceID, v.Outcome, v.DocBytes, v.Edits,
		v.Applied, v.Skipped, v.Failed, v.Warnings, boolInt(v.Repacked),
		float64(v.Duration.Microseconds())/1000)
	if err != nil {
		slog.Warn("obs: edit event log failed", "error", err)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Cleanup deletes rows older than the retention window.
func Cleanup(ctx context.Context, db *sql.DB, retention time.Duration) error {
	cutoff := time.Now().Add(-retention).Unix()
	for _, table := range []string{"http_request_logs", "edit_event_logs"} {
		if _, err := db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE created_at < ?", cutoff); err != nil {
			return err
		}
	}
	return nil
}

// RunCleanup sweeps expired rows every interval until ctx is cancelled.
// Intended to run as a background goroutine from main.
func RunCleanup(ctx context.Context, db *sql.DB, retention, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := Cleanup(ctx, db, retention); err != nil {
				logger.Warn("obs: cleanup failed", "error", err)
			}
		}
	}
}
