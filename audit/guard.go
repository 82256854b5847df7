package audit

import (
	"context"
	"io"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	bolt "go.etcd.io/bbolt"

	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
	"github.com/YuminosukeSato/tumorscope/pkg/telemetry"
)

// DefaultWriteTimeout bounds one append attempt.
const DefaultWriteTimeout = 5 * time.Second

// maxAttempts is the first try plus one retry.
const maxAttempts = 2

// writeGuard serializes appends of one store and applies the timeout and
// retry policy.
type writeGuard struct {
	mu      sync.Mutex
	backend string
	timeout time.Duration
	logger  log.Logger
	metrics *telemetry.Metrics
}

func newWriteGuard(backend string, opts Options) *writeGuard {
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	return &writeGuard{
		backend: backend,
		timeout: timeout,
		logger:  logger.With(log.ComponentKey, "audit", log.BackendKey, backend),
		metrics: opts.Metrics,
	}
}

func (g *writeGuard) append(ctx context.Context, write func(ctx context.Context) (RecordID, error)) (RecordID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := time.Now()
	var err error
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, g.timeout)
		var id RecordID
		id, err = write(actx)
		timedOut := actx.Err() == context.DeadlineExceeded
		cancel()

		if err == nil {
			g.metrics.ObserveAuditWrite(g.backend, time.Since(start))
			return id, nil
		}
		if ctx.Err() != nil || attempt == maxAttempts || !(timedOut || IsTransient(err)) {
			break
		}
		g.metrics.AuditRetry(g.backend)
		g.logger.Warn("transient audit write failure, retrying", err, log.AttemptKey, attempt)
	}
	return 0, errors.NewStorageWriteError(g.backend, attempt, err)
}

// IsTransient reports whether err is worth one retry: lock contention,
// dropped connections and bolt lock timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	switch {
	case errors.Is(err, bolt.ErrTimeout),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"database is locked", "connection reset", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
