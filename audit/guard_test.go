package audit

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
	"github.com/YuminosukeSato/tumorscope/pkg/telemetry"
)

func newGuard(t *testing.T) (*writeGuard, *telemetry.Metrics, *log.TestLogger) {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	m := telemetry.NewWithRegistry(prometheus.NewRegistry())
	return newWriteGuard("sqlite", Options{WriteTimeout: time.Second, Logger: logger, Metrics: m}), m, logger
}

func TestGuardRetriesTransientOnce(t *testing.T) {
	g, m, logger := newGuard(t)
	calls := 0
	id, err := g.append(context.Background(), func(context.Context) (RecordID, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("database is locked")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, RecordID(7), id)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditRetries.WithLabelValues("sqlite")))
	assert.True(t, logger.ContainsMessage("transient audit write failure, retrying"))
}

func TestGuardGivesUpAfterSecondTransient(t *testing.T) {
	g, _, _ := newGuard(t)
	calls := 0
	_, err := g.append(context.Background(), func(context.Context) (RecordID, error) {
		calls++
		return 0, syscall.ECONNRESET
	})
	var sw *errors.StorageWriteError
	require.True(t, errors.As(err, &sw))
	assert.Equal(t, 2, sw.Attempts)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "storage_write", errors.Kind(err))
}

func TestGuardDoesNotRetryPermanentErrors(t *testing.T) {
	g, _, _ := newGuard(t)
	calls := 0
	_, err := g.append(context.Background(), func(context.Context) (RecordID, error) {
		calls++
		return 0, errors.New("constraint failed: NOT NULL")
	})
	var sw *errors.StorageWriteError
	require.True(t, errors.As(err, &sw))
	assert.Equal(t, 1, sw.Attempts)
	assert.Equal(t, 1, calls)
}

func TestGuardStopsOnCancelledContext(t *testing.T) {
	g, _, _ := newGuard(t)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := g.append(ctx, func(context.Context) (RecordID, error) {
		calls++
		cancel()
		return 0, errors.New("broken pipe")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, IsTransient(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.False(t, IsTransient(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.True(t, IsTransient(errors.Wrap(bolt.ErrTimeout, "open")))
	assert.True(t, IsTransient(syscall.EPIPE))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsTransient(errors.New("syntax error")))
	assert.False(t, IsTransient(nil))
}
