package audit

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

// dialect holds the statements that differ between SQL engines.
type dialect struct {
	backend   string
	createSQL string
	insertSQL string
	getSQL    string
	recentSQL string
}

var sqliteDialect = dialect{
	backend: "sqlite",
	createSQL: `CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name TEXT NOT NULL,
        prediction TEXT NOT NULL,
        prediction_proba_benign REAL,
        prediction_proba_malignant REAL,
        input_data TEXT NOT NULL,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    )`,
	insertSQL: `INSERT INTO predictions
        (model_name, prediction, prediction_proba_benign, prediction_proba_malignant, input_data)
        VALUES (?, ?, ?, ?, ?) RETURNING id`,
	getSQL:    `SELECT ` + columns + ` FROM predictions WHERE id = ?`,
	recentSQL: `SELECT ` + columns + ` FROM predictions ORDER BY id DESC LIMIT ?`,
}

var postgresDialect = dialect{
	backend: "postgres",
	createSQL: `CREATE TABLE IF NOT EXISTS predictions (
        id SERIAL PRIMARY KEY,
        model_name VARCHAR(100) NOT NULL,
        prediction VARCHAR(20) NOT NULL,
        prediction_proba_benign DOUBLE PRECISION,
        prediction_proba_malignant DOUBLE PRECISION,
        input_data JSONB NOT NULL,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    )`,
	insertSQL: `INSERT INTO predictions
        (model_name, prediction, prediction_proba_benign, prediction_proba_malignant, input_data)
        VALUES ($1, $2, $3, $4, $5) RETURNING id`,
	getSQL:    `SELECT ` + columns + ` FROM predictions WHERE id = $1`,
	recentSQL: `SELECT ` + columns + ` FROM predictions ORDER BY id DESC LIMIT $1`,
}

const columns = `id, model_name, prediction, prediction_proba_benign, prediction_proba_malignant, input_data, created_at`

// SQLStore keeps records in a relational predictions table.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	guard   *writeGuard
}

// OpenSQLite opens (and creates) a SQLite database file in WAL mode.
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create audit directory")
		}
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite audit store")
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, sqliteDialect, opts)
}

// OpenPostgres connects to PostgreSQL through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string, opts Options) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open postgres audit store %s", redact(dsn))
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return newSQLStore(ctx, db, postgresDialect, opts)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, opts Options) (*SQLStore, error) {
	pctx, cancel := context.WithTimeout(ctx, connectTimeout(opts))
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connect %s audit store", d.backend)
	}
	return &SQLStore{db: db, dialect: d, guard: newWriteGuard(d.backend, opts)}, nil
}

func connectTimeout(opts Options) time.Duration {
	if opts.WriteTimeout > 0 {
		return opts.WriteTimeout
	}
	return DefaultWriteTimeout
}

// Backend returns "sqlite" or "postgres".
func (s *SQLStore) Backend() string { return s.dialect.backend }

// EnsureSchema creates the predictions table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createSQL); err != nil {
		return errors.Wrap(err, "create predictions table")
	}
	return nil
}

// Append inserts rec in its own transaction.
func (s *SQLStore) Append(ctx context.Context, rec Record) (RecordID, error) {
	return s.guard.append(ctx, func(ctx context.Context) (RecordID, error) {
		return s.insert(ctx, rec)
	})
}

func (s *SQLStore) insert(ctx context.Context, rec Record) (RecordID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, s.dialect.insertSQL,
		rec.ModelName,
		rec.Prediction,
		nullFloat(rec.ProbaBenign),
		nullFloat(rec.ProbaMalignant),
		string(rec.Input),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return RecordID(id), nil
}

// Get returns one record.
func (s *SQLStore) Get(ctx context.Context, id RecordID) (Record, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.getSQL, int64(id))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, errors.Wrapf(ErrRecordNotFound, "id %d", id)
	}
	return rec, err
}

// Recent returns up to limit records, newest first.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.recentSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query recent predictions")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec       Record
		id        int64
		benign    sql.NullFloat64
		malignant sql.NullFloat64
		input     string
		created   sql.NullTime
	)
	if err := row.Scan(&id, &rec.ModelName, &rec.Prediction, &benign, &malignant, &input, &created); err != nil {
		return Record{}, err
	}
	rec.ID = RecordID(id)
	if benign.Valid {
		v := benign.Float64
		rec.ProbaBenign = &v
	}
	if malignant.Valid {
		v := malignant.Float64
		rec.ProbaMalignant = &v
	}
	rec.Input = []byte(input)
	if created.Valid {
		rec.CreatedAt = created.Time
	}
	return rec, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

var _ Store = (*SQLStore)(nil)
