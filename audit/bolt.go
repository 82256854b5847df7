package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

var predictionsBucket = []byte(TableName)

// BoltStore keeps records in an embedded bbolt file. Keys are the bucket
// sequence in big-endian form so cursor order is insertion order.
type BoltStore struct {
	db    *bolt.DB
	guard *writeGuard
	now   func() time.Time
}

// OpenBolt opens (and creates) a bbolt file.
func OpenBolt(path string, opts Options) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create audit directory")
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open bolt audit store")
	}
	return &BoltStore{db: db, guard: newWriteGuard("bolt", opts), now: time.Now}, nil
}

// Backend returns "bolt".
func (s *BoltStore) Backend() string { return "bolt" }

// EnsureSchema creates the predictions bucket.
func (s *BoltStore) EnsureSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(predictionsBucket); err != nil {
			return errors.Wrap(err, "create predictions bucket")
		}
		return nil
	})
}

// Append stores rec under the next sequence number.
func (s *BoltStore) Append(ctx context.Context, rec Record) (RecordID, error) {
	return s.guard.append(ctx, func(ctx context.Context) (RecordID, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var id RecordID
		err := s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(predictionsBucket)
			if b == nil {
				return errors.New("predictions bucket missing; run EnsureSchema")
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			rec.ID = RecordID(seq)
			rec.CreatedAt = s.now().UTC()

			data, err := json.Marshal(rec)
			if err != nil {
				return errors.Wrap(err, "marshal record")
			}
			if err := b.Put(itob(seq), data); err != nil {
				return err
			}
			id = rec.ID
			return nil
		})
		return id, err
	})
}

// Get returns one record.
func (s *BoltStore) Get(ctx context.Context, id RecordID) (Record, error) {
	var rec Record
	err := s.view(ctx, func(b *bolt.Bucket) error {
		if id <= 0 {
			return errors.Wrapf(ErrRecordNotFound, "id %d", id)
		}
		v := b.Get(itob(uint64(id)))
		if v == nil {
			return errors.Wrapf(ErrRecordNotFound, "id %d", id)
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

// Recent returns up to limit records, newest first.
func (s *BoltStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []Record
	err := s.view(ctx, func(b *bolt.Bucket) error {
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.Wrapf(err, "decode record %d", binary.BigEndian.Uint64(k))
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) view(ctx context.Context, fn func(b *bolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(predictionsBucket)
		if b == nil {
			return errors.New("predictions bucket missing; run EnsureSchema")
		}
		return fn(b)
	})
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

var _ Store = (*BoltStore)(nil)
