// Package bolt is the embedded single-file storage backend built on bbolt.
// Records are JSON encoded, one bucket per store.
package bolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bbolt "go.etcd.io/bbolt"

	"stakegate/internal/storage"
)

const (
	boltAllocSize = 8 * 1024 * 1024
	fileName      = "stakegate.db"
)

var (
	bucketAccounts     = []byte("accounts")
	bucketSupply       = []byte("supply")
	bucketTransactions = []byte("transactions")
	bucketStakes       = []byte("stakes")
	bucketProposals    = []byte("proposals")
	bucketVotes        = []byte("votes")
	bucketJobs         = []byte("jobs")

	supplyKey = []byte("supply")
)

// DB wraps a bbolt database with every bucket created.
type DB struct {
	*bbolt.DB
}

// Open opens or creates the database file inside dir.
func Open(dir string) (*DB, error) {
	if dir == "" {
		return nil, errors.New("bolt dir path can not be empty")
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, fileName), 0660, &bbolt.Options{Timeout: 2 * time.Second, InitialMmapSize: 10e6})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	db.AllocSize = boltAllocSize

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{
			bucketAccounts, bucketSupply, bucketTransactions, bucketStakes,
			bucketProposals, bucketVotes, bucketJobs,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &DB{DB: db}, nil
}

// NewStores returns every store backed by db. Closing the group closes db.
func NewStores(db *DB) storage.Stores {
	return storage.Stores{
		Accounts:     NewAccountStore(db),
		Supply:       NewSupplyStore(db),
		Transactions: NewTransactionStore(db),
		Stakes:       NewStakeStore(db),
		Proposals:    NewProposalStore(db),
		Votes:        NewVoteStore(db),
		Jobs:         NewJobStore(db),
		Close:        db.Close,
	}
}

// seqKey encodes seq big-endian so cursor order is seq order.
func seqKey(seq int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(seq))
	return k
}

func put(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put(key, data)
}

// get decodes the record at key into v. Returns ErrNotFound if absent.
func get(db *bbolt.DB, bucket, key []byte, v any) error {
	return db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, v)
	})
}

// each decodes every record of bucket in key order and passes it to fn.
func each[T any](db *bbolt.DB, bucket []byte, fn func(T) error) error {
	return db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("decode %s/%s: %w", bucket, k, err)
			}
			return fn(v)
		})
	})
}
