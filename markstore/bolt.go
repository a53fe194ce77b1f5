package markstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("logsync")

// Bolt stores the mark in a bbolt file, one key per device.
type Bolt struct {
	db  *bolt.DB
	key []byte
}

// OpenBolt opens (or creates) the database at path. key names the slot,
// typically the device address.
func OpenBolt(path, key string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open mark store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Bolt{db: db, key: []byte(key)}, nil
}

func (b *Bolt) Load(ctx context.Context) (int64, bool, error) {
	var (
		mark  int64
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(b.key)
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("corrupt mark for %q: %d bytes", b.key, len(v))
		}
		mark = int64(binary.BigEndian.Uint64(v))
		found = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return mark, found, nil
}

func (b *Bolt) Save(ctx context.Context, mark int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(mark))
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(b.key, buf[:])
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
