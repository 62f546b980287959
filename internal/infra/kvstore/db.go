package kvstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/totegamma/attestlend/internal/domain"
)

// DB wraps the LevelDB connection shared by every repository in this package.
type DB struct {
	conn *leveldb.DB
}

// Open opens (or creates) a LevelDB instance at the given path.
func Open(path string) (*DB, error) {
	conn, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb at %s", path)
	}
	return &DB{conn: conn}, nil
}

// OpenMemory opens a LevelDB instance that lives only in memory.
func OpenMemory() (*DB, error) {
	conn, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory leveldb")
	}
	return &DB{conn: conn}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

type txKey struct{}

// handle is the part of the API shared by *leveldb.DB and *leveldb.Transaction.
type handle interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
	Put(key, value []byte, wo *opt.WriteOptions) error
	Delete(key []byte, wo *opt.WriteOptions) error
}

func (d *DB) handle(ctx context.Context) handle {
	if tx, ok := ctx.Value(txKey{}).(*leveldb.Transaction); ok {
		return tx
	}
	return d.conn
}

// Atomic runs fn inside a LevelDB transaction. Nested calls join the
// outer transaction.
func (d *DB) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*leveldb.Transaction); ok {
		return fn(ctx)
	}

	tx, err := d.conn.OpenTransaction()
	if err != nil {
		return errors.Wrap(err, "open transaction")
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		tx.Discard()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

func (d *DB) get(ctx context.Context, key string) ([]byte, error) {
	data, err := d.handle(ctx).Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, domain.NewNotFound(key)
		}
		return nil, errors.Wrapf(err, "get %s", key)
	}
	return data, nil
}

func (d *DB) put(ctx context.Context, key string, value []byte) error {
	return errors.Wrapf(d.handle(ctx).Put([]byte(key), value, nil), "put %s", key)
}

func (d *DB) getJSON(ctx context.Context, key string, v any) error {
	data, err := d.get(ctx, key)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data, v), "decode %s", key)
}

func (d *DB) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return d.put(ctx, key, data)
}

// scan calls fn for every value under prefix in key order.
func (d *DB) scan(ctx context.Context, prefix string, fn func(key, value []byte) error) error {
	iter := d.handle(ctx).NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	for iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return errors.Wrapf(iter.Error(), "scan %s", prefix)
}

// last returns the value of the greatest key under prefix.
func (d *DB) last(ctx context.Context, prefix string) ([]byte, error) {
	iter := d.handle(ctx).NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, errors.Wrapf(err, "seek %s", prefix)
		}
		return nil, domain.NewNotFound(prefix)
	}
	value := make([]byte, len(iter.Value()))
	copy(value, iter.Value())
	return value, nil
}
