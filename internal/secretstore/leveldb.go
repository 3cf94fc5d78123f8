package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore keeps encrypted slot envelopes in a LevelDB database.
type LevelDBStore struct {
	db *leveldb.DB
	sealer
}

var syncWrite = &opt.WriteOptions{Sync: true}

// NewLevelDBStore opens (or creates) the database at path.
func NewLevelDBStore(path string, password PasswordFunc, opts ...Option) (*LevelDBStore, error) {
	if path == "" {
		return nil, errors.New("secret store path is empty")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, unavailable("open db", err)
	}
	return &LevelDBStore{db: db, sealer: sealer{password: password, opts: buildOptions(opts)}}, nil
}

const slotPrefix = "slot:"

func slotKey(slot string) []byte {
	return []byte(slotPrefix + slot)
}

// Get reads and decrypts slot.
func (s *LevelDBStore) Get(ctx context.Context, slot string) (string, bool, error) {
	if err := validateSlot(slot); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	raw, err := s.db.Get(slotKey(slot), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return "", false, nil
		}
		return "", false, unavailable("read", err)
	}
	defer clear(raw)

	value, err := s.open(slot, raw)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set encrypts value and writes it with a synced put.
func (s *LevelDBStore) Set(ctx context.Context, slot, value string) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := s.seal(slot, value)
	if err != nil {
		return err
	}
	if err := s.db.Put(slotKey(slot), data, syncWrite); err != nil {
		return unavailable("write", err)
	}
	return nil
}

// Delete removes slot. LevelDB treats a missing key as success.
func (s *LevelDBStore) Delete(ctx context.Context, slot string) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Delete(slotKey(slot), syncWrite); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Rekey re-encrypts all slots in one batch, so either every slot moves to
// newPassword or none does.
func (s *LevelDBStore) Rekey(ctx context.Context, oldPassword, newPassword []byte) error {
	next := sealer{password: copyPassword(newPassword), opts: s.opts}
	batch := new(leveldb.Batch)

	iter := s.db.NewIterator(util.BytesPrefix([]byte(slotPrefix)), nil)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			iter.Release()
			return err
		}
		slot := string(iter.Key()[len(slotPrefix):])

		value, err := openWith(iter.Value(), slot, oldPassword)
		if err != nil {
			iter.Release()
			return fmt.Errorf("slot %s: %w", slot, err)
		}
		data, err := next.seal(slot, value)
		if err != nil {
			iter.Release()
			return err
		}
		batch.Put(slotKey(slot), data)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return unavailable("iterate", err)
	}

	if err := s.db.Write(batch, syncWrite); err != nil {
		return unavailable("write batch", err)
	}
	return nil
}

// Close releases the database.
func (s *LevelDBStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
