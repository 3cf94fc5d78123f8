package secretstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AlexZinkM/fident/internal/crypto"
)

const fileExt = ".cwt"

// FileStore keeps one encrypted file per slot in a directory.
type FileStore struct {
	dir string
	sealer
	mu sync.Mutex
}

// NewFileStore creates dir (0700) if needed.
func NewFileStore(dir string, password PasswordFunc, opts ...Option) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("secret store path is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, unavailable("create directory", err)
	}
	return &FileStore{dir: dir, sealer: sealer{password: password, opts: buildOptions(opts)}}, nil
}

func (s *FileStore) path(slot string) string {
	return filepath.Join(s.dir, slot+fileExt)
}

// Get reads and decrypts slot.
func (s *FileStore) Get(ctx context.Context, slot string) (string, bool, error) {
	if err := validateSlot(slot); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	raw, err := os.ReadFile(s.path(slot))
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
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

// Set encrypts value and replaces slot atomically.
func (s *FileStore) Set(ctx context.Context, slot, value string) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(slot, data)
}

// writeAtomic writes to a temp file in the same directory, syncs, then renames
// over the target so readers see either the old or the new envelope.
func (s *FileStore) writeAtomic(slot string, data []byte) error {
	tmpName, err := s.stage(slot, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := os.Rename(tmpName, s.path(slot)); err != nil {
		return unavailable("rename", err)
	}
	return nil
}

// stage writes data to a synced temp file next to slot's file and returns its name.
func (s *FileStore) stage(slot string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(s.dir, slot+".*.tmp")
	if err != nil {
		return "", unavailable("create temp file", err)
	}
	tmpName := tmp.Name()

	fail := func(op string, err error) (string, error) {
		tmp.Close()
		os.Remove(tmpName)
		return "", unavailable(op, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fail("chmod", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", unavailable("close", err)
	}
	return tmpName, nil
}

// Delete removes slot. Removing a missing slot is not an error.
func (s *FileStore) Delete(ctx context.Context, slot string) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(slot)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return unavailable("delete", err)
	}
	return nil
}

// Rekey re-encrypts every slot file with newPassword. Every slot is opened
// and resealed into a temp file first; only when all of them succeeded are
// the temp files renamed over the originals. Any failure before that point
// leaves every slot under oldPassword.
func (s *FileStore) Rekey(ctx context.Context, oldPassword, newPassword []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return unavailable("list", err)
	}

	type staged struct{ slot, tmp string }
	var ready []staged
	defer func() {
		for _, st := range ready {
			os.Remove(st.tmp) // no-op once renamed
		}
	}()

	next := sealer{password: copyPassword(newPassword), opts: s.opts}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		slot := strings.TrimSuffix(e.Name(), fileExt)

		raw, err := os.ReadFile(s.path(slot))
		if err != nil {
			return unavailable("read", err)
		}
		value, err := s.reopen(slot, raw, oldPassword)
		clear(raw)
		if err != nil {
			return fmt.Errorf("slot %s: %w", slot, err)
		}

		data, err := next.seal(slot, value)
		if err != nil {
			return err
		}
		tmp, err := s.stage(slot, data)
		if err != nil {
			return err
		}
		ready = append(ready, staged{slot: slot, tmp: tmp})
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, st := range ready {
		if err := os.Rename(st.tmp, s.path(st.slot)); err != nil {
			return unavailable("rename", err)
		}
	}
	return nil
}

// reopen decrypts a slot file found on disk. The envelope's own slot name
// must agree with the file name before the contents are trusted.
func (s *FileStore) reopen(slot string, raw, password []byte) (string, error) {
	named, err := crypto.ReadSlotName(raw)
	if err != nil {
		return "", unavailable("decrypt", err)
	}
	if named != slot {
		return "", unavailable("decrypt", fmt.Errorf("%w: file %s%s holds slot %q", crypto.ErrSlotMismatch, slot, fileExt, named))
	}
	return openWith(raw, slot, password)
}

// Close is a no-op; files are not held open.
func (s *FileStore) Close() error { return nil }

func copyPassword(p []byte) PasswordFunc {
	return func() ([]byte, error) {
		if len(p) == 0 {
			return nil, errors.New("password is empty")
		}
		out := make([]byte, len(p))
		copy(out, p)
		return out, nil
	}
}
