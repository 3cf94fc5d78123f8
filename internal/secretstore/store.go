// Package secretstore keeps device-local secrets encrypted at rest.
package secretstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/AlexZinkM/fident/internal/crypto"
	"github.com/AlexZinkM/fident/internal/model"
)

// Well-known slots.
const (
	SlotWalletSeed = "wallet_seed"
	SlotAuthToken  = "auth_access_token"
)

// Backend names accepted by Open.
const (
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
)

// Store is a slot-name to opaque-string map.
// Get reports a missing slot as ok == false with a nil error.
// Set overwrites atomically. Delete of a missing slot succeeds.
// Every failure to reach the underlying storage wraps model.ErrStoreUnavailable.
type Store interface {
	Get(ctx context.Context, slot string) (value string, ok bool, err error)
	Set(ctx context.Context, slot, value string) error
	Delete(ctx context.Context, slot string) error
}

// Rekeyer re-encrypts every slot under a new passphrase.
type Rekeyer interface {
	Rekey(ctx context.Context, oldPassword, newPassword []byte) error
}

// PasswordFunc returns a copy of the unlock passphrase.
// The store zeroes the returned slice after use.
type PasswordFunc func() ([]byte, error)

// Option configures a store.
type Option func(*options)

type options struct {
	params crypto.Params
	now    func() time.Time
}

// WithParams overrides the scrypt cost of newly written slots.
func WithParams(p crypto.Params) Option {
	return func(o *options) { o.params = p }
}

func buildOptions(opts []Option) options {
	o := options{params: crypto.DefaultParams, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

var slotPattern = regexp.MustCompile(`^[a-z0-9_\-]{1,64}$`)

func validateSlot(slot string) error {
	if !slotPattern.MatchString(slot) {
		return fmt.Errorf("invalid slot name %q", slot)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrStoreUnavailable, op, err)
}

// sealer holds the envelope logic shared by the backends.
type sealer struct {
	password PasswordFunc
	opts     options
}

func (s sealer) seal(slot, value string) ([]byte, error) {
	password, err := s.password()
	if err != nil {
		return nil, unavailable("locked", err)
	}
	defer clear(password)

	data := &model.SecretData{Value: value, UpdatedAt: s.opts.now().UTC().Format(time.RFC3339)}
	out, err := crypto.EncryptSecret(slot, data, password, s.opts.params)
	if err != nil {
		return nil, unavailable("encrypt", err)
	}
	return out, nil
}

func (s sealer) open(slot string, raw []byte) (string, error) {
	password, err := s.password()
	if err != nil {
		return "", unavailable("locked", err)
	}
	defer clear(password)

	return openWith(raw, slot, password)
}

func openWith(raw []byte, slot string, password []byte) (string, error) {
	_, data, err := crypto.DecryptSecret(raw, slot, password)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidPassword) {
			return "", unavailable("locked", err)
		}
		return "", unavailable("decrypt", err)
	}
	return data.Value, nil
}

// Open returns the configured backend. The closer releases backend resources.
func Open(backend, path string, password PasswordFunc, opts ...Option) (Store, io.Closer, error) {
	switch backend {
	case "", BackendFile:
		s, err := NewFileStore(path, password, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case BackendLevelDB:
		s, err := NewLevelDBStore(path, password, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown secret store backend %q", backend)
	}
}
