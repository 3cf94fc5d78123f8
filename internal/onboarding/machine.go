package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlexZinkM/fident/internal/keys"
	"github.com/AlexZinkM/fident/internal/metrics"
	"github.com/AlexZinkM/fident/internal/model"
	"github.com/AlexZinkM/fident/internal/secretstore"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RecordClient reads and writes the principal's remote address record.
type RecordClient interface {
	FetchIdentity(ctx context.Context) (*model.IdentityRecord, error)
	SaveIdentity(ctx context.Context, address, publicKey string) (*model.IdentityRecord, error)
}

// IdentityBinder signs identity-binding transactions.
type IdentityBinder interface {
	BindIdentity(ctx context.Context, seed string, payload model.DIDDocument) (*model.SignedBlob, error)
}

// Submitter hands a signed blob to the ledger or the backend.
type Submitter interface {
	Submit(ctx context.Context, blob *model.SignedBlob) (*model.Receipt, error)
}

// Funder requests test funds for a new address.
type Funder interface {
	Fund(ctx context.Context, address string, lamports uint64) (string, error)
}

// Config tunes a Machine.
type Config struct {
	Network      string        // DID network segment
	SaveTimeout  time.Duration // bound on the detached remote save
	FundLamports uint64        // airdrop size for new wallets; 0 disables funding
}

// Deps are the collaborators of a Machine. Funder may be nil.
type Deps struct {
	Store     secretstore.Store
	Records   RecordClient
	Binder    IdentityBinder
	Submitter Submitter
	Funder    Funder
	Entropy   keys.EntropySource
	Log       *zap.Logger
}

type saveResult struct {
	record *model.IdentityRecord
	err    error
}

// Machine is the onboarding state machine for one session. It is not safe
// for concurrent use; the owner serialises calls.
type Machine struct {
	cfg     Config
	deps    Deps
	session *Session
	log     *zap.Logger

	state       State
	identity    *model.Identity
	record      *model.IdentityRecord
	syncPending bool
	revealed    string
	pendingSave chan saveResult
	pendingBlob *model.SignedBlob
	receipt     *model.Receipt
	lastErr     error
}

// New returns a Machine in Unauthenticated.
func New(session *Session, cfg Config, deps Deps) *Machine {
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 15 * time.Second
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		cfg:     cfg,
		deps:    deps,
		session: session,
		log:     log.Named("onboarding"),
		state:   Unauthenticated,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.collectSave()
	return m.state
}

// Identity returns the active identity, if any.
func (m *Machine) Identity() (model.Identity, bool) {
	if m.identity == nil {
		return model.Identity{}, false
	}
	return *m.identity, true
}

// SyncPending reports whether the local identity still has to be saved remotely.
func (m *Machine) SyncPending() bool {
	m.collectSave()
	return m.syncPending
}

// Receipt returns the last successful binding receipt.
func (m *Machine) Receipt() *model.Receipt { return m.receipt }

// PendingBlob returns the signed blob awaiting (re)submission.
func (m *Machine) PendingBlob() *model.SignedBlob { return m.pendingBlob }

// LastError returns the error of the last failed operation, including a
// failed background save.
func (m *Machine) LastError() error {
	m.collectSave()
	return m.lastErr
}

// Secret returns the freshly generated seed. It is only available while the
// reveal is on screen.
func (m *Machine) Secret() (string, error) {
	if m.state != RevealingSecret || m.revealed == "" {
		return "", fmt.Errorf("%w: secret is only shown once after creation", model.ErrInvalidTransition)
	}
	return m.revealed, nil
}

func (m *Machine) require(op string, allowed ...State) error {
	for _, s := range allowed {
		if m.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s from %s", model.ErrInvalidTransition, op, m.state)
}

func (m *Machine) finish(op string, tr *Transition, err error) (Transition, error) {
	tr.To = m.state
	if err != nil {
		m.lastErr = err
		metrics.ObserveError(op, model.Code(err))
		m.log.Warn("operation failed",
			zap.String("op", op),
			zap.Stringer("state", m.state),
			zap.String("code", model.Code(err)),
			zap.Error(err))
	} else {
		m.lastErr = nil
	}
	if tr.From != tr.To {
		metrics.ObserveTransition(tr.From.String(), tr.To.String())
		m.log.Info("state changed",
			zap.String("op", op),
			zap.Stringer("from", tr.From),
			zap.Stringer("to", tr.To),
			zap.Strings("effects", tr.EffectNames()))
	}
	return *tr, err
}

// Resolve reads the local seed and the remote record concurrently and moves
// to NeedsSetup, NeedsRestore, Ready or Corrupted. Read failures leave the
// machine in Resolving so Resolve can be called again.
func (m *Machine) Resolve(ctx context.Context) (Transition, error) {
	m.collectSave()
	tr := &Transition{From: m.state}
	if err := m.require("resolve", Unauthenticated, Resolving, NeedsSetup, NeedsRestore); err != nil {
		return m.finish("resolve", tr, err)
	}
	if _, ok := m.session.Principal(); !ok {
		m.state = Unauthenticated
		return m.finish("resolve", tr, model.ErrUnauthenticated)
	}

	m.state = Resolving
	tr.Effects = append(tr.Effects, EffectReadSecret, EffectFetchRecord)

	var (
		seed     string
		hasLocal bool
		record   *model.IdentityRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		seed, hasLocal, err = m.deps.Store.Get(gctx, secretstore.SlotWalletSeed)
		return err
	})
	g.Go(func() error {
		var err error
		record, err = m.deps.Records.FetchIdentity(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, model.ErrUnauthenticated) {
			m.state = Unauthenticated
		}
		return m.finish("resolve", tr, err)
	}

	m.record = record
	class := Classify(hasLocal, record != nil)
	m.log.Debug("reconciliation classified", zap.Stringer("class", class))

	switch class {
	case LocalMatchesRemote:
		id, err := keys.DeriveIdentity(seed)
		if err != nil || !record.Matches(id) {
			m.state = Corrupted
			m.identity = nil
			return m.finish("resolve", tr, fmt.Errorf("%w: registered address %s", model.ErrStateCorruption, record.Address))
		}
		m.identity = &id
		m.syncPending = false
		m.state = Ready

	case RemoteOnly:
		m.identity = nil
		m.state = NeedsRestore

	case NoLocalNoRemote:
		m.identity = nil
		m.syncPending = false
		m.state = NeedsSetup

	case LocalOnly:
		id, err := keys.DeriveIdentity(seed)
		if err != nil {
			m.state = Corrupted
			return m.finish("resolve", tr, fmt.Errorf("%w: stored seed is unreadable", model.ErrStateCorruption))
		}
		m.identity = &id
		m.syncPending = true
		m.state = NeedsSetup

		tr.Effects = append(tr.Effects, EffectSaveRecord)
		if err := m.saveNow(ctx, id); err != nil {
			return m.finish("resolve", tr, m.expireOn(err))
		}
		m.state = Ready
	}

	return m.finish("resolve", tr, nil)
}

// saveNow saves id synchronously and clears the pending flag on success.
func (m *Machine) saveNow(ctx context.Context, id model.Identity) error {
	rec, err := m.deps.Records.SaveIdentity(ctx, id.Address, id.PublicKey)
	if err != nil {
		return err
	}
	if !rec.Matches(id) {
		return fmt.Errorf("%w: backend stored address %s", model.ErrServerRejected, rec.Address)
	}
	m.record = rec
	m.syncPending = false
	return nil
}

// expireOn drops the machine to Unauthenticated when err says the session
// is gone. A later Resolve picks the pending identity up again.
func (m *Machine) expireOn(err error) error {
	if errors.Is(err, model.ErrUnauthenticated) {
		m.state = Unauthenticated
	}
	return err
}

// Create generates a new wallet from NeedsSetup. When a local identity is
// still waiting for its remote save, that save is retried first and no new
// seed is generated unless the backend rejects it. The new seed is written
// and read back before the machine enters RevealingSecret; the remote save
// then runs in the background and survives cancellation of ctx.
//
// Create refuses when the principal already has a registered address, as
// after Reset: the registered address is immutable, so the only way back is
// Resolve followed by Restore.
func (m *Machine) Create(ctx context.Context) (Transition, error) {
	m.collectSave()
	tr := &Transition{From: m.state}
	if err := m.require("create", NeedsSetup); err != nil {
		return m.finish("create", tr, err)
	}
	if m.record != nil {
		return m.finish("create", tr, fmt.Errorf("%w: principal already has address %s; resolve and restore it",
			model.ErrInvalidTransition, m.record.Address))
	}

	if m.syncPending && m.identity != nil {
		tr.Effects = append(tr.Effects, EffectSaveRecord)
		err := m.saveNow(ctx, *m.identity)
		if err == nil {
			m.state = Ready
			return m.finish("create", tr, nil)
		}
		if !errors.Is(err, model.ErrServerRejected) {
			return m.finish("create", tr, m.expireOn(err))
		}
		m.log.Warn("backend rejected pending identity, generating a new wallet",
			zap.String("address", m.identity.Address), zap.Error(err))
		m.identity = nil
		m.syncPending = false
	}

	seed, err := keys.GenerateSeed(m.deps.Entropy)
	if err != nil {
		return m.finish("create", tr, err)
	}
	id, err := keys.DeriveIdentity(seed)
	if err != nil {
		return m.finish("create", tr, err)
	}

	tr.Effects = append(tr.Effects, EffectWriteSecret)
	if err := m.deps.Store.Set(ctx, secretstore.SlotWalletSeed, seed); err != nil {
		return m.finish("create", tr, err)
	}

	tr.Effects = append(tr.Effects, EffectVerifySecret)
	stored, ok, err := m.deps.Store.Get(ctx, secretstore.SlotWalletSeed)
	if err != nil {
		return m.finish("create", tr, err)
	}
	if !ok || stored != seed {
		return m.finish("create", tr, fmt.Errorf("%w: written seed did not read back", model.ErrStoreUnavailable))
	}

	m.identity = &id
	m.syncPending = true
	m.revealed = seed
	m.state = RevealingSecret
	tr.Effects = append(tr.Effects, EffectRevealSecret, EffectSaveRecord)
	m.startSave(ctx, id)

	if m.deps.Funder != nil && m.cfg.FundLamports > 0 {
		tr.Effects = append(tr.Effects, EffectFundWallet)
		m.startFund(ctx, id.Address)
	}

	return m.finish("create", tr, nil)
}

func (m *Machine) startSave(ctx context.Context, id model.Identity) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.SaveTimeout)
	ch := make(chan saveResult, 1)
	m.pendingSave = ch
	records := m.deps.Records

	go func() {
		defer cancel()
		rec, err := records.SaveIdentity(saveCtx, id.Address, id.PublicKey)
		if err == nil && !rec.Matches(id) {
			err = fmt.Errorf("%w: backend stored address %s", model.ErrServerRejected, rec.Address)
		}
		ch <- saveResult{record: rec, err: err}
	}()
}

func (m *Machine) startFund(ctx context.Context, address string) {
	fundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.SaveTimeout)
	funder, lamports, log := m.deps.Funder, m.cfg.FundLamports, m.log

	go func() {
		defer cancel()
		if _, err := funder.Fund(fundCtx, address, lamports); err != nil {
			log.Warn("wallet funding failed", zap.String("address", address), zap.Error(err))
		}
	}()
}

// collectSave picks up a finished background save without blocking.
func (m *Machine) collectSave() {
	if m.pendingSave == nil {
		return
	}
	select {
	case res := <-m.pendingSave:
		m.applySave(res)
	default:
	}
}

func (m *Machine) applySave(res saveResult) {
	m.pendingSave = nil
	if res.err != nil {
		m.syncPending = true
		m.lastErr = res.err
		metrics.ObserveError("save", model.Code(res.err))
		m.log.Warn("remote identity save failed; will retry", zap.String("code", model.Code(res.err)), zap.Error(res.err))
		return
	}
	m.record = res.record
	m.syncPending = false
	m.log.Info("remote identity saved", zap.String("address", res.record.Address))
}

// Acknowledge confirms the user recorded the seed. The seed is dropped from
// memory and never shown again. Acknowledge waits for the background save
// until ctx is done; a save still running afterwards is collected later.
// A failed save leaves SyncPending set but does not fail Acknowledge.
func (m *Machine) Acknowledge(ctx context.Context) (Transition, error) {
	tr := &Transition{From: m.state}
	if err := m.require("acknowledge", RevealingSecret); err != nil {
		return m.finish("acknowledge", tr, err)
	}

	tr.Effects = append(tr.Effects, EffectWipeSecret)
	m.revealed = ""

	if m.pendingSave != nil {
		select {
		case res := <-m.pendingSave:
			m.applySave(res)
		case <-ctx.Done():
		}
	}

	m.state = Ready
	saveErr := m.lastErr
	out, _ := m.finish("acknowledge", tr, nil)
	if m.syncPending {
		m.lastErr = saveErr
	}
	return out, nil
}

// Restore accepts a user-entered seed from NeedsRestore. The seed must derive
// exactly the registered address; otherwise the machine stays in NeedsRestore.
func (m *Machine) Restore(ctx context.Context, seed string) (Transition, error) {
	m.collectSave()
	tr := &Transition{From: m.state}
	if err := m.require("restore", NeedsRestore); err != nil {
		return m.finish("restore", tr, err)
	}

	id, err := keys.DeriveIdentity(seed)
	if err != nil {
		return m.finish("restore", tr, err)
	}
	if !m.record.Matches(id) {
		return m.finish("restore", tr, model.ErrSeedMismatch)
	}

	tr.Effects = append(tr.Effects, EffectWriteSecret)
	if err := m.deps.Store.Set(ctx, secretstore.SlotWalletSeed, keys.NormalizeSeed(seed)); err != nil {
		return m.finish("restore", tr, err)
	}

	m.identity = &id
	m.syncPending = false
	m.state = Ready
	return m.finish("restore", tr, nil)
}

// Sync retries a pending remote save from Ready.
func (m *Machine) Sync(ctx context.Context) (Transition, error) {
	m.collectSave()
	tr := &Transition{From: m.state}
	if err := m.require("sync", Ready); err != nil {
		return m.finish("sync", tr, err)
	}
	if !m.syncPending || m.pendingSave != nil {
		return m.finish("sync", tr, nil)
	}

	tr.Effects = append(tr.Effects, EffectSaveRecord)
	if err := m.saveNow(ctx, *m.identity); err != nil {
		return m.finish("sync", tr, m.expireOn(err))
	}
	return m.finish("sync", tr, nil)
}

// Reset deletes the local seed and returns to NeedsSetup. The remote record
// is kept, and so is the machine's copy of it, so Create stays refused until
// the principal has no registered address. Restoring the same seed brings
// the wallet back.
func (m *Machine) Reset(ctx context.Context) (Transition, error) {
	m.collectSave()
	tr := &Transition{From: m.state}
	if err := m.require("reset", Ready, Corrupted); err != nil {
		return m.finish("reset", tr, err)
	}

	tr.Effects = append(tr.Effects, EffectDeleteSecret)
	if err := m.deps.Store.Delete(ctx, secretstore.SlotWalletSeed); err != nil {
		return m.finish("reset", tr, err)
	}

	m.identity = nil
	m.syncPending = false
	m.revealed = ""
	m.pendingSave = nil
	m.pendingBlob = nil
	m.receipt = nil
	m.state = NeedsSetup
	return m.finish("reset", tr, nil)
}
