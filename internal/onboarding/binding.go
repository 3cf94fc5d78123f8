package onboarding

import (
	"context"
	"fmt"
	"time"

	"github.com/AlexZinkM/fident/internal/metrics"
	"github.com/AlexZinkM/fident/internal/model"
	"github.com/AlexZinkM/fident/internal/secretstore"
	"github.com/AlexZinkM/fident/solana"

	"go.uber.org/zap"
)

// Bind signs a DID binding for the active identity and submits it. The
// signed blob is kept so a failed submission can be retried with Resubmit.
// Failures leave the machine in Ready, except a missing seed which marks
// it Corrupted.
func (m *Machine) Bind(ctx context.Context) (Transition, error) {
	m.collectSave()
	tr := &Transition{From: m.state}
	if err := m.require("bind", Ready); err != nil {
		return m.finish("bind", tr, err)
	}
	defer metrics.ObserveBind(time.Now())

	tr.Effects = append(tr.Effects, EffectReadSecret)
	seed, ok, err := m.deps.Store.Get(ctx, secretstore.SlotWalletSeed)
	if err != nil {
		return m.finish("bind", tr, err)
	}
	if !ok {
		m.state = Corrupted
		m.identity = nil
		return m.finish("bind", tr, fmt.Errorf("%w: wallet seed is missing", model.ErrStateCorruption))
	}

	doc := solana.BuildDIDDocument(m.cfg.Network, *m.identity)

	tr.Effects = append(tr.Effects, EffectSignBinding)
	blob, err := m.deps.Binder.BindIdentity(ctx, seed, doc)
	if err != nil {
		return m.finish("bind", tr, err)
	}
	m.pendingBlob = blob
	m.log.Info("binding signed", zap.String("did", doc.ID), zap.String("signature", blob.Signature))

	return m.submit(ctx, tr)
}

// Resubmit sends the pending signed blob again without re-signing.
func (m *Machine) Resubmit(ctx context.Context) (Transition, error) {
	m.collectSave()
	tr := &Transition{From: m.state}
	if err := m.require("resubmit", Ready); err != nil {
		return m.finish("resubmit", tr, err)
	}
	if m.pendingBlob == nil {
		return m.finish("resubmit", tr, fmt.Errorf("%w: no signed binding to resubmit", model.ErrInvalidTransition))
	}
	return m.submit(ctx, tr)
}

func (m *Machine) submit(ctx context.Context, tr *Transition) (Transition, error) {
	tr.Effects = append(tr.Effects, EffectSubmitBinding)
	receipt, err := m.deps.Submitter.Submit(ctx, m.pendingBlob)
	if err != nil {
		return m.finish("submit", tr, err)
	}
	m.receipt = receipt
	m.pendingBlob = nil
	m.log.Info("binding submitted",
		zap.String("tx", receipt.TransactionHash),
		zap.Uint64("ledger_index", receipt.LedgerIndex))
	return m.finish("submit", tr, nil)
}
