package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/AlexZinkM/fident/internal/model"
	"github.com/AlexZinkM/fident/internal/onboarding"
	"github.com/AlexZinkM/fident/solana"

	"go.uber.org/zap"
)

// BalanceReader reads the ledger balance of an address.
type BalanceReader interface {
	Balance(ctx context.Context, address string) (*model.BalanceResponse, error)
}

// OnboardingHandler exposes the onboarding machine over HTTP. Requests are
// served one at a time.
type OnboardingHandler struct {
	mu      sync.Mutex
	machine *onboarding.Machine
	ledger  BalanceReader
	timeout time.Duration
	log     *zap.Logger
}

// NewOnboardingHandler creates a new OnboardingHandler. ledger may be nil,
// which disables the balance endpoint.
func NewOnboardingHandler(machine *onboarding.Machine, ledger BalanceReader, timeout time.Duration, log *zap.Logger) *OnboardingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OnboardingHandler{machine: machine, ledger: ledger, timeout: timeout, log: log}
}

type transitionFunc func(ctx context.Context) (onboarding.Transition, error)

func (h *OnboardingHandler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

// run applies one transition and writes the resulting state.
func (h *OnboardingHandler) run(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	tr, err := fn(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := h.stateResponse()
	resp.Effects = tr.EffectNames()
	writeJSON(w, http.StatusOK, resp)
}

// stateResponse must be called with h.mu held.
func (h *OnboardingHandler) stateResponse() model.StateResponse {
	resp := model.StateResponse{
		State:       h.machine.State().String(),
		SyncPending: h.machine.SyncPending(),
		Receipt:     h.machine.Receipt(),
	}
	if id, ok := h.machine.Identity(); ok {
		resp.Address = id.Address
		resp.PublicKey = id.PublicKey
		if qr, err := solana.AddressQR(id.Address); err == nil {
			resp.QR = qr
		} else {
			h.log.Warn("failed to render address QR", zap.Error(err))
		}
	}
	if err := h.machine.LastError(); err != nil {
		resp.Error = &model.ErrorResponse{Error: err.Error(), Code: model.Code(err)}
	}
	return resp
}

// State handles GET /onboarding/state
// @Summary      Get onboarding state
// @Description  Returns the current onboarding state, the active address with its QR code and the last error
// @Tags         onboarding
// @Produce      json
// @Success      200  {object}  model.StateResponse
// @Router       /onboarding/state [get]
func (h *OnboardingHandler) State(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	writeJSON(w, http.StatusOK, h.stateResponse())
}

// Resolve handles POST /onboarding/resolve
// @Summary      Reconcile local and remote identity
// @Description  Reads the local seed and the remote record and moves to NeedsSetup, NeedsRestore or Ready
// @Tags         onboarding
// @Produce      json
// @Success      200  {object}  model.StateResponse
// @Failure      401  {object}  model.ErrorResponse
// @Failure      409  {object}  model.ErrorResponse
// @Failure      503  {object}  model.ErrorResponse
// @Router       /onboarding/resolve [post]
func (h *OnboardingHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.machine.Resolve)
}

// Create handles POST /onboarding/create
// @Summary      Create wallet
// @Description  Generates a new seed, stores it locally and starts the remote save
// @Tags         onboarding
// @Produce      json
// @Success      200  {object}  model.StateResponse
// @Failure      409  {object}  model.ErrorResponse
// @Failure      503  {object}  model.ErrorResponse
// @Router       /onboarding/create [post]
func (h *OnboardingHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.machine.Create)
}

// Secret handles GET /onboarding/secret
// @Summary      Show recovery phrase
// @Description  Returns the new seed while it is being revealed. Not available after acknowledgement.
// @Tags         onboarding
// @Produce      json
// @Success      200  {object}  model.SecretResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /onboarding/secret [get]
func (h *OnboardingHandler) Secret(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	seed, err := h.machine.Secret()
	if err != nil {
		writeError(w, err)
		return
	}
	id, _ := h.machine.Identity()
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, model.SecretResponse{Seed: seed, Address: id.Address})
}

// Acknowledge handles POST /onboarding/acknowledge
// @Summary      Confirm recovery phrase was recorded
// @Tags         onboarding
// @Produce      json
// @Success      200  {object}  model.StateResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /onboarding/acknowledge [post]
func (h *OnboardingHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.machine.Acknowledge)
}

// Restore handles POST /onboarding/restore
// @Summary      Restore wallet
// @Description  Restores the wallet from a seed that must derive the registered address
// @Tags         onboarding
// @Accept       json
// @Produce      json
// @Param        request  body      model.RestoreRequest  true  "Recovery phrase"
// @Success      200      {object}  model.StateResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      422      {object}  model.ErrorResponse
// @Router       /onboarding/restore [post]
func (h *OnboardingHandler) Restore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.RestoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid request body", Code: "BAD_REQUEST"})
		return
	}

	h.run(w, r, func(ctx context.Context) (onboarding.Transition, error) {
		defer func() { req.Seed = "" }()
		return h.machine.Restore(ctx, req.Seed)
	})
}

// Reset handles POST /onboarding/reset
// @Summary      Reset local wallet
// @Description  Deletes the local seed. The remote record is kept.
// @Tags         onboarding
// @Produce      json
// @Success      200  {object}  model.StateResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /onboarding/reset [post]
func (h *OnboardingHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.machine.Reset)
}

// Sync handles POST /onboarding/sync
// @Summary      Retry remote save
// @Tags         onboarding
// @Produce      json
// @Success      200  {object}  model.StateResponse
// @Failure      503  {object}  model.ErrorResponse
// @Router       /onboarding/sync [post]
func (h *OnboardingHandler) Sync(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.machine.Sync)
}

// Bind handles POST /identity/bind
// @Summary      Bind identity on ledger
// @Description  Signs a DID document transaction with the local key and submits it
// @Tags         identity
// @Produce      json
// @Success      200  {object}  model.StateResponse
// @Failure      409  {object}  model.ErrorResponse
// @Failure      502  {object}  model.ErrorResponse
// @Failure      503  {object}  model.ErrorResponse
// @Router       /identity/bind [post]
func (h *OnboardingHandler) Bind(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.machine.Bind)
}

// Resubmit handles POST /identity/resubmit
// @Summary      Resubmit signed binding
// @Description  Submits the last signed binding again without re-signing
// @Tags         identity
// @Produce      json
// @Success      200  {object}  model.StateResponse
// @Failure      409  {object}  model.ErrorResponse
// @Failure      503  {object}  model.ErrorResponse
// @Router       /identity/resubmit [post]
func (h *OnboardingHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.machine.Resubmit)
}

// GetBalance handles GET /wallet/balance
// @Summary      Get wallet balance
// @Description  Gets the SOL balance of the active address
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.BalanceResponse
// @Failure      409  {object}  model.ErrorResponse
// @Failure      503  {object}  model.ErrorResponse
// @Router       /wallet/balance [get]
func (h *OnboardingHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}
	if h.ledger == nil {
		http.Error(w, "balance is not available", http.StatusNotImplemented)
		return
	}

	h.mu.Lock()
	id, ok := h.machine.Identity()
	h.mu.Unlock()
	if !ok {
		writeError(w, model.ErrInvalidTransition)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	balance, err := h.ledger.Balance(ctx, id.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), model.ErrorResponse{Error: err.Error(), Code: model.Code(err)})
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrInvalidSeed):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrSeedMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrStateCorruption):
		return http.StatusConflict
	case errors.Is(err, model.ErrServerRejected):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrNetworkUnavailable), errors.Is(err, model.ErrLedgerUnreachable), errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
