// Package onboarding drives wallet creation, restoration and reconciliation
// for one signed-in session.
package onboarding

// State is a step of the onboarding flow.
type State int

const (
	Unauthenticated State = iota
	Resolving
	NeedsSetup
	NeedsRestore
	RevealingSecret
	Ready
	// Corrupted means the local seed does not derive the registered address.
	// Only Reset leaves it.
	Corrupted
)

var stateNames = [...]string{
	Unauthenticated: "Unauthenticated",
	Resolving:       "Resolving",
	NeedsSetup:      "NeedsSetup",
	NeedsRestore:    "NeedsRestore",
	RevealingSecret: "RevealingSecret",
	Ready:           "Ready",
	Corrupted:       "Corrupted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Reconciliation classifies local secret presence against the remote record.
type Reconciliation int

const (
	NoLocalNoRemote Reconciliation = iota
	LocalMatchesRemote
	RemoteOnly
	LocalOnly
)

func (r Reconciliation) String() string {
	switch r {
	case NoLocalNoRemote:
		return "NoLocalNoRemote"
	case LocalMatchesRemote:
		return "LocalMatchesRemote"
	case RemoteOnly:
		return "RemoteOnly"
	case LocalOnly:
		return "LocalOnly"
	}
	return "Unknown"
}

// Classify derives the reconciliation class. LocalMatchesRemote only states
// that both sides are present; address equality is checked by the caller.
func Classify(hasLocal, hasRemote bool) Reconciliation {
	switch {
	case hasLocal && hasRemote:
		return LocalMatchesRemote
	case hasRemote:
		return RemoteOnly
	case hasLocal:
		return LocalOnly
	default:
		return NoLocalNoRemote
	}
}

// Effect is a side effect performed during a transition.
type Effect string

const (
	EffectReadSecret    Effect = "read_secret"
	EffectFetchRecord   Effect = "fetch_record"
	EffectWriteSecret   Effect = "write_secret"
	EffectVerifySecret  Effect = "verify_secret"
	EffectRevealSecret  Effect = "reveal_secret"
	EffectSaveRecord    Effect = "save_record"
	EffectFundWallet    Effect = "fund_wallet"
	EffectWipeSecret    Effect = "wipe_secret"
	EffectDeleteSecret  Effect = "delete_secret"
	EffectSignBinding   Effect = "sign_binding"
	EffectSubmitBinding Effect = "submit_binding"
)

// Transition reports the state change of one operation and the effects it
// performed, in order. From equals To when the operation failed or was a no-op.
type Transition struct {
	From    State
	To      State
	Effects []Effect
}

// EffectNames returns the effects as strings.
func (t Transition) EffectNames() []string {
	out := make([]string, len(t.Effects))
	for i, e := range t.Effects {
		out[i] = string(e)
	}
	return out
}
