package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// Submission targets for signed identity-binding transactions.
const (
	SubmitViaBackend = "backend"
	SubmitViaLedger  = "ledger"
)

// Config contains all configuration parameters for the application.
// Note: Password is prompted at runtime and stored in memory - use GetStorePasswordBytes()
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	BindHost string `envconfig:"BIND_HOST" default:"127.0.0.1"`

	SolanaRPCURL  string `envconfig:"SOLANA_RPC_URL" default:"https://api.devnet.solana.com"`
	SolanaNetwork string `envconfig:"SOLANA_NETWORK" default:"devnet"`

	SecretStoreBackend string `envconfig:"SECRET_STORE_BACKEND" default:"file"`
	SecretStorePath    string `envconfig:"SECRET_STORE_PATH"`

	BackendURL    string        `envconfig:"BACKEND_URL" default:"http://localhost:3001/graphql"`
	AuthToken     string        `envconfig:"FIDENT_AUTH_TOKEN"`
	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"15s"`
	SubmitVia     string        `envconfig:"SUBMIT_VIA" default:"backend"`

	FundNewWallets   bool   `envconfig:"FUND_NEW_WALLETS" default:"false"`
	AirdropSOL       string `envconfig:"AIRDROP_SOL" default:"1"`
	ComputeUnitLimit uint32 `envconfig:"COMPUTE_UNIT_LIMIT" default:"20000"`
	PriorityFeeCap   uint64 `envconfig:"PRIORITY_FEE_CAP" default:"100000"`

	LogLevel     string  `envconfig:"LOG_LEVEL" default:"info"`
	LogFile      string  `envconfig:"LOG_FILE"`
	APIRateLimit float64 `envconfig:"API_RATE_LIMIT" default:"5"`
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	switch c.SubmitVia {
	case SubmitViaBackend, SubmitViaLedger:
	default:
		return fmt.Errorf("SUBMIT_VIA must be %q or %q", SubmitViaBackend, SubmitViaLedger)
	}
	if c.RemoteTimeout <= 0 {
		return errors.New("REMOTE_TIMEOUT must be positive")
	}
	if c.ComputeUnitLimit == 0 {
		return errors.New("COMPUTE_UNIT_LIMIT must be positive")
	}
	return nil
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	c, err := Load()
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// Load reads and validates configuration without touching the global instance.
func Load() (*Config, error) {
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if c.SecretStorePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		c.SecretStorePath = filepath.Join(home, ".fident", "secrets")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// GetListenAddr returns host:port for the local API
func GetListenAddr() string {
	return Get().BindHost + ":" + Get().Port
}

// GetSolanaRPCURL returns Solana RPC URL from configuration
func GetSolanaRPCURL() string {
	return Get().SolanaRPCURL
}

var passwordBytes []byte

// PromptForPassword prompts the user for the secret store passphrase in the terminal.
// The password is read without echoing (hidden input) and stored in memory.
// Call this at startup before the server begins handling requests.
func PromptForPassword() error {
	raw, err := ReadHidden("Enter secret store passphrase: ")
	if err != nil {
		return err
	}
	SetStorePassword(raw)
	clear(raw)
	return nil
}

// ReadHidden prints prompt to stderr and reads one line from the terminal without echo.
func ReadHidden(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run the app interactively to enter password")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	return raw, nil
}

// SetStorePassword keeps a copy of p in memory. Caller may zero p afterwards.
func SetStorePassword(p []byte) {
	clear(passwordBytes)
	passwordBytes = make([]byte, len(p))
	copy(passwordBytes, p)
}

// ClearStorePassword wipes the in-memory passphrase; the store becomes locked.
func ClearStorePassword() {
	clear(passwordBytes)
	passwordBytes = nil
}

// GetStorePasswordBytes returns the password stored in memory (from PromptForPassword).
// Returns an error if the password was not set.
// Caller must zero the returned slice after use for security.
func GetStorePasswordBytes() ([]byte, error) {
	if len(passwordBytes) == 0 {
		return nil, errors.New("password not set: call PromptForPassword at startup")
	}
	out := make([]byte, len(passwordBytes))
	copy(out, passwordBytes)
	return out, nil
}
