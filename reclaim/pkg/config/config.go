package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/ledger"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
	"github.com/spf13/pflag"
)

const (
	EnvSignerPrivateKey        = "SIGNER_PRIVATE_KEY"
	EnvSignerKeypairPath       = "SIGNER_KEYPAIR_PATH"
	EnvTreasuryAddress         = "TREASURY_ADDRESS"
	EnvRPCURL                  = "SOLANA_RPC_URL"
	EnvMinBalanceLamports      = "MIN_BALANCE_LAMPORTS"
	EnvAccountAgeThresholdDays = "ACCOUNT_AGE_THRESHOLD_DAYS"
	EnvReclaimPause            = "RECLAIM_PAUSE"
	EnvRPCRateLimit            = "RPC_RATE_LIMIT"
	EnvAuditDir                = "AUDIT_DIR"
	EnvScanInterval            = "SCAN_INTERVAL"
	EnvHTTPAddr                = "HTTP_ADDR"
	EnvMetricsAddr             = "METRICS_ADDR"
	EnvSlackBotToken           = "SLACK_BOT_TOKEN"
	EnvSlackAppToken           = "SLACK_APP_TOKEN"
	EnvSlackChannelID          = "SLACK_CHANNEL_ID"
	EnvSentryDSN               = "SENTRY_DSN"
	EnvSentryEnvironment       = "SENTRY_ENVIRONMENT"
)

const (
	DefaultMinBalanceLamports      = 1_000_000
	DefaultAccountAgeThresholdDays = 30
	DefaultReclaimPause            = time.Second
	DefaultRPCRateLimit            = 10
	DefaultAuditDir                = "./logs"
	DefaultScanInterval            = time.Hour
	DefaultHTTPAddr                = "0.0.0.0:8080"
	DefaultMetricsAddr             = "0.0.0.0:0"
	DefaultEnvFile                 = ".env"
)

// Flag names shared by every command.
const (
	FlagEnvFile  = "env-file"
	FlagRPCURL   = "rpc-url"
	FlagTreasury = "treasury"
	FlagKeypair  = "keypair"
	FlagMinBal   = "min-balance"
	FlagAgeDays  = "age-days"
	FlagAuditDir = "audit-dir"
)

// Config is the process configuration. It is loaded once and not modified.
type Config struct {
	Signer   solana.PrivateKey
	Treasury solana.PublicKey
	RPCURL   string

	MinBalance              uint64
	AccountAgeThresholdDays int
	ReclaimPause            time.Duration
	RPCRateLimit            float64

	AuditDir     string
	ScanInterval time.Duration
	HTTPAddr     string
	MetricsAddr  string

	SlackBotToken  string
	SlackAppToken  string
	SlackChannelID string

	SentryDSN         string
	SentryEnvironment string
}

// SlackEnabled reports whether both Slack tokens are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// RegisterFlags adds the shared configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagEnvFile, DefaultEnvFile, "Path to a .env file to load (ignored if missing)")
	fs.String(FlagRPCURL, "", "Solana RPC URL (env: "+EnvRPCURL+")")
	fs.String(FlagTreasury, "", "Treasury address receiving reclaimed lamports (env: "+EnvTreasuryAddress+")")
	fs.String(FlagKeypair, "", "Path to the signer keypair file (env: "+EnvSignerKeypairPath+")")
	fs.Uint64(FlagMinBal, DefaultMinBalanceLamports, "Minimum balance in lamports worth reclaiming (env: "+EnvMinBalanceLamports+")")
	fs.Int(FlagAgeDays, DefaultAccountAgeThresholdDays, "Days without activity before an account counts as inactive (env: "+EnvAccountAgeThresholdDays+")")
	fs.String(FlagAuditDir, DefaultAuditDir, "Directory for audit logs (env: "+EnvAuditDir+")")
}

// Load reads configuration from the .env file, the environment, and any
// explicitly set flags, in increasing order of precedence. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	envFile := DefaultEnvFile
	if fs != nil {
		if v, err := fs.GetString(FlagEnvFile); err == nil && v != "" {
			envFile = v
		}
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return LoadFrom(os.Getenv, fs)
}

// LoadFrom builds the configuration from getenv and fs without touching any
// files other than a signer keypair.
func LoadFrom(getenv func(string) string, fs *pflag.FlagSet) (*Config, error) {
	r := &reader{getenv: getenv, fs: fs}

	cfg := &Config{
		RPCURL:                  r.str(EnvRPCURL, FlagRPCURL, ledger.DefaultRPCURL),
		AuditDir:                r.str(EnvAuditDir, FlagAuditDir, DefaultAuditDir),
		HTTPAddr:                r.str(EnvHTTPAddr, "", DefaultHTTPAddr),
		MetricsAddr:             r.str(EnvMetricsAddr, "", DefaultMetricsAddr),
		SlackBotToken:           getenv(EnvSlackBotToken),
		SlackAppToken:           getenv(EnvSlackAppToken),
		SlackChannelID:          getenv(EnvSlackChannelID),
		SentryDSN:               getenv(EnvSentryDSN),
		SentryEnvironment:       r.str(EnvSentryEnvironment, "", "development"),
		MinBalance:              r.uint64(EnvMinBalanceLamports, FlagMinBal, DefaultMinBalanceLamports),
		AccountAgeThresholdDays: r.int(EnvAccountAgeThresholdDays, FlagAgeDays, DefaultAccountAgeThresholdDays),
		ReclaimPause:            r.duration(EnvReclaimPause, DefaultReclaimPause),
		RPCRateLimit:            r.float(EnvRPCRateLimit, DefaultRPCRateLimit),
		ScanInterval:            r.duration(EnvScanInterval, DefaultScanInterval),
	}
	if r.err != nil {
		return nil, r.err
	}

	signer, err := r.signer()
	if err != nil {
		return nil, err
	}
	cfg.Signer = signer

	treasury := r.str(EnvTreasuryAddress, FlagTreasury, "")
	if treasury == "" {
		return nil, fmt.Errorf("%s is required", EnvTreasuryAddress)
	}
	cfg.Treasury, err = solana.PublicKeyFromBase58(treasury)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvTreasuryAddress, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Signer) == 0 {
		return fmt.Errorf("%s or %s is required", EnvSignerPrivateKey, EnvSignerKeypairPath)
	}
	if c.Treasury.IsZero() {
		return fmt.Errorf("%s is required", EnvTreasuryAddress)
	}
	if c.Treasury.Equals(c.Signer.PublicKey()) {
		return errors.New("treasury address must differ from the signer address")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("%s is required", EnvRPCURL)
	}
	if c.AccountAgeThresholdDays < 0 {
		return fmt.Errorf("%s must not be negative", EnvAccountAgeThresholdDays)
	}
	if c.AccountAgeThresholdDays > reclaimer.MaxAccountAgeThreshold {
		return fmt.Errorf("%s must be at most %d", EnvAccountAgeThresholdDays, reclaimer.MaxAccountAgeThreshold)
	}
	if c.ReclaimPause < 0 {
		return fmt.Errorf("%s must not be negative", EnvReclaimPause)
	}
	if c.RPCRateLimit < 0 {
		return fmt.Errorf("%s must not be negative", EnvRPCRateLimit)
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("%s must be greater than 0", EnvScanInterval)
	}
	return nil
}

// reader resolves one value at a time, flag over env over default, and keeps
// the first parse error.
type reader struct {
	getenv func(string) string
	fs     *pflag.FlagSet
	err    error
}

func (r *reader) flagChanged(name string) bool {
	return name != "" && r.fs != nil && r.fs.Lookup(name) != nil && r.fs.Changed(name)
}

func (r *reader) fail(env string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", env, err)
	}
}

func (r *reader) str(env, flag, def string) string {
	if r.flagChanged(flag) {
		v, _ := r.fs.GetString(flag)
		return v
	}
	if v := r.getenv(env); v != "" {
		return v
	}
	return def
}

func (r *reader) uint64(env, flag string, def uint64) uint64 {
	if r.flagChanged(flag) {
		v, _ := r.fs.GetUint64(flag)
		return v
	}
	s := r.getenv(env)
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		r.fail(env, err)
		return def
	}
	return v
}

func (r *reader) int(env, flag string, def int) int {
	if r.flagChanged(flag) {
		v, _ := r.fs.GetInt(flag)
		return v
	}
	s := r.getenv(env)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		r.fail(env, err)
		return def
	}
	return v
}

func (r *reader) float(env string, def float64) float64 {
	s := r.getenv(env)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.fail(env, err)
		return def
	}
	return v
}

func (r *reader) duration(env string, def time.Duration) time.Duration {
	s := r.getenv(env)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		r.fail(env, err)
		return def
	}
	return v
}

// signer resolves the key from --keypair, then SIGNER_PRIVATE_KEY, then
// SIGNER_KEYPAIR_PATH.
func (r *reader) signer() (solana.PrivateKey, error) {
	if r.flagChanged(FlagKeypair) {
		path, _ := r.fs.GetString(FlagKeypair)
		return keypairFile(path)
	}
	if s := r.getenv(EnvSignerPrivateKey); s != "" {
		key, err := DecodePrivateKey(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvSignerPrivateKey, err)
		}
		return key, nil
	}
	if path := r.getenv(EnvSignerKeypairPath); path != "" {
		return keypairFile(path)
	}
	return nil, fmt.Errorf("%s or %s is required", EnvSignerPrivateKey, EnvSignerKeypairPath)
}

func keypairFile(path string) (solana.PrivateKey, error) {
	key, err := LoadKeypairFile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvSignerKeypairPath, err)
	}
	return key, nil
}
