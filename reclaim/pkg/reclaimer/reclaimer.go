package reclaimer

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/audit"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/ledger"
)

const (
	// SignatureWindow bounds how much of the signer's history discovery sees.
	// Accounts sponsored before the most recent SignatureWindow transactions
	// are not discovered.
	SignatureWindow = 1000

	DefaultReclaimPause = time.Second
	// MaxAccountAgeThreshold is the largest accepted inactivity threshold, in days.
	MaxAccountAgeThreshold = 36_500
)

// LedgerClient is the ledger gateway the reclaimer depends on.
type LedgerClient interface {
	GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, limit int) ([]ledger.Signature, error)
	GetParsedTransaction(ctx context.Context, sig solana.Signature) (*ledger.Transaction, error)
	GetAccountInfo(ctx context.Context, address solana.PublicKey) (*ledger.Account, error)
	TransferAndConfirm(ctx context.Context, from, to solana.PublicKey, lamports uint64, signer solana.PrivateKey) (solana.Signature, error)
}

// DelayPolicy paces successive reclaim attempts in a batch.
type DelayPolicy interface {
	Wait(ctx context.Context) error
}

// FixedDelay waits a constant interval on the given clock.
type FixedDelay struct {
	Clock    clockwork.Clock
	Interval time.Duration
}

func (d FixedDelay) Wait(ctx context.Context) error {
	if d.Interval <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.Clock.After(d.Interval):
		return nil
	}
}

// NoDelay never waits.
type NoDelay struct{}

func (NoDelay) Wait(context.Context) error { return nil }

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Ledger   LedgerClient
	Signer   solana.PrivateKey
	Treasury solana.PublicKey
	// MinBalance is the smallest balance, in lamports, worth reclaiming.
	MinBalance uint64
	// AccountAgeThreshold is the number of days without a transaction after
	// which a funded account counts as inactive.
	AccountAgeThreshold int
	Delay               DelayPolicy
	Audit               audit.Sink
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger client is required")
	}
	if len(cfg.Signer) == 0 {
		return errors.New("signer is required")
	}
	if len(cfg.Signer) != ed25519.PrivateKeySize {
		return errors.New("signer must be a 64-byte ed25519 private key")
	}
	if cfg.Treasury.IsZero() {
		return errors.New("treasury address is required")
	}
	if cfg.Treasury.Equals(cfg.Signer.PublicKey()) {
		return errors.New("treasury address must differ from the signer")
	}
	if cfg.AccountAgeThreshold < 0 {
		return errors.New("account age threshold must not be negative")
	}
	if cfg.AccountAgeThreshold > MaxAccountAgeThreshold {
		return fmt.Errorf("account age threshold must be at most %d days", MaxAccountAgeThreshold)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Delay == nil {
		cfg.Delay = FixedDelay{Clock: cfg.Clock, Interval: DefaultReclaimPause}
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Nop{}
	}
	return nil
}

// Reclaimer discovers accounts funded by the signer, decides which can be
// closed, and moves their balances to the treasury.
//
// Reclaim-executing operations on one Reclaimer are serialized; discovery and
// evaluation are read-only and may run concurrently with them.
type Reclaimer struct {
	log    *slog.Logger
	cfg    Config
	signer solana.PublicKey

	// reclaimMu serializes ReclaimOne, ReclaimBatch and RunFullCycle.
	reclaimMu sync.Mutex

	lifetimeReclaimed atomic.Uint64
	lastScan          atomic.Pointer[time.Time]
}

func New(cfg Config) (*Reclaimer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reclaimer{
		log:    cfg.Logger,
		cfg:    cfg,
		signer: cfg.Signer.PublicKey(),
	}, nil
}

func (r *Reclaimer) SignerAddress() string {
	return r.signer.String()
}

func (r *Reclaimer) TreasuryAddress() string {
	return r.cfg.Treasury.String()
}

func (r *Reclaimer) MinBalance() uint64 {
	return r.cfg.MinBalance
}

func (r *Reclaimer) AccountAgeThreshold() int {
	return r.cfg.AccountAgeThreshold
}

// LifetimeReclaimed returns the lamports moved to the treasury since this
// Reclaimer was created.
func (r *Reclaimer) LifetimeReclaimed() uint64 {
	return r.lifetimeReclaimed.Load()
}

// LastScan returns when the last full cycle completed, or nil if none has.
func (r *Reclaimer) LastScan() *time.Time {
	return r.lastScan.Load()
}
