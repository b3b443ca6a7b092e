package reclaimer

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/audit"
	reclaimtesting "github.com/malbeclabs/rentreclaim/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

func TestReclaim_Reclaimer_Config_Validate(t *testing.T) {
	t.Parallel()

	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	valid := func() Config {
		return Config{
			Logger:   reclaimtesting.NewLogger(),
			Ledger:   newFakeLedger(),
			Signer:   signer,
			Treasury: testPK(1),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "missing logger", mutate: func(c *Config) { c.Logger = nil }, wantErr: "logger is required"},
		{name: "missing ledger", mutate: func(c *Config) { c.Ledger = nil }, wantErr: "ledger client is required"},
		{name: "missing signer", mutate: func(c *Config) { c.Signer = nil }, wantErr: "signer is required"},
		{name: "short signer", mutate: func(c *Config) { c.Signer = signer[:32] }, wantErr: "64-byte"},
		{name: "missing treasury", mutate: func(c *Config) { c.Treasury = solana.PublicKey{} }, wantErr: "treasury address is required"},
		{name: "treasury is signer", mutate: func(c *Config) { c.Treasury = signer.PublicKey() }, wantErr: "must differ"},
		{name: "negative age", mutate: func(c *Config) { c.AccountAgeThreshold = -1 }, wantErr: "must not be negative"},
		{name: "age beyond bound", mutate: func(c *Config) { c.AccountAgeThreshold = MaxAccountAgeThreshold + 1 }, wantErr: "must be at most 36500 days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg := valid()
		require.NoError(t, cfg.Validate())
		require.NotNil(t, cfg.Clock)
		require.IsType(t, FixedDelay{}, cfg.Delay)
		require.Equal(t, DefaultReclaimPause, cfg.Delay.(FixedDelay).Interval)
		require.Equal(t, audit.Nop{}, cfg.Audit)
	})

	t.Run("accessors", func(t *testing.T) {
		t.Parallel()
		cfg := valid()
		cfg.MinBalance = 42
		cfg.AccountAgeThreshold = 9
		r, err := New(cfg)
		require.NoError(t, err)
		require.Equal(t, signer.PublicKey().String(), r.SignerAddress())
		require.Equal(t, testPK(1).String(), r.TreasuryAddress())
		require.Equal(t, uint64(42), r.MinBalance())
		require.Equal(t, 9, r.AccountAgeThreshold())
	})
}

func TestReclaim_Reclaimer_FixedDelay(t *testing.T) {
	t.Parallel()

	t.Run("waits for the interval on the clock", func(t *testing.T) {
		t.Parallel()
		clock := clockwork.NewFakeClock()
		d := FixedDelay{Clock: clock, Interval: time.Second}

		done := make(chan error, 1)
		go func() { done <- d.Wait(context.Background()) }()

		require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
		select {
		case <-done:
			t.Fatal("returned before the interval elapsed")
		default:
		}
		clock.Advance(time.Second)
		require.NoError(t, <-done)
	})

	t.Run("returns on cancellation", func(t *testing.T) {
		t.Parallel()
		d := FixedDelay{Clock: clockwork.NewFakeClock(), Interval: time.Hour}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, d.Wait(ctx), context.Canceled)
	})

	t.Run("zero interval does not wait", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, FixedDelay{Clock: clockwork.NewFakeClock()}.Wait(context.Background()))
		require.NoError(t, NoDelay{}.Wait(context.Background()))
	})
}
