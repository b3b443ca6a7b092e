package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/metrics"
	"github.com/malbeclabs/rentreclaim/utils/pkg/retry"
	"golang.org/x/time/rate"
)

// DefaultRPCURL is the default Solana RPC endpoint.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// SolanaRPC is the subset of the solana-go RPC client used by RPCClient.
type SolanaRPC interface {
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error)
	GetParsedTransaction(ctx context.Context, txSig solana.Signature, opts *solanarpc.GetParsedTransactionOpts) (*solanarpc.GetParsedTransactionResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error)
}

var errNotConfirmed = errors.New("transaction not yet confirmed")

type RPCClientConfig struct {
	Logger *slog.Logger
	RPCURL string
	// RPC overrides the client built from RPCURL.
	RPC SolanaRPC
	// RateLimit is the maximum number of requests per second. Zero disables throttling.
	RateLimit  float64
	Retry      retry.Config
	Commitment solanarpc.CommitmentType

	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
}

func (cfg *RPCClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		if cfg.RPCURL == "" {
			return errors.New("rpc url is required")
		}
		cfg.RPC = solanarpc.New(cfg.RPCURL)
	}
	if cfg.RateLimit < 0 {
		return errors.New("rate limit must not be negative")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentConfirmed
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = 500 * time.Millisecond
	}
	return nil
}

// RPCClient is the ledger gateway backed by a Solana JSON-RPC node. Reads are
// throttled and retried on transient errors; transfers are submitted once.
type RPCClient struct {
	log     *slog.Logger
	cfg     RPCClientConfig
	rpc     SolanaRPC
	limiter *rate.Limiter
}

func NewRPCClient(cfg RPCClientConfig) (*RPCClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(cfg.RateLimit))
	}
	return &RPCClient{
		log:     cfg.Logger,
		cfg:     cfg,
		rpc:     cfg.RPC,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// call throttles and times a single RPC method invocation.
func call[T any](ctx context.Context, c *RPCClient, method string, fn func() (T, error)) (T, error) {
	var zero T
	if err := c.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("%s: rate limiter: %w", method, err)
	}
	start := time.Now()
	v, err := fn()
	metrics.RecordLedgerRequest(method, time.Since(start), err)
	return v, err
}

// readCall is call wrapped in the retry policy, for idempotent reads.
func readCall[T any](ctx context.Context, c *RPCClient, method string, fn func() (T, error)) (T, error) {
	return retry.DoValue(ctx, c.cfg.Retry, func() (T, error) {
		return call(ctx, c, method, fn)
	})
}

// GetSignaturesForAddress returns up to limit signatures touching address,
// most recent first.
func (c *RPCClient) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, limit int) ([]Signature, error) {
	opts := &solanarpc.GetSignaturesForAddressOpts{Commitment: c.cfg.Commitment}
	if limit > 0 {
		opts.Limit = &limit
	}
	out, err := readCall(ctx, c, "getSignaturesForAddress", func() ([]*solanarpc.TransactionSignature, error) {
		return c.rpc.GetSignaturesForAddressWithOpts(ctx, address, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures for %s: %w", address, err)
	}

	sigs := make([]Signature, 0, len(out))
	for _, s := range out {
		if s == nil {
			continue
		}
		sig := Signature{
			Signature: s.Signature,
			Slot:      s.Slot,
			Failed:    s.Err != nil,
		}
		if s.BlockTime != nil {
			t := s.BlockTime.Time().UTC()
			sig.BlockTime = &t
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// GetParsedTransaction fetches a transaction and flattens its participants.
func (c *RPCClient) GetParsedTransaction(ctx context.Context, sig solana.Signature) (*Transaction, error) {
	maxVersion := uint64(0)
	out, err := readCall(ctx, c, "getTransaction", func() (*solanarpc.GetParsedTransactionResult, error) {
		return c.rpc.GetParsedTransaction(ctx, sig, &solanarpc.GetParsedTransactionOpts{
			Commitment:                     c.cfg.Commitment,
			MaxSupportedTransactionVersion: &maxVersion,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", sig, err)
	}
	if out == nil || out.Transaction == nil {
		return nil, fmt.Errorf("transaction %s is not available", sig)
	}

	tx := &Transaction{
		Signature: sig,
		Slot:      out.Slot,
		Accounts:  make([]TransactionAccount, 0, len(out.Transaction.Message.AccountKeys)),
	}
	if out.BlockTime != nil {
		t := out.BlockTime.Time().UTC()
		tx.BlockTime = &t
	}
	for i, key := range out.Transaction.Message.AccountKeys {
		acct := TransactionAccount{
			Address:  key.PublicKey,
			Signer:   key.Signer,
			Writable: key.Writable,
		}
		if out.Meta != nil {
			if i < len(out.Meta.PreBalances) {
				acct.PreBalance = out.Meta.PreBalances[i]
			}
			if i < len(out.Meta.PostBalances) {
				acct.PostBalance = out.Meta.PostBalances[i]
			}
		}
		tx.Accounts = append(tx.Accounts, acct)
	}
	return tx, nil
}

// GetAccountInfo returns the current snapshot of address, or nil if the
// account does not exist.
func (c *RPCClient) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*Account, error) {
	out, err := readCall(ctx, c, "getAccountInfo", func() (*solanarpc.GetAccountInfoResult, error) {
		res, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &solanarpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.cfg.Commitment,
		})
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, nil
		}
		return res, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account info for %s: %w", address, err)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}

	acct := &Account{
		Address:    address,
		Lamports:   out.Value.Lamports,
		Owner:      out.Value.Owner,
		Executable: out.Value.Executable,
	}
	if out.Value.Data != nil {
		acct.DataLen = len(out.Value.Data.GetBinary())
	}
	return acct, nil
}

// TransferAndConfirm moves lamports from one account to another in a single
// system transfer paid for and signed by signer, then waits for the cluster to
// confirm it. It is never retried: a failed submission surfaces as an error.
func (c *RPCClient) TransferAndConfirm(ctx context.Context, from, to solana.PublicKey, lamports uint64, signer solana.PrivateKey) (solana.Signature, error) {
	blockhash, err := readCall(ctx, c, "getLatestBlockhash", func() (*solanarpc.GetLatestBlockhashResult, error) {
		return c.rpc.GetLatestBlockhash(ctx, solanarpc.CommitmentFinalized)
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if blockhash == nil || blockhash.Value == nil {
		return solana.Signature{}, errors.New("failed to get latest blockhash: empty response")
	}

	payer := signer.PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, from, to).Build(),
		},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transfer transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &signer
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transfer transaction: %w", err)
	}

	sig, err := call(ctx, c, "sendTransaction", func() (solana.Signature, error) {
		return c.rpc.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
			PreflightCommitment: c.cfg.Commitment,
		})
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transfer transaction: %w", err)
	}
	c.log.Debug("ledger: transfer submitted", "signature", sig.String(), "from", from.String(), "lamports", lamports)

	if err := c.waitForConfirmation(ctx, sig); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

func (c *RPCClient) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.ConfirmPollInterval
	b.MaxInterval = 4 * c.cfg.ConfirmPollInterval
	b.MaxElapsedTime = c.cfg.ConfirmTimeout

	err := backoff.Retry(func() error {
		out, err := call(ctx, c, "getSignatureStatuses", func() (*solanarpc.GetSignatureStatusesResult, error) {
			return c.rpc.GetSignatureStatuses(ctx, false, sig)
		})
		if err != nil {
			if retry.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("failed to get signature status: %w", err))
		}
		if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
			return errNotConfirmed
		}
		status := out.Value[0]
		if status.Err != nil {
			return backoff.Permanent(fmt.Errorf("transaction %s failed: %v", sig, status.Err))
		}
		switch status.ConfirmationStatus {
		case solanarpc.ConfirmationStatusConfirmed, solanarpc.ConfirmationStatusFinalized:
			return nil
		}
		return errNotConfirmed
	}, backoff.WithContext(b, ctx))
	if errors.Is(err, errNotConfirmed) {
		return fmt.Errorf("transaction %s not confirmed within %s", sig, c.cfg.ConfirmTimeout)
	}
	return err
}
