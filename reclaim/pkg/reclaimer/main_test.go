package reclaimer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/audit"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/ledger"
	reclaimtesting "github.com/malbeclabs/rentreclaim/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

var errRPC = errors.New("rpc unavailable")

type transfer struct {
	from     solana.PublicKey
	to       solana.PublicKey
	lamports uint64
}

// fakeLedger serves canned ledger state. Func fields override the maps.
type fakeLedger struct {
	mu sync.Mutex

	history  map[solana.PublicKey][]ledger.Signature
	txs      map[solana.Signature]*ledger.Transaction
	accounts map[solana.PublicKey]*ledger.Account

	signaturesErr  map[solana.PublicKey]error
	accountInfoErr map[solana.PublicKey]error
	transferFunc   func(from, to solana.PublicKey, lamports uint64) (solana.Signature, error)

	transfers        []transfer
	accountInfoCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		history:        make(map[solana.PublicKey][]ledger.Signature),
		txs:            make(map[solana.Signature]*ledger.Transaction),
		accounts:       make(map[solana.PublicKey]*ledger.Account),
		signaturesErr:  make(map[solana.PublicKey]error),
		accountInfoErr: make(map[solana.PublicKey]error),
	}
}

func (f *fakeLedger) GetSignaturesForAddress(_ context.Context, address solana.PublicKey, limit int) ([]ledger.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.signaturesErr[address]; err != nil {
		return nil, err
	}
	sigs := f.history[address]
	if len(sigs) > limit {
		sigs = sigs[:limit]
	}
	return sigs, nil
}

func (f *fakeLedger) GetParsedTransaction(_ context.Context, sig solana.Signature) (*ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[sig]
	if !ok {
		return nil, errors.New("transaction not available")
	}
	return tx, nil
}

func (f *fakeLedger) GetAccountInfo(_ context.Context, address solana.PublicKey) (*ledger.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountInfoCalls++
	if err := f.accountInfoErr[address]; err != nil {
		return nil, err
	}
	acct, ok := f.accounts[address]
	if !ok {
		return nil, nil
	}
	cp := *acct
	return &cp, nil
}

func (f *fakeLedger) TransferAndConfirm(_ context.Context, from, to solana.PublicKey, lamports uint64, _ solana.PrivateKey) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, transfer{from: from, to: to, lamports: lamports})
	if f.transferFunc != nil {
		return f.transferFunc(from, to, lamports)
	}
	delete(f.accounts, from)
	return testSig(len(f.transfers)), nil
}

func (f *fakeLedger) setAccount(acct *ledger.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[acct.Address] = acct
}

// addTx appends a transaction to the signer's history, newest last.
func (f *fakeLedger) addTx(signer solana.PublicKey, tx *ledger.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[tx.Signature] = tx
	f.history[signer] = append([]ledger.Signature{{Signature: tx.Signature, BlockTime: tx.BlockTime}}, f.history[signer]...)
}

func (f *fakeLedger) setLastActivity(address solana.PublicKey, sigs ...ledger.Signature) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[address] = sigs
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Record(_ context.Context, ev audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) byOp(op audit.Operation) []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for _, ev := range s.events {
		if ev.Op == op {
			out = append(out, ev)
		}
	}
	return out
}

type countingDelay struct {
	mu    sync.Mutex
	calls int
}

func (d *countingDelay) Wait(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return nil
}

type testEnv struct {
	r        *Reclaimer
	ledger   *fakeLedger
	sink     *recordingSink
	delay    *countingDelay
	clock    *clockwork.FakeClock
	signer   solana.PrivateKey
	treasury solana.PublicKey
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	env := &testEnv{
		ledger:   newFakeLedger(),
		sink:     &recordingSink{},
		delay:    &countingDelay{},
		clock:    clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		signer:   signer,
		treasury: testPK(200),
	}
	cfg := Config{
		Logger:              reclaimtesting.NewLogger(),
		Clock:               env.clock,
		Ledger:              env.ledger,
		Signer:              signer,
		Treasury:            env.treasury,
		MinBalance:          1_000_000,
		AccountAgeThreshold: 7,
		Delay:               env.delay,
		Audit:               env.sink,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	env.r, err = New(cfg)
	require.NoError(t, err)
	return env
}

func (e *testEnv) daysAgo(days int) *time.Time {
	t := e.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	return &t
}

func testPK(n int) solana.PublicKey {
	b := make([]byte, 32)
	for i := range b {
		b[i] = byte(n + i)
	}
	return solana.PublicKeyFromBytes(b)
}

func testSig(n int) solana.Signature {
	var s solana.Signature
	for i := range s {
		s[i] = byte(n*7 + i)
	}
	return s
}

func systemAccount(addr solana.PublicKey, lamports uint64, dataLen int) *ledger.Account {
	return &ledger.Account{
		Address:  addr,
		Lamports: lamports,
		Owner:    solana.SystemProgramID,
		DataLen:  dataLen,
	}
}
