package ledger

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Account is a point-in-time snapshot of an on-chain account.
type Account struct {
	Address    solana.PublicKey
	Lamports   uint64
	Owner      solana.PublicKey
	Executable bool
	DataLen    int
}

// Signature is one entry of an address's transaction history.
type Signature struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time
	Failed    bool
}

// Transaction is the subset of a parsed transaction the reclaimer needs: every
// participating account with its balance before and after execution.
type Transaction struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time
	Accounts  []TransactionAccount
}

type TransactionAccount struct {
	Address     solana.PublicKey
	Signer      bool
	Writable    bool
	PreBalance  uint64
	PostBalance uint64
}
