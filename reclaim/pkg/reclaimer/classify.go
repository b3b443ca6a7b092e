package reclaimer

import (
	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/ledger"
)

// IsClosed reports whether the snapshot describes an account that no longer
// exists or holds no lamports.
func IsClosed(acct *ledger.Account) bool {
	return acct == nil || acct.Lamports == 0
}

// IsEmpty reports whether the account exists and carries no data.
func IsEmpty(acct *ledger.Account) bool {
	return acct != nil && acct.DataLen == 0
}

// IsSystemOwned reports whether the account is owned by the system program,
// the only owner whose accounts a plain transfer can drain.
func IsSystemOwned(acct *ledger.Account) bool {
	return acct != nil && acct.Owner.Equals(solana.SystemProgramID)
}
