package engine

import (
	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// Account is the cash ledger of the single simulated account. Cash always
// equals the initial balance plus cumulative realised P&L minus cumulative
// commission; margin is never deducted from it.
type Account struct {
	initial     decimal.Decimal
	cash        decimal.Decimal
	realized    decimal.Decimal
	commissions decimal.Decimal
}

// NewAccount opens an account with the given starting cash.
func NewAccount(initial decimal.Decimal) *Account {
	return &Account{initial: initial, cash: initial}
}

// Apply books one fill's realised P&L and commission and returns the new
// cash balance.
func (a *Account) Apply(realized, commission decimal.Decimal) decimal.Decimal {
	a.realized = a.realized.Add(realized)
	a.commissions = a.commissions.Add(commission)
	a.cash = a.cash.Add(realized).Sub(commission)
	return a.cash
}

// Cash returns the current cash balance.
func (a *Account) Cash() decimal.Decimal { return a.cash }

// Snapshot combines the ledger with position-derived values.
func (a *Account) Snapshot(unrealized, marginUsed decimal.Decimal) domain.AccountInfo {
	equity := a.cash.Add(unrealized)
	return domain.AccountInfo{
		InitialCash:    a.initial,
		Cash:           a.cash,
		RealizedPnL:    a.realized,
		Commissions:    a.commissions,
		UnrealizedPnL:  unrealized,
		Equity:         equity,
		MarginUsed:     marginUsed,
		AvailableFunds: equity.Sub(marginUsed),
	}
}
