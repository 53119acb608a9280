package domain

import "github.com/ethereum/go-ethereum/common"

// Role is the job a signing wallet is reserved for.
type Role string

const (
	RoleLiquidator Role = "liquidator"
	RoleRollover   Role = "rollover"
	RoleArbitrage  Role = "arbitrage"
)

// Roles lists every role in a stable order.
func Roles() []Role { return []Role{RoleLiquidator, RoleRollover, RoleArbitrage} }

// MaxPending is the number of transactions one account may have in flight.
const MaxPending = 4

// WalletSlot is a configured signing account. The key itself stays in the chain adapter.
type WalletSlot struct {
	Role    Role
	Address common.Address
}
