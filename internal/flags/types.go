package flags

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("halt not found")
	ErrInvalidPoolID = errors.New("invalid pool id")
)

// Halt is a trading switch for one pool. A halted pool still answers
// price and quote reads but rejects swaps.
type Halt struct {
	PoolID    string    `json:"pool_id"`
	Halted    bool      `json:"halted"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
