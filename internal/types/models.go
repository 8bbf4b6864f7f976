package types

import (
	"time"

	"gorm.io/gorm"
)

// Round lifecycle statuses. LOCKED is never stored: a round stays OPEN
// until settlement and is considered locked once now >= LockTime.
const (
	RoundStatusOpen    = "OPEN"
	RoundStatusSettled = "SETTLED"
)

// Bet sides.
const (
	SideUp   = "UP"
	SideDown = "DOWN"
)

// Settlement outcome codes as attested by the oracle.
const (
	OutcomeTie  uint8 = 0
	OutcomeUp   uint8 = 1
	OutcomeDown uint8 = 2
)

type Round struct {
	gorm.Model `json:"-"`
	RoundID    string    `gorm:"uniqueIndex" json:"round_id"`
	Symbol     string    `json:"symbol"`
	StartTime  int64     `json:"start_time"` // epoch seconds
	LockTime   int64     `json:"lock_time"`
	EndTime    int64     `json:"end_time"`
	ClosePrice uint64    `json:"close_price"` // zero until settled
	Outcome    uint8     `json:"outcome"`     // meaningless until settled
	Status     string    `json:"status"`      // OPEN, SETTLED
	UpAmount   uint64    `json:"up_amount"`
	DownAmount uint64    `json:"down_amount"`
	Settled    bool      `json:"settled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Locked reports whether betting is closed by schedule even though the
// round status is still OPEN.
func (r *Round) Locked(now time.Time) bool {
	return now.Unix() >= r.LockTime
}

// Bet is the single per-round per-bettor stake record. Amount accumulates
// across stakes; Side is overwritten by the most recent stake; Asset is
// fixed at first stake. Row id order is first-stake order.
type Bet struct {
	gorm.Model `json:"-"`
	RoundID    string    `gorm:"uniqueIndex:idx_round_bettor" json:"round_id"`
	Bettor     string    `gorm:"uniqueIndex:idx_round_bettor" json:"bettor"`
	Side       string    `json:"side"` // UP or DOWN
	Amount     uint64    `json:"amount"`
	Asset      string    `json:"asset"`
	Claimed    bool      `json:"claimed"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AssetEntry marks an asset address as accepted for staking. The wrapped
// base asset is seeded at startup and cannot be removed.
type AssetEntry struct {
	gorm.Model `json:"-"`
	Asset      string    `gorm:"uniqueIndex" json:"asset"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LedgerState is the single-row shared state of the ledger: the pause
// switch, the currently trusted oracle signer, and the administrator.
type LedgerState struct {
	gorm.Model   `json:"-"`
	Paused       bool      `json:"paused"`
	OracleSigner string    `json:"oracle_signer"`
	Admin        string    `json:"admin"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Event types emitted on the notification stream.
const (
	EventRoundCreated    = "round_created"
	EventBetPlaced       = "bet_placed"
	EventRoundSettled    = "round_settled"
	EventWinningsClaimed = "winnings_claimed"
	EventAssetAdded      = "asset_added"
	EventAssetRemoved    = "asset_removed"
)

type Event struct {
	gorm.Model `json:"-"`
	EventID    string    `gorm:"uniqueIndex" json:"event_id"`
	Type       string    `gorm:"index" json:"type"`
	RoundID    string    `gorm:"index" json:"round_id,omitempty"`
	Account    string    `json:"account,omitempty"`
	Asset      string    `json:"asset,omitempty"`
	Amount     uint64    `json:"amount,omitempty"`
	Detail     string    `json:"detail,omitempty"` // side, outcome, schedule
	CreatedAt  time.Time `json:"created_at"`
}
