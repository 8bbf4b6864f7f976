package ledger

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/predyn/wager-api/internal/types"
)

// State is the shared mutable core of the ledger: the global
// serialization guard every mutating operation takes, the pause switch,
// the trusted oracle signer, and the administrator identity. Pause and
// signer rotation are persisted so they survive restarts.
type State struct {
	mu sync.Mutex
	db *Database

	stateMu sync.RWMutex
	paused  bool
	signer  common.Address
	admin   common.Address
}

// NewState loads or seeds the single LedgerState row.
func NewState(gormDB *gorm.DB, admin, signer common.Address) (*State, error) {
	db := NewDatabase(gormDB)

	row, err := db.GetState()
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &types.LedgerState{
			Paused:       false,
			OracleSigner: signer.Hex(),
			Admin:        admin.Hex(),
		}
		if err := db.CreateState(row); err != nil {
			return nil, err
		}
	}

	return &State{
		db:     db,
		paused: row.Paused,
		signer: common.HexToAddress(row.OracleSigner),
		admin:  common.HexToAddress(row.Admin),
	}, nil
}

// Lock serializes all state-changing operations across services.
func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// CheckNotPaused is the first guard in every mutating entry point.
func (s *State) CheckNotPaused() error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.paused {
		return types.ErrPaused
	}
	return nil
}

func (s *State) Paused() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.paused
}

func (s *State) Pause() error   { return s.setPaused(true) }
func (s *State) Unpause() error { return s.setPaused(false) }

func (s *State) setPaused(paused bool) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if err := s.db.UpdatePaused(paused); err != nil {
		return err
	}
	s.paused = paused
	log.Info().Bool("paused", paused).Msg("ledger pause switch updated")
	return nil
}

// OracleSigner returns the currently trusted attestation signer.
func (s *State) OracleSigner() common.Address {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.signer
}

// SetOracleSigner rotates the trusted signer, effective for all
// subsequent settlements.
func (s *State) SetOracleSigner(signer common.Address) error {
	if signer == (common.Address{}) {
		return types.ErrZeroAddress
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if err := s.db.UpdateOracleSigner(signer.Hex()); err != nil {
		return err
	}
	s.signer = signer
	log.Info().Str("signer", signer.Hex()).Msg("oracle signer rotated")
	return nil
}

func (s *State) Admin() common.Address {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.admin
}

// IsAdmin compares an address claim against the administrator identity.
func (s *State) IsAdmin(addr string) bool {
	return strings.EqualFold(addr, s.Admin().Hex())
}
