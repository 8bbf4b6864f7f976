package claims

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/predyn/wager-api/internal/auth"
	"github.com/predyn/wager-api/internal/events"
	"github.com/predyn/wager-api/internal/ledger"
	"github.com/predyn/wager-api/internal/token"
	"github.com/predyn/wager-api/internal/types"
	"github.com/predyn/wager-api/pkg/response"
)

// Service converts settled winning (or tied) stakes into outgoing
// transfers, exactly once per (round, bettor). The claimed flag commits
// before the transfer so a reentrant or racing claim observes
// post-mutation state and fails the guard; a failed transfer reverts
// the flag so the claim can be retried once funds exist.
type Service struct {
	db       *Database
	state    *ledger.State
	bank     token.Wrapped
	events   *events.Publisher
	treasury common.Address
}

func NewService(gormDB *gorm.DB, state *ledger.State, bank token.Wrapped, publisher *events.Publisher, treasury common.Address) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		state:    state,
		bank:     bank,
		events:   publisher,
		treasury: treasury,
	}
}

// Claim pays out in the bettor's recorded asset.
func (s *Service) Claim(roundID string, bettor common.Address) (uint64, error) {
	return s.claim(roundID, bettor, false)
}

// ClaimNative additionally unwraps the wrapped asset into native value
// before paying out. Stakes in any other asset pay out unchanged.
func (s *Service) ClaimNative(roundID string, bettor common.Address) (uint64, error) {
	return s.claim(roundID, bettor, true)
}

func (s *Service) claim(roundID string, bettor common.Address, unwrap bool) (uint64, error) {
	s.state.Lock()
	defer s.state.Unlock()

	if err := s.state.CheckNotPaused(); err != nil {
		return 0, err
	}

	round, err := s.db.GetRound(roundID)
	if err != nil {
		return 0, err
	}
	if round == nil {
		return 0, types.ErrRoundNotFound
	}
	if !round.Settled {
		return 0, types.ErrRoundNotOpen
	}

	bet, err := s.db.GetBet(roundID, bettor.Hex())
	if err != nil {
		return 0, err
	}
	if bet == nil || bet.Amount == 0 {
		return 0, types.ErrNoWinnings
	}
	if bet.Claimed {
		return 0, types.ErrAlreadyClaimed
	}

	payout, err := Payout(round.Outcome, bet.Side, bet.Amount)
	if err != nil {
		return 0, err
	}

	// Claimed commits before the outgoing transfer.
	marked, err := s.db.MarkClaimed(roundID, bettor.Hex())
	if err != nil {
		return 0, err
	}
	if !marked {
		return 0, types.ErrAlreadyClaimed
	}

	asset := common.HexToAddress(bet.Asset)
	if err := s.payOut(bettor, asset, payout, unwrap); err != nil {
		// The transfer failed with no partial effect, so reopen the
		// claim. The global lock is still held; nobody can have
		// observed the consumed flag.
		if revertErr := s.db.UnmarkClaimed(roundID, bettor.Hex()); revertErr != nil {
			log.Error().
				Err(revertErr).
				Str("round_id", roundID).
				Str("bettor", bettor.Hex()).
				Msg("failed to reopen claim after transfer failure")
		}
		log.Error().
			Err(err).
			Str("round_id", roundID).
			Str("bettor", bettor.Hex()).
			Uint64("payout", payout).
			Msg("payout transfer failed, claim reopened")
		return 0, fmt.Errorf("payout transfer: %w", err)
	}

	log.Info().
		Str("round_id", roundID).
		Str("bettor", bettor.Hex()).
		Uint64("payout", payout).
		Str("asset", asset.Hex()).
		Msg("winnings claimed")

	s.events.Publish(types.Event{
		Type:    types.EventWinningsClaimed,
		RoundID: roundID,
		Account: bettor.Hex(),
		Asset:   asset.Hex(),
		Amount:  payout,
	})
	return payout, nil
}

func (s *Service) payOut(bettor, asset common.Address, payout uint64, unwrap bool) error {
	if err := s.bank.Transfer(asset, s.treasury, bettor, payout); err != nil {
		return err
	}
	if unwrap && asset == s.bank.WrappedAsset() {
		return s.bank.Withdraw(bettor, payout)
	}
	return nil
}

// Payout applies the payout law: TIE refunds the stake, a matching side
// pays 2x, a losing side has nothing to claim.
func Payout(outcome uint8, side string, stake uint64) (uint64, error) {
	switch {
	case outcome == types.OutcomeTie:
		return stake, nil
	case outcome == types.OutcomeUp && side == types.SideUp,
		outcome == types.OutcomeDown && side == types.SideDown:
		return 2 * stake, nil
	default:
		return 0, types.ErrNoWinnings
	}
}

// EmergencyWithdraw sweeps the treasury's wrapped-asset balance to the
// administrator. Stuck-fund recovery only; bypasses per-user accounting.
func (s *Service) EmergencyWithdraw() (uint64, error) {
	return s.EmergencyWithdrawAsset(s.bank.WrappedAsset())
}

// EmergencyWithdrawAsset sweeps the treasury's balance of one asset to
// the administrator. Exempt from the pause switch: the recovery path is
// pause first, then drain.
func (s *Service) EmergencyWithdrawAsset(asset common.Address) (uint64, error) {
	s.state.Lock()
	defer s.state.Unlock()

	balance := s.bank.BalanceOf(asset, s.treasury)
	if balance == 0 {
		return 0, nil
	}

	admin := s.state.Admin()
	if err := s.bank.Transfer(asset, s.treasury, admin, balance); err != nil {
		return 0, fmt.Errorf("emergency withdraw: %w", err)
	}

	log.Warn().
		Str("asset", asset.Hex()).
		Uint64("amount", balance).
		Str("admin", admin.Hex()).
		Msg("emergency withdrawal executed")
	return balance, nil
}

// GinHandlers contains HTTP handlers for claim endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ClaimHandler handles POST requests to claim winnings.
func (h *GinHandlers) ClaimHandler() gin.HandlerFunc {
	return h.claimHandler(false)
}

// ClaimNativeHandler handles POST requests to claim winnings unwrapped
// into native value.
func (h *GinHandlers) ClaimNativeHandler() gin.HandlerFunc {
	return h.claimHandler(true)
}

func (h *GinHandlers) claimHandler(native bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		bettor := auth.GetAddress(c)
		if bettor == "" {
			response.Unauthorized(c, "Missing bettor address in token")
			return
		}

		roundID := c.Param("round_id")
		var payout uint64
		var err error
		if native {
			payout, err = h.service.ClaimNative(roundID, common.HexToAddress(bettor))
		} else {
			payout, err = h.service.Claim(roundID, common.HexToAddress(bettor))
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"round_id": roundID, "payout": payout})
	}
}

// EmergencyWithdrawHandler handles admin POST requests to sweep treasury
// balances. Query parameter asset selects a named asset; absent means
// the wrapped asset.
func (h *GinHandlers) EmergencyWithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var swept uint64
		var err error
		if asset := c.Query("asset"); asset != "" {
			swept, err = h.service.EmergencyWithdrawAsset(common.HexToAddress(asset))
		} else {
			swept, err = h.service.EmergencyWithdraw()
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"swept": swept})
	}
}
