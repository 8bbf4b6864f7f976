package betting

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/predyn/wager-api/internal/assets"
	"github.com/predyn/wager-api/internal/auth"
	"github.com/predyn/wager-api/internal/events"
	"github.com/predyn/wager-api/internal/ledger"
	"github.com/predyn/wager-api/internal/token"
	"github.com/predyn/wager-api/internal/types"
	"github.com/predyn/wager-api/pkg/response"
)

// Service owns all bet records: one live record per (round, bettor),
// single asset per bettor per round fixed at first stake, amount
// accumulated across stakes, side overwritten by the latest stake.
type Service struct {
	db       *Database
	state    *ledger.State
	registry *assets.Service
	bank     token.Wrapped
	events   *events.Publisher
	treasury common.Address
}

func NewService(
	gormDB *gorm.DB,
	state *ledger.State,
	registry *assets.Service,
	bank token.Wrapped,
	publisher *events.Publisher,
	treasury common.Address,
) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		state:    state,
		registry: registry,
		bank:     bank,
		events:   publisher,
		treasury: treasury,
	}
}

// PlaceBet stakes on one side of an open, unlocked round. For the
// wrapped asset a non-zero nativeValue takes precedence and is
// auto-wrapped; otherwise amount is pulled from the bettor's approved
// balance. Funds move into the treasury before records commit.
func (s *Service) PlaceBet(roundID string, bettor common.Address, side string, amount uint64, asset common.Address, nativeValue uint64) (*types.Bet, error) {
	s.state.Lock()
	defer s.state.Unlock()

	if err := s.state.CheckNotPaused(); err != nil {
		return nil, err
	}
	if side != types.SideUp && side != types.SideDown {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidSide, side)
	}

	round, err := s.db.GetRound(roundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, types.ErrRoundNotFound
	}
	if round.Status != types.RoundStatusOpen || round.Locked(time.Now()) {
		return nil, types.ErrRoundNotOpen
	}

	supported, err := s.registry.IsSupported(asset)
	if err != nil {
		return nil, err
	}
	if !supported {
		return nil, types.ErrTokenNotSupported
	}

	// Resolve the staked amount. Only the wrapped asset may carry direct
	// native value.
	wrapped := asset == s.bank.WrappedAsset()
	resolved := amount
	autoWrap := false
	switch {
	case wrapped && nativeValue > 0:
		resolved = nativeValue
		autoWrap = true
	case !wrapped && nativeValue > 0:
		return nil, types.ErrInvalidBetAmount
	default:
		if amount == 0 {
			return nil, types.ErrInvalidBetAmount
		}
	}

	bet, err := s.db.GetBet(roundID, bettor.Hex())
	if err != nil {
		return nil, err
	}
	if bet != nil && !strings.EqualFold(bet.Asset, asset.Hex()) {
		return nil, types.ErrTokenMismatch
	}

	// Move funds in before touching records.
	if autoWrap {
		if err := s.bank.Deposit(bettor, resolved); err != nil {
			return nil, fmt.Errorf("wrapping stake: %w", err)
		}
		if err := s.bank.Transfer(asset, bettor, s.treasury, resolved); err != nil {
			return nil, fmt.Errorf("collecting wrapped stake: %w", err)
		}
	} else {
		if err := s.bank.TransferFrom(asset, s.treasury, bettor, s.treasury, resolved); err != nil {
			return nil, fmt.Errorf("collecting stake: %w", err)
		}
	}

	if bet == nil {
		bet = &types.Bet{
			RoundID: roundID,
			Bettor:  bettor.Hex(),
			Asset:   asset.Hex(),
		}
	}
	bet.Amount += resolved
	bet.Side = side

	if err := s.db.ApplyStake(bet, roundID, side, resolved); err != nil {
		s.refundStake(bettor, asset, resolved, autoWrap)
		return nil, err
	}

	log.Info().
		Str("round_id", roundID).
		Str("bettor", bettor.Hex()).
		Str("side", side).
		Uint64("amount", resolved).
		Str("asset", asset.Hex()).
		Msg("bet placed")

	s.events.Publish(types.Event{
		Type:    types.EventBetPlaced,
		RoundID: roundID,
		Account: bettor.Hex(),
		Asset:   asset.Hex(),
		Amount:  resolved,
		Detail:  side,
	})
	return bet, nil
}

// refundStake returns a collected stake after a failed record commit,
// unwrapping back to native value when the stake came in as such.
func (s *Service) refundStake(bettor, asset common.Address, amount uint64, autoWrap bool) {
	if err := s.bank.Transfer(asset, s.treasury, bettor, amount); err != nil {
		log.Error().
			Err(err).
			Str("bettor", bettor.Hex()).
			Uint64("amount", amount).
			Msg("failed to refund collected stake")
		return
	}
	if autoWrap {
		if err := s.bank.Withdraw(bettor, amount); err != nil {
			log.Error().
				Err(err).
				Str("bettor", bettor.Hex()).
				Uint64("amount", amount).
				Msg("failed to unwrap refunded stake")
		}
	}
}

// GetUserBet returns a bettor's record for one round, or nil.
func (s *Service) GetUserBet(roundID string, bettor common.Address) (*types.Bet, error) {
	return s.db.GetBet(roundID, bettor.Hex())
}

// GetBettors enumerates bettors in first-stake order, paginated.
func (s *Service) GetBettors(roundID string, limit, offset int) ([]types.Bet, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.db.GetBets(roundID, limit, offset)
}

// GinHandlers contains HTTP handlers for betting endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// PlaceBetRequest is the stake payload. The bettor identity comes from
// the authenticated token, never the body.
type PlaceBetRequest struct {
	Side        string `json:"side" binding:"required,oneof=UP DOWN"`
	Amount      uint64 `json:"amount"`
	Asset       string `json:"asset" binding:"required"`
	NativeValue uint64 `json:"native_value"`
}

// PlaceBetHandler handles POST requests to stake on a round.
func (h *GinHandlers) PlaceBetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bettor := auth.GetAddress(c)
		if bettor == "" {
			response.Unauthorized(c, "Missing bettor address in token")
			return
		}

		var request PlaceBetRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		bet, err := h.service.PlaceBet(
			c.Param("round_id"),
			common.HexToAddress(bettor),
			request.Side,
			request.Amount,
			common.HexToAddress(request.Asset),
			request.NativeValue,
		)
		response.Handle(c, bet, err)
	}
}

// GetUserBetHandler handles GET requests for one bettor's record.
func (h *GinHandlers) GetUserBetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bet, err := h.service.GetUserBet(
			c.Param("round_id"),
			common.HexToAddress(c.Param("address")),
		)
		if err == nil && bet == nil {
			response.NotFound(c, "no bet for this round")
			return
		}
		response.Handle(c, bet, err)
	}
}

// GetBettorsHandler handles GET requests for the ordered bettor list.
// Query parameters: limit, offset.
func (h *GinHandlers) GetBettorsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bets, err := h.service.GetBettors(
			c.Param("round_id"),
			intQuery(c, "limit", 100),
			intQuery(c, "offset", 0),
		)
		response.Handle(c, bets, err)
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	return n
}
