package rounds

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/predyn/wager-api/internal/events"
	"github.com/predyn/wager-api/internal/ledger"
	"github.com/predyn/wager-api/internal/types"
	"github.com/predyn/wager-api/pkg/response"
)

// Service owns the create-only round store. Rounds are keyed by a
// caller-supplied external identifier, mutated exactly once by
// settlement, and never deleted.
type Service struct {
	db     *Database
	state  *ledger.State
	events *events.Publisher
}

func NewService(gormDB *gorm.DB, state *ledger.State, publisher *events.Publisher) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		state:  state,
		events: publisher,
	}
}

// CreateRound inserts a new OPEN round with zeroed settlement fields.
// The schedule must satisfy lock <= start < end.
func (s *Service) CreateRound(roundID, symbol string, start, lock, end int64) (*types.Round, error) {
	s.state.Lock()
	defer s.state.Unlock()

	if err := s.state.CheckNotPaused(); err != nil {
		return nil, err
	}
	if lock > start || end <= start {
		return nil, fmt.Errorf("%w: lock=%d start=%d end=%d", types.ErrInvalidSchedule, lock, start, end)
	}

	existing, err := s.db.GetRound(roundID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, types.ErrDuplicateRound
	}

	round := &types.Round{
		RoundID:   roundID,
		Symbol:    symbol,
		StartTime: start,
		LockTime:  lock,
		EndTime:   end,
		Status:    types.RoundStatusOpen,
	}
	if err := s.db.CreateRound(round); err != nil {
		return nil, err
	}

	log.Info().
		Str("round_id", roundID).
		Str("symbol", symbol).
		Int64("start", start).
		Int64("lock", lock).
		Int64("end", end).
		Msg("round created")

	s.events.Publish(types.Event{
		Type:    types.EventRoundCreated,
		RoundID: roundID,
		Detail:  fmt.Sprintf("symbol=%s start=%d lock=%d end=%d", symbol, start, lock, end),
	})
	return round, nil
}

// GetRound returns the round or ErrRoundNotFound.
func (s *Service) GetRound(roundID string) (*types.Round, error) {
	round, err := s.db.GetRound(roundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, types.ErrRoundNotFound
	}
	return round, nil
}

// GinHandlers contains HTTP handlers for round endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// CreateRoundRequest is the admin round-creation payload.
type CreateRoundRequest struct {
	RoundID   string `json:"round_id" binding:"required"`
	Symbol    string `json:"symbol" binding:"required"`
	StartTime int64  `json:"start_time" binding:"required"`
	LockTime  int64  `json:"lock_time" binding:"required"`
	EndTime   int64  `json:"end_time" binding:"required"`
}

// CreateRoundHandler handles admin POST requests to open a new round.
func (h *GinHandlers) CreateRoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request CreateRoundRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		round, err := h.service.CreateRound(
			request.RoundID,
			request.Symbol,
			request.StartTime,
			request.LockTime,
			request.EndTime,
		)
		response.Handle(c, round, err)
	}
}

// GetRoundHandler handles GET requests for a single round.
func (h *GinHandlers) GetRoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		roundID := c.Param("round_id")
		if roundID == "" {
			response.BadRequest(c, "round ID is required")
			return
		}

		round, err := h.service.GetRound(roundID)
		response.Handle(c, round, err)
	}
}
