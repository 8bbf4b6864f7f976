package settlement

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/predyn/wager-api/internal/events"
	"github.com/predyn/wager-api/internal/ledger"
	"github.com/predyn/wager-api/internal/oracle"
	"github.com/predyn/wager-api/internal/types"
	"github.com/predyn/wager-api/pkg/response"
)

// Service consumes oracle attestations and transitions rounds to their
// terminal SETTLED state exactly once. Anyone may relay an attestation;
// authority comes from the recovered signature, not the caller.
type Service struct {
	db       *Database
	state    *ledger.State
	verifier *oracle.Verifier
	events   *events.Publisher
}

func NewService(gormDB *gorm.DB, state *ledger.State, verifier *oracle.Verifier, publisher *events.Publisher) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		state:    state,
		verifier: verifier,
		events:   publisher,
	}
}

// SettleRound verifies the attestation and records the outcome.
func (s *Service) SettleRound(att oracle.Attestation, signature string) (*types.Round, error) {
	s.state.Lock()
	defer s.state.Unlock()

	logger := log.With().
		Str("round_id", att.RoundID).
		Str("service", "settlement").
		Logger()

	if err := s.state.CheckNotPaused(); err != nil {
		return nil, err
	}

	round, err := s.db.GetRound(att.RoundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, types.ErrRoundNotFound
	}
	if round.Settled {
		return nil, types.ErrRoundAlreadySettled
	}
	if att.Outcome > types.OutcomeDown {
		return nil, types.ErrInvalidOutcome
	}

	if err := s.verifier.CheckFreshness(att, time.Now()); err != nil {
		logger.Warn().Err(err).Int64("signed_at", att.SignedAt).Msg("attestation outside freshness window")
		return nil, err
	}

	recovered, err := s.verifier.Recover(att, signature)
	if err != nil {
		logger.Warn().Err(err).Msg("signature recovery failed")
		return nil, types.ErrInvalidSignature
	}
	trusted := s.state.OracleSigner()
	if recovered != trusted {
		logger.Warn().
			Str("recovered", recovered.Hex()).
			Str("trusted", trusted.Hex()).
			Msg("attestation signed by untrusted key")
		return nil, types.ErrInvalidSignature
	}

	// Guarded update: settles at most once even under racing relays.
	settled, err := s.db.MarkSettled(att.RoundID, att.ClosePrice, att.Outcome)
	if err != nil {
		return nil, err
	}
	if !settled {
		return nil, types.ErrRoundAlreadySettled
	}

	logger.Info().
		Uint64("close_price", att.ClosePrice).
		Uint8("outcome", att.Outcome).
		Str("signer", recovered.Hex()).
		Msg("round settled")

	s.events.Publish(types.Event{
		Type:    types.EventRoundSettled,
		RoundID: att.RoundID,
		Account: recovered.Hex(),
		Amount:  att.ClosePrice,
		Detail:  outcomeLabel(att.Outcome),
	})
	return s.db.GetRound(att.RoundID)
}

// SetOracleSigner rotates the trusted signer identity. Admin only; the
// route group enforces the caller.
func (s *Service) SetOracleSigner(signer common.Address) error {
	s.state.Lock()
	defer s.state.Unlock()
	return s.state.SetOracleSigner(signer)
}

// GetDB exposes the database wrapper for the watchdog processor.
func (s *Service) GetDB() *Database {
	return s.db
}

func outcomeLabel(outcome uint8) string {
	switch outcome {
	case types.OutcomeUp:
		return types.SideUp
	case types.OutcomeDown:
		return types.SideDown
	default:
		return "TIE"
	}
}

// GinHandlers contains HTTP handlers for settlement endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SettleRequest carries a relayed oracle attestation.
type SettleRequest struct {
	ClosePrice uint64 `json:"close_price"`
	Outcome    uint8  `json:"outcome"`
	SignedAt   int64  `json:"signed_at" binding:"required"`
	Signature  string `json:"signature" binding:"required"`
}

// SettleRoundHandler handles POST requests relaying an attestation.
func (h *GinHandlers) SettleRoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request SettleRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		round, err := h.service.SettleRound(oracle.Attestation{
			RoundID:    c.Param("round_id"),
			ClosePrice: request.ClosePrice,
			Outcome:    request.Outcome,
			SignedAt:   request.SignedAt,
		}, request.Signature)
		response.Handle(c, round, err)
	}
}

// SetOracleSignerHandler handles admin POST requests to rotate the
// trusted signer.
func (h *GinHandlers) SetOracleSignerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Signer string `json:"signer" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetOracleSigner(common.HexToAddress(request.Signer)); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"signer": common.HexToAddress(request.Signer).Hex()})
	}
}
