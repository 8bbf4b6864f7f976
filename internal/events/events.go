package events

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/predyn/wager-api/internal/types"
	"github.com/predyn/wager-api/pkg/response"
)

// Publisher persists the notification stream consumed by external
// indexers: round created, bet placed, round settled, winnings claimed,
// asset added/removed.
type Publisher struct {
	db *gorm.DB
}

func NewPublisher(db *gorm.DB) *Publisher {
	return &Publisher{db: db}
}

// Publish records one event. A failed write is logged, not surfaced: the
// ledger mutation it describes has already committed.
func (p *Publisher) Publish(event types.Event) {
	event.EventID = uuid.New().String()
	event.CreatedAt = time.Now()

	if err := p.db.Create(&event).Error; err != nil {
		log.Error().
			Err(err).
			Str("type", event.Type).
			Str("round_id", event.RoundID).
			Msg("failed to persist event")
		return
	}

	log.Info().
		Str("event_id", event.EventID).
		Str("type", event.Type).
		Str("round_id", event.RoundID).
		Str("account", event.Account).
		Uint64("amount", event.Amount).
		Msg("event published")
}

// GetEvents returns events newest-first, optionally filtered by round.
func (p *Publisher) GetEvents(roundID string, limit, offset int) ([]types.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := p.db.Order("id DESC").Limit(limit).Offset(offset)
	if roundID != "" {
		q = q.Where("round_id = ?", roundID)
	}

	var events []types.Event
	if err := q.Find(&events).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return events, nil
}

// GinHandlers contains HTTP handlers for the event stream.
type GinHandlers struct {
	publisher *Publisher
}

func NewGinHandlers(publisher *Publisher) *GinHandlers {
	return &GinHandlers{publisher: publisher}
}

// GetEventsHandler handles GET requests for the notification stream.
// Query parameters: round_id, limit, offset.
func (h *GinHandlers) GetEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := h.publisher.GetEvents(
			c.Query("round_id"),
			intQuery(c, "limit", 100),
			intQuery(c, "offset", 0),
		)
		response.Handle(c, events, err)
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
