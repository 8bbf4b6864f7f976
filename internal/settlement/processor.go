package settlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor is the settlement watchdog: it periodically scans for rounds
// whose end time passed without an attestation arriving and flags them
// for the operator. It never settles anything itself; only a verified
// oracle signature can do that.
type Processor struct {
	db           *Database
	processDelay time.Duration // time between watchdog sweeps
	grace        time.Duration // how long past end time before a round is overdue
}

func NewProcessor(db *Database) *Processor {
	return &Processor{
		db:           db,
		processDelay: 1 * time.Minute,
		grace:        10 * time.Minute,
	}
}

// Start begins the watchdog loop.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_watchdog").Logger()
	logger.Info().Msg("starting settlement watchdog")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement watchdog")
			return
		case <-ticker.C:
			if err := p.sweep(); err != nil {
				logger.Error().Err(err).Msg("watchdog sweep failed")
			}
		}
	}
}

func (p *Processor) sweep() error {
	logger := log.With().Str("component", "settlement_watchdog").Logger()

	overdue, err := p.db.GetOverdueRounds(time.Now(), p.grace)
	if err != nil {
		return err
	}
	if len(overdue) == 0 {
		return nil
	}

	logger.Warn().Int("overdue_count", len(overdue)).Msg("rounds awaiting oracle attestation")
	for _, round := range overdue {
		logger.Warn().
			Str("round_id", round.RoundID).
			Str("symbol", round.Symbol).
			Int64("end_time", round.EndTime).
			Msg("round ended without settlement")
	}
	return nil
}
