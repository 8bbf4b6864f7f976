package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/predyn/wager-api/internal/assets"
	"github.com/predyn/wager-api/internal/betting"
	"github.com/predyn/wager-api/internal/claims"
	"github.com/predyn/wager-api/internal/database"
	"github.com/predyn/wager-api/internal/events"
	"github.com/predyn/wager-api/internal/ledger"
	"github.com/predyn/wager-api/internal/oracle"
	"github.com/predyn/wager-api/internal/rounds"
	"github.com/predyn/wager-api/internal/settlement"
	"github.com/predyn/wager-api/internal/token"
	"github.com/predyn/wager-api/internal/types"
)

const (
	numRounds     = 5
	numBettors    = 40
	numWorkers    = 5
	stakeUnit     = 1_000_000 // base units per 1.0 staked
	chainID       = 137
	betWindowSecs = 3
)

var symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"}

var (
	treasury = common.HexToAddress("0x00000000000000000000000000000000000caFe1")
	wrapped  = common.HexToAddress("0x00000000000000000000000000000000000caFe2")
	admin    = common.HexToAddress("0x00000000000000000000000000000000000caFe3")
	altAsset = common.HexToAddress("0x00000000000000000000000000000000000caFe4")
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// opStats tracks performance statistics for one ledger operation
type opStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (s *opStats) record(d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durations = append(s.durations, d)
	s.totalCalls++
	if err != nil {
		s.failures++
	}
}

// calculate computes min, max, mean, median, p95, and p99 durations
func (s *opStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(s.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(s.durations, func(i, j int) bool {
		return s.durations[i] < s.durations[j]
	})

	min = s.durations[0]
	max = s.durations[len(s.durations)-1]

	var sum time.Duration
	for _, d := range s.durations {
		sum += d
	}
	mean = sum / time.Duration(len(s.durations))
	median = s.durations[len(s.durations)/2]

	p95idx := int(math.Ceil(float64(len(s.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(s.durations))*0.99)) - 1
	p95 = s.durations[p95idx]
	p99 = s.durations[p99idx]
	return
}

// simulation wires the full ledger in-process and drives it through
// complete round lifecycles: fund, bet, lock, settle, claim.
type simulation struct {
	bank       *token.Bank
	oracleKeys *oracle.Signer
	roundsSvc  *rounds.Service
	betsSvc    *betting.Service
	settleSvc  *settlement.Service
	claimsSvc  *claims.Service
	bettors    []common.Address
	stats      map[string]*opStats
}

func newSimulation() (*simulation, error) {
	db, err := database.NewTestDatabase("simulation")
	if err != nil {
		return nil, err
	}

	bank := token.NewBank(wrapped)
	verifier := oracle.NewVerifier(chainID, treasury)
	signer, err := oracle.GenerateSigner(verifier)
	if err != nil {
		return nil, err
	}

	state, err := ledger.NewState(db, admin, signer.Address())
	if err != nil {
		return nil, err
	}

	publisher := events.NewPublisher(db)
	registry, err := assets.NewService(db, state, publisher, wrapped)
	if err != nil {
		return nil, err
	}
	if err := registry.AddAsset(altAsset); err != nil {
		return nil, err
	}

	sim := &simulation{
		bank:       bank,
		oracleKeys: signer,
		roundsSvc:  rounds.NewService(db, state, publisher),
		betsSvc:    betting.NewService(db, state, registry, bank, publisher, treasury),
		settleSvc:  settlement.NewService(db, state, verifier, publisher),
		claimsSvc:  claims.NewService(db, state, bank, publisher, treasury),
		stats: map[string]*opStats{
			"create": {name: "Create Round"},
			"bet":    {name: "Place Bet"},
			"settle": {name: "Settle Round"},
			"claim":  {name: "Claim Winnings"},
		},
	}

	// House float: winners are paid 2x their stake, so an imbalanced
	// round needs more than the round's own stakes in the treasury.
	bank.Mint(wrapped, treasury, uint64(numRounds*numBettors*10*stakeUnit))
	bank.Mint(altAsset, treasury, uint64(numRounds*numBettors*10*stakeUnit))

	// Fund a population of bettors with native value and the alt asset.
	for i := 0; i < numBettors; i++ {
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		addr := ethcrypto.PubkeyToAddress(key.PublicKey)
		bank.MintNative(addr, 100*stakeUnit)
		bank.Mint(altAsset, addr, 100*stakeUnit)
		if err := bank.Approve(altAsset, addr, treasury, 100*stakeUnit); err != nil {
			return nil, err
		}
		sim.bettors = append(sim.bettors, addr)
	}

	return sim, nil
}

func main() {
	sim, err := newSimulation()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up simulation")
	}

	log.Info().
		Int("rounds", numRounds).
		Int("bettors", numBettors).
		Str("oracle", sim.oracleKeys.Address().Hex()).
		Msg("starting wagering ledger simulation")

	for i := 0; i < numRounds; i++ {
		if err := sim.runRound(i); err != nil {
			log.Error().Err(err).Int("round", i).Msg("round failed")
		}
	}

	sim.printStats()
}

// runRound drives one complete round lifecycle.
func (sim *simulation) runRound(n int) error {
	roundID := fmt.Sprintf("sim-round-%d", n)
	symbol := symbols[n%len(symbols)]
	now := time.Now().Unix()
	lock := now + betWindowSecs

	start := time.Now()
	_, err := sim.roundsSvc.CreateRound(roundID, symbol, lock, lock, lock+60)
	sim.stats["create"].record(time.Since(start), err)
	if err != nil {
		return err
	}

	// Workers place bets concurrently during the open window.
	var wg sync.WaitGroup
	jobs := make(chan common.Address, len(sim.bettors))
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for bettor := range jobs {
				sim.placeBet(roundID, bettor)
			}
		}()
	}
	for _, bettor := range sim.bettors {
		jobs <- bettor
	}
	close(jobs)
	wg.Wait()

	// Wait out the lock, then settle with a fresh attestation.
	time.Sleep(time.Until(time.Unix(lock, 0)) + 100*time.Millisecond)

	att := oracle.Attestation{
		RoundID:    roundID,
		ClosePrice: 50_000_0000 + uint64(rand.Intn(1_000_0000)),
		Outcome:    uint8(rand.Intn(3)),
		SignedAt:   time.Now().Unix(),
	}
	signature, err := sim.oracleKeys.Sign(att)
	if err != nil {
		return err
	}

	start = time.Now()
	round, err := sim.settleSvc.SettleRound(att, signature)
	sim.stats["settle"].record(time.Since(start), err)
	if err != nil {
		return err
	}

	log.Info().
		Str("round_id", roundID).
		Uint8("outcome", round.Outcome).
		Uint64("up_amount", round.UpAmount).
		Uint64("down_amount", round.DownAmount).
		Msg("round settled, claiming")

	won := 0
	for _, bettor := range sim.bettors {
		start = time.Now()
		_, err := sim.claimsSvc.Claim(roundID, bettor)
		sim.stats["claim"].record(time.Since(start), err)
		switch {
		case err == nil:
			won++
		case errors.Is(err, types.ErrNoWinnings):
			// losing side, expected
		default:
			log.Warn().Err(err).Str("bettor", bettor.Hex()).Msg("unexpected claim failure")
		}
	}

	log.Info().Str("round_id", roundID).Int("paid_claims", won).Msg("round complete")
	return nil
}

func (sim *simulation) placeBet(roundID string, bettor common.Address) {
	side := types.SideUp
	if rand.Intn(2) == 1 {
		side = types.SideDown
	}
	stake := uint64(rand.Intn(5)+1) * stakeUnit

	// Most bettors auto-wrap native value; some stake the alt asset.
	asset := wrapped
	nativeValue := stake
	amount := uint64(0)
	if rand.Intn(4) == 0 {
		asset = altAsset
		nativeValue = 0
		amount = stake
	}

	start := time.Now()
	_, err := sim.betsSvc.PlaceBet(roundID, bettor, side, amount, asset, nativeValue)
	sim.stats["bet"].record(time.Since(start), err)
	if err != nil && !errors.Is(err, types.ErrTokenMismatch) {
		log.Warn().Err(err).Str("bettor", bettor.Hex()).Msg("bet rejected")
	}
}

// printStats renders the per-operation latency summary.
func (sim *simulation) printStats() {
	fmt.Println("\n=== Simulation Results ===")
	for _, key := range []string{"create", "bet", "settle", "claim"} {
		st := sim.stats[key]
		min, max, mean, median, p95, p99 := st.calculate()
		fmt.Printf("\n%s (%d calls, %d failures)\n", st.name, st.totalCalls, st.failures)
		fmt.Printf("  min=%v max=%v mean=%v median=%v p95=%v p99=%v\n",
			min, max, mean, median, p95, p99)
	}

	fmt.Printf("\nTreasury wrapped balance: %d\n", sim.bank.BalanceOf(wrapped, treasury))
	fmt.Printf("Treasury alt balance:     %d\n", sim.bank.BalanceOf(altAsset, treasury))
}
