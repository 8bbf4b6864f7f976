package claims

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/predyn/wager-api/internal/assets"
	"github.com/predyn/wager-api/internal/betting"
	"github.com/predyn/wager-api/internal/database"
	"github.com/predyn/wager-api/internal/events"
	"github.com/predyn/wager-api/internal/ledger"
	"github.com/predyn/wager-api/internal/oracle"
	"github.com/predyn/wager-api/internal/rounds"
	"github.com/predyn/wager-api/internal/settlement"
	"github.com/predyn/wager-api/internal/token"
	"github.com/predyn/wager-api/internal/types"
)

var (
	treasury = common.HexToAddress("0x00000000000000000000000000000000000caFe1")
	wrapped  = common.HexToAddress("0x00000000000000000000000000000000000caFe2")
	admin    = common.HexToAddress("0x00000000000000000000000000000000000caFe3")
	altAsset = common.HexToAddress("0x00000000000000000000000000000000000caFe4")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b01")
)

const unit = 1_000_000 // 1.0 staked

type testEnv struct {
	db     *gorm.DB
	svc    *Service
	rounds *rounds.Service
	bets   *betting.Service
	settle *settlement.Service
	signer *oracle.Signer
	bank   *token.Bank
	state  *ledger.State
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewTestDatabase(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)

	verifier := oracle.NewVerifier(1337, treasury)
	signer, err := oracle.GenerateSigner(verifier)
	require.NoError(t, err)

	state, err := ledger.NewState(db, admin, signer.Address())
	require.NoError(t, err)

	publisher := events.NewPublisher(db)
	registry, err := assets.NewService(db, state, publisher, wrapped)
	require.NoError(t, err)
	require.NoError(t, registry.AddAsset(altAsset))

	bank := token.NewBank(wrapped)
	for _, account := range []common.Address{alice, bob} {
		bank.MintNative(account, 10*unit)
		bank.Mint(altAsset, account, 10*unit)
		require.NoError(t, bank.Approve(altAsset, account, treasury, 10*unit))
	}

	return &testEnv{
		db:     db,
		svc:    NewService(db, state, bank, publisher, treasury),
		rounds: rounds.NewService(db, state, publisher),
		bets:   betting.NewService(db, state, registry, bank, publisher, treasury),
		settle: settlement.NewService(db, state, verifier, publisher),
		signer: signer,
		bank:   bank,
		state:  state,
	}
}

func (e *testEnv) createRound(t *testing.T, id string, lockDelta int64) {
	t.Helper()
	now := time.Now().Unix()
	_, err := e.rounds.CreateRound(id, "BTCUSDT", now+lockDelta, now+lockDelta, now+lockDelta+600)
	require.NoError(t, err)
}

// passLock rewinds the stored lock time so betting closes without
// sleeping through the window.
func (e *testEnv) passLock(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.db.Model(&types.Round{}).
		Where("round_id = ?", id).
		Update("lock_time", time.Now().Unix()-10).Error)
}

func (e *testEnv) settleRound(t *testing.T, id string, outcome uint8) {
	t.Helper()
	att := oracle.Attestation{
		RoundID:    id,
		ClosePrice: 50_000_0000,
		Outcome:    outcome,
		SignedAt:   time.Now().Unix(),
	}
	sig, err := e.signer.Sign(att)
	require.NoError(t, err)
	_, err = e.settle.SettleRound(att, sig)
	require.NoError(t, err)
}

func TestPayoutLaw(t *testing.T) {
	cases := []struct {
		name    string
		outcome uint8
		side    string
		stake   uint64
		want    uint64
		wantErr error
	}{
		{"tie refunds stake", types.OutcomeTie, types.SideUp, 100, 100, nil},
		{"tie refunds down side too", types.OutcomeTie, types.SideDown, 7, 7, nil},
		{"up winner doubles", types.OutcomeUp, types.SideUp, 100, 200, nil},
		{"down winner doubles", types.OutcomeDown, types.SideDown, 33, 66, nil},
		{"up loser gets nothing", types.OutcomeDown, types.SideUp, 100, 0, types.ErrNoWinnings},
		{"down loser gets nothing", types.OutcomeUp, types.SideDown, 100, 0, types.ErrNoWinnings},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Payout(tc.outcome, tc.side, tc.stake)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

// TestRoundTrip is the full lifecycle: two bettors stake 1.0 on opposite
// sides via the wrapped asset, the round locks, the oracle attests UP,
// the winner claims 2.0 and the loser's claim fails.
func TestRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.createRound(t, "r1", 300)

	_, err := env.bets.PlaceBet("r1", alice, types.SideUp, 0, wrapped, unit)
	require.NoError(t, err)
	_, err = env.bets.PlaceBet("r1", bob, types.SideDown, 0, wrapped, unit)
	require.NoError(t, err)

	env.passLock(t, "r1")
	env.settleRound(t, "r1", types.OutcomeUp)

	payout, err := env.svc.Claim("r1", alice)
	require.NoError(t, err)
	require.EqualValues(t, 2*unit, payout)
	require.EqualValues(t, 2*unit, env.bank.BalanceOf(wrapped, alice))

	// Loser's claim fails with no transfer.
	_, err = env.svc.Claim("r1", bob)
	require.ErrorIs(t, err, types.ErrNoWinnings)
	require.Zero(t, env.bank.BalanceOf(wrapped, bob))

	// Winner's second claim fails.
	_, err = env.svc.Claim("r1", alice)
	require.ErrorIs(t, err, types.ErrAlreadyClaimed)
	require.EqualValues(t, 2*unit, env.bank.BalanceOf(wrapped, alice))
}

func TestClaimTieRefundsBothSides(t *testing.T) {
	env := newTestEnv(t)
	env.createRound(t, "r1", 300)

	_, err := env.bets.PlaceBet("r1", alice, types.SideUp, 2*unit, altAsset, 0)
	require.NoError(t, err)
	_, err = env.bets.PlaceBet("r1", bob, types.SideDown, unit, altAsset, 0)
	require.NoError(t, err)

	env.passLock(t, "r1")
	env.settleRound(t, "r1", types.OutcomeTie)

	payout, err := env.svc.Claim("r1", alice)
	require.NoError(t, err)
	require.EqualValues(t, 2*unit, payout)

	payout, err = env.svc.Claim("r1", bob)
	require.NoError(t, err)
	require.EqualValues(t, unit, payout)

	// Treasury is fully drained after a tie refund.
	require.Zero(t, env.bank.BalanceOf(altAsset, treasury))
}

func TestClaimNativeUnwraps(t *testing.T) {
	env := newTestEnv(t)
	env.createRound(t, "r1", 300)

	_, err := env.bets.PlaceBet("r1", alice, types.SideUp, 0, wrapped, unit)
	require.NoError(t, err)
	nativeBefore := env.bank.NativeBalanceOf(alice)

	env.passLock(t, "r1")
	env.settleRound(t, "r1", types.OutcomeTie)

	payout, err := env.svc.ClaimNative("r1", alice)
	require.NoError(t, err)
	require.EqualValues(t, unit, payout)
	require.Equal(t, nativeBefore+unit, env.bank.NativeBalanceOf(alice))
	require.Zero(t, env.bank.BalanceOf(wrapped, alice))
}

func TestClaimGates(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Claim("missing", alice)
	require.ErrorIs(t, err, types.ErrRoundNotFound)

	env.createRound(t, "r1", 300)
	_, err = env.bets.PlaceBet("r1", alice, types.SideUp, unit, altAsset, 0)
	require.NoError(t, err)

	// Unsettled round rejects claims.
	_, err = env.svc.Claim("r1", alice)
	require.ErrorIs(t, err, types.ErrRoundNotOpen)

	env.passLock(t, "r1")
	env.settleRound(t, "r1", types.OutcomeUp)

	// No stake looks the same as a losing stake.
	_, err = env.svc.Claim("r1", bob)
	require.ErrorIs(t, err, types.ErrNoWinnings)
}

func TestClaimWhilePaused(t *testing.T) {
	env := newTestEnv(t)
	env.createRound(t, "r1", 300)
	_, err := env.bets.PlaceBet("r1", alice, types.SideUp, unit, altAsset, 0)
	require.NoError(t, err)

	env.passLock(t, "r1")
	env.settleRound(t, "r1", types.OutcomeUp)
	require.NoError(t, env.state.Pause())

	_, err = env.svc.Claim("r1", alice)
	require.ErrorIs(t, err, types.ErrPaused)
}

// TestConcurrentClaims races many claims for one bet; exactly one may
// pay out.
func TestConcurrentClaims(t *testing.T) {
	env := newTestEnv(t)
	env.createRound(t, "r1", 300)
	_, err := env.bets.PlaceBet("r1", alice, types.SideUp, unit, altAsset, 0)
	require.NoError(t, err)
	_, err = env.bets.PlaceBet("r1", bob, types.SideDown, unit, altAsset, 0)
	require.NoError(t, err)

	env.passLock(t, "r1")
	env.settleRound(t, "r1", types.OutcomeUp)

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Claim("r1", alice)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	paid := 0
	for err := range results {
		if err == nil {
			paid++
		} else {
			require.ErrorIs(t, err, types.ErrAlreadyClaimed)
		}
	}
	require.Equal(t, 1, paid)
	require.EqualValues(t, 11*unit, env.bank.BalanceOf(altAsset, alice))
	require.Zero(t, env.bank.BalanceOf(altAsset, treasury))
}

// TestClaimRetriesAfterTreasuryShortfall covers an imbalanced round
// where the treasury holds less than a winner's 2x payout. The failed
// transfer must reopen the claim so it succeeds once funds exist.
func TestClaimRetriesAfterTreasuryShortfall(t *testing.T) {
	env := newTestEnv(t)
	env.createRound(t, "r1", 300)

	_, err := env.bets.PlaceBet("r1", alice, types.SideUp, 2*unit, altAsset, 0)
	require.NoError(t, err)
	_, err = env.bets.PlaceBet("r1", bob, types.SideDown, unit, altAsset, 0)
	require.NoError(t, err)

	env.passLock(t, "r1")
	env.settleRound(t, "r1", types.OutcomeUp)

	// Treasury holds 3 units; alice is owed 4.
	_, err = env.svc.Claim("r1", alice)
	require.ErrorIs(t, err, token.ErrInsufficientBalance)
	require.NotErrorIs(t, err, types.ErrAlreadyClaimed)
	require.EqualValues(t, 8*unit, env.bank.BalanceOf(altAsset, alice))

	// Once the treasury is funded, the retry pays out in full.
	env.bank.Mint(altAsset, treasury, unit)
	payout, err := env.svc.Claim("r1", alice)
	require.NoError(t, err)
	require.EqualValues(t, 4*unit, payout)
	require.EqualValues(t, 12*unit, env.bank.BalanceOf(altAsset, alice))

	_, err = env.svc.Claim("r1", alice)
	require.ErrorIs(t, err, types.ErrAlreadyClaimed)
}

func TestEmergencyWithdrawWhilePaused(t *testing.T) {
	env := newTestEnv(t)
	env.createRound(t, "r1", 300)
	_, err := env.bets.PlaceBet("r1", alice, types.SideUp, unit, altAsset, 0)
	require.NoError(t, err)

	require.NoError(t, env.state.Pause())

	swept, err := env.svc.EmergencyWithdrawAsset(altAsset)
	require.NoError(t, err)
	require.EqualValues(t, unit, swept)
	require.EqualValues(t, unit, env.bank.BalanceOf(altAsset, admin))
}

func TestEmergencyWithdraw(t *testing.T) {
	env := newTestEnv(t)
	env.createRound(t, "r1", 300)

	_, err := env.bets.PlaceBet("r1", alice, types.SideUp, 0, wrapped, unit)
	require.NoError(t, err)
	_, err = env.bets.PlaceBet("r1", bob, types.SideDown, unit, altAsset, 0)
	require.NoError(t, err)

	swept, err := env.svc.EmergencyWithdraw()
	require.NoError(t, err)
	require.EqualValues(t, unit, swept)
	require.EqualValues(t, unit, env.bank.BalanceOf(wrapped, admin))
	require.Zero(t, env.bank.BalanceOf(wrapped, treasury))

	swept, err = env.svc.EmergencyWithdrawAsset(altAsset)
	require.NoError(t, err)
	require.EqualValues(t, unit, swept)

	// Nothing left to sweep.
	swept, err = env.svc.EmergencyWithdrawAsset(altAsset)
	require.NoError(t, err)
	require.Zero(t, swept)
}
