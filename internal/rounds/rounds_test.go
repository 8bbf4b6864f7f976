package rounds

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/predyn/wager-api/internal/database"
	"github.com/predyn/wager-api/internal/events"
	"github.com/predyn/wager-api/internal/ledger"
	"github.com/predyn/wager-api/internal/types"
)

func newTestService(t *testing.T) (*Service, *ledger.State) {
	t.Helper()

	db, err := database.NewTestDatabase(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)

	state, err := ledger.NewState(db,
		common.HexToAddress("0x00000000000000000000000000000000000caFe3"),
		common.Address{})
	require.NoError(t, err)

	return NewService(db, state, events.NewPublisher(db)), state
}

func TestCreateRound(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now().Unix()

	round, err := svc.CreateRound("r1", "BTCUSDT", now+60, now+30, now+120)
	require.NoError(t, err)
	require.Equal(t, types.RoundStatusOpen, round.Status)
	require.False(t, round.Settled)
	require.Zero(t, round.ClosePrice)
	require.Zero(t, round.UpAmount)
	require.Zero(t, round.DownAmount)

	got, err := svc.GetRound("r1")
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", got.Symbol)
}

func TestCreateRoundInvalidSchedule(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now().Unix()

	cases := []struct {
		name             string
		start, lock, end int64
	}{
		{"lock after start", now + 10, now + 20, now + 60},
		{"end equals start", now + 10, now + 10, now + 10},
		{"end before start", now + 60, now + 10, now + 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRound("r-"+tc.name, "BTCUSDT", tc.start, tc.lock, tc.end)
			require.ErrorIs(t, err, types.ErrInvalidSchedule)
		})
	}

	// lock == start is a valid schedule.
	_, err := svc.CreateRound("r-eq", "BTCUSDT", now+10, now+10, now+60)
	require.NoError(t, err)
}

func TestCreateRoundDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now().Unix()

	_, err := svc.CreateRound("dup", "BTCUSDT", now+60, now+30, now+120)
	require.NoError(t, err)

	// Second create fails regardless of other arguments.
	_, err = svc.CreateRound("dup", "ETHUSDT", now+600, now+300, now+1200)
	require.ErrorIs(t, err, types.ErrDuplicateRound)
}

func TestGetRoundNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetRound("missing")
	require.ErrorIs(t, err, types.ErrRoundNotFound)
}

func TestCreateRoundWhilePaused(t *testing.T) {
	svc, state := newTestService(t)
	require.NoError(t, state.Pause())

	now := time.Now().Unix()
	_, err := svc.CreateRound("r1", "BTCUSDT", now+60, now+30, now+120)
	require.ErrorIs(t, err, types.ErrPaused)

	require.NoError(t, state.Unpause())
	_, err = svc.CreateRound("r1", "BTCUSDT", now+60, now+30, now+120)
	require.NoError(t, err)
}
