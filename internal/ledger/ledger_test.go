package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/predyn/wager-api/internal/database"
	"github.com/predyn/wager-api/internal/types"
)

var (
	adminAddr  = common.HexToAddress("0x00000000000000000000000000000000000caFe3")
	signerAddr = common.HexToAddress("0x000000000000000000000000000000000000f001")
	nextSigner = common.HexToAddress("0x000000000000000000000000000000000000f002")
)

func TestPauseGate(t *testing.T) {
	db, err := database.NewTestDatabase(t.Name())
	require.NoError(t, err)

	state, err := NewState(db, adminAddr, signerAddr)
	require.NoError(t, err)

	require.NoError(t, state.CheckNotPaused())
	require.False(t, state.Paused())

	require.NoError(t, state.Pause())
	require.ErrorIs(t, state.CheckNotPaused(), types.ErrPaused)

	require.NoError(t, state.Unpause())
	require.NoError(t, state.CheckNotPaused())
}

func TestSignerRotation(t *testing.T) {
	db, err := database.NewTestDatabase(t.Name())
	require.NoError(t, err)

	state, err := NewState(db, adminAddr, signerAddr)
	require.NoError(t, err)
	require.Equal(t, signerAddr, state.OracleSigner())

	require.ErrorIs(t, state.SetOracleSigner(common.Address{}), types.ErrZeroAddress)
	require.Equal(t, signerAddr, state.OracleSigner())

	require.NoError(t, state.SetOracleSigner(nextSigner))
	require.Equal(t, nextSigner, state.OracleSigner())
}

// TestStateSurvivesRestart reopens the same database and expects the
// seeded arguments to be ignored in favour of the persisted row.
func TestStateSurvivesRestart(t *testing.T) {
	db, err := database.NewTestDatabase(t.Name())
	require.NoError(t, err)

	state, err := NewState(db, adminAddr, signerAddr)
	require.NoError(t, err)
	require.NoError(t, state.Pause())
	require.NoError(t, state.SetOracleSigner(nextSigner))

	reopened, err := NewState(db, adminAddr, signerAddr)
	require.NoError(t, err)
	require.True(t, reopened.Paused())
	require.Equal(t, nextSigner, reopened.OracleSigner())
	require.Equal(t, adminAddr, reopened.Admin())
}

func TestIsAdmin(t *testing.T) {
	db, err := database.NewTestDatabase(t.Name())
	require.NoError(t, err)

	state, err := NewState(db, adminAddr, signerAddr)
	require.NoError(t, err)

	require.True(t, state.IsAdmin(adminAddr.Hex()))
	require.True(t, state.IsAdmin("0x00000000000000000000000000000000000CAFE3"))
	require.False(t, state.IsAdmin(signerAddr.Hex()))
}
