package oracle

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/predyn/wager-api/internal/types"
)

var testTreasury = common.HexToAddress("0x00000000000000000000000000000000000caFe1")

func TestSignRecoverRoundTrip(t *testing.T) {
	verifier := NewVerifier(1337, testTreasury)
	signer, err := GenerateSigner(verifier)
	require.NoError(t, err)

	att := Attestation{
		RoundID:    "round-1",
		ClosePrice: 52_341_0000,
		Outcome:    types.OutcomeUp,
		SignedAt:   time.Now().Unix(),
	}

	sig, err := signer.Sign(att)
	require.NoError(t, err)

	recovered, err := verifier.Recover(att, sig)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), recovered)
}

func TestRecoverWrongKey(t *testing.T) {
	verifier := NewVerifier(1337, testTreasury)
	signer, err := GenerateSigner(verifier)
	require.NoError(t, err)
	other, err := GenerateSigner(verifier)
	require.NoError(t, err)

	att := Attestation{RoundID: "round-1", Outcome: types.OutcomeDown, SignedAt: time.Now().Unix()}
	sig, err := other.Sign(att)
	require.NoError(t, err)

	recovered, err := verifier.Recover(att, sig)
	require.NoError(t, err)
	require.NotEqual(t, signer.Address(), recovered)
}

func TestDigestBindsEveryField(t *testing.T) {
	verifier := NewVerifier(1337, testTreasury)
	base := Attestation{RoundID: "round-1", ClosePrice: 100, Outcome: types.OutcomeUp, SignedAt: 1700000000}
	baseDigest := verifier.Digest(base)

	variants := []Attestation{
		{RoundID: "round-2", ClosePrice: 100, Outcome: types.OutcomeUp, SignedAt: 1700000000},
		{RoundID: "round-1", ClosePrice: 101, Outcome: types.OutcomeUp, SignedAt: 1700000000},
		{RoundID: "round-1", ClosePrice: 100, Outcome: types.OutcomeDown, SignedAt: 1700000000},
		{RoundID: "round-1", ClosePrice: 100, Outcome: types.OutcomeUp, SignedAt: 1700000001},
	}
	for _, v := range variants {
		require.NotEqual(t, baseDigest, verifier.Digest(v))
	}

	// Deterministic for identical input.
	require.Equal(t, baseDigest, verifier.Digest(base))
}

func TestDigestBindsDeployment(t *testing.T) {
	att := Attestation{RoundID: "round-1", ClosePrice: 100, Outcome: types.OutcomeUp, SignedAt: 1700000000}

	a := NewVerifier(1337, testTreasury)
	otherChain := NewVerifier(137, testTreasury)
	otherContract := NewVerifier(1337, common.HexToAddress("0x00000000000000000000000000000000000caFe9"))

	require.NotEqual(t, a.Digest(att), otherChain.Digest(att))
	require.NotEqual(t, a.Digest(att), otherContract.Digest(att))
}

func TestCheckFreshness(t *testing.T) {
	verifier := NewVerifier(1337, testTreasury)
	now := time.Now()

	cases := []struct {
		name     string
		signedAt int64
		want     error
	}{
		{"current", now.Unix(), nil},
		{"just inside future skew", now.Add(299 * time.Second).Unix(), nil},
		{"beyond future skew", now.Add(301 * time.Second).Unix(), types.ErrSignatureFromFuture},
		{"just inside staleness", now.Add(-3599 * time.Second).Unix(), nil},
		{"stale", now.Add(-3601 * time.Second).Unix(), types.ErrSignatureExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := verifier.CheckFreshness(Attestation{SignedAt: tc.signedAt}, now)
			if tc.want == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestRecoverMalformedSignature(t *testing.T) {
	verifier := NewVerifier(1337, testTreasury)
	att := Attestation{RoundID: "round-1", SignedAt: time.Now().Unix()}

	_, err := verifier.Recover(att, "0xzz")
	require.Error(t, err)

	_, err = verifier.Recover(att, "0x1234")
	require.Error(t, err)
}
