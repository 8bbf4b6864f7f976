package types

import "errors"

// Ledger error set. Every rejected precondition surfaces one of these so
// integrators can branch on cause; pkg/response maps them to HTTP codes.
var (
	ErrPaused       = errors.New("ledger is paused")
	ErrUnauthorized = errors.New("caller is not the administrator")
	ErrZeroAddress  = errors.New("zero address")

	ErrInvalidSchedule = errors.New("invalid round schedule")
	ErrDuplicateRound  = errors.New("round already exists")
	ErrRoundNotFound   = errors.New("round not found")
	ErrRoundNotOpen    = errors.New("round not open")

	ErrTokenNotSupported = errors.New("token not supported")
	ErrInvalidSide       = errors.New("invalid bet side")
	ErrInvalidBetAmount  = errors.New("invalid bet amount")
	ErrTokenMismatch     = errors.New("bet asset differs from existing bet")
	ErrCannotRemoveBase  = errors.New("cannot remove base asset")

	ErrInvalidOutcome      = errors.New("invalid outcome code")
	ErrRoundAlreadySettled = errors.New("round already settled")
	ErrSignatureExpired    = errors.New("attestation too old")
	ErrSignatureFromFuture = errors.New("attestation timestamp in the future")
	ErrInvalidSignature    = errors.New("signature does not recover to trusted signer")

	ErrNoWinnings     = errors.New("no winnings to claim")
	ErrAlreadyClaimed = errors.New("winnings already claimed")
)
