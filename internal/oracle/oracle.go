package oracle

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/predyn/wager-api/internal/types"
)

// Freshness bounds on the attestation timestamp. Both are part of the
// external contract with the oracle signer.
const (
	MaxFutureSkew = 300 * time.Second
	MaxAge        = 3600 * time.Second
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Settlement(string roundId,uint256 closePrice,uint8 outcome,uint256 signedAt)
	settlementTypeHash = ethcrypto.Keccak256(
		[]byte("Settlement(string roundId,uint256 closePrice,uint8 outcome,uint256 signedAt)"),
	)
)

// Attestation is the oracle's statement about a round outcome. The field
// set and ordering in the hashed message must match the oracle's signer
// exactly.
type Attestation struct {
	RoundID    string `json:"round_id"`
	ClosePrice uint64 `json:"close_price"`
	Outcome    uint8  `json:"outcome"`
	SignedAt   int64  `json:"signed_at"` // epoch seconds
}

// Verifier checks detached settlement signatures against one deployment's
// domain. The chain id and treasury address bind signatures to exactly
// one deployment and prevent cross-deployment replay.
type Verifier struct {
	chainID   int64
	treasury  common.Address
	domainSep []byte
}

func NewVerifier(chainID int64, treasury common.Address) *Verifier {
	return &Verifier{
		chainID:   chainID,
		treasury:  treasury,
		domainSep: buildDomainSeparator("PredictionLedger", "1", chainID, treasury),
	}
}

// CheckFreshness validates the attestation timestamp against now.
func (v *Verifier) CheckFreshness(att Attestation, now time.Time) error {
	signed := time.Unix(att.SignedAt, 0)
	if signed.After(now.Add(MaxFutureSkew)) {
		return types.ErrSignatureFromFuture
	}
	if signed.Before(now.Add(-MaxAge)) {
		return types.ErrSignatureExpired
	}
	return nil
}

// Digest computes the domain-separated digest the oracle signs:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func (v *Verifier) Digest(att Attestation) []byte {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			settlementTypeHash,
			ethcrypto.Keccak256([]byte(att.RoundID)),
			uintTo32Bytes(att.ClosePrice),
			uintTo32Bytes(uint64(att.Outcome)),
			uintTo32Bytes(uint64(att.SignedAt)),
		),
	)
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			v.domainSep,
			structHash,
		),
	)
}

// Recover returns the address that produced the 65-byte hex signature over
// the attestation digest.
func (v *Verifier) Recover(att Attestation, signature string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("oracle: malformed signature: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("oracle: signature must be 65 bytes, got %d", len(sig))
	}

	// Accept v in {27,28} as produced by most signers; go-ethereum wants {0,1}.
	recovery := make([]byte, 65)
	copy(recovery, sig)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(v.Digest(att), recovery)
	if err != nil {
		return common.Address{}, fmt.Errorf("oracle: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Signer produces attestation signatures. It exists for the simulation
// and tests; in production the oracle signs off-system.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	verifier   *Verifier
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key over
// the same domain as the given verifier.
func NewSigner(privateKeyHex string, verifier *Verifier) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("oracle: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		verifier:   verifier,
	}, nil
}

// GenerateSigner creates a Signer with a fresh random key.
func GenerateSigner(verifier *Verifier) (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("oracle: generate key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		verifier:   verifier,
	}, nil
}

// Address returns the signer's recoverable address.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign returns the hex-encoded 65-byte signature (r || s || v, v in {27,28})
// over the attestation digest.
func (s *Signer) Sign(att Attestation) (string, error) {
	sig, err := ethcrypto.Sign(s.verifier.Digest(att), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("oracle: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns
// keccak256(abi.encode(typeHash, nameHash, versionHash, chainId, verifyingContract)).
func buildDomainSeparator(name, version string, chainID int64, verifying common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			domainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(verifying.Bytes(), 32),
		),
	)
}

func uintTo32Bytes(n uint64) []byte {
	return bigIntTo32Bytes(new(big.Int).SetUint64(n))
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	var buf bytes.Buffer
	for _, s := range slices {
		buf.Write(s)
	}
	return buf.Bytes()
}
