package proofs

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// ErrInvalidSignature is returned when a proof's signature is malformed or
// does not recover to any identity.
var ErrInvalidSignature = errors.New("InvalidSignature")

// Domain constants of the typed-data signature. These are fixed protocol
// parameters; changing either invalidates every previously issued proof.
const (
	DomainName    = "LiquidMiners"
	DomainVersion = "1"
)

// Proof is a signed attestation that a user earned TotalPoints on a monitored
// exchange pair, covering the wall-clock interval ending at LastProofTime.
// The signature is an EIP-712 typed-data signature over all six fields,
// domain-separated by the pool address so a proof can never be replayed
// against another pool.
type Proof struct {
	SenderAddress common.Address
	TotalPoints   *big.Int
	Nonce         *big.Int
	LastProofTime *big.Int
	PoolAddress   common.Address
	UidHash       common.Hash

	// Signature is the 65-byte r||s||v attestation produced by the oracle.
	Signature []byte
}

// Verifier recovers attester identities from proof signatures. It holds no
// state; authorization of the recovered identity is the caller's concern.
type Verifier struct {
	ChainId *big.Int
}

func NewVerifier(chainId *big.Int) *Verifier {
	return &Verifier{ChainId: chainId}
}

func (v *Verifier) typedData(p *Proof) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Proof": {
				{Name: "senderAddress", Type: "address"},
				{Name: "totalPoints", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "lastProofTime", Type: "uint256"},
				{Name: "poolAddress", Type: "address"},
				{Name: "uidHash", Type: "bytes32"},
			},
		},
		PrimaryType: "Proof",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           (*gethmath.HexOrDecimal256)(v.ChainId),
			VerifyingContract: p.PoolAddress.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"senderAddress": p.SenderAddress.Hex(),
			"totalPoints":   (*gethmath.HexOrDecimal256)(p.TotalPoints),
			"nonce":         (*gethmath.HexOrDecimal256)(p.Nonce),
			"lastProofTime": (*gethmath.HexOrDecimal256)(p.LastProofTime),
			"poolAddress":   p.PoolAddress.Hex(),
			"uidHash":       p.UidHash.Hex(),
		},
	}
}

// HashProof computes the EIP-712 digest the oracle signs.
func (v *Verifier) HashProof(p *Proof) (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(v.typedData(p))
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to hash typed data")
	}
	return common.BytesToHash(hash), nil
}

// RecoverAttester returns the address that signed the proof. It performs no
// authorization check; the controller decides whether the recovered identity
// holds oracle capability.
func (v *Verifier) RecoverAttester(p *Proof) (common.Address, error) {
	if len(p.Signature) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}

	digest, err := v.HashProof(p)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}

	// Accept both 0/1 and the Ethereum-conventional 27/28 recovery ids.
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, p.Signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubKey, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// Sign attests a proof with the given oracle key, filling in p.Signature.
// The produced signature uses the 27/28 recovery id convention.
func (v *Verifier) Sign(p *Proof, key *ecdsa.PrivateKey) error {
	digest, err := v.HashProof(p)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return errors.Wrap(err, "failed to sign proof digest")
	}
	sig[crypto.RecoveryIDOffset] += 27
	p.Signature = sig
	return nil
}
