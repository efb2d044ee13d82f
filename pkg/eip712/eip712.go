// Package eip712 builds the typed-data digests the quantum portal contracts verify and packs
// signatures into the contracts' compressed multisig layout.
//
// Array members of the portal structs are ABI encoded in place rather than hashed, matching the
// verifying contracts, so these digests differ from generic EIP-712 whenever an array is present.
package eip712

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/abi"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
)

const (
	DomainTypeSignature            = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	FinalizeTypeSignature          = "Finalize(uint256 remoteChainId,uint256 blockNonce,bytes32 finalizersHash,address[] finalizers,bytes32 salt,uint64 expiry)"
	ValidateAuthorityTypeSignature = "ValidateAuthoritySignature(uint256 action,bytes32 msgHash,bytes32 salt,uint64 expiry)"
	MinerTypeSignature             = "MinerSignature(bytes32 msgHash,uint64 expiry,bytes32 salt)"

	// ActionFinalize is the authority action code for block finalization.
	ActionFinalize = 1

	// CompressedSignatureLength is the size of one packed signature.
	CompressedSignatureLength = 96

	// compressedV is the recovery byte the verifying contracts expect in the packed form.
	compressedV = 28
)

var (
	domainTypeHash            = chainutils.Keccak256([]byte(DomainTypeSignature))
	finalizeTypeHash          = chainutils.Keccak256([]byte(FinalizeTypeSignature))
	validateAuthorityTypeHash = chainutils.Keccak256([]byte(ValidateAuthorityTypeSignature))
	minerTypeHash             = chainutils.Keccak256([]byte(MinerTypeSignature))
)

// Domain identifies the verifying contract.
type Domain struct {
	Name              []byte
	Version           []byte
	ChainID           uint64
	VerifyingContract common.Address
}

// SeparatorHash returns the domain separator of d.
func (d Domain) SeparatorHash() common.Hash {
	return DomainSeparatorHash(d.Name, d.Version, d.ChainID, d.VerifyingContract)
}

// DomainSeparatorHash is keccak(typeHash ‖ keccak(name) ‖ keccak(version) ‖ uint256(chainID) ‖ address).
func DomainSeparatorHash(name, version []byte, chainID uint64, verifyingContract common.Address) common.Hash {
	return EncodedHash(
		hashToken(domainTypeHash),
		hashToken(chainutils.Keccak256(name)),
		hashToken(chainutils.Keccak256(version)),
		abi.Uint64Token(chainID),
		abi.AddressToken(verifyingContract),
	)
}

// Hash returns keccak(0x19 ‖ 0x01 ‖ domainSeparator ‖ structHash).
func Hash(domainSeparator, structHash common.Hash) common.Hash {
	return chainutils.Keccak256([]byte{0x19, 0x01}, domainSeparator[:], structHash[:])
}

// EncodedHash returns keccak(abi.encode(tokens)).
func EncodedHash(tokens ...abi.Token) common.Hash {
	return chainutils.Keccak256(abi.Encode(tokens))
}

func hashToken(h common.Hash) abi.Token {
	return abi.FixedBytesToken(h[:])
}

// FinalizeMessage is the payload a finalizer attests to.
type FinalizeMessage struct {
	RemoteChainID  uint64
	BlockNonce     uint64
	FinalizersHash common.Hash
	Finalizers     []common.Address
	Salt           common.Hash
	Expiry         uint64
}

// FinalizeMessageHash returns the message hash wrapped by the authority envelope.
func FinalizeMessageHash(m FinalizeMessage) common.Hash {
	finalizers := make([]abi.Token, 0, len(m.Finalizers))
	for _, f := range m.Finalizers {
		finalizers = append(finalizers, abi.AddressToken(f))
	}
	return EncodedHash(
		hashToken(finalizeTypeHash),
		abi.Uint64Token(m.RemoteChainID),
		abi.Uint64Token(m.BlockNonce),
		hashToken(m.FinalizersHash),
		abi.ArrayToken(finalizers...),
		hashToken(m.Salt),
		abi.Uint64Token(m.Expiry),
	)
}

// ValidateAuthorityHash returns the struct hash of ValidateAuthoritySignature.
func ValidateAuthorityHash(action uint64, msgHash, salt common.Hash, expiry uint64) common.Hash {
	return EncodedHash(
		hashToken(validateAuthorityTypeHash),
		abi.Uint64Token(action),
		hashToken(msgHash),
		hashToken(salt),
		abi.Uint64Token(expiry),
	)
}

// FinalizeDigest is the hash a finalizer signs for m under the authority manager domain.
func FinalizeDigest(domain Domain, m FinalizeMessage) common.Hash {
	structHash := ValidateAuthorityHash(ActionFinalize, FinalizeMessageHash(m), m.Salt, m.Expiry)
	return Hash(domain.SeparatorHash(), structHash)
}

// MinerMessage is the payload a miner attests to. Txs are the mineRemoteBlock tuple tokens.
type MinerMessage struct {
	RemoteChainID uint64
	BlockNonce    uint64
	Txs           []abi.Token
	Salt          common.Hash
	Expiry        uint64
}

// MinerMessageHash is keccak(abi.encode(uint256 chainId, uint256 nonce, txs)).
func MinerMessageHash(m MinerMessage) common.Hash {
	return EncodedHash(
		abi.Uint64Token(m.RemoteChainID),
		abi.Uint64Token(m.BlockNonce),
		abi.ArrayToken(m.Txs...),
	)
}

// MinerSignatureHash returns the struct hash of MinerSignature.
func MinerSignatureHash(msgHash common.Hash, expiry uint64, salt common.Hash) common.Hash {
	return EncodedHash(
		hashToken(minerTypeHash),
		hashToken(msgHash),
		abi.Uint64Token(expiry),
		hashToken(salt),
	)
}

// MinerDigest is the hash a miner signs for m under the miner manager domain.
func MinerDigest(domain Domain, m MinerMessage) common.Hash {
	return Hash(domain.SeparatorHash(), MinerSignatureHash(MinerMessageHash(m), m.Expiry, m.Salt))
}

// CompressSignature packs a 65 byte signature as r ‖ s ‖ 0x1c ‖ 31 zero bytes.
func CompressSignature(sig []byte) ([]byte, error) {
	return CompressSignatures([][]byte{sig})
}

// CompressSignatures concatenates the r ‖ s halves of every signature, then appends one v byte
// per signature, zero padded to a 32 byte boundary.
func CompressSignatures(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, chainutils.NewTransactionCreationError(chainutils.MultisigError, fmt.Errorf("no signatures to compress"))
	}
	vLen := (len(sigs) + 31) / 32 * 32
	out := make([]byte, 0, 64*len(sigs)+vLen)
	for i, sig := range sigs {
		if len(sig) != 65 {
			return nil, chainutils.NewTransactionCreationError(chainutils.MultisigError, fmt.Errorf("signature %d is %d bytes", i, len(sig)))
		}
		out = append(out, sig[:64]...)
	}
	vs := make([]byte, vLen)
	for i := range sigs {
		vs[i] = compressedV
	}
	return append(out, vs...), nil
}

// TypedDataHash computes the standard EIP-712 digest of td.
func TypedDataHash(td apitypes.TypedData) (common.Hash, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash %s: %w", td.PrimaryType, err)
	}
	return Hash(common.BytesToHash(domainSeparator), common.BytesToHash(structHash)), nil
}
