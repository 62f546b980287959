package attestlend

import (
	"crypto/ecdsa"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

const (
	// SignatureLength is the expected length of an ECDSA signature (r||s||v)
	SignatureLength = 65
	// recoveryIDIndex is the byte position of the recovery ID (v) in the signature
	recoveryIDIndex = 64
)

var newline = []byte{'\n'}

// SerializeClaim renders the exact byte layout witnesses sign:
// identifier, owner, timestamp and epoch joined by newlines.
// Off-chain signers must reproduce it byte for byte.
func SerializeClaim(claim CompleteClaimData) []byte {
	var b strings.Builder
	b.WriteString(claim.Identifier.Hex())
	b.WriteByte('\n')
	b.WriteString(AddressString(claim.Owner))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatUint(uint64(claim.TimestampS), 10))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatUint(uint64(claim.Epoch), 10))
	return []byte(b.String())
}

// HashClaimInfo binds the human readable claim to its identifier.
func HashClaimInfo(info ClaimInfo) common.Hash {
	return keccak(
		[]byte(info.Provider), newline,
		[]byte(info.Parameters), newline,
		[]byte(info.Context),
	)
}

func keccak(parts ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// RecoverSigner recovers the account that produced a personal-message
// signature over content.
func RecoverSigner(content, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, errorsmod.Wrapf(ErrInvalidSignature, "expected %d bytes, got %d", SignatureLength, len(signature))
	}

	hash := accounts.TextHash(content)
	pub, err := crypto.SigToPub(hash, normalizeSignature(signature))
	if err != nil {
		return common.Address{}, errorsmod.Wrapf(ErrInvalidSignature, "failed to recover public key: %v", err)
	}
	if pub == nil {
		return common.Address{}, errorsmod.Wrap(ErrInvalidSignature, "recovered public key is nil")
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverAllSigners recovers one signer per signature, in signature order.
// Repeated signers are kept as-is.
func RecoverAllSigners(signed SignedClaim) ([]common.Address, error) {
	if len(signed.Signatures) == 0 {
		return nil, errorsmod.Wrap(ErrNoSignatures, "signed claim carries no signatures")
	}

	content := SerializeClaim(signed.Claim)
	signers := make([]common.Address, 0, len(signed.Signatures))
	for i, sig := range signed.Signatures {
		signer, err := RecoverSigner(content, sig)
		if err != nil {
			return nil, errorsmod.Wrapf(err, "signature %d", i)
		}
		signers = append(signers, signer)
	}
	return signers, nil
}

// normalizeSignature converts the ECDSA recovery ID (v) from Ethereum format (27/28)
// to raw format (0/1) expected by crypto.SigToPub.
func normalizeSignature(sig []byte) []byte {
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)

	switch normalized[recoveryIDIndex] {
	case 27:
		normalized[recoveryIDIndex] = 0
	case 28:
		normalized[recoveryIDIndex] = 1
	}

	return normalized
}

// Sign produces an Ethereum style (v = 27/28) personal-message signature.
func Sign(content []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(content), key)
	if err != nil {
		return nil, err
	}
	sig[recoveryIDIndex] += 27
	return sig, nil
}

// SignBytes signs content with a hex encoded private key.
func SignBytes(content []byte, privatekey string) ([]byte, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privatekey, "0x"))
	if err != nil {
		return nil, err
	}
	return Sign(content, key)
}

// SignClaim is what a witness runs to attest a claim.
func SignClaim(claim CompleteClaimData, key *ecdsa.PrivateKey) ([]byte, error) {
	return Sign(SerializeClaim(claim), key)
}

// VerifySignature checks that signature over content was produced by address.
func VerifySignature(content, signature []byte, address common.Address) error {
	signer, err := RecoverSigner(content, signature)
	if err != nil {
		return err
	}
	if signer != address {
		return errorsmod.Wrapf(ErrUnauthorized, "signature by %s, expected %s", AddressString(signer), AddressString(address))
	}
	return nil
}
