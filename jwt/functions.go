package jwt

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/totegamma/attestlend"
)

const (
	TokenType = "JWT"
	Algorithm = "ATTESTLEND"
	Subject   = "attestlend"
)

// Create signs claims with a hex encoded secp256k1 key using the
// personal-message scheme witnesses use for claims.
func Create(claims Claims, privatekey string) (string, error) {
	header := Header{
		Type:      TokenType,
		Algorithm: Algorithm,
	}
	headerStr, err := json.Marshal(header)
	if err != nil {
		return "", err
	}

	payloadStr, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	headerB64 := base64.RawURLEncoding.EncodeToString(headerStr)
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadStr)
	target := headerB64 + "." + payloadB64

	signatureBytes, err := attestlend.SignBytes([]byte(target), privatekey)
	if err != nil {
		return "", errors.Wrap(err, "sign jwt")
	}
	signatureB64 := base64.RawURLEncoding.EncodeToString(signatureBytes)

	return target + "." + signatureB64, nil
}

// Validate checks that the token is well formed, not expired at now and
// signed by the address in kid or iss.
func Validate(jwt string, now time.Time) (*Header, *Claims, error) {
	split := strings.Split(jwt, ".")
	if len(split) != 3 {
		return nil, nil, errors.New("invalid jwt format")
	}

	var header Header
	headerBytes, err := base64.RawURLEncoding.DecodeString(split[0])
	if err != nil {
		return nil, nil, errors.Wrap(err, "decode header")
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, nil, errors.Wrap(err, "parse header")
	}

	if header.Type != TokenType || header.Algorithm != Algorithm {
		return nil, nil, errors.Errorf("unsupported jwt type %s/%s", header.Type, header.Algorithm)
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(split[1])
	if err != nil {
		return nil, nil, errors.Wrap(err, "decode payload")
	}

	var claims Claims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, nil, errors.Wrap(err, "parse payload")
	}

	if claims.ExpirationTime != "" {
		exp, err := strconv.ParseInt(claims.ExpirationTime, 10, 64)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parse exp")
		}
		if exp < now.Unix() {
			return nil, nil, errors.New("jwt is already expired")
		}
	}

	signatureBytes, err := base64.RawURLEncoding.DecodeString(split[2])
	if err != nil {
		return nil, nil, errors.Wrap(err, "decode signature")
	}

	keyID := header.KeyID
	if keyID == "" {
		keyID = claims.Issuer
	}
	signer, err := attestlend.ParseAddress(keyID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "issuer")
	}

	err = attestlend.VerifySignature([]byte(split[0]+"."+split[1]), signatureBytes, signer)
	if err != nil {
		return nil, nil, err
	}

	return &header, &claims, nil
}
