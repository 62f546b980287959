package jwt

import (
	"encoding/hex"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/attestlend"
)

func newSigner(t *testing.T) (string, string) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(crypto.FromECDSA(key)), attestlend.AddressString(crypto.PubkeyToAddress(key.PublicKey))
}

func TestCreateValidate(t *testing.T) {
	privatekey, address := newSigner(t)
	now := time.Unix(1_700_000_000, 0)

	token, err := Create(Claims{
		Issuer:         address,
		Subject:        Subject,
		Audience:       "lend.example.com",
		ExpirationTime: strconv.FormatInt(now.Add(time.Minute).Unix(), 10),
	}, privatekey)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	header, claims, err := Validate(token, now)
	require.NoError(t, err)
	require.Equal(t, Algorithm, header.Algorithm)
	require.Equal(t, address, claims.Issuer)
	require.Equal(t, "lend.example.com", claims.Audience)

	_, _, err = Validate(token, now.Add(2*time.Minute))
	require.ErrorContains(t, err, "expired")
}

func TestValidateRejectsForgery(t *testing.T) {
	privatekey, _ := newSigner(t)
	_, victim := newSigner(t)

	token, err := Create(Claims{Issuer: victim, Subject: Subject}, privatekey)
	require.NoError(t, err)

	_, _, err = Validate(token, time.Now())
	require.ErrorIs(t, err, attestlend.ErrUnauthorized)
}

func TestValidateMalformed(t *testing.T) {
	privatekey, address := newSigner(t)
	token, err := Create(Claims{Issuer: address}, privatekey)
	require.NoError(t, err)
	parts := strings.Split(token, ".")

	for name, candidate := range map[string]string{
		"two segments":      parts[0] + "." + parts[1],
		"bad header":        "!!." + parts[1] + "." + parts[2],
		"bad signature":     parts[0] + "." + parts[1] + ".AAAA",
		"swapped payload":   parts[0] + "." + parts[0] + "." + parts[2],
		"unknown algorithm": "eyJ0eXAiOiJKV1QiLCJhbGciOiJFUzI1NiJ9." + parts[1] + "." + parts[2],
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := Validate(candidate, time.Now())
			require.Error(t, err)
		})
	}
}
