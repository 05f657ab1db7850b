package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	syncerrors "devicesync/errors"
)

var testSecret = []byte("unit-test-secret")

func TestVerifier_ValidTokenRoundTrip(t *testing.T) {
	req := require.New(t)
	verifier := NewVerifier(testSecret)

	token, err := GenerateToken(testSecret, "alice", time.Hour)
	req.NoError(err)

	userID, err := verifier.Verify(token)
	req.NoError(err)
	req.Equal("alice", userID)
}

func TestVerifier_ExpiredToken(t *testing.T) {
	req := require.New(t)
	verifier := NewVerifier(testSecret)

	token, err := GenerateToken(testSecret, "alice", -time.Minute)
	req.NoError(err)

	_, err = verifier.Verify(token)
	req.ErrorIs(err, syncerrors.ErrAuthenticationFailed)
}

func TestVerifier_WrongSecret(t *testing.T) {
	req := require.New(t)
	verifier := NewVerifier(testSecret)

	token, err := GenerateToken([]byte("some-other-secret"), "alice", time.Hour)
	req.NoError(err)

	_, err = verifier.Verify(token)
	req.ErrorIs(err, syncerrors.ErrAuthenticationFailed)
}

func TestVerifier_GarbageCredential(t *testing.T) {
	req := require.New(t)
	verifier := NewVerifier(testSecret)

	for _, credential := range []string{"", "not-a-token", "a.b.c"} {
		_, err := verifier.Verify(credential)
		req.ErrorIs(err, syncerrors.ErrAuthenticationFailed)
	}
}

func TestPairingCode_HashAndCompare(t *testing.T) {
	req := require.New(t)

	hash, err := HashPairingCode("482913")
	req.NoError(err)
	req.NotContains(hash, "482913")

	ok, err := ComparePairingCode("482913", hash)
	req.NoError(err)
	req.True(ok)

	ok, err = ComparePairingCode("000000", hash)
	req.NoError(err)
	req.False(ok)
}

func TestPairingCode_HashesAreSalted(t *testing.T) {
	req := require.New(t)

	first, err := HashPairingCode("482913")
	req.NoError(err)
	second, err := HashPairingCode("482913")
	req.NoError(err)

	req.NotEqual(first, second)
}

func TestComparePairingCode_MalformedHash(t *testing.T) {
	req := require.New(t)

	_, err := ComparePairingCode("482913", "garbage")
	req.Error(err)
}

func TestValidateRegisterDevice(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateRegisterDevice(RegisterDeviceRequest{
		Type: "desktop",
		Name: "workstation",
	}))
	req.NoError(ValidateRegisterDevice(RegisterDeviceRequest{
		Type:         "wearable",
		Name:         "watch",
		Capabilities: []string{"notifications"},
		PairingCode:  "482913",
	}))

	// Unknown device class
	req.Error(ValidateRegisterDevice(RegisterDeviceRequest{Type: "toaster", Name: "kitchen"}))
	// Missing name
	req.Error(ValidateRegisterDevice(RegisterDeviceRequest{Type: "mobile"}))
	// Pairing code too short
	req.Error(ValidateRegisterDevice(RegisterDeviceRequest{Type: "mobile", Name: "phone", PairingCode: "123"}))
}
