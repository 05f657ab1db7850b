package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2 parameters based on OWASP recommendations. Pairing codes are
// short, so slow hashing matters more than for full passwords.
const (
	pairingMemory      = 64 * 1024 // 64 MB
	pairingIterations  = 3
	pairingParallelism = 2
	pairingSaltLength  = 16
	pairingKeyLength   = 32
)

// HashPairingCode hashes the short code a device presents when pairing
// (wearables type it after the BLE handshake). The encoded form carries
// every parameter needed for later verification.
func HashPairingCode(code string) (string, error) {
	salt := make([]byte, pairingSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(code), salt, pairingIterations, pairingMemory, pairingParallelism, pairingKeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, pairingMemory, pairingIterations, pairingParallelism, b64Salt, b64Hash), nil
}

// ComparePairingCode checks a plain code against a stored hash in constant
// time.
func ComparePairingCode(code, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, errors.New("invalid pairing hash format")
	}

	var version int
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, err
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, err
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, err
	}

	comparison := argon2.IDKey([]byte(code), salt, iterations, memory, parallelism, uint32(len(decodedHash)))
	return subtle.ConstantTimeCompare(decodedHash, comparison) == 1, nil
}
