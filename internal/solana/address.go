package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program addresses.
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	MetaplexProgramID  = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	WrappedSOLMint     = "So11111111111111111111111111111111111111112"
)

// ErrNoViableBump is returned when every bump seed lands on the curve.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// DecodeAddress decodes a base58 public key and checks its length.
func DecodeAddress(addr string) ([]byte, error) {
	b, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", addr, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("address %q: expected 32 bytes, got %d", addr, len(b))
	}
	return b, nil
}

// FindProgramAddress derives the canonical PDA for seeds under programID.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := DecodeAddress(programID)
	if err != nil {
		return "", 0, err
	}

	for bump := 255; bump >= 0; bump-- {
		data := make([]byte, 0, 64)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, byte(bump))
		data = append(data, program...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		// PDAs must be off the ed25519 curve
		if !IsOnCurve(hash[:]) {
			return base58.Encode(hash[:]), uint8(bump), nil
		}
	}

	return "", 0, ErrNoViableBump
}

// IsOnCurve reports whether point is a valid compressed ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
