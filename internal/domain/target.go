package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrInvalidTarget wraps every ParseTargetAddress failure.
var ErrInvalidTarget = errors.New("invalid target address")

// TargetAddress identifies the watched account. Immutable once parsed.
type TargetAddress string

// ParseTargetAddress validates a base58 account address (32 bytes decoded).
func ParseTargetAddress(s string) (TargetAddress, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: decode %q: %v", ErrInvalidTarget, s, err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("%w: %q: expected 32 bytes, got %d", ErrInvalidTarget, s, len(raw))
	}
	return TargetAddress(s), nil
}

// String returns the base58 form.
func (a TargetAddress) String() string {
	return string(a)
}
