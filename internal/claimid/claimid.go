// Package claimid generates claim identifiers scoped to a disaster.
package claimid

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TokenLength is the number of hex characters kept from the random UUID.
const TokenLength = 8

// ErrExhausted is returned by Unique when every attempt collided with an existing id.
var ErrExhausted = errors.New("claimid: no unique id found")

// ExistsFunc reports whether a claim id is already taken.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// Generate returns "<disasterID>-<token>", where token is the first 8 hex
// characters of a random v4 UUID. The token space is 32 bits, so callers that
// need strict uniqueness must check the result against the store.
func Generate(disasterID string) string {
	return disasterID + "-" + uuid.NewString()[:TokenLength]
}

// Unique generates ids until exists reports one as free, giving up after attempts tries.
func Unique(ctx context.Context, disasterID string, exists ExistsFunc, attempts int) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		id := Generate(disasterID)
		taken, err := exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check claim id %s: %w", id, err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts for disaster %s", ErrExhausted, attempts, disasterID)
}

// Belongs reports whether id has the shape Generate produces for disasterID.
func Belongs(id, disasterID string) bool {
	token, ok := strings.CutPrefix(id, disasterID+"-")
	if !ok || len(token) != TokenLength {
		return false
	}
	for _, r := range token {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
