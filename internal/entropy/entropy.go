package entropy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// EventIDBytes is how much entropy goes into one event identifier.
const EventIDBytes = 16

// Source supplies random bytes for identifier generation. It is injected as a
// capability so event creation can be made deterministic in tests. A call may
// suspend; callers must not hold reservations across it.
type Source interface {
	RandomBytes(ctx context.Context, n int) ([]byte, error)
}

type cryptoSource struct{}

func (cryptoSource) RandomBytes(_ context.Context, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewCrypto returns a Source backed by crypto/rand.
func NewCrypto() Source { return cryptoSource{} }

// NewEventID derives a collision-resistant textual event identifier from src:
// the first EventIDBytes bytes, hex-encoded.
func NewEventID(ctx context.Context, src Source) (string, error) {
	const op = "entropy.NewEventID"

	b, err := src.RandomBytes(ctx, EventIDBytes)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	if len(b) < EventIDBytes {
		return "", fmt.Errorf("%s: short read: %d bytes", op, len(b))
	}
	return hex.EncodeToString(b[:EventIDBytes]), nil
}
