package entropy

import (
	"context"
	"errors"
	"testing"
)

type fixedSource struct {
	b   []byte
	err error
}

func (s fixedSource) RandomBytes(context.Context, int) ([]byte, error) {
	return s.b, s.err
}

func TestNewEventID(t *testing.T) {
	t.Parallel()

	t.Run("hex encodes the drawn bytes", func(t *testing.T) {
		src := fixedSource{b: []byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}}
		id, err := NewEventID(context.Background(), src)
		if err != nil {
			t.Fatalf("NewEventID: %v", err)
		}
		if id != "deadbeef000000000000000000000000" {
			t.Fatalf("unexpected id %q", id)
		}
	})

	t.Run("crypto source yields the right length", func(t *testing.T) {
		id, err := NewEventID(context.Background(), NewCrypto())
		if err != nil {
			t.Fatalf("NewEventID: %v", err)
		}
		if len(id) != 2*EventIDBytes {
			t.Fatalf("expected %d hex chars, got %d", 2*EventIDBytes, len(id))
		}
	})

	t.Run("propagates source errors", func(t *testing.T) {
		srcErr := errors.New("entropy exhausted")
		if _, err := NewEventID(context.Background(), fixedSource{err: srcErr}); !errors.Is(err, srcErr) {
			t.Fatalf("expected wrapped source error, got %v", err)
		}
	})

	t.Run("rejects short reads", func(t *testing.T) {
		if _, err := NewEventID(context.Background(), fixedSource{b: []byte{1, 2, 3}}); err == nil {
			t.Fatal("expected error for short read")
		}
	})
}
