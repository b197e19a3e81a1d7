package claimid

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Shape(t *testing.T) {
	for _, d := range []string{"HURRICANE-IAN-2022", "wf-42", "x"} {
		id := Generate(d)
		require.True(t, strings.HasPrefix(id, d+"-"), id)
		token := strings.TrimPrefix(id, d+"-")
		assert.Len(t, token, TokenLength)
		assert.Regexp(t, `^[0-9a-f]{8}$`, token)
		assert.True(t, Belongs(id, d))
	}
}

// A 32-bit token space gives roughly a 1% chance of one collision in 10,000
// draws and a negligible chance of two.
func TestGenerate_NoDuplicatesInPractice(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	dups := 0
	for i := 0; i < 10000; i++ {
		id := Generate("FLOOD")
		if _, dup := seen[id]; dup {
			dups++
		}
		seen[id] = struct{}{}
	}
	assert.LessOrEqual(t, dups, 1)
}

func TestBelongs(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "FIRE-0a1b2c3d", true},
		{"other disaster", "FLOOD-0a1b2c3d", false},
		{"short token", "FIRE-0a1b2c", false},
		{"upper hex", "FIRE-0A1B2C3D", false},
		{"no separator", "FIRE0a1b2c3d", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Belongs(tt.id, "FIRE"))
		})
	}
}

func TestUnique(t *testing.T) {
	ctx := context.Background()

	t.Run("first free id wins", func(t *testing.T) {
		calls := 0
		id, err := Unique(ctx, "QUAKE", func(context.Context, string) (bool, error) {
			calls++
			return calls < 3, nil
		}, 5)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.True(t, Belongs(id, "QUAKE"))
	})

	t.Run("exhausted", func(t *testing.T) {
		_, err := Unique(ctx, "QUAKE", func(context.Context, string) (bool, error) {
			return true, nil
		}, 2)
		require.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("lookup error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Unique(ctx, "QUAKE", func(context.Context, string) (bool, error) {
			return false, boom
		}, 2)
		require.ErrorIs(t, err, boom)
	})
}
