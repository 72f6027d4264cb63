package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionRing(t *testing.T) {
	t.Parallel()

	t.Run("fills in order", func(t *testing.T) {
		t.Parallel()
		r := newActionRing(4)
		r.Push(3)
		r.Push(7)
		assert.Equal(t, 2, r.Len())
		assert.Equal(t, []int{3, 7}, r.Items())
	})

	t.Run("evicts oldest when full", func(t *testing.T) {
		t.Parallel()
		r := newActionRing(3)
		for _, a := range []int{1, 2, 3, 4, 5} {
			r.Push(a)
		}
		assert.Equal(t, 3, r.Len())
		assert.Equal(t, []int{3, 4, 5}, r.Items())
	})

	t.Run("tokens are shifted and right aligned", func(t *testing.T) {
		t.Parallel()
		r := newActionRing(4)
		r.Push(0)
		r.Push(6)
		// Zero marks an empty slot, so recorded actions are stored +1 and the
		// most recent one occupies the final position.
		assert.Equal(t, []int32{0, 0, 1, 7}, r.Tokens())
	})

	t.Run("empty ring yields all zeros", func(t *testing.T) {
		t.Parallel()
		r := newActionRing(3)
		assert.Equal(t, []int32{0, 0, 0}, r.Tokens())
	})

	t.Run("capacity floor of one", func(t *testing.T) {
		t.Parallel()
		r := newActionRing(0)
		r.Push(9)
		assert.Equal(t, []int32{10}, r.Tokens())
	})
}
