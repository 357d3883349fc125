package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorPairIsDistinct(t *testing.T) {
	sel := NewSelector(rand.New(rand.NewSource(1)))
	pool := []int{1, 2, 3, 4, 5, 6}
	for i := 0; i < 200; i++ {
		asker, target := sel.NextPair(pool)
		require.NotEqual(t, asker, target, "draw %d produced asker == target", i)
		assert.Contains(t, pool, asker)
		assert.Contains(t, pool, target)
	}
}

func TestSelectorTwoPlayersAlternateTurns(t *testing.T) {
	// With only two players every draw repeats history; the selector must
	// still terminate and hand out valid pairs.
	sel := NewSelector(rand.New(rand.NewSource(7)))
	pool := []int{1, 2}
	for i := 0; i < 50; i++ {
		asker, target := sel.NextPair(pool)
		require.NotEqual(t, asker, target)
		assert.Contains(t, pool, asker)
	}
}

func TestSelectorAvoidsRecentAskers(t *testing.T) {
	sel := NewSelector(rand.New(rand.NewSource(42)))
	pool := []int{1, 2, 3, 4, 5, 6, 7, 8}
	limit := historyCap(len(pool))

	repeats := 0
	for i := 0; i < 100; i++ {
		prev := append([]int(nil), sel.recentAskers...)
		asker, _ := sel.NextPair(pool)
		if contains(prev, asker) {
			repeats++
		}
		require.LessOrEqual(t, len(sel.recentAskers), limit)
	}
	// The retry budget gives up after ten collisions in a row, so the odd
	// repeat is legal; anything frequent means the preference is broken.
	assert.LessOrEqual(t, repeats, 5)
}

func TestSelectorHistoryCap(t *testing.T) {
	assert.Equal(t, 2, historyCap(2))
	assert.Equal(t, 2, historyCap(4))
	assert.Equal(t, 3, historyCap(6))
	assert.Equal(t, 5, historyCap(11))
}

func TestSelectorForget(t *testing.T) {
	sel := NewSelector(rand.New(rand.NewSource(3)))
	pool := []int{1, 2, 3, 4, 5, 6}
	for i := 0; i < 10; i++ {
		sel.NextPair(pool)
	}
	sel.Forget(3)
	assert.NotContains(t, sel.recentAskers, 3)
	assert.NotContains(t, sel.recentTargets, 3)
}
