package game

import "math/rand"

// selector retry budget. After this many draws the last draw is accepted even
// if it repeats recent history, trading fairness for guaranteed termination.
const maxDrawAttempts = 10

// Selector draws the next asker and target while avoiding recent repeats.
//
// Two bounded history lists are kept, one per role, each capped at
// max(2, poolSize/2) entries. With two or fewer candidates repeats are
// unavoidable and any draw is accepted. The asker is never drawn as their own
// target; distinctness is a hard rule, only the anti-repeat preference is
// soft.
type Selector struct {
	rng           *rand.Rand
	recentAskers  []int
	recentTargets []int
}

// NewSelector builds a selector around the given source. Passing a seeded
// source makes draws reproducible in tests.
func NewSelector(rng *rand.Rand) *Selector {
	return &Selector{rng: rng}
}

// NextPair draws a distinct asker and target from the candidate pool and
// records both in history. The pool holds player numbers and must have at
// least two entries.
func (s *Selector) NextPair(pool []int) (asker, target int) {
	limit := historyCap(len(pool))
	asker = s.draw(pool, -1, s.recentAskers)
	target = s.draw(pool, asker, s.recentTargets)
	s.recentAskers = push(s.recentAskers, asker, limit)
	s.recentTargets = push(s.recentTargets, target, limit)
	return asker, target
}

// Forget drops a departed player's number from both histories so it cannot
// block future draws in a shrunken pool.
func (s *Selector) Forget(number int) {
	s.recentAskers = remove(s.recentAskers, number)
	s.recentTargets = remove(s.recentTargets, number)
}

// draw picks a candidate that is not excluded and, preferably, not in
// history. The excluded identity is removed from the candidates outright;
// history avoidance retries up to maxDrawAttempts and then gives up.
func (s *Selector) draw(pool []int, excluded int, history []int) int {
	candidates := pool
	if excluded >= 0 {
		candidates = make([]int, 0, len(pool)-1)
		for _, n := range pool {
			if n != excluded {
				candidates = append(candidates, n)
			}
		}
	}
	if len(pool) <= 2 {
		return candidates[s.rng.Intn(len(candidates))]
	}
	var pick int
	for attempt := 0; attempt < maxDrawAttempts; attempt++ {
		pick = candidates[s.rng.Intn(len(candidates))]
		if !contains(history, pick) {
			return pick
		}
	}
	return pick
}

func historyCap(poolSize int) int {
	if c := poolSize / 2; c > 2 {
		return c
	}
	return 2
}

func push(history []int, n, limit int) []int {
	history = append(history, n)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

func remove(history []int, n int) []int {
	out := history[:0]
	for _, h := range history {
		if h != n {
			out = append(out, h)
		}
	}
	return out
}

func contains(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
