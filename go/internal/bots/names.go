package bots

import (
	"fmt"
	"math/rand"
	"sync"
)

var (
	firstNames = []string{
		"Arkady", "Boris", "Vera", "Galina", "Dmitri", "Yelena", "Zhenya", "Igor",
		"Kira", "Lev", "Masha", "Nikita", "Olga", "Pavel", "Rita", "Sasha",
	}
	lastNames = []string{
		"Spade", "Trump", "Stub", "Ace", "Deuce", "Knave", "Shuffle", "Dealer",
	}
	avatars = []string{
		"bear", "fox", "owl", "wolf", "hare", "lynx", "elk", "crow",
	}
)

// NamePool hands out display names and avatars for newly minted bots. Names
// carry a numeric suffix once the base combinations run out.
type NamePool struct {
	mu  sync.Mutex
	rng *rand.Rand
	seq int
}

func NewNamePool(seed int64) *NamePool {
	return &NamePool{rng: rand.New(rand.NewSource(seed))}
}

// Resume moves the sequence past the first n names, which earlier
// processes may already have handed out.
func (p *NamePool) Resume(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.seq {
		p.seq = n
	}
}

// Next returns a fresh display name and avatar key.
func (p *NamePool) Next() (name, avatar string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.seq
	p.seq++
	combos := len(firstNames) * len(lastNames)
	base := fmt.Sprintf("%s %s", firstNames[n%len(firstNames)], lastNames[(n/len(firstNames))%len(lastNames)])
	if n >= combos {
		base = fmt.Sprintf("%s %d", base, n/combos+1)
	}
	return base, avatars[p.rng.Intn(len(avatars))]
}
