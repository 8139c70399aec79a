package store

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Generated keys are 20 characters: 8 encoding the millisecond timestamp
// followed by 12 of random payload. Keys generated within the same
// millisecond increment the previous payload, so lexicographic order stays
// roughly chronological. The schema's message pagination depends on this.
const pushChars = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// KeyGenerator mints chronologically sortable child keys. It is safe for
// concurrent use.
type KeyGenerator struct {
	mu        sync.Mutex
	now       func() time.Time
	rand      *rand.Rand
	lastMs    int64
	lastChars [12]int
}

func NewKeyGenerator(now func() time.Time) *KeyGenerator {
	return &KeyGenerator{
		now:  now,
		rand: rand.New(rand.NewSource(now().UnixNano())),
	}
}

func (g *KeyGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	duplicate := ms == g.lastMs
	g.lastMs = ms

	var b strings.Builder
	b.Grow(20)

	var stamp [8]byte
	for i := 7; i >= 0; i-- {
		stamp[i] = pushChars[ms%64]
		ms /= 64
	}
	b.Write(stamp[:])

	if duplicate {
		// Same millisecond: bump the previous payload.
		for i := 11; i >= 0; i-- {
			if g.lastChars[i] != 63 {
				g.lastChars[i]++
				break
			}
			g.lastChars[i] = 0
		}
	} else {
		for i := range g.lastChars {
			g.lastChars[i] = g.rand.Intn(64)
		}
	}
	for _, c := range g.lastChars {
		b.WriteByte(pushChars[c])
	}
	return b.String()
}
