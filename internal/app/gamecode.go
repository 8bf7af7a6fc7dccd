package app

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
)

const maxCodeAttempts = 50

var codeWords = []string{
	"PLAY", "QUIZ", "GAME", "TEAM", "JUMP", "RACE", "STAR", "HERO", "EPIC", "FIRE",
	"BLUE", "GOLD", "FAST", "COOL", "BOLD", "WISE", "ROCK", "MOON", "WAVE", "PARK",
	"LAKE", "TREE", "BIRD", "FISH", "BEAR", "LION", "WOLF", "DEER", "FROG", "DUCK",
	"SWAN", "HAWK", "KING", "HOPE", "LOVE", "JOY", "LIFE", "TIME", "RAIN", "WIND",
	"SNOW", "GLOW", "BEAM", "DAWN", "DUSK", "PEAK", "PATH", "GIFT", "SEED", "LEAF",
	"ROOT", "ROSE", "LILY", "SAGE", "MINT", "KALE", "CORN", "BEAN", "PEAR", "PLUM",
	"LIME", "KIWI", "MANGO", "GRAPE", "CAKE", "CHIP", "TACO", "PIZZA", "SOUP", "RICE",
	"NAAN", "WRAP", "BOOK", "CODE", "MATH", "ARTS", "TECH", "DATA", "BYTE", "NODE",
	"JAVA", "RUST", "RUBY", "PERL", "BASH", "HTML", "JSON", "AJAX",
}

const fallbackAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// codeGenerator picks short, readable join codes.
type codeGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newCodeGenerator() *codeGenerator {
	return &codeGenerator{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Next tries random words until one is free, then falls back to random
// characters. inUse is consulted for every candidate.
func (g *codeGenerator) Next(ctx context.Context, inUse func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		candidate := g.word()
		taken, err := inUse(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	for {
		candidate := g.random(4)
		taken, err := inUse(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

func (g *codeGenerator) word() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return codeWords[g.rnd.Intn(len(codeWords))]
}

func (g *codeGenerator) random(n int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(fallbackAlphabet[g.rnd.Intn(len(fallbackAlphabet))])
	}
	return b.String()
}
