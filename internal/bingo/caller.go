// internal/bingo/caller.go
package bingo

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// ErrExhausted is returned by Next once all 75 numbers have been called.
var ErrExhausted = errors.New("all numbers called")

var letters = [...]string{"B", "I", "N", "G", "O"}

// Call is one drawn number and its letter band.
type Call struct {
	Number int    `json:"number"`
	Letter string `json:"letter"`
}

// Letter returns the band letter for n, or "" when n is out of range.
func Letter(n int) string {
	if n < 1 || n > MaxNumber {
		return ""
	}
	return letters[(n-1)/BandWidth]
}

// SecureIntn returns a uniform random int in [0, n) using crypto/rand. It panics when the
// system entropy source cannot be read, since no fair draw is possible then.
func SecureIntn(n int) int {
	return secureIntn(rand.Reader, n)
}

func secureIntn(src io.Reader, n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(src, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("bingo: reading random source: %v", err))
	}
	return int(v.Int64())
}

// Caller draws numbers 1..75 without replacement.
type Caller struct {
	intn   func(n int) int
	called []int
	seen   [MaxNumber + 1]bool
}

// NewCaller returns a caller with an empty history. A nil intn uses SecureIntn.
func NewCaller(intn func(n int) int) *Caller {
	if intn == nil {
		intn = SecureIntn
	}
	return &Caller{intn: intn, called: make([]int, 0, MaxNumber)}
}

// Reset puts every number back into the pool.
func (c *Caller) Reset() {
	c.called = c.called[:0]
	c.seen = [MaxNumber + 1]bool{}
}

// Next picks uniformly among the uncalled numbers and records it.
func (c *Caller) Next() (Call, error) {
	remaining := make([]int, 0, MaxNumber-len(c.called))
	for n := 1; n <= MaxNumber; n++ {
		if !c.seen[n] {
			remaining = append(remaining, n)
		}
	}
	if len(remaining) == 0 {
		return Call{}, ErrExhausted
	}

	n := remaining[c.intn(len(remaining))]
	c.seen[n] = true
	c.called = append(c.called, n)
	return Call{Number: n, Letter: Letter(n)}, nil
}

// Called returns a copy of the numbers drawn so far, in draw order.
func (c *Caller) Called() []int {
	out := make([]int, len(c.called))
	copy(out, c.called)
	return out
}

// Len is how many numbers have been drawn.
func (c *Caller) Len() int { return len(c.called) }

// Remaining is how many numbers are left in the pool.
func (c *Caller) Remaining() int { return MaxNumber - len(c.called) }
