// internal/bingo/catalog.go
package bingo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
)

const (
	// GridSize is the width and height of every card.
	GridSize = 5
	// Free marks the center cell. It always counts as called.
	Free = 0
	// MaxNumber is the highest number the caller can draw.
	MaxNumber = 75
	// BandWidth is how many numbers belong to each letter column.
	BandWidth = 15

	center = GridSize / 2
)

// catalog seeds are fixed so every server instance builds the same cards.
const (
	catalogSeedHi uint64 = 0x6368657761746121
	catalogSeedLo uint64 = 0x62696e676f2d3735
)

// Grid is a card laid out row-major: Grid[row][col].
type Grid [GridSize][GridSize]int

// Card is an immutable numbered bingo card shared by every session.
type Card struct {
	ID   int  `json:"cardId"`
	Grid Grid `json:"grid"`
}

// Catalog maps card identifiers to their grids. It is read-only once built.
type Catalog struct {
	cards map[int]*Card
	ids   []int
}

// GenerateCatalog deterministically builds cards 1..n. Column c of every card holds five
// distinct numbers from the band 15c+1..15c+15 and the center cell is Free.
func GenerateCatalog(n int) *Catalog {
	r := rand.New(rand.NewPCG(catalogSeedHi, catalogSeedLo))
	cat := &Catalog{cards: make(map[int]*Card, n)}
	seen := make(map[Grid]bool, n)

	for id := 1; id <= n; {
		var g Grid
		for col := 0; col < GridSize; col++ {
			perm := r.Perm(BandWidth)
			for row := 0; row < GridSize; row++ {
				g[row][col] = col*BandWidth + perm[row] + 1
			}
		}
		g[center][center] = Free
		if seen[g] {
			continue
		}
		seen[g] = true
		cat.cards[id] = &Card{ID: id, Grid: g}
		cat.ids = append(cat.ids, id)
		id++
	}
	return cat
}

// NewCatalog builds a catalog from explicit cards after validating each one.
func NewCatalog(cards []Card) (*Catalog, error) {
	if len(cards) == 0 {
		return nil, errors.New("catalog is empty")
	}
	cat := &Catalog{cards: make(map[int]*Card, len(cards))}
	for i := range cards {
		c := cards[i]
		if err := validateCard(c); err != nil {
			return nil, err
		}
		if _, dup := cat.cards[c.ID]; dup {
			return nil, fmt.Errorf("duplicate card id %d", c.ID)
		}
		cat.cards[c.ID] = &c
		cat.ids = append(cat.ids, c.ID)
	}
	sort.Ints(cat.ids)
	return cat, nil
}

// columnCard is the on-disk layout: one slice per letter column, top to bottom.
type columnCard struct {
	CardID int   `json:"card_id"`
	B      []int `json:"B"`
	I      []int `json:"I"`
	N      []int `json:"N"`
	G      []int `json:"G"`
	O      []int `json:"O"`
}

// LoadCatalog reads a JSON array of {card_id, B, I, N, G, O} objects.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var raw []columnCard
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	cards := make([]Card, 0, len(raw))
	for _, rc := range raw {
		cols := [GridSize][]int{rc.B, rc.I, rc.N, rc.G, rc.O}
		var g Grid
		for col, nums := range cols {
			if len(nums) != GridSize {
				return nil, fmt.Errorf("card %d: column %s has %d numbers", rc.CardID, Letter(col*BandWidth+1), len(nums))
			}
			for row, n := range nums {
				g[row][col] = n
			}
		}
		cards = append(cards, Card{ID: rc.CardID, Grid: g})
	}
	return NewCatalog(cards)
}

func validateCard(c Card) error {
	if c.ID <= 0 {
		return fmt.Errorf("card id %d must be positive", c.ID)
	}
	if c.Grid[center][center] != Free {
		return fmt.Errorf("card %d: center cell must be free", c.ID)
	}
	seen := make(map[int]bool, GridSize*GridSize)
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			if row == center && col == center {
				continue
			}
			n := c.Grid[row][col]
			if n < 1 || n > MaxNumber {
				return fmt.Errorf("card %d: number %d out of range", c.ID, n)
			}
			if seen[n] {
				return fmt.Errorf("card %d: number %d repeated", c.ID, n)
			}
			seen[n] = true
		}
	}
	return nil
}

// Card returns the card with the given identifier.
func (c *Catalog) Card(id int) (*Card, bool) {
	card, ok := c.cards[id]
	return card, ok
}

// Contains reports whether id names a card in the catalog.
func (c *Catalog) Contains(id int) bool {
	_, ok := c.cards[id]
	return ok
}

// Len is the number of cards.
func (c *Catalog) Len() int { return len(c.ids) }

// IDs returns the card identifiers in ascending order.
func (c *Catalog) IDs() []int {
	out := make([]int, len(c.ids))
	copy(out, c.ids)
	return out
}
