package poker

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

// Suit represents a card suit.
type Suit string

const (
	Spades   Suit = "s"
	Hearts   Suit = "h"
	Diamonds Suit = "d"
	Clubs    Suit = "c"
)

// Rank represents a card rank.
type Rank string

const (
	Two   Rank = "2"
	Three Rank = "3"
	Four  Rank = "4"
	Five  Rank = "5"
	Six   Rank = "6"
	Seven Rank = "7"
	Eight Rank = "8"
	Nine  Rank = "9"
	Ten   Rank = "T"
	Jack  Rank = "J"
	Queen Rank = "Q"
	King  Rank = "K"
	Ace   Rank = "A"
)

var suits = []Suit{Spades, Hearts, Diamonds, Clubs}

var ranks = []Rank{Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}

// Card is a single playing card. The zero value is not a valid card.
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

// NewCard builds a card from a two-character string such as "As" or "Td".
func NewCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	c := Card{Rank: Rank(s[0:1]), Suit: Suit(s[1:2])}
	if !c.Valid() {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	return c, nil
}

// MustCard is NewCard for test fixtures and constants; it panics on bad input.
func MustCard(s string) Card {
	c, err := NewCard(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Valid reports whether the card has a recognized rank and suit.
func (c Card) Valid() bool {
	switch c.Suit {
	case Spades, Hearts, Diamonds, Clubs:
	default:
		return false
	}
	switch c.Rank {
	case Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace:
	default:
		return false
	}
	return true
}

// String returns the compact form, e.g. "As" for the ace of spades.
func (c Card) String() string {
	return string(c.Rank) + string(c.Suit)
}

// RankValue returns the numeric rank, 2..14 with ace high.
func (c Card) RankValue() int {
	switch c.Rank {
	case Ace:
		return 14
	case King:
		return 13
	case Queen:
		return 12
	case Jack:
		return 11
	case Ten:
		return 10
	default:
		return int(c.Rank[0] - '0')
	}
}

// MarshalJSON encodes the card as its compact string form.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts both the compact string form and the legacy
// {"rank":..,"suit":..} object form.
func (c *Card) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := NewCard(s)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	var obj struct {
		Rank string `json:"rank"`
		Suit string `json:"suit"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	parsed := Card{Rank: Rank(obj.Rank), Suit: Suit(obj.Suit)}
	if !parsed.Valid() {
		return fmt.Errorf("invalid card %s%s", obj.Rank, obj.Suit)
	}
	*c = parsed
	return nil
}

// Deck is an ordered set of cards to be dealt from the front.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck creates a shuffled 52-card deck using the given random source.
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}
	for _, suit := range suits {
		for _, rank := range ranks {
			d.cards = append(d.cards, Card{Rank: rank, Suit: suit})
		}
	}
	d.Shuffle()
	return d
}

// NewDeckFromCards restores a deck from previously persisted remaining cards.
func NewDeckFromCards(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

// Shuffle randomizes the remaining cards.
func (d *Deck) Shuffle() {
	if d.rng == nil {
		return
	}
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw removes and returns the top card.
func (d *Deck) Draw() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// Size returns the number of cards remaining.
func (d *Deck) Size() int {
	return len(d.cards)
}

// Cards returns a copy of the remaining cards, front first, for persistence.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}
