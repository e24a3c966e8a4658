// Package catalog exposes the read-only card and deck content tables. The
// coordinator consults it only when seeding a freshly allocated player
// slot's starting deck; it never interprets card behaviour.
package catalog

import (
	"encoding/json"
	"sync"

	_ "embed"
)

// CardDefinition describes one card in the static content table.
type CardDefinition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// DeckEntry references a card and how many copies the deck includes.
type DeckEntry struct {
	CardID string `json:"cardId"`
	Count  int    `json:"count"`
}

// DeckDefinition defines a selectable starting deck configuration.
type DeckDefinition struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"displayName"`
	Description string      `json:"description"`
	Selectable  bool        `json:"selectable"`
	Cards       []DeckEntry `json:"cards"`
}

type contentFile struct {
	Cards []CardDefinition `json:"cards"`
	Decks []DeckDefinition `json:"decks"`
}

//go:embed content.json
var contentPayload []byte

var (
	contentOnce sync.Once
	contentErr  error
	cardIndex   map[string]CardDefinition
	deckData    []DeckDefinition
)

func load() {
	contentOnce.Do(func() {
		//1.- Parse the embedded content table once in a thread-safe manner.
		var decoded contentFile
		contentErr = json.Unmarshal(contentPayload, &decoded)
		if contentErr != nil {
			return
		}
		cardIndex = make(map[string]CardDefinition, len(decoded.Cards))
		for _, card := range decoded.Cards {
			cardIndex[card.ID] = card
		}
		deckData = decoded.Decks
	})
	if contentErr != nil {
		panic(contentErr)
	}
}

// Decks returns the immutable set of deck definitions.
func Decks() []DeckDefinition {
	load()
	//1.- Return a defensive copy to protect the cached slice from mutation.
	clones := make([]DeckDefinition, len(deckData))
	copy(clones, deckData)
	return clones
}

// FirstSelectableDeck returns the deck used to seed new player slots.
func FirstSelectableDeck() (DeckDefinition, bool) {
	load()
	for _, deck := range deckData {
		if deck.Selectable {
			return deck, true
		}
	}
	return DeckDefinition{}, false
}

// CardByID resolves a card definition by identifier.
func CardByID(id string) (CardDefinition, bool) {
	load()
	card, ok := cardIndex[id]
	return card, ok
}

// ExpandDeck flattens a deck definition into its full card-id list, honouring
// per-entry counts and skipping references to unknown cards.
func ExpandDeck(deck DeckDefinition) []string {
	load()
	cards := make([]string, 0)
	for _, entry := range deck.Cards {
		if _, ok := cardIndex[entry.CardID]; !ok {
			continue
		}
		for i := 0; i < entry.Count; i++ {
			cards = append(cards, entry.CardID)
		}
	}
	return cards
}
