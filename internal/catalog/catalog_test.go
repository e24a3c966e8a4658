package catalog

import "testing"

func TestFirstSelectableDeck(t *testing.T) {
	deck, ok := FirstSelectableDeck()
	if !ok {
		t.Fatal("expected a selectable deck in the content table")
	}
	if deck.ID != "starter" {
		t.Fatalf("unexpected first selectable deck: %q", deck.ID)
	}
}

func TestExpandDeckHonoursCounts(t *testing.T) {
	deck, _ := FirstSelectableDeck()
	cards := ExpandDeck(deck)
	if len(cards) != 12 {
		t.Fatalf("unexpected deck size: %d", len(cards))
	}
	strikes := 0
	for _, id := range cards {
		if id == "strike" {
			strikes++
		}
	}
	if strikes != 4 {
		t.Fatalf("expected 4 strikes, got %d", strikes)
	}
}

func TestExpandDeckSkipsUnknownCards(t *testing.T) {
	deck := DeckDefinition{Cards: []DeckEntry{{CardID: "missing", Count: 3}, {CardID: "guard", Count: 2}}}
	cards := ExpandDeck(deck)
	if len(cards) != 2 {
		t.Fatalf("unknown cards should be skipped, got %v", cards)
	}
}

func TestCardByID(t *testing.T) {
	if _, ok := CardByID("anchor"); !ok {
		t.Fatal("expected anchor card to resolve")
	}
	if _, ok := CardByID("nope"); ok {
		t.Fatal("unexpected card resolution")
	}
}

func TestDecksReturnsCopy(t *testing.T) {
	first := Decks()
	first[0].ID = "mutated"
	if Decks()[0].ID == "mutated" {
		t.Fatal("Decks must return a defensive copy")
	}
}
