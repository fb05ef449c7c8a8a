// Package gifts holds the catalog of collectible gift names and the
// name matching used by subscriber filters.
package gifts

import (
	"strings"
	"unicode"
)

// DefaultNames is the built-in catalog, in display order.
var DefaultNames = []string{
	"Neko Helmet", "Candy Cane", "Tama Gadget", "Electric Skull", "Snow Globe",
	"Winter Wreath", "Record Player", "Top Hat", "Sleigh Bell", "Sakura Flower",
	"Diamond Ring", "Toy Bear", "Love Potion", "Loot Bag", "Star Notepad",
	"Ion Gem", "Lol Pop", "Mini Oscar", "Ginger Cookie", "Swiss Watch",
	"Eternal Candle", "Crystal Ball", "Flying Broom", "Astral Shard", "Bunny Muffin",
	"B-Day Candle", "Hypno Lollipop", "Mad Pumpkin", "Voodoo Doll", "Snow Mittens",
	"Jingle Bells", "Desk Calendar", "Cookie Heart", "Love Candle", "Hanging Star",
	"Witch Hat", "Jester Hat", "Party Sparkler", "Lunar Snake", "Genie Lamp",
	"Homemade Cake", "Spy Agaric", "Scared Cat", "Skull Flower", "Trapped Heart",
	"Sharp Tongue", "Evil Eye", "Hex Pot", "Kissed Frog", "Magic Potion",
	"Vintage Cigar", "Berry Box", "Eternal Rose", "Perfume Bottle", "Durov's Cap",
	"Jelly Bunny", "Spiced Wine", "Plush Pepe", "Precious Peach", "Signet Ring", "Santa Hat",
}

// Normalize removes all whitespace from name and lowercases it.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Catalog is an immutable ordered list of gift names.
type Catalog struct {
	names []string
	index map[string]struct{}
}

// NewCatalog builds a catalog from display names. Duplicates (after
// normalization) and blank names are dropped, first occurrence wins.
func NewCatalog(names []string) *Catalog {
	c := &Catalog{
		names: make([]string, 0, len(names)),
		index: make(map[string]struct{}, len(names)),
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		key := Normalize(name)
		if key == "" {
			continue
		}
		if _, ok := c.index[key]; ok {
			continue
		}
		c.index[key] = struct{}{}
		c.names = append(c.names, name)
	}
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return NewCatalog(DefaultNames)
}

// Names returns the display names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of gifts in the catalog.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Contains reports whether name, in any spacing or case, is a catalog gift.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[Normalize(name)]
	return ok
}

// Validate returns the names not present in the catalog, as given.
func (c *Catalog) Validate(names []string) []string {
	var invalid []string
	for _, name := range names {
		if !c.Contains(name) {
			invalid = append(invalid, name)
		}
	}
	return invalid
}

// ParseList splits a comma separated list of gift names, trimming blanks.
// "Plush Pepe, Cookie Heart" yields ["Plush Pepe", "Cookie Heart"].
func ParseList(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
