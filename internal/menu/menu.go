// Package menu holds the restaurant's authoritative menu: the static mapping
// from exact item names to unit prices that every cart mutation is checked
// against. The dialogue agent is free-form and cannot be trusted to quote
// correct prices, so price authority lives here for the process lifetime.
package menu

import (
	"fmt"
	"sort"
	"strings"
)

// Item is a single orderable menu entry.
type Item struct {
	Name        string
	Price       float64
	Description string
}

// Section groups items for prompt rendering and human-readable listings.
type Section struct {
	Title string
	Items []Item
}

// PriceMap is the immutable menu price authority. Item names are compared as
// exact strings: case, whitespace, and punctuation are all significant.
type PriceMap struct {
	sections []Section
	prices   map[string]float64
}

// New builds a PriceMap from the given sections. Duplicate item names keep
// the first price seen.
func New(sections []Section) *PriceMap {
	m := &PriceMap{
		sections: sections,
		prices:   make(map[string]float64),
	}
	for _, sec := range sections {
		for _, it := range sec.Items {
			if _, ok := m.prices[it.Name]; !ok {
				m.prices[it.Name] = it.Price
			}
		}
	}
	return m
}

// Price returns the unit price for the exact item name.
func (m *PriceMap) Price(name string) (float64, bool) {
	p, ok := m.prices[name]
	return p, ok
}

// Len returns the number of distinct priced items.
func (m *PriceMap) Len() int { return len(m.prices) }

// Names returns all item names in sorted order.
func (m *PriceMap) Names() []string {
	names := make([]string, 0, len(m.prices))
	for n := range m.prices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Match is a search hit returned by [PriceMap.Search].
type Match struct {
	ItemName string
	Price    float64
}

// Search finds the menu item best matching a free-form query. Lookup order:
// exact name, case-insensitive name, case-insensitive substring in either
// direction, then phonetic resolution for transcription variants ("Massala
// Dosa"). Substring ties resolve to the lexicographically first name so
// repeated queries are deterministic.
func (m *PriceMap) Search(query string) (Match, bool) {
	if p, ok := m.prices[query]; ok {
		return Match{ItemName: query, Price: p}, true
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Match{}, false
	}

	var best string
	for name := range m.prices {
		ln := strings.ToLower(name)
		if ln == q {
			return Match{ItemName: name, Price: m.prices[name]}, true
		}
		if strings.Contains(ln, q) || strings.Contains(q, ln) {
			if best == "" || name < best {
				best = name
			}
		}
	}
	if best != "" {
		return Match{ItemName: best, Price: m.prices[best]}, true
	}

	if name, ok := resolveSpoken(q, m.Names()); ok {
		return Match{ItemName: name, Price: m.prices[name]}, true
	}
	return Match{}, false
}

// Render produces the menu text injected into the agent's system
// instruction: one section per heading, one "Name — $price" line per item.
func (m *PriceMap) Render() string {
	var b strings.Builder
	for i, sec := range m.sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.ToUpper(sec.Title))
		b.WriteString("\n")
		for _, it := range sec.Items {
			fmt.Fprintf(&b, "- %s — $%.2f", it.Name, it.Price)
			if it.Description != "" {
				b.WriteString(" (")
				b.WriteString(it.Description)
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
