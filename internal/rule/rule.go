// Package rule implements compiled match rules and the ordered sets
// they are evaluated in.
package rule

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tkclough/salescrawler/internal/model"
	"github.com/tkclough/salescrawler/internal/pattern"
)

// CompiledPattern pairs a parsed pattern with the source text it was
// compiled from. The source is kept for audit persistence only; rule
// identity derives from the parsed tree.
type CompiledPattern struct {
	Source  string
	Pattern pattern.Pattern
}

// Rule is one user-defined match rule. Every field is optional; an
// absent pattern or bound places no constraint on that attribute.
// Rules are immutable after compilation.
type Rule struct {
	Name            *string
	LinkFlair       *CompiledPattern
	ProductType     *CompiledPattern
	Description     *CompiledPattern
	PriceMinDollars *int64
	PriceMaxDollars *int64
}

// ruleSpec is the rule file representation: one element of the JSON
// array.
type ruleSpec struct {
	Name               *string `json:"name"`
	LinkFlairPattern   *string `json:"link_flair_pattern"`
	ProductTypePattern *string `json:"product_type_pattern"`
	DescriptionPattern *string `json:"description_pattern"`
	PriceMin           *int64  `json:"price_min"`
	PriceMax           *int64  `json:"price_max"`
}

// LoadFile reads and compiles a rule file: a JSON array of rule
// objects. Order in the file is the rules' priority order.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return set, nil
}

// Parse compiles a rule set from its JSON representation.
func Parse(data []byte) (*Set, error) {
	var specs []ruleSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	rules := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		r, err := compile(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, r)
	}
	return &Set{rules: rules}, nil
}

func compile(spec ruleSpec) (Rule, error) {
	r := Rule{
		Name:            spec.Name,
		PriceMinDollars: spec.PriceMin,
		PriceMaxDollars: spec.PriceMax,
	}

	fields := []struct {
		key    string
		source *string
		dst    **CompiledPattern
	}{
		{"link_flair_pattern", spec.LinkFlairPattern, &r.LinkFlair},
		{"product_type_pattern", spec.ProductTypePattern, &r.ProductType},
		{"description_pattern", spec.DescriptionPattern, &r.Description},
	}
	for _, f := range fields {
		if f.source == nil {
			continue
		}
		p, err := pattern.Parse(*f.source)
		if err != nil {
			return Rule{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = &CompiledPattern{Source: *f.source, Pattern: p}
	}
	return r, nil
}

// DisplayName returns the rule's name, or a placeholder when unnamed.
func (r *Rule) DisplayName() string {
	if r.Name != nil {
		return *r.Name
	}
	return "(unnamed rule)"
}

// Fingerprint is the rule's durable identity: a digest of its semantic
// content, fed in fixed order with the name, each present pattern's
// structural digest, and the price bounds. Reformatting a pattern
// source without changing its parse leaves the fingerprint unchanged.
// Digests carry no field tag, so the same pattern moved between fields
// fingerprints identically.
func (r *Rule) Fingerprint() string {
	h := sha256.New()
	if r.Name != nil {
		h.Write([]byte(*r.Name))
	}
	for _, cp := range []*CompiledPattern{r.LinkFlair, r.ProductType, r.Description} {
		if cp != nil {
			h.Write(pattern.Digest(cp.Pattern))
		}
	}
	var buf [8]byte
	for _, bound := range []*int64{r.PriceMinDollars, r.PriceMaxDollars} {
		if bound != nil {
			binary.LittleEndian.PutUint64(buf[:], uint64(*bound))
			h.Write(buf[:])
		}
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// MatchesListing evaluates the listing-level predicate: the flair
// pattern against the listing's optional flair text. A negated flair
// pattern holds vacuously when the listing has no flair.
func (r *Rule) MatchesListing(l *model.Listing) bool {
	if r.LinkFlair == nil {
		return true
	}
	return pattern.MatchOptional(r.LinkFlair.Pattern, l.LinkFlairText)
}

// MatchesTitle evaluates the title-level predicate: the product type
// and description patterns plus the inclusive price bounds.
func (r *Rule) MatchesTitle(t *model.ParsedTitle) bool {
	if r.ProductType != nil && !pattern.Match(r.ProductType.Pattern, t.ProductType) {
		return false
	}
	if r.Description != nil && !pattern.Match(r.Description.Pattern, t.Description) {
		return false
	}
	price := t.Price()
	if r.PriceMinDollars != nil && float64(*r.PriceMinDollars) > price {
		return false
	}
	if r.PriceMaxDollars != nil && price > float64(*r.PriceMaxDollars) {
		return false
	}
	return true
}

// Set is an ordered collection of rules. Order is a user-controlled
// priority list; it is fixed for the process lifetime once loaded.
type Set struct {
	rules []Rule
}

// NewSet builds a set from rules in priority order.
func NewSet(rules []Rule) *Set {
	return &Set{rules: rules}
}

// Rules returns the rules in declaration order.
func (s *Set) Rules() []Rule {
	return s.rules
}

// Match returns the first rule satisfied by both the listing and its
// parsed title, or nil when no rule matches.
func (s *Set) Match(l *model.Listing, t *model.ParsedTitle) *Rule {
	for i := range s.rules {
		r := &s.rules[i]
		if r.MatchesListing(l) && r.MatchesTitle(t) {
			return r
		}
	}
	return nil
}
