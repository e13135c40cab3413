// Package pattern implements the boolean keyword expression language
// used by match rules.
//
// A pattern is a tree of substring keywords combined with '&&', '||'
// and '!'. The two binary operators share a single precedence level and
// associate left to right: "a && b || c" reads as "(a && b) || c" and
// "a || b && c" as "(a || b) && c". Parentheses override. Negation
// consumes the entire remaining expression.
package pattern

import (
	"crypto/sha256"
	"hash"
	"strings"
)

// Pattern is a node of a parsed expression tree. The concrete types are
// Exact, And, Or and Not. Trees are immutable once built.
type Pattern interface {
	isPattern()
	String() string
}

// Exact matches when its keyword occurs in the subject text,
// case-insensitively.
type Exact struct {
	Keyword string
}

// And matches when both operands match.
type And struct {
	Left, Right Pattern
}

// Or matches when either operand matches.
type Or struct {
	Left, Right Pattern
}

// Not matches when its operand does not.
type Not struct {
	Operand Pattern
}

func (Exact) isPattern() {}
func (And) isPattern()   {}
func (Or) isPattern()    {}
func (Not) isPattern()   {}

func (p Exact) String() string { return `"` + p.Keyword + `"` }
func (p And) String() string   { return p.Left.String() + " && " + p.Right.String() }
func (p Or) String() string    { return p.Left.String() + " || " + p.Right.String() }
func (p Not) String() string   { return "!" + p.Operand.String() }

// Match reports whether text satisfies the pattern.
func Match(p Pattern, text string) bool {
	switch p := p.(type) {
	case Exact:
		return strings.Contains(strings.ToLower(text), strings.ToLower(p.Keyword))
	case And:
		return Match(p.Left, text) && Match(p.Right, text)
	case Or:
		return Match(p.Left, text) || Match(p.Right, text)
	case Not:
		return !Match(p.Operand, text)
	}
	return false
}

// MatchOptional evaluates a pattern against a field that may be absent.
// A nil field satisfies only a negated pattern: "must not contain X"
// holds vacuously when there is nothing to inspect, while "must contain
// X" does not.
func MatchOptional(p Pattern, text *string) bool {
	if text == nil {
		_, negated := p.(Not)
		return negated
	}
	return Match(p, *text)
}

// Digest returns a hash of the pattern's structure. Two sources that
// parse to the same tree digest identically regardless of whitespace or
// quoting differences.
func Digest(p Pattern) []byte {
	h := sha256.New()
	digestNode(h, p)
	return h.Sum(nil)
}

func digestNode(h hash.Hash, p Pattern) {
	switch p := p.(type) {
	case Exact:
		h.Write([]byte(p.Keyword))
	case And:
		h.Write([]byte("&&"))
		h.Write(Digest(p.Left))
		h.Write(Digest(p.Right))
	case Or:
		h.Write([]byte("||"))
		h.Write(Digest(p.Left))
		h.Write(Digest(p.Right))
	case Not:
		h.Write([]byte("!"))
		h.Write(Digest(p.Operand))
	}
}
