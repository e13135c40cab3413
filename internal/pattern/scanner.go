package pattern

// The grammar, after left-factoring:
//
//	Pattern     := Factor PatternTail
//	PatternTail := ('&&' | '||') Factor PatternTail | ε
//	Factor      := '(' Pattern ')' | '!' Pattern | Keyword
//	Keyword     := quoted string | run of alphanumeric characters

import (
	"fmt"
	"strings"
	"unicode"
)

// SyntaxError reports a malformed pattern expression and the column at
// which scanning failed.
type SyntaxError struct {
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("column %d: %s", e.Column, e.Message)
}

type tokenKind int

const (
	tokParenOpen tokenKind = iota
	tokParenClose
	tokAnd
	tokOr
	tokNegate
	tokKeyword
)

func (k tokenKind) String() string {
	switch k {
	case tokParenOpen:
		return "'('"
	case tokParenClose:
		return "')'"
	case tokAnd:
		return "'&&'"
	case tokOr:
		return "'||'"
	case tokNegate:
		return "'!'"
	default:
		return "keyword"
	}
}

type token struct {
	kind    tokenKind
	keyword string
}

func describeToken(t *token) string {
	if t == nil {
		return "end of input"
	}
	if t.kind == tokKeyword {
		return fmt.Sprintf("keyword %q", t.keyword)
	}
	return t.kind.String()
}

// Parse compiles a pattern expression into its tree form. Errors carry
// the column of the offending input.
func Parse(src string) (Pattern, error) {
	s := &scanner{src: []rune(src)}
	return s.pattern()
}

type scanner struct {
	src    []rune
	cursor int

	// start of the most recently scanned token, so a lookahead that
	// turns out not to belong to the current production can be undone
	lastToken int
	hasLast   bool
}

func (s *scanner) pattern() (Pattern, error) {
	f, err := s.factor()
	if err != nil {
		return nil, err
	}
	return s.patternTail(f)
}

// patternTail folds '&&'/'||' continuations onto lhs strictly left to
// right. Both operators live on the same precedence level.
func (s *scanner) patternTail(lhs Pattern) (Pattern, error) {
	tok, err := s.nextToken()
	if err != nil {
		return nil, err
	}
	if tok == nil || (tok.kind != tokAnd && tok.kind != tokOr) {
		s.rewind()
		return lhs, nil
	}

	rhs, err := s.factor()
	if err != nil {
		return nil, err
	}
	if tok.kind == tokAnd {
		lhs = And{Left: lhs, Right: rhs}
	} else {
		lhs = Or{Left: lhs, Right: rhs}
	}
	return s.patternTail(lhs)
}

func (s *scanner) factor() (Pattern, error) {
	tok, err := s.nextToken()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, &SyntaxError{
			Column:  s.cursor,
			Message: "expected one of '(', '!' or a keyword, got end of input",
		}
	}

	switch tok.kind {
	case tokParenOpen:
		p, err := s.pattern()
		if err != nil {
			return nil, err
		}
		closing, err := s.nextToken()
		if err != nil {
			return nil, err
		}
		if closing == nil || closing.kind != tokParenClose {
			return nil, &SyntaxError{
				Column:  s.cursor,
				Message: fmt.Sprintf("expected ')', got %s", describeToken(closing)),
			}
		}
		return p, nil
	case tokNegate:
		p, err := s.pattern()
		if err != nil {
			return nil, err
		}
		return Not{Operand: p}, nil
	case tokKeyword:
		return Exact{Keyword: tok.keyword}, nil
	default:
		return nil, &SyntaxError{
			Column:  s.cursor,
			Message: fmt.Sprintf("expected one of '(', '!' or a keyword, got %s", describeToken(tok)),
		}
	}
}

func (s *scanner) nextToken() (*token, error) {
	for s.cursor < len(s.src) && unicode.IsSpace(s.src[s.cursor]) {
		s.cursor++
	}
	s.lastToken = s.cursor
	s.hasLast = true

	if s.cursor >= len(s.src) {
		return nil, nil
	}

	switch s.src[s.cursor] {
	case '(':
		s.cursor++
		return &token{kind: tokParenOpen}, nil
	case ')':
		s.cursor++
		return &token{kind: tokParenClose}, nil
	case '!':
		s.cursor++
		return &token{kind: tokNegate}, nil
	case '|':
		s.cursor++
		if err := s.expect('|'); err != nil {
			return nil, err
		}
		return &token{kind: tokOr}, nil
	case '&':
		s.cursor++
		if err := s.expect('&'); err != nil {
			return nil, err
		}
		return &token{kind: tokAnd}, nil
	default:
		kwd, err := s.keyword()
		if err != nil {
			return nil, err
		}
		return &token{kind: tokKeyword, keyword: kwd}, nil
	}
}

// keyword scans either a double-quoted literal or an unquoted run of
// alphanumeric characters terminated by whitespace, an operator
// character or a parenthesis.
func (s *scanner) keyword() (string, error) {
	if s.take('"') {
		return s.untilNextQuote()
	}
	if s.cursor >= len(s.src) {
		return "", &SyntaxError{Column: s.cursor, Message: "expected a keyword, got end of input"}
	}

	var b strings.Builder
	b.WriteRune(s.src[s.cursor])
	s.cursor++

	for s.cursor < len(s.src) {
		ch := s.src[s.cursor]
		if unicode.IsSpace(ch) || ch == '!' || ch == '|' || ch == '&' || ch == '(' || ch == ')' {
			break
		}
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) {
			return "", &SyntaxError{
				Column:  s.cursor,
				Message: fmt.Sprintf("unexpected character %q in keyword", ch),
			}
		}
		b.WriteRune(ch)
		s.cursor++
	}
	return b.String(), nil
}

func (s *scanner) untilNextQuote() (string, error) {
	if s.take('"') {
		return "", &SyntaxError{Column: s.cursor, Message: "empty keyword, check quotes"}
	}

	var b strings.Builder
	for s.cursor < len(s.src) {
		ch := s.src[s.cursor]
		s.cursor++
		if ch == '"' {
			break
		}
		b.WriteRune(ch)
	}
	return b.String(), nil
}

// expect consumes ch or fails with a positional error.
func (s *scanner) expect(ch rune) error {
	if s.cursor >= len(s.src) {
		return &SyntaxError{
			Column:  s.cursor,
			Message: fmt.Sprintf("expected %q, got end of input", ch),
		}
	}
	if s.src[s.cursor] != ch {
		return &SyntaxError{
			Column:  s.cursor,
			Message: fmt.Sprintf("expected %q, got %q", ch, s.src[s.cursor]),
		}
	}
	s.cursor++
	return nil
}

// take consumes ch if it is next.
func (s *scanner) take(ch rune) bool {
	if s.cursor < len(s.src) && s.src[s.cursor] == ch {
		s.cursor++
		return true
	}
	return false
}

// rewind moves the cursor back to the start of the last scanned token.
func (s *scanner) rewind() {
	if s.hasLast {
		s.cursor = s.lastToken
		s.hasLast = false
	}
}
