package pattern

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func strPtr(s string) *string { return &s }

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Pattern
	}{
		{
			name: "single unquoted keyword",
			src:  "nvidia",
			want: Exact{Keyword: "nvidia"},
		},
		{
			name: "single quoted keyword with spaces",
			src:  `"RTX 3080"`,
			want: Exact{Keyword: "RTX 3080"},
		},
		{
			name: "and",
			src:  "nvidia && rtx",
			want: And{Left: Exact{Keyword: "nvidia"}, Right: Exact{Keyword: "rtx"}},
		},
		{
			name: "or without spaces",
			src:  "nvidia||rtx",
			want: Or{Left: Exact{Keyword: "nvidia"}, Right: Exact{Keyword: "rtx"}},
		},
		{
			name: "and then or is left associative",
			src:  "a && b || c",
			want: Or{
				Left:  And{Left: Exact{Keyword: "a"}, Right: Exact{Keyword: "b"}},
				Right: Exact{Keyword: "c"},
			},
		},
		{
			name: "or then and is left associative",
			src:  "a || b && c",
			want: And{
				Left:  Or{Left: Exact{Keyword: "a"}, Right: Exact{Keyword: "b"}},
				Right: Exact{Keyword: "c"},
			},
		},
		{
			name: "three operators fold left",
			src:  "a && b || c && d",
			want: And{
				Left: Or{
					Left:  And{Left: Exact{Keyword: "a"}, Right: Exact{Keyword: "b"}},
					Right: Exact{Keyword: "c"},
				},
				Right: Exact{Keyword: "d"},
			},
		},
		{
			name: "parentheses override",
			src:  "a && (b || c)",
			want: And{
				Left:  Exact{Keyword: "a"},
				Right: Or{Left: Exact{Keyword: "b"}, Right: Exact{Keyword: "c"}},
			},
		},
		{
			name: "negated group",
			src:  "!(bad || expensive)",
			want: Not{Operand: Or{Left: Exact{Keyword: "bad"}, Right: Exact{Keyword: "expensive"}}},
		},
		{
			name: "negation consumes the rest of the expression",
			src:  "!a && b",
			want: Not{Operand: And{Left: Exact{Keyword: "a"}, Right: Exact{Keyword: "b"}}},
		},
		{
			name: "grouped patterns with quoted keyword",
			src:  `(nvidia && rtx) || (nvidia && "gtx 3060 ti")`,
			want: Or{
				Left:  And{Left: Exact{Keyword: "nvidia"}, Right: Exact{Keyword: "rtx"}},
				Right: And{Left: Exact{Keyword: "nvidia"}, Right: Exact{Keyword: "gtx 3060 ti"}},
			},
		},
		{
			name: "keyword terminated by parenthesis",
			src:  "(nvidia)",
			want: Exact{Keyword: "nvidia"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.src, diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantCol int
	}{
		{name: "empty input", src: "", wantCol: 0},
		{name: "empty quoted keyword", src: `""`, wantCol: 2},
		{name: "single ampersand", src: "a & b", wantCol: 3},
		{name: "single pipe", src: "a | b", wantCol: 3},
		{name: "unbalanced parenthesis", src: "(a && b", wantCol: 7},
		{name: "invalid keyword character", src: "nvi$dia", wantCol: 3},
		{name: "operator with no right operand", src: "a &&", wantCol: 4},
		{name: "dangling negation", src: "!", wantCol: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatalf("Parse(%q): expected error, got nil", tt.src)
			}
			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("Parse(%q): expected *SyntaxError, got %T", tt.src, err)
			}
			if diff := cmp.Diff(tt.wantCol, syntaxErr.Column); diff != "" {
				t.Errorf("column mismatch (-want +got):\n%s\nerror: %v", diff, err)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		src  string
		text string
		want bool
	}{
		{name: "case insensitive substring", src: "nvidia", text: "NVIDIA GeForce", want: true},
		{name: "substring absent", src: "amd", text: "NVIDIA GeForce", want: false},
		{name: "quoted multiword keyword", src: `"3060 ti"`, text: "EVGA RTX 3060 Ti FTW3", want: true},
		{name: "and both present", src: "nvidia && rtx", text: "NVIDIA RTX 4070", want: true},
		{name: "and one missing", src: "nvidia && rtx", text: "NVIDIA GTX 1080", want: false},
		{name: "or one present", src: "nvidia || amd", text: "AMD Radeon", want: true},
		{name: "not inverts", src: "!refurbished", text: "brand new card", want: true},
		{name: "not inverts to false", src: "!refurbished", text: "Refurbished card", want: false},
		{name: "left associative mixed operators", src: "a || b && c", text: "a c", want: true},
		{name: "left associative mixed operators negative", src: "a || b && c", text: "a b", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("parse %q: %v", tt.src, err)
			}
			if diff := cmp.Diff(tt.want, Match(p, tt.text)); diff != "" {
				t.Errorf("Match(%q, %q) mismatch (-want +got):\n%s", tt.src, tt.text, diff)
			}
		})
	}
}

func TestMatchOptional(t *testing.T) {
	tests := []struct {
		name string
		p    Pattern
		text *string
		want bool
	}{
		{
			name: "absent field satisfies negated pattern",
			p:    Not{Operand: Exact{Keyword: "x"}},
			text: nil,
			want: true,
		},
		{
			name: "absent field fails plain pattern",
			p:    Exact{Keyword: "x"},
			text: nil,
			want: false,
		},
		{
			name: "absent field fails conjunction even of negations",
			p:    And{Left: Not{Operand: Exact{Keyword: "x"}}, Right: Not{Operand: Exact{Keyword: "y"}}},
			text: nil,
			want: false,
		},
		{
			name: "present field evaluates normally",
			p:    Exact{Keyword: "gpu"},
			text: strPtr("GPU deals"),
			want: true,
		},
		{
			name: "present field evaluates negation normally",
			p:    Not{Operand: Exact{Keyword: "gpu"}},
			text: strPtr("GPU deals"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, MatchOptional(tt.p, tt.text)); diff != "" {
				t.Errorf("MatchOptional() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDigest(t *testing.T) {
	t.Run("equivalent sources digest identically", func(t *testing.T) {
		pairs := [][2]string{
			{"a && b", "  a   &&   b  "},
			{"nvidia", `"nvidia"`},
			{"a&&b||c", "a && b || c"},
			{"!(x)", "! x"},
		}
		for _, pair := range pairs {
			p1, err := Parse(pair[0])
			if err != nil {
				t.Fatalf("parse %q: %v", pair[0], err)
			}
			p2, err := Parse(pair[1])
			if err != nil {
				t.Fatalf("parse %q: %v", pair[1], err)
			}
			if diff := cmp.Diff(Digest(p1), Digest(p2)); diff != "" {
				t.Errorf("digests differ for %q vs %q (-want +got):\n%s", pair[0], pair[1], diff)
			}
		}
	})

	t.Run("different structures digest differently", func(t *testing.T) {
		sources := []string{"a && b", "a || b", "b && a", "!a && b", "a", "ab"}
		seen := map[string]string{}
		for _, src := range sources {
			p, err := Parse(src)
			if err != nil {
				t.Fatalf("parse %q: %v", src, err)
			}
			d := string(Digest(p))
			if prev, ok := seen[d]; ok {
				t.Errorf("digest collision between %q and %q", prev, src)
			}
			seen[d] = src
		}
	})
}

func TestString(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{src: "a&&b", want: `"a" && "b"`},
		{src: `!( x || "y z" )`, want: `!"x" || "y z"`},
		{src: "nvidia", want: `"nvidia"`},
	}

	for _, tt := range tests {
		p, err := Parse(tt.src)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.src, err)
		}
		if diff := cmp.Diff(tt.want, p.String()); diff != "" {
			t.Errorf("String() mismatch for %q (-want +got):\n%s", tt.src, diff)
		}
	}
}
