package lexer

import (
	"testing"
)

func kinds(t *testing.T, src string) []Kind {
	t.Helper()
	toks, err := New("test.schema", src).All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	out := make([]Kind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestNextKinds(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Kind
	}{
		{
			name: "table header",
			src:  "table Player {",
			want: []Kind{KwTable, Ident, LBrace},
		},
		{
			name: "field with modifier",
			src:  "nickname: string?;",
			want: []Kind{Ident, Colon, Ident, Question, Semi},
		},
		{
			name: "array modifier",
			src:  "tags: string[];",
			want: []Kind{Ident, Colon, Ident, LBracket, RBracket, Semi},
		},
		{
			name: "dotted path stays integer free",
			src:  "game.item.Item",
			want: []Kind{Ident, Dot, Ident, Dot, Ident},
		},
		{
			name: "annotation",
			src:  "@datasource(kind: \"csv\")",
			want: []Kind{At, Ident, LParen, Ident, Colon, String, RParen},
		},
		{
			name: "line comment discarded",
			src:  "table // trailing\nPlayer",
			want: []Kind{KwTable, Ident},
		},
		{
			name: "block comment discarded",
			src:  "table /* x\ny */ Player",
			want: []Kind{KwTable, Ident},
		},
		{
			name: "doc comment is a token",
			src:  "/// The player roster.\ntable Player",
			want: []Kind{DocComment, KwTable, Ident},
		},
		{
			name: "enum ordinal",
			src:  "Active = 1;",
			want: []Kind{Ident, Assign, Int, Semi},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kinds(t, tt.src)
			if len(got) != len(tt.want) {
				t.Fatalf("token count = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		src      string
		wantKind Kind
		wantLit  string
	}{
		{"42", Int, "42"},
		{"-7", Int, "-7"},
		{"3.5", Float, "3.5"},
		{"-0.25", Float, "-0.25"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks, err := New("test.schema", tt.src).All()
			if err != nil {
				t.Fatalf("All(%q) error = %v", tt.src, err)
			}
			if len(toks) != 1 {
				t.Fatalf("token count = %d, want 1", len(toks))
			}
			if toks[0].Kind != tt.wantKind || toks[0].Lit != tt.wantLit {
				t.Errorf("token = (%v, %q), want (%v, %q)", toks[0].Kind, toks[0].Lit, tt.wantKind, tt.wantLit)
			}
		})
	}
}

func TestStringEscapes(t *testing.T) {
	toks, err := New("test.schema", `"a\"b\\c\n\t"`).All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	want := "a\"b\\c\n\t"
	if toks[0].Lit != want {
		t.Errorf("string literal = %q, want %q", toks[0].Lit, want)
	}
}

func TestPositions(t *testing.T) {
	toks, err := New("test.schema", "table Player {\n  id: i64;\n}").All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	// "id" starts line 2 column 3.
	var found bool
	for _, tok := range toks {
		if tok.Lit == "id" {
			found = true
			if tok.Pos.Line != 2 || tok.Pos.Column != 3 {
				t.Errorf("pos of id = %d:%d, want 2:3", tok.Pos.Line, tok.Pos.Column)
			}
		}
	}
	if !found {
		t.Fatal("id token not produced")
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unterminated string", `"abc`},
		{"string across newline", "\"abc\ndef\""},
		{"invalid escape", `"\q"`},
		{"unterminated block comment", "/* never closed"},
		{"stray character", "id # name"},
		{"malformed number", "12abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New("test.schema", tt.src).All(); err == nil {
				t.Errorf("All(%q) error = nil, want lex error", tt.src)
			}
		})
	}
}
