// Package lexer tokenizes .schema source text.
//
// Line comments (`//`) and block comments (`/* */`) are discarded; doc
// comments (`///`) are emitted as tokens so the parser can attach them to
// the following definition. Positions are 1-indexed line/column.
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"tabula/core/diag"
)

// Lexer produces tokens from a single file's source text.
type Lexer struct {
	file string
	src  string
	off  int
	line int
	col  int
}

// New returns a lexer over src. The file name is only used for positions.
func New(file, src string) *Lexer {
	// Normalize line endings so columns are stable across platforms.
	src = strings.ReplaceAll(src, "\r\n", "\n")
	return &Lexer{file: file, src: src, line: 1, col: 1}
}

func (l *Lexer) pos() diag.Pos {
	return diag.Pos{File: l.file, Line: l.line, Column: l.col}
}

func (l *Lexer) peek() rune {
	if l.off >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.off:])
	return r
}

func (l *Lexer) peekAt(n int) byte {
	if l.off+n >= len(l.src) {
		return 0
	}
	return l.src[l.off+n]
}

func (l *Lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.src[l.off:])
	l.off += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

// Next returns the next token, or a Token with Kind EOF at end of input.
// Lexical errors are returned as *diag.Diagnostic.
func (l *Lexer) Next() (Token, error) {
	for {
		l.skipSpace()
		if l.off >= len(l.src) {
			return Token{Kind: EOF, Pos: l.pos()}, nil
		}

		// Comments. `///` is a doc comment and becomes a token; `//`
		// and `/* */` are discarded.
		if l.peek() == '/' && l.peekAt(1) == '/' {
			if l.peekAt(2) == '/' {
				return l.docComment(), nil
			}
			l.skipLine()
			continue
		}
		if l.peek() == '/' && l.peekAt(1) == '*' {
			if err := l.skipBlockComment(); err != nil {
				return Token{}, err
			}
			continue
		}
		break
	}

	pos := l.pos()
	r := l.peek()

	switch {
	case isIdentStart(r):
		return l.ident(pos), nil
	case unicode.IsDigit(r) || (r == '-' && isDigitByte(l.peekAt(1))):
		return l.number(pos)
	case r == '"':
		return l.stringLit(pos)
	}

	l.advance()
	var kind Kind
	switch r {
	case '{':
		kind = LBrace
	case '}':
		kind = RBrace
	case '(':
		kind = LParen
	case ')':
		kind = RParen
	case '[':
		kind = LBracket
	case ']':
		kind = RBracket
	case ':':
		kind = Colon
	case ';':
		kind = Semi
	case ',':
		kind = Comma
	case '.':
		kind = Dot
	case '?':
		kind = Question
	case '=':
		kind = Assign
	case '@':
		kind = At
	default:
		return Token{}, diag.Errorf(diag.CodeSyntax, pos, "unexpected character %q", r)
	}
	return Token{Kind: kind, Lit: string(r), Pos: pos}, nil
}

// All tokenizes the remaining input, excluding the trailing EOF token.
func (l *Lexer) All() ([]Token, error) {
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == EOF {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

func (l *Lexer) skipSpace() {
	for l.off < len(l.src) {
		switch l.src[l.off] {
		case ' ', '\t', '\n', '\r':
			l.advance()
		default:
			return
		}
	}
}

func (l *Lexer) skipLine() {
	for l.off < len(l.src) && l.src[l.off] != '\n' {
		l.advance()
	}
}

func (l *Lexer) skipBlockComment() error {
	pos := l.pos()
	l.advance() // /
	l.advance() // *
	for l.off < len(l.src) {
		if l.src[l.off] == '*' && l.peekAt(1) == '/' {
			l.advance()
			l.advance()
			return nil
		}
		l.advance()
	}
	return diag.Errorf(diag.CodeSyntax, pos, "unterminated block comment")
}

func (l *Lexer) docComment() Token {
	pos := l.pos()
	l.advance() // /
	l.advance() // /
	l.advance() // /
	start := l.off
	for l.off < len(l.src) && l.src[l.off] != '\n' {
		l.advance()
	}
	text := strings.TrimSpace(l.src[start:l.off])
	return Token{Kind: DocComment, Lit: text, Pos: pos}
}

func (l *Lexer) ident(pos diag.Pos) Token {
	start := l.off
	for l.off < len(l.src) && isIdentPart(l.peek()) {
		l.advance()
	}
	lit := l.src[start:l.off]
	if kw, ok := keywords[lit]; ok {
		return Token{Kind: kw, Lit: lit, Pos: pos}
	}
	return Token{Kind: Ident, Lit: lit, Pos: pos}
}

func (l *Lexer) number(pos diag.Pos) (Token, error) {
	start := l.off
	if l.peek() == '-' {
		l.advance()
	}
	for l.off < len(l.src) && isDigitByte(l.src[l.off]) {
		l.advance()
	}
	kind := Int
	// A fraction part makes it a float; a bare '.' is a path separator.
	if l.off < len(l.src) && l.src[l.off] == '.' && isDigitByte(l.peekAt(1)) {
		kind = Float
		l.advance()
		for l.off < len(l.src) && isDigitByte(l.src[l.off]) {
			l.advance()
		}
	}
	lit := l.src[start:l.off]
	if l.off < len(l.src) && isIdentStart(l.peek()) {
		return Token{}, diag.Errorf(diag.CodeSyntax, pos, "malformed number %q", lit+string(l.peek()))
	}
	return Token{Kind: kind, Lit: lit, Pos: pos}, nil
}

func (l *Lexer) stringLit(pos diag.Pos) (Token, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.off >= len(l.src) || l.src[l.off] == '\n' {
			return Token{}, diag.Errorf(diag.CodeSyntax, pos, "unterminated string literal")
		}
		r := l.advance()
		switch r {
		case '"':
			return Token{Kind: String, Lit: b.String(), Pos: pos}, nil
		case '\\':
			if l.off >= len(l.src) {
				return Token{}, diag.Errorf(diag.CodeSyntax, pos, "unterminated string literal")
			}
			esc := l.advance()
			switch esc {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				return Token{}, diag.Errorf(diag.CodeSyntax, pos, "invalid escape sequence \\%c", esc)
			}
		default:
			b.WriteRune(r)
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }
