package lexer

import "tabula/core/diag"

// Kind classifies a token.
type Kind int

const (
	EOF Kind = iota
	Ident
	Int
	Float
	String
	DocComment

	// Keywords
	KwNamespace
	KwTable
	KwEnum
	KwEmbed
	KwImport
	KwAs
	KwTrue
	KwFalse

	// Punctuation
	LBrace   // {
	RBrace   // }
	LParen   // (
	RParen   // )
	LBracket // [
	RBracket // ]
	Colon    // :
	Semi     // ;
	Comma    // ,
	Dot      // .
	Question // ?
	Assign   // =
	At       // @
)

var kindNames = map[Kind]string{
	EOF:         "end of file",
	Ident:       "identifier",
	Int:         "integer",
	Float:       "float",
	String:      "string",
	DocComment:  "doc comment",
	KwNamespace: "'namespace'",
	KwTable:     "'table'",
	KwEnum:      "'enum'",
	KwEmbed:     "'embed'",
	KwImport:    "'import'",
	KwAs:        "'as'",
	KwTrue:      "'true'",
	KwFalse:     "'false'",
	LBrace:      "'{'",
	RBrace:      "'}'",
	LParen:      "'('",
	RParen:      "')'",
	LBracket:    "'['",
	RBracket:    "']'",
	Colon:       "':'",
	Semi:        "';'",
	Comma:       "','",
	Dot:         "'.'",
	Question:    "'?'",
	Assign:      "'='",
	At:          "'@'",
}

func (k Kind) String() string { return kindNames[k] }

var keywords = map[string]Kind{
	"namespace": KwNamespace,
	"table":     KwTable,
	"enum":      KwEnum,
	"embed":     KwEmbed,
	"import":    KwImport,
	"as":        KwAs,
	"true":      KwTrue,
	"false":     KwFalse,
}

// Token is one lexical unit with its source position.
type Token struct {
	Kind Kind
	Lit  string // literal text: identifier name, unquoted string, digits
	Pos  diag.Pos
}
