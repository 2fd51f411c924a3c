// Package parser turns .schema source text into an ast.File.
//
// Parsing is fail-fast per file: the first structural error aborts with a
// syntax diagnostic carrying the exact line/column and the expected token.
// Other files in a batch are unaffected; the resolver decides how far to
// carry on.
package parser

import (
	"strconv"

	"tabula/core/ast"
	"tabula/core/diag"
	"tabula/core/lexer"
)

// Parse tokenizes and parses one file. src is the already-loaded file
// content; no I/O happens here.
func Parse(filename, src string) (*ast.File, error) {
	toks, err := lexer.New(filename, src).All()
	if err != nil {
		return nil, err
	}
	p := &parser{file: filename, toks: toks}
	return p.parseFile()
}

type parser struct {
	file string
	toks []lexer.Token
	i    int
}

func (p *parser) cur() lexer.Token {
	if p.i < len(p.toks) {
		return p.toks[p.i]
	}
	return lexer.Token{Kind: lexer.EOF, Pos: p.eofPos()}
}

func (p *parser) eofPos() diag.Pos {
	if len(p.toks) == 0 {
		return diag.Pos{File: p.file, Line: 1, Column: 1}
	}
	last := p.toks[len(p.toks)-1]
	return diag.Pos{File: p.file, Line: last.Pos.Line, Column: last.Pos.Column + len(last.Lit)}
}

func (p *parser) next() lexer.Token {
	tok := p.cur()
	p.i++
	return tok
}

func (p *parser) at(kind lexer.Kind) bool { return p.cur().Kind == kind }

func (p *parser) expect(kind lexer.Kind) (lexer.Token, error) {
	tok := p.cur()
	if tok.Kind != kind {
		return tok, p.errExpected(kind.String())
	}
	p.i++
	return tok, nil
}

func (p *parser) errExpected(what string) error {
	tok := p.cur()
	found := tok.Kind.String()
	if tok.Kind == lexer.Ident {
		found = strconv.Quote(tok.Lit)
	}
	return diag.Errorf(diag.CodeSyntax, tok.Pos, "expected %s, found %s", what, found)
}

func (p *parser) span(from diag.Pos) diag.Span {
	end := from
	if p.i > 0 {
		prev := p.toks[p.i-1]
		end = diag.Pos{File: prev.Pos.File, Line: prev.Pos.Line, Column: prev.Pos.Column + len(prev.Lit)}
	}
	return diag.Span{Start: from, End: end}
}

func identSpan(tok lexer.Token) diag.Span {
	end := tok.Pos
	end.Column += len(tok.Lit)
	return diag.Span{Start: tok.Pos, End: end}
}

func (p *parser) parseFile() (*ast.File, error) {
	f := &ast.File{Path: p.file}
	for !p.at(lexer.EOF) {
		if p.at(lexer.KwImport) {
			imp, err := p.parseImport()
			if err != nil {
				return nil, err
			}
			f.Imports = append(f.Imports, imp)
			continue
		}
		def, err := p.parseDefinition()
		if err != nil {
			return nil, err
		}
		f.Defs = append(f.Defs, def)
	}
	return f, nil
}

func (p *parser) parseImport() (ast.Import, error) {
	start := p.next().Pos // import
	path, err := p.expect(lexer.String)
	if err != nil {
		return ast.Import{}, err
	}
	if _, err := p.expect(lexer.Semi); err != nil {
		return ast.Import{}, err
	}
	return ast.Import{Path: path.Lit, Span: p.span(start)}, nil
}

// parseDefinition handles doc comments and annotations, then dispatches on
// the definition keyword.
func (p *parser) parseDefinition() (ast.Definition, error) {
	doc := p.collectDoc()
	anns, err := p.collectAnnotations()
	if err != nil {
		return nil, err
	}

	switch p.cur().Kind {
	case lexer.KwNamespace:
		return p.parseNamespace(anns)
	case lexer.KwTable:
		return p.parseTable(doc, anns)
	case lexer.KwEnum:
		return p.parseEnumDef(doc, anns)
	case lexer.KwEmbed:
		return p.parseEmbedDef(doc, anns)
	default:
		return nil, p.errExpected("'namespace', 'table', 'enum', or 'embed'")
	}
}

func (p *parser) parseNamespace(anns []ast.Annotation) (*ast.Namespace, error) {
	p.next() // namespace
	path, span, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	ns := &ast.Namespace{Annotations: anns, Path: path, Span: span}
	for !p.at(lexer.RBrace) {
		if p.at(lexer.EOF) {
			return nil, p.errExpected("'}' to close namespace")
		}
		def, err := p.parseDefinition()
		if err != nil {
			return nil, err
		}
		ns.Defs = append(ns.Defs, def)
	}
	p.next() // }
	return ns, nil
}

func (p *parser) parseTable(doc string, anns []ast.Annotation) (*ast.Table, error) {
	p.next() // table
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	t := &ast.Table{Doc: doc, Annotations: anns, Name: name.Lit, Span: identSpan(name)}
	for !p.at(lexer.RBrace) {
		if p.at(lexer.EOF) {
			return nil, p.errExpected("'}' to close table")
		}
		member, err := p.parseMember()
		if err != nil {
			return nil, err
		}
		t.Members = append(t.Members, member)
	}
	p.next() // }
	return t, nil
}

// parseMember parses one table body item: a field, or a table-scoped enum
// or embed definition.
func (p *parser) parseMember() (ast.Member, error) {
	doc := p.collectDoc()
	anns, err := p.collectAnnotations()
	if err != nil {
		return nil, err
	}

	switch p.cur().Kind {
	case lexer.KwEnum:
		return p.parseEnumDef(doc, anns)
	case lexer.KwEmbed:
		return p.parseEmbedDef(doc, anns)
	case lexer.Ident:
		return p.parseField(doc, anns)
	default:
		return nil, p.errExpected("field name, 'enum', or 'embed'")
	}
}

func (p *parser) parseEnumDef(doc string, anns []ast.Annotation) (*ast.Enum, error) {
	p.next() // enum
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	variants, err := p.parseEnumBody()
	if err != nil {
		return nil, err
	}
	return &ast.Enum{Doc: doc, Annotations: anns, Name: name.Lit, Variants: variants, Span: identSpan(name)}, nil
}

func (p *parser) parseEnumBody() ([]ast.EnumVariant, error) {
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	var variants []ast.EnumVariant
	for !p.at(lexer.RBrace) {
		if p.at(lexer.EOF) {
			return nil, p.errExpected("'}' to close enum")
		}
		doc := p.collectDoc()
		name, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		v := ast.EnumVariant{Doc: doc, Name: name.Lit, Span: identSpan(name)}
		if p.at(lexer.Assign) {
			p.next()
			num, err := p.expect(lexer.Int)
			if err != nil {
				return nil, err
			}
			val, err := strconv.ParseInt(num.Lit, 10, 64)
			if err != nil {
				return nil, diag.Errorf(diag.CodeSyntax, num.Pos, "invalid enum ordinal %q", num.Lit)
			}
			v.Value = &val
		}
		if _, err := p.expect(lexer.Semi); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	p.next() // }
	return variants, nil
}

func (p *parser) parseEmbedDef(doc string, anns []ast.Annotation) (*ast.Embed, error) {
	p.next() // embed
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	fields, err := p.parseEmbedBody()
	if err != nil {
		return nil, err
	}
	return &ast.Embed{Doc: doc, Annotations: anns, Name: name.Lit, Fields: fields, Span: identSpan(name)}, nil
}

func (p *parser) parseEmbedBody() ([]*ast.Field, error) {
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	var fields []*ast.Field
	for !p.at(lexer.RBrace) {
		if p.at(lexer.EOF) {
			return nil, p.errExpected("'}' to close embed")
		}
		doc := p.collectDoc()
		anns, err := p.collectAnnotations()
		if err != nil {
			return nil, err
		}
		field, err := p.parseField(doc, anns)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	p.next() // }
	return fields, nil
}

// parseField parses `name: Type modifier? constraint* ;`.
func (p *parser) parseField(doc string, anns []ast.Annotation) (*ast.Field, error) {
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Colon); err != nil {
		return nil, err
	}

	typ, err := p.parseTypeExpr()
	if err != nil {
		return nil, err
	}

	card := ast.CardScalar
	switch p.cur().Kind {
	case lexer.Question:
		p.next()
		card = ast.CardOptional
	case lexer.LBracket:
		p.next()
		if _, err := p.expect(lexer.RBracket); err != nil {
			return nil, err
		}
		card = ast.CardArray
	}

	var constraints []ast.Constraint
	for p.at(lexer.Ident) {
		c, err := p.parseConstraint()
		if err != nil {
			return nil, err
		}
		constraints = append(constraints, c)
	}

	if _, err := p.expect(lexer.Semi); err != nil {
		return nil, err
	}

	return &ast.Field{
		Doc:         doc,
		Annotations: anns,
		Name:        name.Lit,
		Type:        typ,
		Card:        card,
		Constraints: constraints,
		Span:        identSpan(name),
	}, nil
}

func (p *parser) parseTypeExpr() (ast.TypeExpr, error) {
	switch p.cur().Kind {
	case lexer.KwEmbed:
		// Anonymous embed body at field position.
		start := p.next().Pos
		fields, err := p.parseEmbedBody()
		if err != nil {
			return nil, err
		}
		return &ast.InlineEmbed{Fields: fields, Span: p.span(start)}, nil
	case lexer.KwEnum:
		start := p.next().Pos
		variants, err := p.parseEnumBody()
		if err != nil {
			return nil, err
		}
		return &ast.InlineEnum{Variants: variants, Span: p.span(start)}, nil
	case lexer.Ident:
		if prim, ok := ast.PrimTypeByName(p.cur().Lit); ok && p.peekKind(1) != lexer.Dot {
			p.next()
			return prim, nil
		}
		path, span, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		return &ast.NamedType{Path: path, Span: span}, nil
	default:
		return nil, p.errExpected("type name")
	}
}

func (p *parser) peekKind(n int) lexer.Kind {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n].Kind
	}
	return lexer.EOF
}

func (p *parser) parsePath() ([]string, diag.Span, error) {
	first, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, diag.Span{}, err
	}
	path := []string{first.Lit}
	end := first
	for p.at(lexer.Dot) {
		p.next()
		seg, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, diag.Span{}, err
		}
		path = append(path, seg.Lit)
		end = seg
	}
	span := diag.Span{Start: first.Pos, End: diag.Pos{File: end.Pos.File, Line: end.Pos.Line, Column: end.Pos.Column + len(end.Lit)}}
	return path, span, nil
}

// parseConstraint dispatches on the constraint keyword. Constraint names
// are ordinary identifiers, not reserved words.
func (p *parser) parseConstraint() (ast.Constraint, error) {
	tok := p.next()
	span := identSpan(tok)
	switch tok.Lit {
	case "primary_key":
		return ast.PrimaryKey{Span: span}, nil
	case "unique":
		return ast.Unique{Span: span}, nil
	case "index":
		return ast.Index{Span: span}, nil
	case "auto_increment":
		return ast.AutoIncrement{Span: span}, nil
	case "max_length":
		if _, err := p.expect(lexer.LParen); err != nil {
			return nil, err
		}
		num, err := p.expect(lexer.Int)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(num.Lit, 10, 64)
		if err != nil || n < 0 {
			return nil, diag.Errorf(diag.CodeSyntax, num.Pos, "invalid max_length value %q", num.Lit)
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return ast.MaxLength{N: n, Span: span}, nil
	case "default":
		if _, err := p.expect(lexer.LParen); err != nil {
			return nil, err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return ast.Default{Value: lit, Span: span}, nil
	case "range":
		if _, err := p.expect(lexer.LParen); err != nil {
			return nil, err
		}
		lo, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Comma); err != nil {
			return nil, err
		}
		hi, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return ast.Range{Lo: lo, Hi: hi, Span: span}, nil
	case "regex":
		if _, err := p.expect(lexer.LParen); err != nil {
			return nil, err
		}
		pat, err := p.expect(lexer.String)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return ast.Regex{Pattern: pat.Lit, Span: span}, nil
	case "foreign_key":
		return p.parseForeignKey(span)
	default:
		return nil, diag.Errorf(diag.CodeSyntax, tok.Pos, "unknown constraint %q", tok.Lit)
	}
}

// parseForeignKey parses `foreign_key(path.to.Table.field)` with an
// optional reverse-relation name: `foreign_key(Item.id, as: owners)`.
// The alias accepts a bare identifier or a string literal.
func (p *parser) parseForeignKey(span diag.Span) (ast.Constraint, error) {
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	target, _, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	fk := &ast.ForeignKey{Target: target, Span: span}
	if p.at(lexer.Comma) {
		p.next()
		if _, err := p.expect(lexer.KwAs); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		switch p.cur().Kind {
		case lexer.Ident:
			fk.As = p.next().Lit
		case lexer.String:
			fk.As = p.next().Lit
		default:
			return nil, p.errExpected("relation name")
		}
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	return fk, nil
}

func (p *parser) collectDoc() string {
	var lines []string
	for p.at(lexer.DocComment) {
		lines = append(lines, p.next().Lit)
	}
	if len(lines) == 0 {
		return ""
	}
	out := lines[0]
	for _, l := range lines[1:] {
		out += "\n" + l
	}
	return out
}

func (p *parser) collectAnnotations() ([]ast.Annotation, error) {
	var anns []ast.Annotation
	for p.at(lexer.At) {
		ann, err := p.parseAnnotation()
		if err != nil {
			return nil, err
		}
		anns = append(anns, ann)
	}
	return anns, nil
}

// parseAnnotation parses `@name`, `@name(a, b)`, and `@name(key: value)`
// forms; positional and named arguments may be mixed.
func (p *parser) parseAnnotation() (ast.Annotation, error) {
	start := p.next().Pos // @
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return ast.Annotation{}, err
	}
	ann := ast.Annotation{Name: name.Lit}
	if p.at(lexer.LParen) {
		p.next()
		for !p.at(lexer.RParen) {
			arg, err := p.parseAnnotationArg()
			if err != nil {
				return ast.Annotation{}, err
			}
			ann.Args = append(ann.Args, arg)
			if p.at(lexer.Comma) {
				p.next()
				continue
			}
			break
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return ast.Annotation{}, err
		}
	}
	ann.Span = p.span(start)
	return ann, nil
}

func (p *parser) parseAnnotationArg() (ast.AnnotationArg, error) {
	// `ident:` introduces a named parameter; anything else is positional.
	if p.at(lexer.Ident) && p.peekKind(1) == lexer.Colon {
		key := p.next()
		p.next() // :
		val, err := p.parseLiteral()
		if err != nil {
			return ast.AnnotationArg{}, err
		}
		return ast.AnnotationArg{Key: key.Lit, Value: val}, nil
	}
	val, err := p.parseLiteral()
	if err != nil {
		return ast.AnnotationArg{}, err
	}
	return ast.AnnotationArg{Value: val}, nil
}

func (p *parser) parseLiteral() (ast.Literal, error) {
	tok := p.cur()
	span := identSpan(tok)
	switch tok.Kind {
	case lexer.String:
		p.next()
		return ast.Literal{Kind: ast.LitString, Str: tok.Lit, Span: span}, nil
	case lexer.Int:
		p.next()
		n, err := strconv.ParseInt(tok.Lit, 10, 64)
		if err != nil {
			return ast.Literal{}, diag.Errorf(diag.CodeSyntax, tok.Pos, "invalid integer %q", tok.Lit)
		}
		return ast.Literal{Kind: ast.LitInt, Int: n, Span: span}, nil
	case lexer.Float:
		p.next()
		f, err := strconv.ParseFloat(tok.Lit, 64)
		if err != nil {
			return ast.Literal{}, diag.Errorf(diag.CodeSyntax, tok.Pos, "invalid float %q", tok.Lit)
		}
		return ast.Literal{Kind: ast.LitFloat, Float: f, Span: span}, nil
	case lexer.KwTrue:
		p.next()
		return ast.Literal{Kind: ast.LitBool, Bool: true, Span: span}, nil
	case lexer.KwFalse:
		p.next()
		return ast.Literal{Kind: ast.LitBool, Bool: false, Span: span}, nil
	case lexer.Ident:
		p.next()
		return ast.Literal{Kind: ast.LitIdent, Str: tok.Lit, Span: span}, nil
	default:
		return ast.Literal{}, p.errExpected("literal value")
	}
}
