// Package diag defines source locations, severities, and the diagnostic
// types shared by every stage of the compilation pipeline.
package diag

import (
	"fmt"
	"sort"
	"strings"
)

// Pos is a 1-indexed line/column position within a named file.
type Pos struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// IsValid reports whether the position carries real coordinates.
func (p Pos) IsValid() bool { return p.Line > 0 }

// Span covers a contiguous region of source text.
type Span struct {
	Start Pos `json:"start"`
	End   Pos `json:"end"`
}

// Contains reports whether the 1-indexed position lies within the span.
func (s Span) Contains(line, col int) bool {
	if line < s.Start.Line || line > s.End.Line {
		return false
	}
	if line == s.Start.Line && col < s.Start.Column {
		return false
	}
	if line == s.End.Line && col > s.End.Column {
		return false
	}
	return true
}

func (s Span) String() string { return s.Start.String() }

// Severity classifies a diagnostic. Only Error blocks downstream stages.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler for JSON output.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Code identifies the kind of problem a diagnostic reports.
type Code string

const (
	CodeSyntax             Code = "syntax_error"
	CodeCircularImport     Code = "circular_import"
	CodeImport             Code = "import_error"
	CodeDuplicateDef       Code = "duplicate_definition"
	CodeUnresolvedType     Code = "unresolved_type"
	CodeUnresolvedFK       Code = "unresolved_foreign_key"
	CodeConstraintMismatch Code = "constraint_type_mismatch"
	CodeMissingAnnotParam  Code = "missing_annotation_parameter"
	CodeInvalidPrimaryKey  Code = "invalid_primary_key"
	CodeDuplicateKey       Code = "duplicate_key"
)

// Diagnostic is a single reported problem with a precise location.
type Diagnostic struct {
	Code     Code     `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Pos      Pos      `json:"pos"`

	// Related points at a second location involved in the problem,
	// e.g. the earlier declaration in a duplicate-definition report.
	Related *Pos `json:"related,omitempty"`
}

func (d *Diagnostic) Error() string {
	var b strings.Builder
	if d.Pos.IsValid() {
		b.WriteString(d.Pos.String())
		b.WriteString(": ")
	}
	b.WriteString(d.Severity.String())
	b.WriteString(": ")
	b.WriteString(d.Message)
	if d.Related != nil {
		fmt.Fprintf(&b, " (see also %s)", d.Related)
	}
	return b.String()
}

// Errorf builds an error-severity diagnostic at pos.
func Errorf(code Code, pos Pos, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Code:     code,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
		Pos:      pos,
	}
}

// Warnf builds a warning-severity diagnostic at pos.
func Warnf(code Code, pos Pos, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Code:     code,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf(format, args...),
		Pos:      pos,
	}
}

// List accumulates diagnostics across a whole pipeline stage.
// The zero value is ready to use.
type List []*Diagnostic

// Add appends d; nil diagnostics are ignored.
func (l *List) Add(d *Diagnostic) {
	if d != nil {
		*l = append(*l, d)
	}
}

// Merge appends every diagnostic from other.
func (l *List) Merge(other List) { *l = append(*l, other...) }

// HasErrors reports whether any diagnostic has error severity.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Sort orders diagnostics by file, line, column for stable reporting.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		a, b := l[i].Pos, l[j].Pos
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

// Error renders every diagnostic, one per line.
func (l List) Error() string {
	msgs := make([]string, len(l))
	for i, d := range l {
		msgs[i] = d.Error()
	}
	return strings.Join(msgs, "\n")
}

// ErrOrNil returns the list as an error when it is non-empty.
func (l List) ErrOrNil() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
