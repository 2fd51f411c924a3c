package dataload

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"tabula/core/ast"
	"tabula/core/ir"
)

// DBSource reads and writes table rows in a SQLite database. The backing
// table name is the load/save annotation path when set, otherwise the
// schema table's simple name.
type DBSource struct {
	db *sql.DB
}

// OpenDB opens the SQLite database at path.
func OpenDB(path string) (*DBSource, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return &DBSource{db: db}, nil
}

// NewDBSource wraps an existing handle; the caller keeps ownership.
func NewDBSource(db *sql.DB) *DBSource { return &DBSource{db: db} }

// Close releases the database handle.
func (s *DBSource) Close() error { return s.db.Close() }

func backingTable(table *ir.Table, src *ir.DataSource) string {
	if src != nil && src.Path != "" {
		return src.Path
	}
	return table.Name
}

func (s *DBSource) Load(ctx context.Context, table *ir.Table) ([]Row, error) {
	src := table.Annotations.Load
	if src == nil || src.Kind != ir.SourceDB {
		return nil, fmt.Errorf("table %s has no DB load source", table.FQN)
	}
	name := backingTable(table, src)

	cols := make([]string, len(table.Fields))
	for i, f := range table.Fields {
		cols[i] = quoteIdent(f.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), quoteIdent(name))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	tracker := newKeyTracker(table)
	provider := "db:" + name
	var out []Row
	values := make([]sql.NullString, len(table.Fields))
	scan := make([]any, len(values))
	for i := range values {
		scan[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		row := make(Row, len(table.Fields))
		for i, f := range table.Fields {
			if values[i].Valid {
				row[f.Name] = values[i].String
			}
		}
		if err := tracker.add(row, provider); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return out, nil
}

// Save replaces the backing table's content inside one transaction,
// creating the table from the schema when it does not exist.
func (s *DBSource) Save(ctx context.Context, table *ir.Table, rows []Row) error {
	src := table.Annotations.Save
	if src == nil || src.Kind != ir.SourceDB {
		return fmt.Errorf("table %s has no DB save target", table.FQN)
	}
	name := backingTable(table, src)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save of %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createTableDDL(name, table)); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(name)); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}

	cols := make([]string, len(table.Fields))
	marks := make([]string, len(table.Fields))
	for i, f := range table.Fields {
		cols[i] = quoteIdent(f.Name)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(table.Fields))
	for _, row := range rows {
		for i, f := range table.Fields {
			if v, ok := row[f.Name]; ok {
				args[i] = v
			} else {
				args[i] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save of %s: %w", name, err)
	}
	return nil
}

// createTableDDL derives a CREATE TABLE IF NOT EXISTS statement from the
// schema fields.
func createTableDDL(name string, table *ir.Table) string {
	var cols []string
	for _, f := range table.Fields {
		col := quoteIdent(f.Name) + " " + sqliteType(f)
		if f.PrimaryKey {
			col += " PRIMARY KEY"
		}
		if f.Unique && !f.PrimaryKey {
			col += " UNIQUE"
		}
		if f.Card != ast.CardOptional && !f.PrimaryKey {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(name), strings.Join(cols, ", "))
}

func sqliteType(f *ir.Field) string {
	switch f.Type.Kind {
	case ir.KindEnum:
		return "INTEGER"
	case ir.KindPrimitive:
		switch {
		case f.Type.Prim == ast.PrimBool:
			return "INTEGER"
		case f.Type.Prim == ast.PrimBytes:
			return "BLOB"
		case f.Type.Prim == ast.PrimF32 || f.Type.Prim == ast.PrimF64:
			return "REAL"
		case f.Type.Prim.IsInteger():
			return "INTEGER"
		default:
			return "TEXT"
		}
	default:
		// Composite values are stored in their serialized text form.
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
