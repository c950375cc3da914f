package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/anatolykoptev/statube/internal/engine"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Table names.
const (
	TableChannel    = "CHANNEL"
	TableVideo      = "VIDEO"
	TableTranscript = "TRANSCRIPT"
)

// Row is one record keyed by column name. Omitted columns keep their stored
// value on upsert.
type Row map[string]any

// Query filters a Fetch. Where is a SQL fragment with ? placeholders.
type Query struct {
	Where   string
	Args    []any
	OrderBy string // "column" or "column DESC"
	Limit   int
}

// ErrMissingFile is returned when a row references a blob that is not on disk.
var ErrMissingFile = errors.New("store: referenced file missing")

type tableSpec struct {
	conflict []string // upsert target
	columns  []string
	files    []string // columns that must name an existing file
}

var tables = map[string]tableSpec{
	TableChannel: {
		conflict: []string{"channel_id"},
		columns:  []string{"channel_id", "name", "url", "sub_count", "desc", "profile_pic"},
	},
	TableVideo: {
		conflict: []string{"video_id"},
		columns: []string{"video_id", "channel_id", "video_type", "video_url", "title", "desc",
			"duration", "view_count", "like_count", "pub_date", "thumbnail_path"},
		files: []string{"thumbnail_path"},
	},
	TableTranscript: {
		conflict: []string{"video_id", "language"},
		columns:  []string{"channel_id", "video_id", "transcript_path", "language"},
		files:    []string{"transcript_path"},
	},
}

var orderByRe = regexp.MustCompile(`^([a-z_]+)(\s+(?i:asc|desc))?$`)

func lookup(table string) (tableSpec, error) {
	ts, ok := tables[table]
	if !ok {
		return tableSpec{}, fmt.Errorf("store: unknown table %q", table)
	}
	return ts, nil
}

// sortedColumns validates row against the table and returns its columns in schema order.
func (ts tableSpec) sortedColumns(row Row) ([]string, error) {
	cols := make([]string, 0, len(row))
	for _, c := range ts.columns {
		if _, ok := row[c]; ok {
			cols = append(cols, c)
		}
	}
	if len(cols) != len(row) {
		for c := range row {
			if !slices.Contains(ts.columns, c) {
				return nil, fmt.Errorf("store: unknown column %q", c)
			}
		}
	}
	return cols, nil
}

func (ts tableSpec) checkFiles(row Row, required bool) error {
	for _, c := range ts.files {
		v, ok := row[c]
		if !ok {
			if required {
				return fmt.Errorf("%w: %s not set", ErrMissingFile, c)
			}
			continue
		}
		p, _ := v.(string)
		if !fileExists(p) {
			return fmt.Errorf("%w: %s=%q", ErrMissingFile, c, p)
		}
	}
	return nil
}

func quote(ident string) string { return `"` + ident + `"` }

// Insert writes row into table and returns its rowid. A row whose key already
// exists is updated in place with the supplied columns.
func (s *Store) Insert(ctx context.Context, table string, row Row) (int64, error) {
	ts, err := lookup(table)
	if err != nil {
		return 0, err
	}
	cols, err := ts.sortedColumns(row)
	if err != nil {
		return 0, err
	}
	for _, k := range ts.conflict {
		if _, ok := row[k]; !ok {
			return 0, fmt.Errorf("store: %s insert without %s", table, k)
		}
	}
	if err := ts.checkFiles(row, true); err != nil {
		return 0, err
	}

	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	var updates []string
	for i, c := range cols {
		names[i] = quote(c)
		marks[i] = "?"
		args[i] = row[c]
		if !slices.Contains(ts.conflict, c) {
			updates = append(updates, quote(c)+" = excluded."+quote(c))
		}
	}
	if len(updates) == 0 {
		c := quote(ts.conflict[0])
		updates = append(updates, c+" = excluded."+c)
	}
	target := make([]string, len(ts.conflict))
	for i, c := range ts.conflict {
		target[i] = quote(c)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING rowid",
		quote(table), strings.Join(names, ", "), strings.Join(marks, ", "),
		strings.Join(target, ", "), strings.Join(updates, ", "))

	var rowid int64
	if err := s.write.QueryRowContext(ctx, stmt, args...).Scan(&rowid); err != nil {
		return 0, mapErr(table, "insert", err)
	}
	return rowid, nil
}

// Fetch returns the rows of table matching q.
func (s *Store) Fetch(ctx context.Context, table string, q Query) ([]Row, error) {
	if _, err := lookup(table); err != nil {
		return nil, err
	}
	stmt := "SELECT * FROM " + quote(table)
	if q.Where != "" {
		stmt += " WHERE " + q.Where
	}
	if q.OrderBy != "" {
		m := orderByRe.FindStringSubmatch(strings.TrimSpace(q.OrderBy))
		if m == nil || !slices.Contains(tables[table].columns, m[1]) {
			return nil, fmt.Errorf("store: invalid order by %q", q.OrderBy)
		}
		stmt += " ORDER BY " + quote(m[1]) + strings.ToUpper(m[2])
	}
	if q.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.read.QueryContext(ctx, stmt, q.Args...)
	if err != nil {
		return nil, mapErr(table, "fetch", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, mapErr(table, "fetch", err)
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, mapErr(table, "scan", err)
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				r[c] = string(b)
			} else {
				r[c] = vals[i]
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(table, "fetch", err)
	}
	return out, nil
}

// Update sets the columns in set on every row matching where and returns the
// number of affected rows.
func (s *Store) Update(ctx context.Context, table string, set Row, where string, args ...any) (int64, error) {
	ts, err := lookup(table)
	if err != nil {
		return 0, err
	}
	cols, err := ts.sortedColumns(set)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, nil
	}
	if err := ts.checkFiles(set, false); err != nil {
		return 0, err
	}
	assigns := make([]string, len(cols))
	vals := make([]any, 0, len(cols)+len(args))
	for i, c := range cols {
		assigns[i] = quote(c) + " = ?"
		vals = append(vals, set[c])
	}
	stmt := "UPDATE " + quote(table) + " SET " + strings.Join(assigns, ", ")
	if where != "" {
		stmt += " WHERE " + where
	}
	res, err := s.write.ExecContext(ctx, stmt, append(vals, args...)...)
	if err != nil {
		return 0, mapErr(table, "update", err)
	}
	return res.RowsAffected()
}

// mapErr turns constraint violations into engine.ErrStoreConflict.
func mapErr(table, op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("store: %s %s: %w: %v", op, table, engine.ErrStoreConflict, err)
	}
	return fmt.Errorf("store: %s %s: %w", op, table, err)
}
