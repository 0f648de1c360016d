package storage

import "strings"

// where collects parameterized predicates joined with AND. Values are
// always bound as arguments, never interpolated into the SQL text.
type where struct {
	preds []string
	args  []any
}

func (w *where) add(pred string, args ...any) {
	w.preds = append(w.preds, "("+pred+")")
	w.args = append(w.args, args...)
}

// in adds "column IN (?, ...)". An empty value list matches nothing.
func (w *where) in(column string, values []any) {
	if len(values) == 0 {
		w.add("0 = 1")
		return
	}
	w.add(column+" IN ("+placeholders(len(values))+")", values...)
}

// like adds a case-insensitive substring match over the given columns.
func (w *where) like(term string, columns ...string) {
	pattern := "%" + escapeLike(term) + "%"
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		parts[i] = c + ` LIKE ? ESCAPE '\'`
		args[i] = pattern
	}
	w.add(strings.Join(parts, " OR "), args...)
}

// sql renders the clause including the WHERE keyword, or "" when empty.
func (w *where) sql() string {
	if len(w.preds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.preds, " AND ")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func stringArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func int64Args(values []int64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
