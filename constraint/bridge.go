// Package constraint turns a relation descriptor plus an owning record
// set into correctly filtered queries against the store, and converts raw
// row data back into records and pivot sub-records. All query
// construction is pure: every builder step returns a new value, so
// concurrently constructed queries never contaminate each other.
package constraint

import (
	"context"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"relmap/record"
	"relmap/relerr"
	"relmap/schema"
	"relmap/store"
)

// Options are recognized uniformly by every constrained operation.
type Options struct {
	// Tx threads a caller-supplied transaction through the query so
	// that eager loads during a write path observe the same snapshot.
	// The bridge never opens its own transaction.
	Tx *store.Tx
	// Lock requests row locks on fetches.
	Lock store.Lock
	// Columns restricts the selected columns. Key columns the engine
	// needs for merging are appended automatically.
	Columns []string
	// Require turns an empty fetch result into a not-found error.
	Require bool
}

// Filter narrows a branch query; the callback receives the builder and
// returns a new one.
type Filter func(sq.SelectBuilder) sq.SelectBuilder

// Bridge applies relation descriptors as query constraints.
type Bridge struct {
	db *store.DB
}

// New creates a bridge over the given store handle.
func New(db *store.DB) *Bridge {
	return &Bridge{db: db}
}

// Store returns the underlying store handle.
func (b *Bridge) Store() *store.DB { return b.db }

// Quote returns the dialect-quoted identifier for use in caller-built
// predicates.
func (b *Bridge) Quote(name string) string { return b.quote(name) }

// Qualify returns the dialect-quoted table.column reference for use in
// caller-built predicates.
func (b *Bridge) Qualify(table, column string) string { return b.qualify(table, column) }

func (b *Bridge) querier(opts Options) store.Querier {
	if opts.Tx != nil {
		return opts.Tx
	}
	return b.db
}

func (b *Bridge) quote(name string) string {
	return b.db.Dialect().QuoteIdent(name)
}

func (b *Bridge) qualify(table, column string) string {
	return b.quote(table) + "." + b.quote(column)
}

func (b *Bridge) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(b.db.Dialect().Placeholder())
}

// eqOrIn builds a `col = v` constraint for a single value and `col IN`
// for several.
func eqOrIn(column string, values []any) sq.Sqlizer {
	if len(values) == 1 {
		return sq.Eq{column: values[0]}
	}
	return sq.Eq{column: values}
}

// sortedColumns returns attribute names in deterministic order so that
// generated SQL is stable.
func sortedColumns(attrs map[string]any) []string {
	columns := make([]string, 0, len(attrs))
	for col := range attrs {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

// Fetch runs a constrained select against the type's own table and
// returns the scanned records.
func (b *Bridge) Fetch(ctx context.Context, t *schema.Type, where sq.Sqlizer, opts Options, filters ...Filter) (*record.Set, error) {
	builder := b.builder().
		Select(b.selectColumns(t, opts)...).
		From(b.quote(t.Table))
	if where != nil {
		builder = builder.Where(where)
	}
	for _, f := range filters {
		if f != nil {
			builder = f(builder)
		}
	}
	if suffix := b.db.Dialect().LockSuffix(opts.Lock); suffix != "" {
		builder = builder.Suffix(suffix)
	}
	rows, err := b.runSelect(ctx, t.Name, builder, opts)
	if err != nil {
		return nil, err
	}
	set := record.NewSet(t)
	for _, row := range rows {
		set.Add(record.New(t, row))
	}
	return set, nil
}

// Count runs a constrained COUNT(*) against the type's own table.
func (b *Bridge) Count(ctx context.Context, t *schema.Type, where sq.Sqlizer, opts Options) (int64, error) {
	builder := b.builder().
		Select("COUNT(*)").
		From(b.quote(t.Table))
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, relerr.Configuration(t.Name, "build count query: %v", err)
	}
	rows, err := b.querier(opts).QueryContext(ctx, query, args...)
	if err != nil {
		return 0, relerr.Store(t.Name, err)
	}
	defer rows.Close()
	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, relerr.Store(t.Name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, relerr.Store(t.Name, err)
	}
	return count, nil
}

// Insert inserts one row and returns the generated identity, when the
// driver reports one.
func (b *Bridge) Insert(ctx context.Context, typeName, table string, attrs map[string]any, opts Options) (int64, error) {
	if len(attrs) == 0 {
		return 0, relerr.Configuration(typeName, "insert requires at least one attribute")
	}
	columns := sortedColumns(attrs)
	quoted := make([]string, len(columns))
	values := make([]any, len(columns))
	for i, col := range columns {
		quoted[i] = b.quote(col)
		values[i] = attrs[col]
	}
	query, args, err := b.builder().
		Insert(b.quote(table)).
		Columns(quoted...).
		Values(values...).
		ToSql()
	if err != nil {
		return 0, relerr.Configuration(typeName, "build insert query: %v", err)
	}
	result, err := b.querier(opts).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, relerr.Store(typeName, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		// Drivers without LastInsertId support still insert fine.
		return 0, nil
	}
	return id, nil
}

// Update updates matching rows and returns the affected row count.
func (b *Bridge) Update(ctx context.Context, typeName, table string, attrs map[string]any, where sq.Sqlizer, opts Options) (int64, error) {
	if len(attrs) == 0 {
		return 0, relerr.Configuration(typeName, "update requires at least one attribute")
	}
	builder := b.builder().Update(b.quote(table))
	for _, col := range sortedColumns(attrs) {
		builder = builder.Set(b.quote(col), attrs[col])
	}
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, relerr.Configuration(typeName, "build update query: %v", err)
	}
	result, err := b.querier(opts).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, relerr.Store(typeName, err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// Delete deletes matching rows and returns the affected row count.
func (b *Bridge) Delete(ctx context.Context, typeName, table string, where sq.Sqlizer, opts Options) (int64, error) {
	builder := b.builder().Delete(b.quote(table))
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, relerr.Configuration(typeName, "build delete query: %v", err)
	}
	result, err := b.querier(opts).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, relerr.Store(typeName, err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

func (b *Bridge) selectColumns(t *schema.Type, opts Options, required ...string) []string {
	if len(opts.Columns) == 0 {
		return []string{b.quote(t.Table) + ".*"}
	}
	columns := make([]string, 0, len(opts.Columns)+len(required)+1)
	seen := make(map[string]struct{}, len(opts.Columns)+len(required)+1)
	for _, col := range opts.Columns {
		if _, ok := seen[col]; ok {
			continue
		}
		seen[col] = struct{}{}
		columns = append(columns, b.qualify(t.Table, col))
	}
	// The identity column is always needed for merging and destroy;
	// callers append the relation key columns their merge groups by.
	for _, col := range append([]string{t.IDColumn}, required...) {
		if col == "" {
			continue
		}
		if _, ok := seen[col]; ok {
			continue
		}
		seen[col] = struct{}{}
		columns = append(columns, b.qualify(t.Table, col))
	}
	return columns
}

func (b *Bridge) runSelect(ctx context.Context, typeName string, builder sq.SelectBuilder, opts Options) ([]map[string]any, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, relerr.Configuration(typeName, "build select query: %v", err)
	}
	rows, err := b.querier(opts).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relerr.Store(typeName, err)
	}
	results, err := store.ScanRows(rows)
	if err != nil {
		return nil, relerr.Store(typeName, err)
	}
	return results, nil
}
