package constraint

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"relmap/internal/sqlutil"
	"relmap/record"
	"relmap/relerr"
	"relmap/schema"
)

// SelectForRelation builds the filtered select retrieving the members of
// a relation for every owner in one query. A single owner constrains
// with equality, several with IN.
func (b *Bridge) SelectForRelation(owners *record.Set, d *schema.Descriptor, opts Options) (sq.SelectBuilder, error) {
	var zero sq.SelectBuilder

	keys, err := d.Keys()
	if err != nil {
		return zero, err
	}
	target, err := d.Target()
	if err != nil {
		return zero, err
	}
	ownerColumn, err := d.OwnerKeyColumn()
	if err != nil {
		return zero, err
	}
	ownerValues := owners.Keys(ownerColumn)
	if len(ownerValues) == 0 {
		return zero, relerr.Configuration(d.Owner().Name, "relation %q: no owner has a %s value to constrain by", d.Name, ownerColumn)
	}

	columns, err := b.relationColumns(d, target, opts)
	if err != nil {
		return zero, err
	}
	builder := b.builder().
		Select(columns...).
		From(b.quote(target.Table))

	switch {
	case d.HasThrough():
		builder, err = b.constrainThrough(builder, d, target, keys, ownerValues)
		if err != nil {
			return zero, err
		}
	case d.Kind == schema.BelongsToMany:
		builder = b.constrainBelongsToMany(builder, d, target, keys, ownerValues)
	case d.Kind == schema.MorphOne || d.Kind == schema.MorphMany:
		builder = builder.
			Where(sq.Eq{b.qualify(target.Table, keys.TypeColumn): keys.MorphValue}).
			Where(eqOrIn(b.qualify(target.Table, keys.MorphIDColumn), ownerValues))
	case d.Kind == schema.MorphTo:
		// The descriptor is already dispatched to one candidate; the
		// owners were partitioned by their stored type value upstream.
		builder = builder.Where(eqOrIn(b.qualify(target.Table, target.IDColumn), ownerValues))
	case d.Kind == schema.BelongsTo:
		builder = builder.Where(eqOrIn(b.qualify(target.Table, keys.ForeignKeyTarget), ownerValues))
	default: // HasOne, HasMany
		builder = builder.Where(eqOrIn(b.qualify(target.Table, keys.ForeignKey), ownerValues))
	}

	if suffix := b.db.Dialect().LockSuffix(opts.Lock); suffix != "" {
		builder = builder.Suffix(suffix)
	}
	return builder, nil
}

// constrainBelongsToMany joins the target against the mediating table and
// selects the join keys (plus any declared extra columns) under the pivot
// prefix for later extraction.
func (b *Bridge) constrainBelongsToMany(builder sq.SelectBuilder, d *schema.Descriptor, target *schema.Type, keys schema.Keys, ownerValues []any) sq.SelectBuilder {
	join := fmt.Sprintf("%s ON %s = %s",
		b.quote(keys.JoinTable),
		b.qualify(keys.JoinTable, keys.OtherKey),
		b.qualify(target.Table, keys.OtherKeyTarget),
	)
	builder = builder.InnerJoin(join)
	for _, col := range append([]string{keys.ForeignKey, keys.OtherKey}, d.PivotColumns()...) {
		builder = builder.Column(b.pivotAlias(keys.JoinTable, col))
	}
	return builder.Where(eqOrIn(b.qualify(keys.JoinTable, keys.ForeignKey), ownerValues))
}

// constrainThrough replaces the direct foreign-key join with a two-hop
// join via the interim table. The interim's key columns ride along under
// the pivot prefix so results can be merged back onto their owners.
func (b *Bridge) constrainThrough(builder sq.SelectBuilder, d *schema.Descriptor, target *schema.Type, keys schema.Keys, ownerValues []any) (sq.SelectBuilder, error) {
	interim, err := d.Interim()
	if err != nil {
		return builder, err
	}
	if d.Kind == schema.BelongsTo {
		// owner.otherKey -> interim, interim.throughForeignKey -> target
		join := fmt.Sprintf("%s ON %s = %s",
			b.quote(interim.Table),
			b.qualify(interim.Table, keys.ThroughForeignKey),
			b.qualify(target.Table, keys.ForeignKeyTarget),
		)
		builder = builder.InnerJoin(join)
		for _, col := range append([]string{keys.OtherKeyTarget}, d.PivotColumns()...) {
			builder = builder.Column(b.pivotAlias(interim.Table, col))
		}
		return builder.Where(eqOrIn(b.qualify(interim.Table, keys.OtherKeyTarget), ownerValues)), nil
	}
	// owner <- interim.otherKey, target.throughForeignKey -> interim
	join := fmt.Sprintf("%s ON %s = %s",
		b.quote(interim.Table),
		b.qualify(interim.Table, keys.ForeignKeyTarget),
		b.qualify(target.Table, keys.ThroughForeignKey),
	)
	builder = builder.InnerJoin(join)
	for _, col := range append([]string{keys.OtherKey, interim.IDColumn}, d.PivotColumns()...) {
		builder = builder.Column(b.pivotAlias(interim.Table, col))
	}
	return builder.Where(eqOrIn(b.qualify(interim.Table, keys.OtherKey), ownerValues)), nil
}

func (b *Bridge) pivotAlias(table, column string) string {
	return fmt.Sprintf("%s AS %s", b.qualify(table, column), b.quote(sqlutil.PivotPrefix+column))
}

// relationColumns restricts the selected columns of a branch query while
// keeping the column the merge step groups children by. Joined relations
// carry their merge key under the pivot aliases instead, so only the
// identity column is appended there.
func (b *Bridge) relationColumns(d *schema.Descriptor, target *schema.Type, opts Options) ([]string, error) {
	if len(opts.Columns) == 0 || d.IsJoined() {
		return b.selectColumns(target, opts), nil
	}
	childColumn, err := d.ChildKeyColumn()
	if err != nil {
		return nil, err
	}
	required := []string{childColumn}
	if d.Kind == schema.MorphOne || d.Kind == schema.MorphMany {
		keys, err := d.Keys()
		if err != nil {
			return nil, err
		}
		required = append(required, keys.TypeColumn)
	}
	return b.selectColumns(target, opts, required...), nil
}

// FetchRelated executes the relation select for the owner set and
// returns the scanned records, pivot-parsed when the descriptor is
// joined. Merging onto owners is the planner's job.
func (b *Bridge) FetchRelated(ctx context.Context, owners *record.Set, d *schema.Descriptor, opts Options, filters ...Filter) (*record.Set, error) {
	target, err := d.Target()
	if err != nil {
		return nil, err
	}
	builder, err := b.SelectForRelation(owners, d, opts)
	if err != nil {
		return nil, err
	}
	for _, f := range filters {
		if f != nil {
			builder = f(builder)
		}
	}
	rows, err := b.runSelect(ctx, target.Name, builder, opts)
	if err != nil {
		return nil, err
	}
	set := record.NewSet(target)
	set.SetDescriptor(d)
	for _, row := range rows {
		child := record.New(target, row)
		child.SetDescriptor(d)
		set.Add(child)
	}
	if d.IsJoined() {
		ParsePivot(set)
	}
	return set, nil
}
