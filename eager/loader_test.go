package eager

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relmap/constraint"
	"relmap/record"
	"relmap/relerr"
	"relmap/schema"
	"relmap/store"
)

type fixture struct {
	loader   *Loader
	mock     sqlmock.Sqlmock
	registry *schema.Registry
	author   *schema.Type
	book     *schema.Type
	review   *schema.Type
	photo    *schema.Type
	site     *schema.Type
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	reg := schema.NewRegistry()
	return &fixture{
		loader:   New(constraint.New(store.New(raw, store.MySQL))),
		mock:     mock,
		registry: reg,
		author:   reg.MustRegister(&schema.Type{Name: "Author", Table: "authors"}),
		book:     reg.MustRegister(&schema.Type{Name: "Book", Table: "books"}),
		review:   reg.MustRegister(&schema.Type{Name: "Review", Table: "reviews"}),
		photo:    reg.MustRegister(&schema.Type{Name: "Photo", Table: "photos"}),
		site:     reg.MustRegister(&schema.Type{Name: "Site", Table: "sites"}),
	}
}

func (f *fixture) authors(ids ...int64) *record.Set {
	set := record.NewSet(f.author)
	for _, id := range ids {
		set.Add(record.New(f.author, map[string]any{"id": id}))
	}
	return set
}

func TestLoadNestedBranches(t *testing.T) {
	f := newFixture(t)
	f.author.HasMany("books", f.book)
	f.book.HasMany("reviews", f.review)

	f.mock.ExpectQuery("FROM `books`").
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "title"}).
			AddRow(10, 1, "Left Hand").
			AddRow(11, 1, "Dispossessed").
			AddRow(12, 2, "Lavinia"))
	f.mock.ExpectQuery("FROM `reviews`").
		WithArgs(int64(10), int64(11), int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "book_id", "stars"}).
			AddRow(100, 10, 5).
			AddRow(101, 10, 4))

	owners := f.authors(1, 2)
	require.NoError(t, f.loader.Load(context.Background(), owners, constraint.Options{}, Rel("books.reviews")))
	require.NoError(t, f.mock.ExpectationsWereMet())

	first := owners.Records()[0].RelatedSet("books")
	require.Equal(t, 2, first.Len())
	assert.Equal(t, "Left Hand", first.Records()[0].Get("title"))

	// Two reviews on the first book, none on the others; the empty
	// slots are still loaded sets, not nil.
	assert.Equal(t, 2, first.Records()[0].RelatedSet("reviews").Len())
	assert.Equal(t, 0, first.Records()[1].RelatedSet("reviews").Len())

	second := owners.Records()[1].RelatedSet("books")
	require.Equal(t, 1, second.Len())
	assert.Equal(t, 0, second.Records()[0].RelatedSet("reviews").Len())
}

func TestLoadColumnRestrictionStillMerges(t *testing.T) {
	f := newFixture(t)
	f.author.HasMany("books", f.book)

	// The foreign key rides along with the restricted columns so the
	// fetched children still group back onto their owners.
	f.mock.ExpectQuery("SELECT `books`.`title`, `books`.`id`, `books`.`author_id` FROM `books`").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"title", "id", "author_id"}).
			AddRow("Left Hand", 10, 1))

	owners := f.authors(1)
	opts := constraint.Options{Columns: []string{"title"}}
	require.NoError(t, f.loader.Load(context.Background(), owners, opts, Rel("books")))
	require.NoError(t, f.mock.ExpectationsWereMet())

	books := owners.Records()[0].RelatedSet("books")
	require.Equal(t, 1, books.Len())
	assert.Equal(t, "Left Hand", books.Records()[0].Get("title"))
}

func TestLoadUnknownRelationFailsBeforeAnyQuery(t *testing.T) {
	f := newFixture(t)
	f.author.HasMany("books", f.book)

	err := f.loader.Load(context.Background(), f.authors(1), constraint.Options{}, Rel("books"), Rel("bogus"))
	require.Error(t, err)
	assert.True(t, relerr.IsUnknownRelation(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLoadUnknownNestedRelationFailsOnEmptySet(t *testing.T) {
	f := newFixture(t)
	f.author.HasMany("books", f.book)

	err := f.loader.Load(context.Background(), record.NewSet(f.author), constraint.Options{}, Rel("books.bogus"))
	require.Error(t, err)
	assert.True(t, relerr.IsUnknownRelation(err))
}

func TestLoadToOneAttachesNilWhenUnmatched(t *testing.T) {
	f := newFixture(t)
	f.book.BelongsTo("author", f.author)

	f.mock.ExpectQuery("FROM `authors`").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Le Guin"))

	owners := record.NewSet(f.book,
		record.New(f.book, map[string]any{"id": int64(10), "author_id": int64(1)}),
		record.New(f.book, map[string]any{"id": int64(11), "author_id": nil}),
	)
	require.NoError(t, f.loader.Load(context.Background(), owners, constraint.Options{}, Rel("author")))
	require.NoError(t, f.mock.ExpectationsWereMet())

	matched, ok := owners.Records()[0].Related("author").(*record.Record)
	require.True(t, ok)
	require.NotNil(t, matched)
	assert.Equal(t, "Le Guin", matched.Get("name"))

	unmatched, ok := owners.Records()[1].Related("author").(*record.Record)
	require.True(t, ok)
	assert.Nil(t, unmatched)
}

func TestLoadSkipsQueryWhenNoOwnerHasKeys(t *testing.T) {
	f := newFixture(t)
	f.book.BelongsTo("author", f.author)

	owners := record.NewSet(f.book,
		record.New(f.book, map[string]any{"id": int64(10), "author_id": nil}),
	)
	require.NoError(t, f.loader.Load(context.Background(), owners, constraint.Options{}, Rel("author")))
	require.NoError(t, f.mock.ExpectationsWereMet())

	slot, ok := owners.Records()[0].Related("author").(*record.Record)
	require.True(t, ok)
	assert.Nil(t, slot)
}

func TestLoadSiblingBranches(t *testing.T) {
	f := newFixture(t)
	f.author.HasMany("books", f.book)
	f.author.HasOne("photo", f.photo)

	// Siblings load concurrently, so arrival order is not fixed.
	f.mock.MatchExpectationsInOrder(false)
	f.mock.ExpectQuery("FROM `books`").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id"}).AddRow(10, 1))
	f.mock.ExpectQuery("FROM `photos`").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "url"}).AddRow(7, 1, "a.png"))

	owners := f.authors(1)
	require.NoError(t, f.loader.Load(context.Background(), owners, constraint.Options{}, Rel("books"), Rel("photo")))
	require.NoError(t, f.mock.ExpectationsWereMet())

	owner := owners.Records()[0]
	assert.Equal(t, 1, owner.RelatedSet("books").Len())
	photo, ok := owner.Related("photo").(*record.Record)
	require.True(t, ok)
	require.NotNil(t, photo)
	assert.Equal(t, "a.png", photo.Get("url"))
}

func TestLoadMorphToPartitionsByStoredType(t *testing.T) {
	f := newFixture(t)
	f.photo.MorphTo("imageable", "imageable",
		schema.Candidate(f.book), schema.Candidate(f.site))

	// Partitions run in sorted stored-value order: books before sites.
	f.mock.ExpectQuery("FROM `books`").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(10, "Left Hand"))
	f.mock.ExpectQuery("FROM `sites`").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "host"}).AddRow(3, "example.org"))

	owners := record.NewSet(f.photo,
		record.New(f.photo, map[string]any{"id": int64(1), "imageable_type": "sites", "imageable_id": int64(3)}),
		record.New(f.photo, map[string]any{"id": int64(2), "imageable_type": "books", "imageable_id": int64(10)}),
		record.New(f.photo, map[string]any{"id": int64(3), "imageable_type": nil, "imageable_id": nil}),
	)
	require.NoError(t, f.loader.Load(context.Background(), owners, constraint.Options{}, Rel("imageable")))
	require.NoError(t, f.mock.ExpectationsWereMet())

	site, ok := owners.Records()[0].Related("imageable").(*record.Record)
	require.True(t, ok)
	require.NotNil(t, site)
	assert.Equal(t, "example.org", site.Get("host"))

	book, ok := owners.Records()[1].Related("imageable").(*record.Record)
	require.True(t, ok)
	require.NotNil(t, book)
	assert.Equal(t, "Left Hand", book.Get("title"))

	orphan, ok := owners.Records()[2].Related("imageable").(*record.Record)
	require.True(t, ok)
	assert.Nil(t, orphan)
}

func TestLoadMorphToUndeclaredStoredValueResolvesToNil(t *testing.T) {
	f := newFixture(t)
	f.photo.MorphTo("imageable", "imageable", schema.Candidate(f.site))

	owners := record.NewSet(f.photo,
		record.New(f.photo, map[string]any{"id": int64(1), "imageable_type": "gadgets", "imageable_id": int64(5)}),
	)
	require.NoError(t, f.loader.Load(context.Background(), owners, constraint.Options{}, Rel("imageable")))
	assert.NoError(t, f.mock.ExpectationsWereMet())

	slot, ok := owners.Records()[0].Related("imageable").(*record.Record)
	require.True(t, ok)
	assert.Nil(t, slot)
}

func TestLoadAppliesBranchFilter(t *testing.T) {
	f := newFixture(t)
	f.author.HasMany("books", f.book)

	f.mock.ExpectQuery("FROM `books` WHERE `books`.`author_id` = \\? AND published = \\?").
		WithArgs(int64(1), true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id"}).AddRow(10, 1))

	owners := f.authors(1)
	filter := func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{"published": true})
	}
	require.NoError(t, f.loader.Load(context.Background(), owners, constraint.Options{}, RelWith("books", filter)))
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, 1, owners.Records()[0].RelatedSet("books").Len())
}

func TestLoadBelongsToManyReadsPivotKeys(t *testing.T) {
	f := newFixture(t)
	f.author.BelongsToMany("books", f.book)

	f.mock.ExpectQuery("FROM `books` INNER JOIN `authors_books`").
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "_pivot_author_id", "_pivot_book_id"}).
			AddRow(10, "Left Hand", 1, 10).
			AddRow(10, "Left Hand", 2, 10))

	owners := f.authors(1, 2)
	require.NoError(t, f.loader.Load(context.Background(), owners, constraint.Options{}, Rel("books")))
	require.NoError(t, f.mock.ExpectationsWereMet())

	// Both owners share the book; each slot resolved through the
	// pivot's owner key, not the book's own attributes.
	for _, owner := range owners.Records() {
		books := owner.RelatedSet("books")
		require.Equal(t, 1, books.Len())
		assert.Equal(t, "Left Hand", books.First().Get("title"))
	}
}

func TestLoadEmptySetIssuesNoQueries(t *testing.T) {
	f := newFixture(t)
	f.author.HasMany("books", f.book)

	require.NoError(t, f.loader.Load(context.Background(), record.NewSet(f.author), constraint.Options{}, Rel("books")))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPlanSharesPathPrefixes(t *testing.T) {
	plan, err := buildPlan("Author", []Request{Rel("books"), Rel("books.reviews"), Rel("photo")})
	require.NoError(t, err)
	assert.Equal(t, []string{"books", "photo"}, plan.order)
	assert.Equal(t, []string{"reviews"}, plan.children["books"].order)
}

func TestPlanRejectsMalformedPaths(t *testing.T) {
	_, err := buildPlan("Author", []Request{Rel("")})
	assert.True(t, relerr.IsConfiguration(err))

	_, err = buildPlan("Author", []Request{Rel("books..reviews")})
	assert.True(t, relerr.IsConfiguration(err))
}
