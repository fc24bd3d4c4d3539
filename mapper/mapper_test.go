package mapper

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relmap/constraint"
	"relmap/eager"
	"relmap/record"
	"relmap/relerr"
	"relmap/schema"
	"relmap/store"
)

var frozen = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	mapper   *Mapper
	mock     sqlmock.Sqlmock
	registry *schema.Registry
	author   *schema.Type
	book     *schema.Type
	review   *schema.Type
	session  *schema.Type
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	reg := schema.NewRegistry()
	f := &fixture{
		mock:     mock,
		registry: reg,
		author:   reg.MustRegister(&schema.Type{Name: "Author", Table: "authors"}),
		book:     reg.MustRegister(&schema.Type{Name: "Book", Table: "books", Timestamps: true}),
		review:   reg.MustRegister(&schema.Type{Name: "Review", Table: "reviews"}),
		session:  reg.MustRegister(&schema.Type{Name: "Session", Table: "sessions", UUIDIdentity: true}),
	}
	f.author.HasMany("books", f.book)
	f.book.HasMany("reviews", f.review)
	f.book.BelongsTo("author", f.author)
	f.mapper = New(reg, store.New(raw, store.MySQL), WithClock(func() time.Time { return frozen }))
	return f
}

func TestFetchAllWithNestedRelations(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery("SELECT `authors`\\..* FROM `authors` WHERE \\(`authors`\\.`name` = \\?\\)").
		WithArgs("Le Guin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Le Guin"))
	f.mock.ExpectQuery("FROM `books`").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "title"}).
			AddRow(10, 1, "Left Hand").
			AddRow(11, 1, "Dispossessed"))
	f.mock.ExpectQuery("FROM `reviews`").
		WithArgs(int64(10), int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "book_id", "stars"}).
			AddRow(100, 10, 5))

	set, err := f.mapper.FetchAll(context.Background(), f.author, FetchOptions{
		Where:   map[string]any{"name": "Le Guin"},
		Related: []eager.Request{eager.Rel("books.reviews")},
	})
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())

	require.Equal(t, 1, set.Len())
	books := set.First().RelatedSet("books")
	require.Equal(t, 2, books.Len())
	assert.Equal(t, 1, books.Records()[0].RelatedSet("reviews").Len())
	assert.Equal(t, 0, books.Records()[1].RelatedSet("reviews").Len())
}

func TestFetchLimitsToOneRow(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery("FROM `authors` WHERE \\(`authors`\\.`name` = \\?\\) LIMIT 1").
		WithArgs("Le Guin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Le Guin"))

	got, err := f.mapper.Fetch(context.Background(), f.author, FetchOptions{
		Where: map[string]any{"name": "Le Guin"},
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Le Guin", got.Get("name"))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFetchRequireTurnsEmptyIntoNotFound(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery("FROM `authors`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := f.mapper.Fetch(context.Background(), f.author, FetchOptions{
		Options: constraint.Options{Require: true},
		Where:   map[string]any{"name": "nobody"},
	})
	require.Error(t, err)
	assert.True(t, relerr.IsNotFound(err))
}

func TestFetchWithoutRequireReturnsNil(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery("FROM `authors`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	got, err := f.mapper.Fetch(context.Background(), f.author, FetchOptions{
		Where: map[string]any{"name": "nobody"},
	})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindFetchesByIdentity(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery("FROM `authors` WHERE \\(`authors`\\.`id` = \\?\\) LIMIT 1").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Le Guin"))

	got, err := f.mapper.Find(context.Background(), f.author, int64(1), FetchOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSaveInsertsAndStampsIdentityAndTimestamps(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectExec("INSERT INTO `books` \\(`author_id`,`created_at`,`title`,`updated_at`\\) VALUES \\(\\?,\\?,\\?,\\?\\)").
		WithArgs(int64(1), frozen, "Left Hand", frozen).
		WillReturnResult(sqlmock.NewResult(10, 1))

	book := record.New(f.book, map[string]any{"title": "Left Hand", "author_id": int64(1)})
	require.NoError(t, f.mapper.Save(context.Background(), book, constraint.Options{}))
	require.NoError(t, f.mock.ExpectationsWereMet())

	assert.Equal(t, int64(10), book.ID())
	assert.Equal(t, frozen, book.Get("created_at"))
	assert.Equal(t, frozen, book.Get("updated_at"))
}

func TestSaveUpdatesExistingRow(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectExec("UPDATE `books` SET `created_at` = \\?, `title` = \\?, `updated_at` = \\? WHERE `id` = \\?").
		WithArgs(frozen, "Dispossessed", frozen, int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	book := record.New(f.book, map[string]any{"id": int64(10), "title": "Dispossessed", "created_at": frozen})
	require.NoError(t, f.mapper.Save(context.Background(), book, constraint.Options{}))
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, frozen, book.Get("updated_at"))
}

func TestSaveUpdateRequireNotFound(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectExec("UPDATE `authors`").
		WillReturnResult(sqlmock.NewResult(0, 0))

	author := record.New(f.author, map[string]any{"id": int64(99), "name": "ghost"})
	err := f.mapper.Save(context.Background(), author, constraint.Options{Require: true})
	require.Error(t, err)
	assert.True(t, relerr.IsNotFound(err))
}

func TestSaveGeneratesUUIDIdentity(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectExec("INSERT INTO `sessions` \\(`id`,`token`\\) VALUES \\(\\?,\\?\\)").
		WithArgs(sqlmock.AnyArg(), "tok").
		WillReturnResult(sqlmock.NewResult(0, 1))

	session := record.New(f.session, map[string]any{"token": "tok"})
	require.NoError(t, f.mapper.Save(context.Background(), session, constraint.Options{}))
	require.NoError(t, f.mock.ExpectationsWereMet())

	id, ok := session.ID().(string)
	require.True(t, ok)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestSaveRelatedStampsForeignKey(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectExec("INSERT INTO `books` \\(`author_id`,`created_at`,`title`,`updated_at`\\)").
		WithArgs(int64(1), frozen, "Lavinia", frozen).
		WillReturnResult(sqlmock.NewResult(12, 1))

	author := record.New(f.author, map[string]any{"id": int64(1)})
	book := record.New(f.book, map[string]any{"title": "Lavinia"})
	require.NoError(t, f.mapper.SaveRelated(context.Background(), author, "books", book, constraint.Options{}))
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, int64(12), book.ID())
}

func TestSaveRelatedBelongsToSavesChildThenOwner(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectExec("INSERT INTO `authors` \\(`name`\\) VALUES \\(\\?\\)").
		WithArgs("Le Guin").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec("UPDATE `books` SET").
		WithArgs(int64(1), "Left Hand", frozen, int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	book := record.New(f.book, map[string]any{"id": int64(10), "title": "Left Hand"})
	author := record.New(f.author, map[string]any{"name": "Le Guin"})
	require.NoError(t, f.mapper.SaveRelated(context.Background(), book, "author", author, constraint.Options{}))
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, int64(1), book.Get("author_id"))
}

func TestDestroyDeletesAndClears(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectExec("DELETE FROM `authors` WHERE `id` = \\?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	author := record.New(f.author, map[string]any{"id": int64(1), "name": "Le Guin"})
	require.NoError(t, f.mapper.Destroy(context.Background(), author, constraint.Options{}))
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Empty(t, author.Attributes())
}

func TestDestroyUnsavedRecordIsConfigurationError(t *testing.T) {
	f := newFixture(t)

	err := f.mapper.Destroy(context.Background(), record.New(f.author, nil), constraint.Options{})
	require.Error(t, err)
	assert.True(t, relerr.IsConfiguration(err))
}

func TestDestroyRequireNotFound(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectExec("DELETE FROM `authors`").
		WillReturnResult(sqlmock.NewResult(0, 0))

	author := record.New(f.author, map[string]any{"id": int64(1)})
	err := f.mapper.Destroy(context.Background(), author, constraint.Options{Require: true})
	require.Error(t, err)
	assert.True(t, relerr.IsNotFound(err))
}

func TestCount(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM `books` WHERE \\(`books`\\.`author_id` = \\?\\)").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := f.mapper.Count(context.Background(), f.book, FetchOptions{
		Where: map[string]any{"author_id": int64(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestHooksRunInLifecycleOrder(t *testing.T) {
	f := newFixture(t)

	var calls []string
	hooks := f.mapper.Hooks(f.author)
	hooks.BeforeSave = append(hooks.BeforeSave, func(ctx context.Context, r *record.Record) error {
		calls = append(calls, "before-save")
		return nil
	})
	hooks.AfterSave = append(hooks.AfterSave, func(ctx context.Context, r *record.Record) error {
		calls = append(calls, "after-save")
		return nil
	})

	f.mock.ExpectExec("INSERT INTO `authors`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	author := record.New(f.author, map[string]any{"name": "Le Guin"})
	require.NoError(t, f.mapper.Save(context.Background(), author, constraint.Options{}))
	assert.Equal(t, []string{"before-save", "after-save"}, calls)
}

func TestBeforeSaveHookErrorAbortsWrite(t *testing.T) {
	f := newFixture(t)

	hooks := f.mapper.Hooks(f.author)
	hooks.BeforeSave = append(hooks.BeforeSave, func(ctx context.Context, r *record.Record) error {
		return relerr.Configuration("Author", "name is required")
	})

	author := record.New(f.author, map[string]any{})
	err := f.mapper.Save(context.Background(), author, constraint.Options{})
	require.Error(t, err)
	assert.True(t, relerr.IsConfiguration(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAfterFetchHookRunsPerRecord(t *testing.T) {
	f := newFixture(t)

	var seen []any
	hooks := f.mapper.Hooks(f.author)
	hooks.AfterFetch = append(hooks.AfterFetch, func(ctx context.Context, r *record.Record) error {
		seen = append(seen, r.ID())
		return nil
	})

	f.mock.ExpectQuery("FROM `authors`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))

	_, err := f.mapper.FetchAll(context.Background(), f.author, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, seen)
}

func TestAfterFetchHookSeesLoadedRelations(t *testing.T) {
	f := newFixture(t)

	var bookCounts []int
	hooks := f.mapper.Hooks(f.author)
	hooks.AfterFetch = append(hooks.AfterFetch, func(ctx context.Context, r *record.Record) error {
		bookCounts = append(bookCounts, r.RelatedSet("books").Len())
		return nil
	})

	f.mock.ExpectQuery("FROM `authors`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	f.mock.ExpectQuery("FROM `books`").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "title"}).
			AddRow(10, 1, "Left Hand"))

	_, err := f.mapper.FetchAll(context.Background(), f.author, FetchOptions{
		Related: []eager.Request{eager.Rel("books")},
	})
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, []int{1}, bookCounts)
}

func TestFetchColumnsStayOnParentQuery(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery("SELECT `authors`\\.`name`, `authors`\\.`id` FROM `authors`").
		WillReturnRows(sqlmock.NewRows([]string{"name", "id"}).AddRow("Le Guin", 1))
	// Branch queries select the child table's own columns.
	f.mock.ExpectQuery("SELECT `books`\\.\\* FROM `books`").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "title"}).
			AddRow(10, 1, "Left Hand"))

	set, err := f.mapper.FetchAll(context.Background(), f.author, FetchOptions{
		Options: constraint.Options{Columns: []string{"name"}},
		Related: []eager.Request{eager.Rel("books")},
	})
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, 1, set.First().RelatedSet("books").Len())
}
