// Package naming derives the conventional key and table names used when a
// relation does not override them explicitly. It handles pluralization with
// per-word overrides for irregular table names.
package naming

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// Config holds custom inflection overrides for irregular words.
type Config struct {
	// PluralOverrides maps singular -> plural (e.g. "person" -> "people")
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`
	// SingularOverrides maps plural -> singular (e.g. "people" -> "person")
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig returns a Config with no overrides.
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   map[string]string{},
		SingularOverrides: map[string]string{},
	}
}

// Namer provides the name derivation functions for relation key defaults.
type Namer struct {
	config Config
}

// New creates a Namer with the given configuration.
func New(cfg Config) *Namer {
	return &Namer{config: cfg}
}

// Default returns a Namer with default configuration.
func Default() *Namer {
	return New(DefaultConfig())
}

// Pluralize converts a singular word to its plural form.
// Checks custom overrides first, then falls back to the inflection library.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form.
// Checks custom overrides first, then falls back to the inflection library.
func (n *Namer) Singularize(word string) string {
	if override, ok := n.config.SingularOverrides[word]; ok {
		return override
	}
	return inflection.Singular(word)
}

// ForeignKeyColumn derives the conventional foreign key column pointing at
// the given table: singularize(table) + "_" + idColumn.
// Example: ("authors", "id") -> "author_id".
func (n *Namer) ForeignKeyColumn(table, idColumn string) string {
	return n.Singularize(table) + "_" + idColumn
}

// JoinTableName derives the conventional join table name for a
// many-to-many relation: the two table names sorted lexicographically and
// joined by "_". The result is independent of which side declares the
// relation.
func (n *Namer) JoinTableName(tableA, tableB string) string {
	names := []string{tableA, tableB}
	sort.Strings(names)
	return strings.Join(names, "_")
}

// MorphColumns derives the type and id column names for a polymorphic
// relation from its morph name: {name}_type, {name}_id.
func (n *Namer) MorphColumns(morphName string) (typeColumn, idColumn string) {
	return morphName + "_type", morphName + "_id"
}
