// Package storage defines a vector/document store abstraction exposing
// upsert, retrieve, scroll, count, and delete over UUID-keyed payloads,
// plus a small filter DSL shaped after Qdrant's own query language.
// Three bindings ship: Memory (tests/dev), Qdrant (production vector
// store), and SQLite (embedded durable single-node deployments).
package storage

import "context"

// Point is one upserted/retrieved record: a UUID key, an optional
// dense vector (dummy zero vectors for this module, since semantic
// search is not used), and an arbitrary JSON-shaped payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// MatchClause matches a single value or any value in a set.
type MatchClause struct {
	Value any
	Any   []any
}

// RangeClause bounds a numeric field, either side optional. Values
// that are not numbers never match.
type RangeClause struct {
	Gte any
	Lte any
}

// TextClause matches payload fields containing a substring.
type TextClause struct {
	Contains string
}

// Condition is one clause of a Filter. Exactly one of its fields should
// be set; Key is required for Match/Range/Text and ignored for HasID.
type Condition struct {
	HasID []string
	Key   string
	Match *MatchClause
	Range *RangeClause
	Text  *TextClause
}

// Filter is a conjunction of Must clauses, with MustNot negating.
type Filter struct {
	Must    []Condition
	MustNot []Condition
}

// ScrollParams configures a paginated Scroll call.
type ScrollParams struct {
	Filter      *Filter
	WithPayload bool
	Limit       int
	Offset      int
}

// CountParams configures a Count call.
type CountParams struct {
	Filter *Filter
}

// DeleteParams deletes by explicit id list, by filter, or both.
type DeleteParams struct {
	IDs    []string
	Filter *Filter
}

// Distance selects the vector similarity metric used by
// EnsureCollection. Only Dot is exercised by this module.
type Distance string

const DistanceDot Distance = "dot"

// Backend is the StorageBackend collaborator.
type Backend interface {
	EnsureCollection(ctx context.Context, name string, vectorSize int, distance Distance) error
	Upsert(ctx context.Context, collection string, points []Point) error
	SetPayload(ctx context.Context, collection string, ids []string, payload map[string]any) error
	Retrieve(ctx context.Context, collection string, ids []string) ([]Point, error)
	Scroll(ctx context.Context, collection string, params ScrollParams) ([]Point, error)
	Count(ctx context.Context, collection string, params CountParams) (int, error)
	Delete(ctx context.Context, collection string, params DeleteParams) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	GetCollections(ctx context.Context) ([]string, error)
}
