package storage

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantBackend is the production Backend binding. Collections are
// created with a 1536-dim dot-product vector config; this module never
// does semantic search, so every upserted point carries a dummy
// zero vector and all real querying happens through the filter DSL.
type QdrantBackend struct {
	client *qdrant.Client
}

// NewQdrantBackend dials host:port.
func NewQdrantBackend(host string, port int, apiKey string, useTLS bool) (*QdrantBackend, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect qdrant %s:%d: %w", host, port, err)
	}
	return &QdrantBackend{client: client}, nil
}

const zeroVectorSize = 1536

func zeroVector() []float32 {
	return make([]float32, zeroVectorSize)
}

func (b *QdrantBackend) EnsureCollection(ctx context.Context, name string, vectorSize int, distance Distance) error {
	exists, err := b.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if vectorSize <= 0 {
		vectorSize = zeroVectorSize
	}
	dist := qdrant.Distance_Dot
	if distance != DistanceDot && distance != "" {
		dist = qdrant.Distance_Cosine
	}
	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: dist,
		}),
	})
	if err != nil {
		return fmt.Errorf("storage: create collection %s: %w", name, err)
	}
	return nil
}

func (b *QdrantBackend) Upsert(ctx context.Context, collection string, points []Point) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		vec := p.Vector
		if len(vec) == 0 {
			vec = zeroVector()
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(vec...),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}
	_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("storage: upsert into %s: %w", collection, err)
	}
	return nil
}

func (b *QdrantBackend) SetPayload(ctx context.Context, collection string, ids []string, payload map[string]any) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}
	_, err := b.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: collection,
		Payload:        qdrant.NewValueMap(payload),
		PointsSelector: qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("storage: set payload on %s: %w", collection, err)
	}
	return nil
}

func (b *QdrantBackend) Retrieve(ctx context.Context, collection string, ids []string) ([]Point, error) {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}
	result, err := b.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: retrieve from %s: %w", collection, err)
	}
	return pointsFromRetrieved(result), nil
}

func (b *QdrantBackend) Scroll(ctx context.Context, collection string, params ScrollParams) ([]Point, error) {
	result, err := b.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         buildFilter(params.Filter),
		Limit:          optionalUint32(uint32(params.Limit)),
		Offset:         nil,
		WithPayload:    qdrant.NewWithPayload(params.WithPayload),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scroll %s: %w", collection, err)
	}
	points := pointsFromRetrieved(result)
	return paginate(points, params.Offset, 0), nil
}

func (b *QdrantBackend) Count(ctx context.Context, collection string, params CountParams) (int, error) {
	result, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         buildFilter(params.Filter),
	})
	if err != nil {
		return 0, fmt.Errorf("storage: count %s: %w", collection, err)
	}
	return int(result), nil
}

func (b *QdrantBackend) Delete(ctx context.Context, collection string, params DeleteParams) error {
	var selector *qdrant.PointsSelector
	if len(params.IDs) > 0 {
		pointIDs := make([]*qdrant.PointId, len(params.IDs))
		for i, id := range params.IDs {
			pointIDs[i] = qdrant.NewIDUUID(id)
		}
		selector = qdrant.NewPointsSelector(pointIDs...)
	} else {
		selector = qdrant.NewPointsSelectorFilter(buildFilter(params.Filter))
	}
	_, err := b.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         selector,
	})
	if err != nil {
		return fmt.Errorf("storage: delete from %s: %w", collection, err)
	}
	return nil
}

func (b *QdrantBackend) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := b.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("storage: collection exists %s: %w", name, err)
	}
	return exists, nil
}

func (b *QdrantBackend) GetCollections(ctx context.Context) ([]string, error) {
	names, err := b.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: list collections: %w", err)
	}
	return names, nil
}

func pointsFromRetrieved(results []*qdrant.RetrievedPoint) []Point {
	out := make([]Point, 0, len(results))
	for _, r := range results {
		out = append(out, Point{
			ID:      r.GetId().GetUuid(),
			Payload: payloadToMap(r.GetPayload()),
		})
	}
	return out
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_StructValue:
		return payloadToMap(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = valueToAny(item)
		}
		return out
	default:
		return nil
	}
}

// buildFilter translates our backend-agnostic DSL into Qdrant's
// generated protobuf filter types.
func buildFilter(f *Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}
	return &qdrant.Filter{
		Must:    buildConditions(f.Must),
		MustNot: buildConditions(f.MustNot),
	}
}

func buildConditions(clauses []Condition) []*qdrant.Condition {
	out := make([]*qdrant.Condition, 0, len(clauses))
	for _, c := range clauses {
		switch {
		case len(c.HasID) > 0:
			ids := make([]*qdrant.PointId, len(c.HasID))
			for i, id := range c.HasID {
				ids[i] = qdrant.NewIDUUID(id)
			}
			out = append(out, qdrant.NewHasID(ids...))
		case c.Match != nil && c.Match.Any != nil:
			keywords := make([]string, len(c.Match.Any))
			for i, v := range c.Match.Any {
				keywords[i] = fmt.Sprint(v)
			}
			out = append(out, qdrant.NewMatchKeywords(c.Key, keywords...))
		case c.Match != nil:
			out = append(out, qdrant.NewMatchKeyword(c.Key, fmt.Sprint(c.Match.Value)))
		case c.Range != nil:
			out = append(out, qdrant.NewRange(c.Key, &qdrant.Range{
				Gte: toFloatPtr(c.Range.Gte),
				Lte: toFloatPtr(c.Range.Lte),
			}))
		case c.Text != nil:
			out = append(out, qdrant.NewMatchText(c.Key, c.Text.Contains))
		}
	}
	return out
}

func toFloatPtr(v any) *float64 {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func optionalUint32(n uint32) *uint32 {
	if n == 0 {
		return nil
	}
	return &n
}
