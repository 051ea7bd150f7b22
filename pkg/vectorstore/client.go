// Package vectorstore implements the VectorStore contract (spec.md §4.7/§6):
// upsert/search/delete of 1024-dimension cosine points with filterable
// payload, backed by Qdrant.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/fx"

	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// Point is one vector with its payload, addressed by the owning extraction's
// id so writes are idempotent (spec.md §5: "a retry re-embeds and
// re-upserts the same id").
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Match is one search result.
type Match struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Filter constrains a search to points whose payload matches every
// key/value pair (spec.md §4.7: `{project_id, source_group}`).
type Filter map[string]string

// Store is the VectorStore component.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
	log        *slog.Logger
}

// Module wires Store into the fx graph and ensures its collection exists.
var Module = fx.Module("vectorstore",
	fx.Provide(NewStore),
)

// NewStore connects to Qdrant and ensures the configured collection exists
// with the right vector size and cosine distance.
func NewStore(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*Store, error) {
	vdb := cfg.VectorDB
	log = log.With(logger.Scope("vectorstore"))

	host, port := splitHostPort(vdb.Address)
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}

	store := &Store{
		client:     client,
		collection: vdb.Collection,
		dimension:  uint64(vdb.Dimension),
		log:        log,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return store.ensureCollection(ctx)
		},
	})

	return store, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		s.log.Warn("could not check collection existence, skipping auto-create", logger.Error(err))
		return nil
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		s.log.Warn("failed to create vector collection", logger.Error(err))
		return nil
	}

	s.log.Info("created vector collection", slog.String("collection", s.collection))
	return nil
}

// Upsert writes point, idempotent on point.ID.
func (s *Store) Upsert(ctx context.Context, point Point) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(point.ID),
				Vectors: qdrant.NewVectors(point.Vector...),
				Payload: qdrant.NewValueMap(point.Payload),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert point %s: %w", point.ID, err)
	}
	return nil
}

// SearchTop1 returns the single best match for vector under filter, or
// (nil, nil) if the collection is empty.
func (s *Store) SearchTop1(ctx context.Context, vector []float32, filter Filter) (*Match, error) {
	matches, err := s.Search(ctx, vector, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// Search returns up to limit matches for vector under filter, best first.
func (s *Store) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]Match, error) {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		conditions = append(conditions, qdrant.NewMatch(key, value))
	}

	limit64 := uint64(limit)
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(toFloat64(vector)...),
		Filter:         &qdrant.Filter{Must: conditions},
		Limit:          &limit64,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	matches := make([]Match, 0, len(resp))
	for _, point := range resp {
		matches = append(matches, Match{
			ID:      idToString(point.GetId()),
			Score:   point.GetScore(),
			Payload: payloadToMap(point.GetPayload()),
		})
	}
	return matches, nil
}

// Delete removes points by id.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func idToString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v.AsInterface()
	}
	return out
}

func splitHostPort(address string) (string, int) {
	host, port := "localhost", 6334
	fmt.Sscanf(address, "%[^:]:%d", &host, &port)
	return host, port
}
