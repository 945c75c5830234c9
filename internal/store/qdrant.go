package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
)

// payloadFields is the restricted payload returned by searches. The code
// body is never stored in or fetched from the vector service.
var payloadFields = []string{
	"id", "file_path", "start_line", "end_line", "language", "layer", "origin", "repo", "hash",
}

// pointNamespace seeds deterministic point ids derived from snippet ids.
var pointNamespace = uuid.MustParse("6f1c3a52-7d0e-4c8a-9b5e-2f4d8e1a6c30")

// QdrantStore is a VectorIndex backed by a Qdrant server over gRPC.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	apiKey      string
	dimensions  int

	mu      sync.Mutex
	ensured map[string]bool
}

// NewQdrantStore dials addr (host:port of the gRPC endpoint). Dialing is
// lazy; connection errors surface on the first call.
func NewQdrantStore(addr, apiKey string, dimensions int) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant at %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		apiKey:      apiKey,
		dimensions:  dimensions,
		ensured:     make(map[string]bool),
	}, nil
}

func (q *QdrantStore) withAuth(ctx context.Context) context.Context {
	if q.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", q.apiKey)
}

// PointID maps a snippet id to the UUID used as its Qdrant point id.
func PointID(snippetID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(snippetID)).String()
}

// EnsureCollection creates collection with cosine distance if it is missing.
func (q *QdrantStore) EnsureCollection(ctx context.Context, collection string, size int) error {
	q.mu.Lock()
	done := q.ensured[collection]
	q.mu.Unlock()
	if done {
		return nil
	}

	ctx = q.withAuth(ctx)
	if _, err := q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: collection}); err != nil {
		slog.Info("qdrant_collection_create", slog.String("collection", collection), slog.Int("size", size))
		_, err = q.collections.Create(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(size),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", collection, err)
		}
	}

	q.mu.Lock()
	q.ensured[collection] = true
	q.mu.Unlock()
	return nil
}

func (q *QdrantStore) Upsert(ctx context.Context, collection string, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := q.EnsureCollection(ctx, collection, len(points[0].Vector)); err != nil {
		return err
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if q.dimensions > 0 && len(p.Vector) != q.dimensions {
			return ErrDimensionMismatch{Expected: q.dimensions, Got: len(p.Vector)}
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: PointID(p.ID)}},
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: p.Vector}}},
			Payload: toPayload(p.ID, p.Meta),
		})
	}

	_, err := q.points.Upsert(q.withAuth(ctx), &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         structs,
		Wait:           proto.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(structs), collection, err)
	}
	return nil
}

func (q *QdrantStore) Search(ctx context.Context, collection string, vector []float32, k int) ([]VectorHit, error) {
	if k <= 0 {
		return []VectorHit{}, nil
	}
	res, err := q.points.Search(q.withAuth(ctx), &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Include{
				Include: &qdrant.PayloadIncludeSelector{Fields: payloadFields},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	hits := make([]VectorHit, 0, len(res.GetResult()))
	for _, sp := range res.GetResult() {
		meta := fromPayload(sp.GetPayload())
		if meta.ID == "" {
			continue
		}
		hits = append(hits, VectorHit{ID: meta.ID, Score: sp.GetScore(), Meta: meta})
	}
	return hits, nil
}

func (q *QdrantStore) Close() error {
	return q.conn.Close()
}

func toPayload(id string, s Snippet) map[string]*qdrant.Value {
	str := func(v string) *qdrant.Value {
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	num := func(v int) *qdrant.Value {
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v)}}
	}
	return map[string]*qdrant.Value{
		"id":         str(id),
		"file_path":  str(s.FilePath),
		"start_line": num(s.StartLine),
		"end_line":   num(s.EndLine),
		"language":   str(s.Language),
		"layer":      str(s.Layer),
		"origin":     str(s.Origin),
		"repo":       str(s.Repo),
		"hash":       str(s.Hash),
	}
}

func fromPayload(p map[string]*qdrant.Value) Snippet {
	return Snippet{
		ID:        p["id"].GetStringValue(),
		FilePath:  p["file_path"].GetStringValue(),
		StartLine: int(p["start_line"].GetIntegerValue()),
		EndLine:   int(p["end_line"].GetIntegerValue()),
		Language:  p["language"].GetStringValue(),
		Layer:     p["layer"].GetStringValue(),
		Origin:    p["origin"].GetStringValue(),
		Repo:      p["repo"].GetStringValue(),
		Hash:      p["hash"].GetStringValue(),
	}
}

var _ VectorIndex = (*QdrantStore)(nil)
