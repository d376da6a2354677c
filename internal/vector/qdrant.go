package vector

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/hyperjump/reelrank/internal/config"
)

// movieNamespace seeds the UUIDv5 point ids so a MovieId always maps to the same point.
var movieNamespace = uuid.MustParse("6f1c8f8e-3b1a-5e0a-9d6c-7a2f0c4e9b11")

// Point is one movie vector pushed to the mirror.
type Point struct {
	MovieID     int64
	Vector      []float32
	Title       string
	Description string
}

// PointID returns the deterministic Qdrant point id for a movie.
func PointID(movieID int64) string {
	return uuid.NewSHA1(movieNamespace, []byte(strconv.FormatInt(movieID, 10))).String()
}

// QdrantMirror copies ingested movie vectors into a Qdrant collection so
// other services can query them. It is write-only from this process.
type QdrantMirror struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	apiKey      string
	logger      *zap.Logger
}

// NewQdrantMirror dials Qdrant's gRPC endpoint. The connection is lazy; call
// EnsureCollection to verify it.
func NewQdrantMirror(cfg config.QdrantConfig, logger *zap.Logger) (*QdrantMirror, error) {
	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	m := NewQdrantMirrorFromConn(conn, cfg.Collection, logger)
	m.apiKey = cfg.APIKey
	return m, nil
}

// NewQdrantMirrorFromConn builds a mirror over an existing connection.
func NewQdrantMirrorFromConn(conn *grpc.ClientConn, collection string, logger *zap.Logger) *QdrantMirror {
	return &QdrantMirror{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		logger:      logger,
	}
}

func (m *QdrantMirror) withAuth(ctx context.Context) context.Context {
	if m.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", m.apiKey)
}

// EnsureCollection creates the collection with cosine distance if it does not exist.
func (m *QdrantMirror) EnsureCollection(ctx context.Context, dimensions int) error {
	ctx = m.withAuth(ctx)
	resp, err := m.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: m.collection})
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if resp.GetResult().GetExists() {
		return nil
	}
	_, err = m.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: m.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(dimensions),
			Distance: pb.Distance_Cosine,
		}}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", m.collection, err)
	}
	m.logger.Info("created qdrant collection", zap.String("collection", m.collection), zap.Int("dimensions", dimensions))
	return nil
}

// Upsert writes points, replacing earlier vectors for the same movies.
func (m *QdrantMirror) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	pts := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pts[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(p.MovieID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: map[string]*pb.Value{
				"movie_id":    {Kind: &pb.Value_IntegerValue{IntegerValue: p.MovieID}},
				"title":       {Kind: &pb.Value_StringValue{StringValue: p.Title}},
				"description": {Kind: &pb.Value_StringValue{StringValue: p.Description}},
			},
		}
	}
	_, err := m.points.Upsert(m.withAuth(ctx), &pb.UpsertPoints{
		CollectionName: m.collection,
		Points:         pts,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %d points: %w", len(points), err)
	}
	return nil
}

// Delete removes the points of the given movies.
func (m *QdrantMirror) Delete(ctx context.Context, movieIDs []int64) error {
	if len(movieIDs) == 0 {
		return nil
	}
	ids := make([]*pb.PointId, len(movieIDs))
	for i, id := range movieIDs {
		ids[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)}}
	}
	_, err := m.points.Delete(m.withAuth(ctx), &pb.DeletePoints{
		CollectionName: m.collection,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: ids},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete %d points: %w", len(movieIDs), err)
	}
	return nil
}

// Close closes the gRPC connection.
func (m *QdrantMirror) Close() error {
	return m.conn.Close()
}
