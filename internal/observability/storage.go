package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"outfitter/internal/models"
	"outfitter/internal/storage"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("outfitter/storage")
	meter := otel.Meter("outfitter/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) CreatePost(ctx context.Context, post *models.Post) error {
	ctx, span := s.startSpan(ctx, "CreatePost")
	start := time.Now()
	err := s.inner.CreatePost(ctx, post)
	s.record(ctx, span, "CreatePost", start, err)
	return err
}

func (s *InstrumentedStorage) Posts(ctx context.Context) ([]*models.Post, error) {
	ctx, span := s.startSpan(ctx, "Posts")
	start := time.Now()
	result, err := s.inner.Posts(ctx)
	s.record(ctx, span, "Posts", start, err)
	return result, err
}

func (s *InstrumentedStorage) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	ctx, span := s.startSpan(ctx, "GetPost", attribute.Int64("post_id", id))
	start := time.Now()
	result, err := s.inner.GetPost(ctx, id)
	s.record(ctx, span, "GetPost", start, err)
	return result, err
}

func (s *InstrumentedStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	ctx, span := s.startSpan(ctx, "UpdatePost", attribute.Int64("post_id", post.ID))
	start := time.Now()
	err := s.inner.UpdatePost(ctx, post)
	s.record(ctx, span, "UpdatePost", start, err)
	return err
}

func (s *InstrumentedStorage) CountPostsSince(ctx context.Context, deviceID string, since time.Time) (int, error) {
	ctx, span := s.startSpan(ctx, "CountPostsSince")
	start := time.Now()
	result, err := s.inner.CountPostsSince(ctx, deviceID, since)
	s.record(ctx, span, "CountPostsSince", start, err)
	return result, err
}

func (s *InstrumentedStorage) OldestPostSince(ctx context.Context, deviceID string, since time.Time) (time.Time, error) {
	ctx, span := s.startSpan(ctx, "OldestPostSince")
	start := time.Now()
	result, err := s.inner.OldestPostSince(ctx, deviceID, since)
	s.record(ctx, span, "OldestPostSince", start, err)
	return result, err
}

func (s *InstrumentedStorage) PrunePosts(ctx context.Context, cutoff time.Time, maxPosts int) (int, error) {
	ctx, span := s.startSpan(ctx, "PrunePosts")
	start := time.Now()
	result, err := s.inner.PrunePosts(ctx, cutoff, maxPosts)
	s.record(ctx, span, "PrunePosts", start, err)
	return result, err
}

func (s *InstrumentedStorage) GetUsername(ctx context.Context, deviceID string) (string, error) {
	ctx, span := s.startSpan(ctx, "GetUsername")
	start := time.Now()
	result, err := s.inner.GetUsername(ctx, deviceID)
	s.record(ctx, span, "GetUsername", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveUsername(ctx context.Context, deviceID, username string) error {
	ctx, span := s.startSpan(ctx, "SaveUsername")
	start := time.Now()
	err := s.inner.SaveUsername(ctx, deviceID, username)
	s.record(ctx, span, "SaveUsername", start, err)
	return err
}

func (s *InstrumentedStorage) UsernameTaken(ctx context.Context, username string) (bool, error) {
	ctx, span := s.startSpan(ctx, "UsernameTaken")
	start := time.Now()
	result, err := s.inner.UsernameTaken(ctx, username)
	s.record(ctx, span, "UsernameTaken", start, err)
	return result, err
}

func (s *InstrumentedStorage) AddReport(ctx context.Context, postID int64, reporterID string) (int, error) {
	ctx, span := s.startSpan(ctx, "AddReport", attribute.Int64("post_id", postID))
	start := time.Now()
	result, err := s.inner.AddReport(ctx, postID, reporterID)
	s.record(ctx, span, "AddReport", start, err)
	return result, err
}

func (s *InstrumentedStorage) GetBan(ctx context.Context, deviceID string) (time.Time, error) {
	ctx, span := s.startSpan(ctx, "GetBan")
	start := time.Now()
	result, err := s.inner.GetBan(ctx, deviceID)
	s.record(ctx, span, "GetBan", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveBan(ctx context.Context, deviceID string, until time.Time) error {
	ctx, span := s.startSpan(ctx, "SaveBan")
	start := time.Now()
	err := s.inner.SaveBan(ctx, deviceID, until)
	s.record(ctx, span, "SaveBan", start, err)
	return err
}

func (s *InstrumentedStorage) Snapshot(ctx context.Context) (*models.BoardSnapshot, error) {
	ctx, span := s.startSpan(ctx, "Snapshot")
	start := time.Now()
	result, err := s.inner.Snapshot(ctx)
	s.record(ctx, span, "Snapshot", start, err)
	return result, err
}

func (s *InstrumentedStorage) Restore(ctx context.Context, snap *models.BoardSnapshot) error {
	ctx, span := s.startSpan(ctx, "Restore")
	start := time.Now()
	err := s.inner.Restore(ctx, snap)
	s.record(ctx, span, "Restore", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
