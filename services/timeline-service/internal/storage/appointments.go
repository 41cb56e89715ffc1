package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/normalize"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/subscription"
)

// Querier is the subset of a pgx pool the stores need.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var tracer = otel.Tracer("github.com/md-rashed-zaman/salon-timeline/storage")

type AppointmentStore struct {
	q Querier
}

func NewAppointmentStore(q Querier) *AppointmentStore {
	return &AppointmentStore{q: q}
}

// Query reads the raw documents matching q. Documents that are not valid JSON
// come back as records with an unparsed start so they stay visible.
func (s *AppointmentStore) Query(ctx context.Context, q subscription.BackendQuery) ([]normalize.Record, error) {
	sql, args := buildQuery(q)

	ctx, span := tracer.Start(ctx, "appointment_docs.query")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("query.ranged", q.Ranged()),
		attribute.String("query.resource_id", q.ResourceID),
	)

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("storage: query appointments: %w", err)
	}
	defer rows.Close()

	var out []normalize.Record
	for rows.Next() {
		var (
			id  string
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("storage: scan appointment: %w", err)
		}
		rec, err := normalize.DecodeRecord(id, doc)
		if err != nil {
			rec = normalize.Record{ID: id, Date: normalize.Start{Kind: normalize.StartUnparsed, Text: string(doc)}}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rows failed")
		return nil, fmt.Errorf("storage: read appointments: %w", err)
	}
	span.SetAttributes(attribute.Int("query.rows", len(out)))
	return out, nil
}

func buildQuery(q subscription.BackendQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if !q.Start.IsZero() {
		args = append(args, q.Start)
		where = append(where, fmt.Sprintf("start_at >= $%d", len(args)))
	}
	if !q.End.IsZero() {
		args = append(args, q.End)
		where = append(where, fmt.Sprintf("start_at < $%d", len(args)))
	}
	if q.ResourceID != "" {
		args = append(args, q.ResourceID)
		where = append(where, fmt.Sprintf("barber_id = $%d", len(args)))
	}

	sql := "SELECT id, doc FROM appointment_docs"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return sql, args
}
