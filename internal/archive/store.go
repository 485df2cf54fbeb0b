package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"cloudpico-tag/internal/payload"
	"cloudpico-tag/internal/telemetry"
)

//go:embed sql/insert-broadcast.sql
var insertBroadcastSQL string

//go:embed sql/get-latest.sql
var getLatestSQL string

// seenAtLayout has a fixed-width fraction so seen_at sorts lexically.
const seenAtLayout = "2006-01-02T15:04:05.000000000Z"

// Record is one archived broadcast: the raw payload plus its decoded telemetry.
type Record struct {
	Broadcast payload.Broadcast
	Telemetry telemetry.Telemetry
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Insert archives r. Telemetry.Timestamp is stored in UTC.
func (s *Store) Insert(ctx context.Context, r Record) error {
	t := r.Telemetry
	var x, y, z, count sql.NullInt64
	if t.Accel != nil {
		x = sql.NullInt64{Int64: int64(t.Accel.X), Valid: true}
		y = sql.NullInt64{Int64: int64(t.Accel.Y), Valid: true}
		z = sql.NullInt64{Int64: int64(t.Accel.Z), Valid: true}
		count = sql.NullInt64{Int64: int64(t.Accel.SampleCount), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, insertBroadcastSQL,
		t.StationID, t.Address, r.Broadcast.Format.String(), r.Broadcast.Data, t.RSSI,
		nullFloat(t.Temperature), nullFloat(t.Humidity), nullFloat(t.Pressure), nullFloat(t.Battery),
		x, y, z, count,
		t.Timestamp.UTC().Format(seenAtLayout),
	)
	if err != nil {
		return fmt.Errorf("archive insert: %w", err)
	}
	return nil
}

// Latest returns up to limit records for address, newest first.
func (s *Store) Latest(ctx context.Context, address string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, getLatestSQL, address, limit)
	if err != nil {
		return nil, fmt.Errorf("archive latest: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("close latest rows", "error", err)
		}
	}()

	var out []Record
	for rows.Next() {
		var (
			r                         Record
			format, seen              string
			temp, hum, press, battery sql.NullFloat64
			x, y, z, count            sql.NullInt64
		)
		t := &r.Telemetry
		if err := rows.Scan(
			&t.StationID, &t.Address, &format, &r.Broadcast.Data, &t.RSSI,
			&temp, &hum, &press, &battery,
			&x, &y, &z, &count,
			&seen,
		); err != nil {
			return nil, fmt.Errorf("archive scan: %w", err)
		}
		r.Broadcast.Format = parseFormat(format)
		t.Format = format
		t.Temperature = floatPtr(temp)
		t.Humidity = floatPtr(hum)
		t.Pressure = floatPtr(press)
		t.Battery = floatPtr(battery)
		if x.Valid {
			t.Accel = &telemetry.Acceleration{
				X:           int16(x.Int64),
				Y:           int16(y.Int64),
				Z:           int16(z.Int64),
				SampleCount: uint32(count.Int64),
			}
		}
		ts, err := time.Parse(seenAtLayout, seen)
		if err != nil {
			return nil, fmt.Errorf("archive seen_at %q: %w", seen, err)
		}
		t.Timestamp = ts
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseFormat(s string) payload.Format {
	switch s {
	case payload.FormatRaw4Accel.String():
		return payload.FormatRaw4Accel
	case payload.FormatURL.String():
		return payload.FormatURL
	default:
		return 0
	}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
