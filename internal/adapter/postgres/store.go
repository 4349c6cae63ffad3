// Package postgres implements the reading store on PostgreSQL via the pgx
// stdlib driver. The unique index on unique_id is the authoritative dedup
// enforcement point; everything above it is advisory.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/lorawan-telemetry-service/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultConnLifetime = time.Hour
	defaultPingTimeout  = 5 * time.Second
)

// Store persists sensor readings. A single Store is shared by all
// concurrent requests; the underlying pool is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// New opens a pgx-backed connection pool, validates it, and returns a Store.
func New(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres: empty DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool, used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	id                  BIGSERIAL PRIMARY KEY,
	device_id           TEXT NOT NULL,
	dev_eui             TEXT NOT NULL DEFAULT '',
	application_id      TEXT NOT NULL DEFAULT '',
	temperature_celsius DOUBLE PRECISION NOT NULL DEFAULT 0,
	humidity_percent    DOUBLE PRECISION NOT NULL DEFAULT 0,
	packet_counter      BIGINT NOT NULL DEFAULT 0,
	f_port              INTEGER NOT NULL DEFAULT 0,
	f_cnt               BIGINT NOT NULL DEFAULT 0,
	gateway_id          TEXT NOT NULL DEFAULT 'unknown',
	gateway_eui         TEXT NOT NULL DEFAULT 'unknown',
	rssi                DOUBLE PRECISION NOT NULL DEFAULT 0,
	snr                 DOUBLE PRECISION NOT NULL DEFAULT 0,
	spreading_factor    INTEGER NOT NULL DEFAULT 0,
	bandwidth           INTEGER NOT NULL DEFAULT 0,
	frequency           BIGINT NOT NULL DEFAULT 0,
	latitude            DOUBLE PRECISION,
	longitude           DOUBLE PRECISION,
	altitude            DOUBLE PRECISION,
	received_at         TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	unique_id           TEXT,
	full_payload        JSONB
);

-- NULL unique_ids never collide, so rows imported from before the dedup
-- feature coexist with fingerprinted rows.
CREATE UNIQUE INDEX IF NOT EXISTS sensor_readings_unique_id_idx
	ON sensor_readings (unique_id);

CREATE INDEX IF NOT EXISTS sensor_readings_device_time_idx
	ON sensor_readings (device_id, received_at DESC);
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate sensor_readings: %w", err)
	}
	return nil
}

const insertSQL = `
INSERT INTO sensor_readings (
	device_id, dev_eui, application_id,
	temperature_celsius, humidity_percent, packet_counter,
	f_port, f_cnt, gateway_id, gateway_eui, rssi, snr,
	spreading_factor, bandwidth, frequency,
	latitude, longitude, altitude,
	received_at, created_at, unique_id, full_payload
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
ON CONFLICT (unique_id) DO NOTHING
`

// Insert persists a reading. A collision on unique_id is a benign no-op
// reported as created=false: this is where a losing concurrent insert of a
// retransmitted frame becomes "duplicate, already recorded" instead of an
// error. A failed insert leaves no trace.
func (s *Store) Insert(ctx context.Context, reading domain.SensorReading) (bool, error) {
	var lat, lon, alt sql.NullFloat64
	if loc := reading.Location; loc != nil {
		lat = sql.NullFloat64{Float64: loc.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: loc.Longitude, Valid: true}
		alt = sql.NullFloat64{Float64: loc.Altitude, Valid: true}
	}

	var uniqueID sql.NullString
	if reading.UniqueID != "" {
		uniqueID = sql.NullString{String: reading.UniqueID, Valid: true}
	}

	var payload any
	if len(reading.FullPayload) > 0 {
		payload = []byte(reading.FullPayload)
	}

	result, err := s.db.ExecContext(ctx, insertSQL,
		reading.DeviceID, reading.DevEUI, reading.ApplicationID,
		reading.TemperatureCelsius, reading.HumidityPercent, reading.PacketCounter,
		reading.FPort, reading.FCnt, reading.GatewayID, reading.GatewayEUI,
		reading.RSSI, reading.SNR,
		reading.SpreadingFactor, reading.Bandwidth, reading.Frequency,
		lat, lon, alt,
		reading.ReceivedAt, reading.CreatedAt, uniqueID, payload,
	)
	if err != nil {
		return false, fmt.Errorf("insert reading: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert reading rows affected: %w", err)
	}
	return affected == 1, nil
}

// Exists reports whether a reading with the given dedup key is already
// stored. Advisory only: callers must not rely on it for correctness.
func (s *Store) Exists(ctx context.Context, uniqueID string) (bool, error) {
	if uniqueID == "" {
		return false, nil
	}
	const query = `SELECT EXISTS (SELECT 1 FROM sensor_readings WHERE unique_id = $1)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, uniqueID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check reading exists: %w", err)
	}
	return exists, nil
}

const readingColumns = `
	id, device_id, dev_eui, application_id,
	temperature_celsius, humidity_percent, packet_counter,
	f_port, f_cnt, gateway_id, gateway_eui, rssi, snr,
	spreading_factor, bandwidth, frequency,
	latitude, longitude, altitude,
	received_at, created_at, COALESCE(unique_id, ''), full_payload`

// FindLatest returns the most recent reading for a device. The second
// return is false when the device has none.
func (s *Store) FindLatest(ctx context.Context, deviceID string) (domain.SensorReading, bool, error) {
	query := `SELECT` + readingColumns + `
		FROM sensor_readings
		WHERE device_id = $1
		ORDER BY received_at DESC
		LIMIT 1`

	reading, err := scanReading(s.db.QueryRowContext(ctx, query, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SensorReading{}, false, nil
	}
	if err != nil {
		return domain.SensorReading{}, false, fmt.Errorf("find latest reading: %w", err)
	}
	return reading, true, nil
}

// FindRange returns readings for a device within [start, end] ordered newest
// first, plus the total count matching the filter regardless of paging.
// Zero start or end leaves that bound open; limit <= 0 means no limit.
func (s *Store) FindRange(ctx context.Context, deviceID string, start, end time.Time, limit, offset int) ([]domain.SensorReading, int, error) {
	where := "WHERE device_id = $1"
	args := []any{deviceID}
	if !start.IsZero() {
		args = append(args, start)
		where += fmt.Sprintf(" AND received_at >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end)
		where += fmt.Sprintf(" AND received_at <= $%d", len(args))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM sensor_readings " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count readings: %w", err)
	}

	query := "SELECT" + readingColumns + " FROM sensor_readings " + where + " ORDER BY received_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if offset > 0 {
			args = append(args, offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	readings, err := s.queryReadings(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("find readings range: %w", err)
	}
	return readings, total, nil
}

// FindRecent returns the newest limit readings for a device, newest first.
func (s *Store) FindRecent(ctx context.Context, deviceID string, limit int) ([]domain.SensorReading, error) {
	query := `SELECT` + readingColumns + `
		FROM sensor_readings
		WHERE device_id = $1
		ORDER BY received_at DESC
		LIMIT $2`

	readings, err := s.queryReadings(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("find recent readings: %w", err)
	}
	return readings, nil
}

// DeleteOlderThan removes readings created before the cutoff and reports how
// many were deleted. Repeated calls with the same cutoff are no-ops.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM sensor_readings WHERE created_at < $1`
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired readings: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired readings rows affected: %w", err)
	}
	return deleted, nil
}

// Ping validates the connection, used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryReadings(ctx context.Context, query string, args ...any) ([]domain.SensorReading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []domain.SensorReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (domain.SensorReading, error) {
	var (
		reading       domain.SensorReading
		lat, lon, alt sql.NullFloat64
		payload       []byte
	)

	err := row.Scan(
		&reading.ID, &reading.DeviceID, &reading.DevEUI, &reading.ApplicationID,
		&reading.TemperatureCelsius, &reading.HumidityPercent, &reading.PacketCounter,
		&reading.FPort, &reading.FCnt, &reading.GatewayID, &reading.GatewayEUI,
		&reading.RSSI, &reading.SNR,
		&reading.SpreadingFactor, &reading.Bandwidth, &reading.Frequency,
		&lat, &lon, &alt,
		&reading.ReceivedAt, &reading.CreatedAt, &reading.UniqueID, &payload,
	)
	if err != nil {
		return domain.SensorReading{}, err
	}

	if lat.Valid && lon.Valid {
		reading.Location = &domain.Geolocation{
			Latitude:  lat.Float64,
			Longitude: lon.Float64,
			Altitude:  alt.Float64,
		}
	}
	if len(payload) > 0 {
		reading.FullPayload = payload
	}
	reading.ReceivedAt = reading.ReceivedAt.UTC()
	reading.CreatedAt = reading.CreatedAt.UTC()

	return reading, nil
}
