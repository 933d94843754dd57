package reading

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flora-iot/flora-core/internal/infrastructure/database"
)

// DefaultMaxPageSize bounds a single page when the caller sets no limit.
const DefaultMaxPageSize = 500

// SQLiteStore implements Store on the sensor_readings table.
//
// The table's primary key is (device_id, timestamp, id), so every query
// is an index range scan on one device's partition, and the id column
// breaks ties between readings taken in the same second.
type SQLiteStore struct {
	db          *sql.DB
	maxPageSize int
}

// NewSQLiteStore creates a store on an open database.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//   - maxPageSize: Upper bound on items per page; <= 0 uses DefaultMaxPageSize
//
// Returns:
//   - *SQLiteStore: Store ready for use
func NewSQLiteStore(db *sql.DB, maxPageSize int) *SQLiteStore {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	return &SQLiteStore{db: db, maxPageSize: maxPageSize}
}

// MaxPageSize returns the page bound applied to every query.
func (s *SQLiteStore) MaxPageSize() int {
	return s.maxPageSize
}

// Put inserts a reading.
func (s *SQLiteStore) Put(ctx context.Context, r SensorReading) error {
	if r.ID == "" || r.DeviceID == "" {
		return fmt.Errorf("%w: id and device id are required", ErrQueryRejected)
	}

	fields := r.Fields
	if fields == nil {
		fields = map[string]float64{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: encoding fields: %w", ErrQueryRejected, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (id, device_id, timestamp, expire_timestamp, fields)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.DeviceID, r.Timestamp, r.ExpireTimestamp, string(fieldsJSON),
	)
	if err != nil {
		if database.IsConstraintViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateReading, r.ID)
		}
		return classify("inserting reading", err)
	}
	return nil
}

// Query runs a key-condition query. It reads one row past the page
// limit to learn whether a continuation key is needed, so the final
// page never carries one.
func (s *SQLiteStore) Query(ctx context.Context, q Query) (*Page, error) {
	if err := s.validate(q); err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 || limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	var (
		where strings.Builder
		args  = []any{q.DeviceID}
	)
	where.WriteString("device_id = ?")
	if q.Between != nil {
		where.WriteString(" AND timestamp BETWEEN ? AND ?")
		args = append(args, q.Between.Start, q.Between.End)
	}

	cmp, dir := ">", "ASC"
	if q.Order == Descending {
		cmp, dir = "<", "DESC"
	}
	if k := q.ExclusiveStartKey; k != nil {
		where.WriteString(" AND (timestamp, id) " + cmp + " (?, ?)")
		args = append(args, k.Timestamp, k.ID)
	}
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, timestamp, expire_timestamp, fields
		 FROM sensor_readings
		 WHERE `+where.String()+`
		 ORDER BY timestamp `+dir+`, id `+dir+`
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, classify("querying readings", err)
	}
	defer rows.Close()

	items := make([]SensorReading, 0, min(limit+1, 64))
	for rows.Next() {
		var r SensorReading
		var fieldsJSON string
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Timestamp, &r.ExpireTimestamp, &fieldsJSON); err != nil {
			return nil, classify("scanning reading", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &r.Fields); err != nil {
			return nil, fmt.Errorf("%w: decoding fields of %s: %w", ErrStoreUnavailable, r.ID, err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating readings", err)
	}

	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1].Key()
		page.LastEvaluatedKey = &last
	}
	return page, nil
}

// DeleteExpired removes readings past their expiry.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sensor_readings WHERE expire_timestamp < ?", now)
	if err != nil {
		return 0, classify("deleting expired readings", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) validate(q Query) error {
	if q.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrQueryRejected)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrQueryRejected, q.Limit)
	}
	if q.Between != nil && q.Between.Start > q.Between.End {
		return fmt.Errorf("%w: range start %d after end %d", ErrQueryRejected, q.Between.Start, q.Between.End)
	}
	if q.Order != Ascending && q.Order != Descending {
		return fmt.Errorf("%w: unknown order %d", ErrQueryRejected, q.Order)
	}
	if k := q.ExclusiveStartKey; k != nil && (k.DeviceID != q.DeviceID || k.ID == "") {
		return fmt.Errorf("%w: start key does not belong to device %s", ErrQueryRejected, q.DeviceID)
	}
	return nil
}

// classify maps a driver error onto the store's error taxonomy.
// Anything not positively identified as a bad statement is reported as
// unavailable so callers may retry.
func classify(op string, err error) error {
	if !database.IsTransient(err) && database.IsStatementError(err) {
		return fmt.Errorf("%w: %s: %w", ErrQueryRejected, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
