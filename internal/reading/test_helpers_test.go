package reading

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/flora-iot/flora-core/internal/infrastructure/database"
	_ "github.com/flora-iot/flora-core/migrations"
)

// testStore opens an in-memory database with the real schema applied.
func testStore(t *testing.T, maxPageSize int) (*SQLiteStore, *database.DB) {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return NewSQLiteStore(db.DB, maxPageSize), db
}

func putReadings(t *testing.T, s Store, deviceID string, timestamps ...int64) {
	t.Helper()
	for _, ts := range timestamps {
		r := SensorReading{
			ID:              deviceID + "-" + strconv.FormatInt(ts, 10),
			DeviceID:        deviceID,
			Timestamp:       ts,
			ExpireTimestamp: ts + 1000,
			Fields:          map[string]float64{"temperature": float64(ts) / 10},
		}
		if err := s.Put(context.Background(), r); err != nil {
			t.Fatalf("Put(%d) error = %v", ts, err)
		}
	}
}

func timestamps(items []SensorReading) []int64 {
	out := make([]int64, len(items))
	for i, r := range items {
		out[i] = r.Timestamp
	}
	return out
}

// knownDevices is a DeviceChecker over a fixed set of IDs.
type knownDevices map[string]bool

func (k knownDevices) Exists(_ context.Context, deviceID string) (bool, error) {
	return k[deviceID], nil
}

// failingDevices is a DeviceChecker whose lookups always fail.
type failingDevices struct{}

var errLookupDown = errors.New("registry down")

func (failingDevices) Exists(context.Context, string) (bool, error) {
	return false, errLookupDown
}
