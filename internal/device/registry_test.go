package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flora-iot/flora-core/internal/infrastructure/database"
	_ "github.com/flora-iot/flora-core/migrations"
)

func testRepository(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

// fakeGeo records calls and returns a fixed place or error.
type fakeGeo struct {
	place Place
	err   error
	calls int
}

func (g *fakeGeo) Locate(_ context.Context, _, _ float64) (Place, error) {
	g.calls++
	return g.place, g.err
}

func sameDevice(a, b Device) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	a.CreatedAt, b.CreatedAt = time.Time{}, time.Time{}
	return a == b
}

func testRegistry(t *testing.T, geo Geolocator) *Registry {
	t.Helper()
	r := NewRegistry(testRepository(t), geo)
	seq := 0
	r.newID = func() string {
		seq++
		return "dev-" + string(rune('0'+seq))
	}
	r.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return r
}

func TestRegistry_Register(t *testing.T) {
	geo := &fakeGeo{place: Place{Name: "Seattle", Key: "351409"}}
	r := testRegistry(t, geo)

	d, err := r.Register(context.Background(), "user-1", "  Basil  ", 47.6, -122.3)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	want := Device{
		DeviceID:    "dev-1",
		Nickname:    "Basil",
		BatteryLife: -1,
		Location:    Location{Lat: 47.6, Long: -122.3, LocationName: "Seattle", LocationKey: "351409"},
		OwnerID:     "user-1",
		CreatedAt:   time.Unix(1_700_000_000, 0).UTC(),
	}
	if !sameDevice(*d, want) {
		t.Errorf("Register() = %+v, want %+v", *d, want)
	}

	got, err := r.Lookup(context.Background(), "dev-1", "user-1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(got) != 1 || !sameDevice(got[0], want) {
		t.Errorf("Lookup() = %+v, want stored device", got)
	}
}

func TestRegistry_RegisterValidation(t *testing.T) {
	geo := &fakeGeo{place: Place{Name: "x", Key: "1"}}
	r := testRegistry(t, geo)

	tests := []struct {
		name     string
		owner    string
		nickname string
		lat      float64
		long     float64
		wantErr  error
	}{
		{"no owner", "", "Basil", 0, 0, ErrMissingOwner},
		{"no nickname", "u", "   ", 0, 0, ErrInvalidDevice},
		{"long nickname", "u", string(make([]byte, 65)), 0, 0, ErrInvalidDevice},
		{"latitude", "u", "Basil", 91, 0, ErrInvalidDevice},
		{"longitude", "u", "Basil", 0, -181, ErrInvalidDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Register(context.Background(), tt.owner, tt.nickname, tt.lat, tt.long); !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if geo.calls != 0 {
		t.Errorf("geolocator called %d times for invalid input", geo.calls)
	}
}

func TestRegistry_RegisterGeolocationFailureStoresNothing(t *testing.T) {
	r := testRegistry(t, &fakeGeo{err: errors.New("upstream 503")})

	if _, err := r.Register(context.Background(), "user-1", "Basil", 1, 1); !errors.Is(err, ErrGeolocation) {
		t.Fatalf("Register() error = %v, want ErrGeolocation", err)
	}
	devices, err := r.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("List() = %+v, want nothing stored", devices)
	}
}

func TestRegistry_LookupIsScopedToOwner(t *testing.T) {
	r := testRegistry(t, &fakeGeo{place: Place{Name: "x", Key: "1"}})
	ctx := context.Background()

	for _, owner := range []string{"alice", "alice", "bob"} {
		if _, err := r.Register(ctx, owner, "plant", 0, 0); err != nil {
			t.Fatalf("Register(%s) error = %v", owner, err)
		}
	}

	tests := []struct {
		name     string
		deviceID string
		owner    string
		want     int
	}{
		{"own device", "dev-1", "alice", 1},
		{"someone else's device", "dev-3", "alice", 0},
		{"unknown device", "dev-9", "alice", 0},
		{"all own devices", "", "alice", 2},
		{"other owner", "", "bob", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Lookup(ctx, tt.deviceID, tt.owner)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Lookup() returned %d devices, want %d", len(got), tt.want)
			}
			if tt.deviceID != "" && tt.want == 1 && !HasDevice(got, tt.deviceID) {
				t.Errorf("Lookup() = %+v, want %s", got, tt.deviceID)
			}
		})
	}

	if _, err := r.Lookup(ctx, "dev-1", ""); !errors.Is(err, ErrMissingOwner) {
		t.Errorf("Lookup() without owner error = %v, want ErrMissingOwner", err)
	}
}

func TestRegistry_Exists(t *testing.T) {
	r := testRegistry(t, &fakeGeo{place: Place{Name: "x", Key: "1"}})
	ctx := context.Background()
	if _, err := r.Register(ctx, "alice", "plant", 0, 0); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		deviceID string
		want     bool
	}{
		{"dev-1", true},
		{"dev-2", false},
		{"", false},
	}
	for _, tt := range tests {
		got, err := r.Exists(ctx, tt.deviceID)
		if err != nil {
			t.Fatalf("Exists(%q) error = %v", tt.deviceID, err)
		}
		if got != tt.want {
			t.Errorf("Exists(%q) = %v, want %v", tt.deviceID, got, tt.want)
		}
	}
}

func TestSQLiteRepository_DuplicateID(t *testing.T) {
	repo := testRepository(t)
	d := &Device{DeviceID: "dup", OwnerID: "u", Nickname: "n", BatteryLife: -1, CreatedAt: time.Now()}

	if err := repo.Create(context.Background(), d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(context.Background(), d); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("second Create() error = %v, want ErrDeviceExists", err)
	}
}
