package storage

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"devicesync/domain"
)

// SetupTestDB initializes a temporary Badger instance for testing
func SetupTestDB(t *testing.T) (*badger.DB, func()) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)

	return db, func() {
		db.Close()
	}
}

func testDevice(userID string) domain.Device {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.Device{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         domain.DeviceMobile,
		Name:         "test phone",
		Capabilities: []string{"notifications"},
		Active:       true,
		LastSeenAt:   now,
		CreatedAt:    now,
	}
}

func TestDeviceRepository_CreateAndGet(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	repo := NewDeviceRepository(db, logger)

	device := testDevice("alice")
	created, err := repo.Create(device)
	req.NoError(err)
	req.Equal(device.ID, created.ID)

	got, err := repo.Get(device.ID)
	req.NoError(err)
	req.Equal(device.Name, got.Name)
	req.Equal(device.Type, got.Type)
	req.True(got.LastSeenAt.Equal(device.LastSeenAt))
}

func TestDeviceRepository_Get_Unknown(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	repo := NewDeviceRepository(db, slog.New(slog.NewTextHandler(os.Stdout, nil)))

	_, err := repo.Get("ghost")
	req.ErrorIs(err, ErrDeviceNotFound)
}

func TestDeviceRepository_Update(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	repo := NewDeviceRepository(db, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	device := testDevice("alice")
	_, err := repo.Create(device)
	req.NoError(err)

	updated, err := repo.Update(device.ID, func(d *domain.Device) {
		d.Name = "renamed"
	})
	req.NoError(err)
	req.Equal("renamed", updated.Name)

	got, err := repo.Get(device.ID)
	req.NoError(err)
	req.Equal("renamed", got.Name)
}

func TestDeviceRepository_SetActiveAndLastSeen(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	repo := NewDeviceRepository(db, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	device := testDevice("alice")
	device.Active = true
	_, err := repo.Create(device)
	req.NoError(err)

	req.NoError(repo.SetActive(device.ID, false))
	got, err := repo.Get(device.ID)
	req.NoError(err)
	req.False(got.Active)

	before := got.LastSeenAt
	time.Sleep(10 * time.Millisecond)
	req.NoError(repo.UpdateLastSeen(device.ID))
	got, err = repo.Get(device.ID)
	req.NoError(err)
	req.True(got.LastSeenAt.After(before))

	// Updating the unknown is an error, not a silent create
	req.Error(repo.SetActive("ghost", true))
}

func TestDeviceRepository_ListByUser(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	repo := NewDeviceRepository(db, slog.New(slog.NewTextHandler(os.Stdout, nil)))

	for i := 0; i < 3; i++ {
		_, err := repo.Create(testDevice("alice"))
		req.NoError(err)
	}
	_, err := repo.Create(testDevice("bob"))
	req.NoError(err)

	aliceDevices, err := repo.ListByUser("alice")
	req.NoError(err)
	req.Len(aliceDevices, 3)

	bobDevices, err := repo.ListByUser("bob")
	req.NoError(err)
	req.Len(bobDevices, 1)

	none, err := repo.ListByUser("carol")
	req.NoError(err)
	req.Empty(none)
}
