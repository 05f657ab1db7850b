//go:generate go run go.uber.org/mock/mockgen -source=device_repository.go -destination=../../mocks/mock_device_repository.go -package=mocks
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"devicesync/domain"
)

var ErrDeviceNotFound = errors.New("device not found")

// DeviceRepository persists device records in BadgerDB. Two key families:
//
//	device:{device_id}            -> JSON device record
//	idx:user:{user_id}:{device_id} -> empty (prefix scan gives a user's fleet)
//
// The index value is empty on purpose: the record itself lives only under
// the primary key, so updates touch a single entry.
type DeviceRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewDeviceRepository(db *badger.DB, log *slog.Logger) *DeviceRepository {
	return &DeviceRepository{db: db, log: log}
}

func deviceKey(deviceID string) []byte {
	return []byte("device:" + deviceID)
}

func userIndexKey(userID, deviceID string) []byte {
	return []byte(fmt.Sprintf("idx:user:%s:%s", userID, deviceID))
}

// Create persists a new device record and its user index entry atomically.
func (r *DeviceRepository) Create(device domain.Device) (domain.Device, error) {
	data, err := json.Marshal(device)
	if err != nil {
		return domain.Device{}, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(deviceKey(device.ID), data); err != nil {
			return err
		}
		return txn.Set(userIndexKey(device.UserID, device.ID), nil)
	})
	if err != nil {
		return domain.Device{}, fmt.Errorf("failed to store device %s: %w", device.ID, err)
	}
	return device, nil
}

// Update applies patch to the stored record inside a single transaction
// (read-modify-write, no lost updates under Badger's SSI).
func (r *DeviceRepository) Update(deviceID string, patch func(*domain.Device)) (domain.Device, error) {
	var updated domain.Device
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(deviceKey(deviceID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		if err != nil {
			return err
		}

		var device domain.Device
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &device)
		}); err != nil {
			return err
		}

		patch(&device)
		updated = device

		data, err := json.Marshal(device)
		if err != nil {
			return err
		}
		return txn.Set(deviceKey(deviceID), data)
	})
	if err != nil {
		return domain.Device{}, err
	}
	return updated, nil
}

// UpdateLastSeen stamps the record with the current time.
func (r *DeviceRepository) UpdateLastSeen(deviceID string) error {
	_, err := r.Update(deviceID, func(d *domain.Device) {
		d.LastSeenAt = time.Now().UTC()
	})
	return err
}

// SetActive flips the activity flag, refreshing last-seen on activation.
func (r *DeviceRepository) SetActive(deviceID string, active bool) error {
	_, err := r.Update(deviceID, func(d *domain.Device) {
		d.Active = active
		if active {
			d.LastSeenAt = time.Now().UTC()
		}
	})
	return err
}

// Get fetches one device record by id.
func (r *DeviceRepository) Get(deviceID string) (domain.Device, error) {
	var device domain.Device
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(deviceKey(deviceID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &device)
		})
	})
	if err != nil {
		return domain.Device{}, err
	}
	return device, nil
}

// ListByUser prefix-scans the user index and resolves each record. Index
// entries whose record vanished are skipped and logged, not fatal.
func (r *DeviceRepository) ListByUser(userID string) ([]domain.Device, error) {
	var devices []domain.Device
	prefix := []byte("idx:user:" + userID + ":")
	prefixLen := len(prefix)

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			deviceID := string(it.Item().Key()[prefixLen:])

			item, err := txn.Get(deviceKey(deviceID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				r.log.Warn("dangling device index entry", "user_id", userID, "device_id", deviceID)
				continue
			}
			if err != nil {
				return err
			}

			var device domain.Device
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &device)
			}); err != nil {
				return err
			}
			devices = append(devices, device)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list devices for user %s: %w", userID, err)
	}
	return devices, nil
}
