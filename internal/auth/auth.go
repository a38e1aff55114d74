package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

// DeviceAuthenticator decides whether apiKey may submit readings for deviceID.
// A rejection is reported as domain.ErrUnauthorized.
type DeviceAuthenticator interface {
	Authenticate(ctx context.Context, deviceID, apiKey string) error
}

// StaticKey accepts any device presenting one shared key.
type StaticKey struct {
	Key string
}

func (s StaticKey) Authenticate(_ context.Context, deviceID, apiKey string) error {
	if deviceID == "" || apiKey == "" || s.Key == "" {
		return domain.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.Key)) != 1 {
		return domain.ErrUnauthorized
	}
	return nil
}

// DeviceTable checks keys against the sha256 hashes in the devices table.
type DeviceTable struct {
	db *sqlx.DB
}

func NewDeviceTable(db *sqlx.DB) *DeviceTable { return &DeviceTable{db: db} }

func (d *DeviceTable) Authenticate(ctx context.Context, deviceID, apiKey string) error {
	if deviceID == "" || apiKey == "" {
		return domain.ErrUnauthorized
	}

	var stored string
	err := d.db.GetContext(ctx, &stored, `SELECT api_key_hash FROM devices WHERE id = $1`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrUnauthorized
	}
	if err != nil {
		return domain.StorageErr("lookup device", err)
	}

	if subtle.ConstantTimeCompare([]byte(HashKey(apiKey)), []byte(stored)) != 1 {
		return domain.ErrUnauthorized
	}
	return nil
}

// Register stores a device with the hash of its key, replacing any previous key.
func (d *DeviceTable) Register(ctx context.Context, deviceID, name, apiKey string) error {
	if deviceID == "" || apiKey == "" {
		return fmt.Errorf("device id and api key are required")
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, api_key_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, api_key_hash = EXCLUDED.api_key_hash`,
		deviceID, name, HashKey(apiKey))
	return domain.StorageErr("register device", err)
}

// HashKey is the hex sha256 digest stored in devices.api_key_hash.
func HashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
