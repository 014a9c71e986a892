package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ghostarr/ghostarr/internal/crypto"
	"github.com/ghostarr/ghostarr/internal/models"
)

// SettingRepository persists JSON settings documents keyed by dotted
// names. Service credentials live under "services.<name>" with their
// secret fields encrypted at rest.
type SettingRepository struct {
	db     *sql.DB
	crypto *crypto.Service
}

func NewSettingRepository(db *sql.DB, cryptoSvc *crypto.Service) *SettingRepository {
	return &SettingRepository{db: db, crypto: cryptoSvc}
}

func serviceKey(service models.ServiceName) string {
	return "services." + string(service)
}

// Get returns the raw JSON value for a key, or nil when unset.
func (r *SettingRepository) Get(key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = $1", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the raw JSON value for a key.
func (r *SettingRepository) Set(key string, value []byte) error {
	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetServiceConfig loads and decrypts one service's credentials. Unset
// services return a zero config.
func (r *SettingRepository) GetServiceConfig(service models.ServiceName) (models.ServiceConfig, error) {
	var cfg models.ServiceConfig

	value, err := r.Get(serviceKey(service))
	if err != nil {
		return cfg, err
	}
	if value == nil {
		return cfg, nil
	}

	if err := json.Unmarshal(value, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode %s config: %w", service, err)
	}

	if cfg.APIKey, err = r.crypto.Decrypt(cfg.APIKey); err != nil {
		return cfg, fmt.Errorf("failed to decrypt %s api key: %w", service, err)
	}
	if cfg.Password, err = r.crypto.Decrypt(cfg.Password); err != nil {
		return cfg, fmt.Errorf("failed to decrypt %s password: %w", service, err)
	}
	return cfg, nil
}

// SetServiceConfig encrypts the secret fields and stores the config.
func (r *SettingRepository) SetServiceConfig(service models.ServiceName, cfg models.ServiceConfig) error {
	var err error
	if cfg.APIKey, err = r.crypto.Encrypt(cfg.APIKey); err != nil {
		return fmt.Errorf("failed to encrypt %s api key: %w", service, err)
	}
	if cfg.Password, err = r.crypto.Encrypt(cfg.Password); err != nil {
		return fmt.Errorf("failed to encrypt %s password: %w", service, err)
	}

	value, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode %s config: %w", service, err)
	}
	return r.Set(serviceKey(service), value)
}
