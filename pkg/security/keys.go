package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/hkdf"
)

var ErrMissingMasterKey = errors.New("master key not configured")

// KeyConfig is the process-wide key material, sourced from the environment
// once at startup. It is never mutated afterwards; rotation happens out of
// band and requires a restart.
type KeyConfig struct {
	// MasterKey is a hex-encoded 256-bit key.
	MasterKey string `envconfig:"MASTER_KEY" required:"true"`
}

// KeyMaterial holds the derived keys consumed by the PHI codec. The search
// hash key is derived from the master key rather than configured separately
// so the two can never drift apart.
type KeyMaterial struct {
	EncryptionKey []byte
	SearchHashKey []byte
}

// LoadKeys reads PHICORE_MASTER_KEY from the environment and derives the
// working key material.
func LoadKeys() (*KeyMaterial, error) {
	var cfg KeyConfig
	if err := envconfig.Process("phicore", &cfg); err != nil {
		return nil, errors.Join(ErrMissingMasterKey, err)
	}
	return DeriveKeys(cfg.MasterKey)
}

// DeriveKeys expands a hex-encoded 256-bit master key into the encryption
// key and the search-hash key using HKDF-SHA256 with distinct info labels.
func DeriveKeys(masterKeyHex string) (*KeyMaterial, error) {
	master, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	if len(master) != 32 {
		return nil, ErrInvalidKeySize
	}

	encKey, err := expand(master, "phicore/field-encryption/v1")
	if err != nil {
		return nil, err
	}
	hashKey, err := expand(master, "phicore/search-hash/v1")
	if err != nil {
		return nil, err
	}

	return &KeyMaterial{
		EncryptionKey: encKey,
		SearchHashKey: hashKey,
	}, nil
}

func expand(master []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
