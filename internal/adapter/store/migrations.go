package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"recall/config"
)

// CurrentSchemaVersion is the current storage schema version.
// Increment when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// SchemaInfo stores schema version and configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStats)
		if b == nil {
			return nil
		}
		if data := b.Get(keySchemaVersion); data != nil {
			if err := json.Unmarshal(data, &info.Version); err != nil {
				info.Version = 1
			}
		}
		if data := b.Get(keyConfigHash); data != nil {
			info.ConfigHash = string(data)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStats)
		data, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, data); err != nil {
			return err
		}
		return b.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// ComputeConfigHash hashes the index-relevant configuration. A changed
// hash means chunk boundaries or scoring inputs changed, which
// invalidates the whole index.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		MaxChars     int     `json:"max_chars"`
		MinChars     int     `json:"min_chars"`
		OverlapChars int     `json:"overlap_chars"`
		Stemming     bool    `json:"stemming"`
		K1           float64 `json:"k1"`
		B            float64 `json:"b"`
	}{
		MaxChars:     cfg.Chunking.MaxChars,
		MinChars:     cfg.Chunking.MinChars,
		OverlapChars: cfg.Chunking.OverlapChars,
		Stemming:     cfg.BM25.Stemming,
		K1:           cfg.BM25.K1,
		B:            cfg.BM25.B,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// CheckRebuild reports whether the index must be rebuilt before use,
// and why.
func (s *BoltStore) CheckRebuild(cfg *config.Config) (bool, string, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return false, "", fmt.Errorf("failed to get schema info: %w", err)
	}

	if info.Version > CurrentSchemaVersion {
		return true, fmt.Sprintf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion), nil
	}
	if info.ConfigHash != "" && info.ConfigHash != ComputeConfigHash(cfg) {
		return true, "index configuration changed", nil
	}
	return false, "", nil
}

// StampSchema records the current schema version and config hash,
// called after a successful build.
func (s *BoltStore) StampSchema(cfg *config.Config) error {
	return s.SetSchemaInfo(&SchemaInfo{
		Version:    CurrentSchemaVersion,
		ConfigHash: ComputeConfigHash(cfg),
	})
}
