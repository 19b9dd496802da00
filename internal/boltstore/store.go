// Package boltstore keeps user to spreadsheet links in an embedded bolt
// file, for deployments without Postgres.
package boltstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/boltdb/bolt"
)

var linksBucket = []byte("sheet_links")

// Store is a bolt-backed link store.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the bolt file at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(linksBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create links bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// SpreadsheetID returns the user's spreadsheet id, or "" if none.
func (s *Store) SpreadsheetID(_ context.Context, userID int64) (string, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(linksBucket).Get(key(userID)); v != nil {
			id = string(v)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read sheet link: %w", err)
	}
	return id, nil
}

// SaveSpreadsheetID links a spreadsheet to the user, replacing any previous link.
func (s *Store) SaveSpreadsheetID(_ context.Context, userID int64, spreadsheetID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(linksBucket).Put(key(userID), []byte(spreadsheetID))
	})
	if err != nil {
		return fmt.Errorf("failed to save sheet link: %w", err)
	}
	return nil
}

// Links returns every stored link.
func (s *Store) Links() (map[int64]string, error) {
	links := make(map[int64]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(linksBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			userID, err := strconv.ParseInt(string(k), 10, 64)
			if err != nil {
				return fmt.Errorf("bad key %q: %w", k, err)
			}
			links[userID] = string(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sheet links: %w", err)
	}
	return links, nil
}

func key(userID int64) []byte {
	return []byte(strconv.FormatInt(userID, 10))
}
