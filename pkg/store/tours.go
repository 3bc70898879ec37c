package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"assistdb/pkg/logger"
	"assistdb/pkg/models"
)

// SaveTour stores a tour under its reserved key. Step order is preserved
// exactly as marshaled.
func SaveTour(t models.Tour) error {
	if db == nil {
		return notOpen()
	}
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal tour: %w", err)
	}
	if err := db.Set([]byte("tour:"+t.ID), b, pebble.Sync); err != nil {
		logger.Error("save_tour_failed", "tour", t.ID, "error", err)
		return err
	}
	logger.Info("tour_saved", "tour", t.ID, "owner", t.Owner, "steps", len(t.Steps))
	return nil
}

// GetTour returns the stored tour for a given ID.
func GetTour(id string) (models.Tour, error) {
	var t models.Tour
	if db == nil {
		return t, notOpen()
	}
	v, closer, err := db.Get([]byte("tour:" + id))
	if err != nil {
		return t, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &t); err != nil {
		return t, fmt.Errorf("invalid stored tour: %w", err)
	}
	return t, nil
}

// ListTours returns all tours, optionally filtered by owner.
func ListTours(owner string) ([]models.Tour, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("tour:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Tour
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var t models.Tour
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		if owner != "" && t.Owner != owner {
			continue
		}
		out = append(out, t)
	}
	return out, iter.Error()
}

// DeleteTour removes a tour. Tours are extension artifacts, not audit
// records, so deletion is hard.
func DeleteTour(id string) error {
	if db == nil {
		return notOpen()
	}
	if _, err := GetTour(id); err != nil {
		return err
	}
	if err := db.Delete([]byte("tour:"+id), pebble.Sync); err != nil {
		logger.Error("delete_tour_failed", "tour", id, "error", err)
		return err
	}
	logger.Info("tour_deleted", "tour", id)
	return nil
}
