// Package models defines client-side data models for locally authored trip
// logs and their sync lifecycle.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SyncStatus is the delivery state of a locally authored record.
type SyncStatus string

const (
	// StatusSynced means the remote store acknowledged the record and
	// assigned it a server identity.
	StatusSynced SyncStatus = "synced"
	// StatusPending means a remote write was attempted and failed, or the
	// record was created after reconnection but before the current sweep
	// finished. Retried on the next sweep.
	StatusPending SyncStatus = "pending"
	// StatusOffline means the record was created with no connectivity and a
	// remote write has never been attempted.
	StatusOffline SyncStatus = "offline"
)

// TripPayload is the domain content of a trip log entry.
type TripPayload struct {
	Species   string          `json:"species"`
	Quantity  int             `json:"quantity"`
	Location  string          `json:"location,omitempty"`
	Latitude  float64         `json:"latitude,omitempty"`
	Longitude float64         `json:"longitude,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	Extras    json.RawMessage `json:"extras,omitempty"`
}

// TripRecord is a locally authored trip log entry mirrored in the local
// database and synced to the remote record store.
//
// LocalID is generated at creation time and is stable for the record's whole
// life. ServerID stays empty until the remote store acknowledges the record;
// once assigned it supersedes LocalID for future remote writes, but the local
// row is never duplicated or re-keyed.
type TripRecord struct {
	LocalID   string
	ServerID  string
	OwnerID   string
	CreatedAt time.Time
	Payload   TripPayload
	Status    SyncStatus
}

// NewTripRecord builds a record with a fresh local identity and the given
// initial status.
func NewTripRecord(ownerID string, payload TripPayload, status SyncStatus) *TripRecord {
	return &TripRecord{
		LocalID:   uuid.NewString(),
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
		Payload:   payload,
		Status:    status,
	}
}

// Identity returns the identity to use when talking to the remote store:
// the server identity once assigned, otherwise the local token.
func (r *TripRecord) Identity() string {
	if r.ServerID != "" {
		return r.ServerID
	}
	return r.LocalID
}

// Unsynced reports whether the record still needs a remote write.
func (r *TripRecord) Unsynced() bool {
	return r.Status == StatusPending || r.Status == StatusOffline
}
