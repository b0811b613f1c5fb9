// Package client talks to the hosted record store. The store is an opaque
// document service: records can be added, queried and watched, but there are
// no cross-record transactions.
package client

import (
	"context"

	"github.com/dmitrijs2005/tightlines/internal/client/models"
)

// Query filters and orders a collection read.
type Query struct {
	OwnerID string
	OrderBy string
}

// Client is the remote record store contract consumed by the synchronizer.
type Client interface {
	Close() error

	// Ping probes store reachability.
	Ping(ctx context.Context) error

	// AddRecord writes one record and returns the server-assigned identity.
	// The record's local identity travels with the payload so a redelivered
	// write is reconciled to the same server record.
	AddRecord(ctx context.Context, collection string, rec *models.TripRecord) (string, error)

	// QueryRecords returns a one-shot snapshot of the collection.
	QueryRecords(ctx context.Context, collection string, q Query) ([]*models.TripRecord, error)

	// Subscribe opens a live watch on the collection starting at cursor
	// ("" means from the beginning) and invokes onUpdate with each fresh
	// snapshot plus the cursor it advanced to, so the caller can persist it
	// and resume after a restart. The returned function cancels the watch.
	Subscribe(ctx context.Context, collection string, q Query, cursor string, onUpdate func([]*models.TripRecord, string)) (func(), error)
}
