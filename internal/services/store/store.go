// Package store holds the durable ticket records behind a single
// TicketRepository contract with swappable backends.
package store

import (
	"context"
	"time"

	"ticket-issuer/models"
)

// Backend names a TicketRepository implementation.
type Backend string

const (
	BackendMemory     Backend = "memory"
	BackendFile       Backend = "file"
	BackendRedis      Backend = "redis"
	BackendPocketBase Backend = "pocketbase"
)

// TicketRepository is the durable record of issued tickets.
//
// Every backend guarantees that Get reflects a prior Save or MarkUsed made by
// the same process, and that MarkUsed is a conditional update: of any number
// of concurrent calls for one ticket exactly one returns nil.
type TicketRepository interface {
	// Save upserts the record keyed by its ticket id.
	Save(ctx context.Context, record models.TicketRecord) error

	// Get returns status.ErrTicketNotFound when no record exists.
	Get(ctx context.Context, id string) (*models.TicketRecord, error)

	// MarkUsed flips a valid ticket to used. It returns
	// status.ErrTicketNotFound for unknown ids and status.ErrAlreadyUsed when
	// the ticket was already redeemed.
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error
}
