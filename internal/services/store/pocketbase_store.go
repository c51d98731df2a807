package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"ticket-issuer/internal/status"
	"ticket-issuer/models"
)

// TicketsCollection is the PocketBase collection holding ticket records.
const TicketsCollection = "tickets"

// NewTicketsCollection describes the tickets collection schema. The
// collection has no API rules, so only superusers reach it over REST.
func NewTicketsCollection() *core.Collection {
	collection := core.NewBaseCollection(TicketsCollection)
	collection.Fields.Add(
		&core.TextField{Name: "ticket_id", Required: true, Max: 64},
		&core.TextField{Name: "email", Max: 320},
		&core.SelectField{
			Name:      "ticket_type",
			Required:  true,
			MaxSelect: 1,
			Values:    []string{string(models.TicketStandard), string(models.TicketVIP)},
		},
		&core.TextField{Name: "hash", Required: true, Max: 64},
		&core.DateField{Name: "issued_at", Required: true},
		&core.SelectField{
			Name:      "status",
			Required:  true,
			MaxSelect: 1,
			Values:    []string{string(models.StatusValid), string(models.StatusUsed)},
		},
		&core.DateField{Name: "used_at"},
	)
	collection.AddIndex("idx_tickets_ticket_id", true, "ticket_id", "")
	return collection
}

// PocketBaseStore keeps records in the app's SQLite database.
type PocketBaseStore struct {
	app core.App
}

func NewPocketBaseStore(app core.App) *PocketBaseStore {
	return &PocketBaseStore{app: app}
}

func (s *PocketBaseStore) Save(ctx context.Context, record models.TicketRecord) error {
	row, err := s.app.FindFirstRecordByData(TicketsCollection, "ticket_id", record.ID)
	if errors.Is(err, sql.ErrNoRows) {
		collection, cerr := s.app.FindCachedCollectionByNameOrId(TicketsCollection)
		if cerr != nil {
			return fmt.Errorf("%w: find collection: %v", status.ErrStorage, cerr)
		}
		row = core.NewRecord(collection)
	} else if err != nil {
		return fmt.Errorf("%w: find ticket %s: %v", status.ErrStorage, record.ID, err)
	}

	row.Set("ticket_id", record.ID)
	row.Set("email", record.Email)
	row.Set("ticket_type", string(record.Type))
	row.Set("hash", record.Hash)
	row.Set("issued_at", record.IssuedAt.UTC())
	row.Set("status", string(record.Status))
	if record.UsedAt != nil {
		row.Set("used_at", record.UsedAt.UTC())
	} else {
		row.Set("used_at", "")
	}

	if err := s.app.SaveWithContext(ctx, row); err != nil {
		return fmt.Errorf("%w: save ticket %s: %v", status.ErrStorage, record.ID, err)
	}
	return nil
}

func (s *PocketBaseStore) Get(_ context.Context, id string) (*models.TicketRecord, error) {
	row, err := s.app.FindFirstRecordByData(TicketsCollection, "ticket_id", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get ticket %s: %v", status.ErrStorage, id, err)
	}
	return recordFromRow(row), nil
}

// MarkUsed issues a single conditional UPDATE so SQLite serializes
// concurrent redemptions of the same ticket.
func (s *PocketBaseStore) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	at, err := types.ParseDateTime(usedAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: used_at: %v", status.ErrStorage, err)
	}

	res, err := s.app.DB().NewQuery(
		"UPDATE {{" + TicketsCollection + "}} SET [[status]]={:used}, [[used_at]]={:usedAt} " +
			"WHERE [[ticket_id]]={:id} AND [[status]]={:valid}",
	).Bind(dbx.Params{
		"used":   string(models.StatusUsed),
		"usedAt": at.String(),
		"id":     id,
		"valid":  string(models.StatusValid),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("%w: mark ticket %s used: %v", status.ErrStorage, id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: mark ticket %s used: %v", status.ErrStorage, id, err)
	}
	if affected == 1 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return status.ErrAlreadyUsed
}

func recordFromRow(row *core.Record) *models.TicketRecord {
	record := &models.TicketRecord{
		ID:       row.GetString("ticket_id"),
		Email:    row.GetString("email"),
		Type:     models.TicketType(row.GetString("ticket_type")),
		Hash:     row.GetString("hash"),
		IssuedAt: row.GetDateTime("issued_at").Time(),
		Status:   models.TicketStatus(row.GetString("status")),
	}
	if usedAt := row.GetDateTime("used_at"); !usedAt.IsZero() {
		at := usedAt.Time()
		record.UsedAt = &at
	}
	return record
}
