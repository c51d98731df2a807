package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"ticket-issuer/internal/services/store"
)

func init() {
	m.Register(func(app core.App) error {
		if _, err := app.FindCollectionByNameOrId(store.TicketsCollection); err == nil {
			return nil
		}
		return app.Save(store.NewTicketsCollection())
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId(store.TicketsCollection)
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
