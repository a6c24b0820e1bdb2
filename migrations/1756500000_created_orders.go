package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "pbc_orders_000001",
			"name": "orders",
			"type": "base",
			"system": false,
			"fields": [
				{
					"id": "text_customer",
					"name": "customer",
					"type": "text",
					"required": false,
					"presentable": true,
					"max": 120
				},
				{
					"id": "text_amount",
					"name": "amount",
					"type": "text",
					"required": true,
					"presentable": false,
					"pattern": "^\\d+(\\.\\d{1,2})?$"
				},
				{
					"id": "text_currency",
					"name": "currency",
					"type": "text",
					"required": true,
					"presentable": false,
					"max": 3
				},
				{
					"id": "select_status",
					"name": "status",
					"type": "select",
					"required": true,
					"presentable": true,
					"maxSelect": 1,
					"values": [
						"Pending",
						"Paid",
						"Delivering",
						"Done",
						"Cancelled"
					]
				},
				{
					"id": "text_provider",
					"name": "provider",
					"type": "text",
					"required": false,
					"presentable": false,
					"max": 20
				},
				{
					"id": "date_paid_at",
					"name": "paidAt",
					"type": "date",
					"required": false,
					"presentable": false
				},
				{
					"id": "autodate_created",
					"name": "created",
					"type": "autodate",
					"onCreate": true,
					"onUpdate": false
				},
				{
					"id": "autodate_updated",
					"name": "updated",
					"type": "autodate",
					"onCreate": true,
					"onUpdate": true
				}
			],
			"indexes": [
				"CREATE INDEX idx_orders_status ON orders (status)"
			],
			"listRule": null,
			"viewRule": null,
			"createRule": null,
			"updateRule": null,
			"deleteRule": null
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("pbc_orders_000001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
