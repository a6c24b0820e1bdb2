package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "pbc_transactions_01",
			"name": "transactions",
			"type": "base",
			"system": false,
			"fields": [
				{
					"id": "rel_order",
					"name": "order",
					"type": "relation",
					"required": true,
					"presentable": true,
					"collectionId": "pbc_orders_000001",
					"cascadeDelete": false,
					"maxSelect": 1
				},
				{
					"id": "text_reference",
					"name": "reference",
					"type": "text",
					"required": true,
					"presentable": true,
					"max": 64
				},
				{
					"id": "text_bill_number",
					"name": "billNumber",
					"type": "text",
					"required": false,
					"presentable": false,
					"max": 20
				},
				{
					"id": "text_tx_amount",
					"name": "amount",
					"type": "text",
					"required": true,
					"presentable": false
				},
				{
					"id": "text_tx_currency",
					"name": "currency",
					"type": "text",
					"required": false,
					"presentable": false,
					"max": 3
				},
				{
					"id": "text_payer",
					"name": "payer",
					"type": "text",
					"required": false,
					"presentable": false,
					"max": 120
				},
				{
					"id": "text_tx_provider",
					"name": "provider",
					"type": "text",
					"required": false,
					"presentable": false,
					"max": 20
				},
				{
					"id": "date_tx_paid_at",
					"name": "paidAt",
					"type": "date",
					"required": false,
					"presentable": false
				},
				{
					"id": "autodate_tx_created",
					"name": "created",
					"type": "autodate",
					"onCreate": true,
					"onUpdate": false
				}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_transactions_reference ON transactions (reference)"
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
		collection, err := app.FindCollectionByNameOrId("pbc_transactions_01")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
