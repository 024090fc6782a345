package transform

import (
	"github.com/desertthunder/storesync/internal/stores"
)

// catalogEntryStrategy maps the category taxonomy. Entries migrate first so
// listings can reference them within the same pass.
func catalogEntryStrategy() Strategy {
	mappings := map[string]fieldMapping{
		"name":      {column: "name", convert: func(v any) any { return asString(v) }},
		"slug":      {column: "slug", convert: func(v any) any { return asString(v) }},
		"parentId":  {column: "parent_key", convert: func(v any) any { return asString(v) }},
		"iconPath":  {column: "icon_url", convert: func(v any) any { return asString(v) }},
		"position":  {column: "position", convert: func(v any) any { return asInt(v) }},
		"active":    {column: "is_active", convert: func(v any) any { return asBool(v) }},
		"createdAt": {column: "created_at", convert: timeOrZero},
		"updatedAt": {column: "updated_at", convert: timeOrZero},
	}

	return Strategy{
		Collection: "catalog",
		Table:      "catalog_entries",
		BlobPrefix: "catalog-icons",
		Transform: func(key string, payload map[string]any) (*TargetRecord, error) {
			columns, leftover := mapPayload(payload, mappings)

			naturalKey := naturalKeyFrom(payload, key)
			if naturalKey == "" {
				return nil, skipErr("catalog_entries", key, "has no id")
			}
			delete(leftover, "id")

			applyDefaults(columns, stores.Row{
				"position":  int64(0),
				"is_active": false,
			})

			return finalize("catalog_entries", key, naturalKey, columns, leftover,
				[]string{"icon_url"},
				[]string{"icon_url"})
		},
	}
}

// planStrategy maps subscription plans.
func planStrategy() Strategy {
	mappings := map[string]fieldMapping{
		"name":          {column: "name", convert: func(v any) any { return asString(v) }},
		"price":         {column: "price", convert: func(v any) any { return asFloat(v) }},
		"currency":      {column: "currency", convert: func(v any) any { return asString(v) }},
		"billingPeriod": {column: "billing_period", convert: func(v any) any { return asString(v) }},
		"maxListings":   {column: "max_listings", convert: func(v any) any { return asInt(v) }},
		"active":        {column: "is_active", convert: func(v any) any { return asBool(v) }},
		"createdAt":     {column: "created_at", convert: timeOrZero},
		"updatedAt":     {column: "updated_at", convert: timeOrZero},
	}

	return Strategy{
		Collection: "plans",
		Table:      "plans",
		Transform: func(key string, payload map[string]any) (*TargetRecord, error) {
			columns, leftover := mapPayload(payload, mappings)

			naturalKey := naturalKeyFrom(payload, key)
			if naturalKey == "" {
				return nil, skipErr("plans", key, "has no id")
			}
			delete(leftover, "id")

			applyDefaults(columns, stores.Row{
				"price":     float64(0),
				"is_active": false,
			})

			return finalize("plans", key, naturalKey, columns, leftover,
				nil,
				[]string{"max_listings"})
		},
	}
}
