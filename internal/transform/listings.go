package transform

import (
	"github.com/desertthunder/storesync/internal/stores"
)

// listingStrategy maps marketplace listings. Natural key is the listing's own
// id field, falling back to its tree key.
func listingStrategy() Strategy {
	mappings := map[string]fieldMapping{
		"title":       {column: "title", convert: func(v any) any { return asString(v) }},
		"description": {column: "description", convert: func(v any) any { return asString(v) }},
		"price":       {column: "price", convert: func(v any) any { return asFloat(v) }},
		"currency":    {column: "currency", convert: func(v any) any { return asString(v) }},
		"category":    {column: "category", convert: func(v any) any { return asString(v) }},
		"status":      {column: "status", convert: func(v any) any { return asString(v) }},
		"sellerId":    {column: "seller_key", convert: func(v any) any { return asString(v) }},
		"imagePath":   {column: "image_url", convert: func(v any) any { return asString(v) }},
		"viewCount":   {column: "view_count", convert: func(v any) any { return asInt(v) }},
		"featured":    {column: "is_featured", convert: func(v any) any { return asBool(v) }},
		"createdAt":   {column: "created_at", convert: timeOrZero},
		"updatedAt":   {column: "updated_at", convert: timeOrZero},
	}

	return Strategy{
		Collection: "listings",
		Table:      "listings",
		BlobPrefix: "listing-images",
		Transform: func(key string, payload map[string]any) (*TargetRecord, error) {
			columns, leftover := mapPayload(payload, mappings)

			naturalKey := naturalKeyFrom(payload, key)
			if naturalKey == "" {
				return nil, skipErr("listings", key, "has no id")
			}
			delete(leftover, "id") // consumed as the natural key

			applyDefaults(columns, stores.Row{
				"price":       float64(0),
				"status":      "active",
				"view_count":  int64(0),
				"is_featured": false,
			})

			return finalize("listings", key, naturalKey, columns, leftover,
				[]string{"image_url"},
				[]string{"view_count", "is_featured"})
		},
	}
}
