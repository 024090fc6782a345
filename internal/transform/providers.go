package transform

import (
	"github.com/desertthunder/storesync/internal/stores"
)

// providerStrategy maps service provider profiles. Providers reference their
// owning account by source key.
func providerStrategy() Strategy {
	mappings := map[string]fieldMapping{
		"ownerId":      {column: "owner_key", convert: func(v any) any { return asString(v) }},
		"businessName": {column: "business_name", convert: func(v any) any { return asString(v) }},
		"bio":          {column: "bio", convert: func(v any) any { return asString(v) }},
		"website":      {column: "website", convert: func(v any) any { return asString(v) }},
		"serviceArea":  {column: "service_area", convert: func(v any) any { return asString(v) }},
		"verified":     {column: "is_verified", convert: func(v any) any { return asBool(v) }},
		"rating":       {column: "rating", convert: func(v any) any { return asFloat(v) }},
		"reviewCount":  {column: "review_count", convert: func(v any) any { return asInt(v) }},
		"createdAt":    {column: "created_at", convert: timeOrZero},
		"updatedAt":    {column: "updated_at", convert: timeOrZero},
	}

	return Strategy{
		Collection: "providers",
		Table:      "providers",
		Transform: func(key string, payload map[string]any) (*TargetRecord, error) {
			columns, leftover := mapPayload(payload, mappings)

			naturalKey := naturalKeyFrom(payload, key)
			if naturalKey == "" {
				return nil, skipErr("providers", key, "has no id")
			}
			delete(leftover, "id")

			applyDefaults(columns, stores.Row{
				"is_verified":  false,
				"rating":       float64(0),
				"review_count": int64(0),
			})

			return finalize("providers", key, naturalKey, columns, leftover,
				nil,
				[]string{"is_verified", "rating", "review_count"})
		},
	}
}

// serviceRequestStrategy maps quote/booking requests from users to providers.
func serviceRequestStrategy() Strategy {
	mappings := map[string]fieldMapping{
		"requesterId": {column: "requester_key", convert: func(v any) any { return asString(v) }},
		"providerId":  {column: "provider_key", convert: func(v any) any { return asString(v) }},
		"category":    {column: "category", convert: func(v any) any { return asString(v) }},
		"description": {column: "description", convert: func(v any) any { return asString(v) }},
		"status":      {column: "status", convert: func(v any) any { return asString(v) }},
		"budget":      {column: "budget", convert: func(v any) any { return asFloat(v) }},
		"requestedAt": {column: "requested_at", convert: timeOrZero},
		"createdAt":   {column: "created_at", convert: timeOrZero},
		"updatedAt":   {column: "updated_at", convert: timeOrZero},
	}

	return Strategy{
		Collection: "service_requests",
		Table:      "service_requests",
		Transform: func(key string, payload map[string]any) (*TargetRecord, error) {
			columns, leftover := mapPayload(payload, mappings)

			naturalKey := naturalKeyFrom(payload, key)
			if naturalKey == "" {
				return nil, skipErr("service_requests", key, "has no id")
			}
			delete(leftover, "id")

			applyDefaults(columns, stores.Row{
				"status": "open",
				"budget": float64(0),
			})

			return finalize("service_requests", key, naturalKey, columns, leftover,
				nil,
				[]string{"budget"})
		},
	}
}
