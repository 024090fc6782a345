package transform

import (
	"github.com/desertthunder/storesync/internal/shared"
	"github.com/desertthunder/storesync/internal/stores"
)

// userStrategy maps legacy account records. The natural key is the normalized
// email address: user records without one cannot be deduplicated across runs
// and are skipped.
func userStrategy() Strategy {
	mappings := map[string]fieldMapping{
		"email":       {column: "email", convert: func(v any) any { return shared.NormalizeEmail(asString(v)) }},
		"displayName": {column: "display_name", convert: func(v any) any { return asString(v) }},
		"phone":       {column: "phone", convert: func(v any) any { return asString(v) }},
		"photoURL":    {column: "photo_url", convert: func(v any) any { return asString(v) }},
		"isProvider":  {column: "is_provider", convert: func(v any) any { return asBool(v) }},
		"rating":      {column: "rating", convert: func(v any) any { return asFloat(v) }},
		"reviewCount": {column: "review_count", convert: func(v any) any { return asInt(v) }},
		"createdAt":   {column: "created_at", convert: timeOrZero},
		"updatedAt":   {column: "updated_at", convert: timeOrZero},
	}

	return Strategy{
		Collection: "accounts",
		Table:      "users",
		BlobPrefix: "avatars",
		Transform: func(key string, payload map[string]any) (*TargetRecord, error) {
			columns, leftover := mapPayload(payload, mappings)

			email, _ := columns["email"].(string)
			if email == "" {
				return nil, skipErr("users", key, "has no email")
			}

			applyDefaults(columns, stores.Row{
				"is_provider":  false,
				"rating":       float64(0),
				"review_count": int64(0),
			})

			return finalize("users", key, email, columns, leftover,
				[]string{"photo_url"},
				[]string{"rating", "review_count"})
		},
	}
}

// applyDefaults fills optional columns the payload did not provide.
func applyDefaults(columns stores.Row, defaults stores.Row) {
	for col, val := range defaults {
		if v, ok := columns[col]; !ok || v == nil {
			columns[col] = val
		}
	}
}
