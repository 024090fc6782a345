package transform

import (
	"github.com/desertthunder/storesync/internal/stores"
)

// conversationStrategy maps buyer/seller chat threads. Conversations reference
// users and listings by their source keys; those references are carried as-is
// and resolve once the referenced types have migrated earlier in the pass.
func conversationStrategy() Strategy {
	mappings := map[string]fieldMapping{
		"listingId":     {column: "listing_key", convert: func(v any) any { return asString(v) }},
		"buyerId":       {column: "buyer_key", convert: func(v any) any { return asString(v) }},
		"sellerId":      {column: "seller_key", convert: func(v any) any { return asString(v) }},
		"lastMessage":   {column: "last_message", convert: func(v any) any { return asString(v) }},
		"lastMessageAt": {column: "last_message_at", convert: timeOrZero},
		"unreadCount":   {column: "unread_count", convert: func(v any) any { return asInt(v) }},
		"archived":      {column: "is_archived", convert: func(v any) any { return asBool(v) }},
		"createdAt":     {column: "created_at", convert: timeOrZero},
		"updatedAt":     {column: "updated_at", convert: timeOrZero},
	}

	return Strategy{
		Collection: "conversations",
		Table:      "conversations",
		Transform: func(key string, payload map[string]any) (*TargetRecord, error) {
			columns, leftover := mapPayload(payload, mappings)

			naturalKey := naturalKeyFrom(payload, key)
			if naturalKey == "" {
				return nil, skipErr("conversations", key, "has no id")
			}
			delete(leftover, "id")

			applyDefaults(columns, stores.Row{
				"unread_count": int64(0),
				"is_archived":  false,
			})

			return finalize("conversations", key, naturalKey, columns, leftover,
				nil,
				[]string{"is_archived"})
		},
	}
}

// notificationStrategy maps per-user notification fan-out records.
func notificationStrategy() Strategy {
	mappings := map[string]fieldMapping{
		"userId":    {column: "recipient_key", convert: func(v any) any { return asString(v) }},
		"type":      {column: "kind", convert: func(v any) any { return asString(v) }},
		"title":     {column: "title", convert: func(v any) any { return asString(v) }},
		"body":      {column: "body", convert: func(v any) any { return asString(v) }},
		"read":      {column: "is_read", convert: func(v any) any { return asBool(v) }},
		"sentAt":    {column: "sent_at", convert: timeOrZero},
		"createdAt": {column: "created_at", convert: timeOrZero},
		"updatedAt": {column: "updated_at", convert: timeOrZero},
	}

	return Strategy{
		Collection: "notifications",
		Table:      "notifications",
		Transform: func(key string, payload map[string]any) (*TargetRecord, error) {
			columns, leftover := mapPayload(payload, mappings)

			naturalKey := naturalKeyFrom(payload, key)
			if naturalKey == "" {
				return nil, skipErr("notifications", key, "has no id")
			}
			delete(leftover, "id")

			applyDefaults(columns, stores.Row{
				"is_read": false,
			})

			// Notifications predate the engagement revision, nothing to drop.
			return finalize("notifications", key, naturalKey, columns, leftover, nil, nil)
		},
	}
}
