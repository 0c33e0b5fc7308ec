package remote

import (
	"context"
	"time"

	"LinkHub/module/model"
	"LinkHub/tools/safe"
)

// DisplayName resolves a chat's name: chat name, else contact name or
// pushname, else the raw id's user part. The contact lookup is bounded by d.
func DisplayName(ctx context.Context, c Client, chat ChatInfo, d time.Duration) string {
	if chat.Name != "" {
		return chat.Name
	}
	contact, err := safe.Await(ctx, d, "contact lookup", func(ctx context.Context) (Contact, error) {
		return c.Contact(ctx, chat.ID)
	})
	if err == nil {
		if contact.Name != "" {
			return contact.Name
		}
		if contact.Pushname != "" {
			return contact.Pushname
		}
	}
	if user := model.UserPart(chat.ID); user != "" {
		return user
	}
	return chat.ID
}

// SenderName resolves a group participant label. On lookup failure it falls
// back to the participant's number.
func SenderName(ctx context.Context, c Client, participantID string, d time.Duration) string {
	if participantID == "" {
		return "Unknown"
	}
	contact, err := safe.Await(ctx, d, "participant lookup", func(ctx context.Context) (Contact, error) {
		return c.Contact(ctx, participantID)
	})
	if err != nil {
		return model.UserPart(participantID)
	}
	return model.SenderLabel(participantID, contact.Name, contact.Pushname)
}
