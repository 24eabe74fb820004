package views

import "quad/internal/models"

// ChatDigest derives the chat list entry fields from a newest-first message
// list: the preview is the newest message's content, and the unread count is
// the number of unread messages authored by someone other than the viewer.
// Empty lists yield ("", 0); the count can never go negative.
func ChatDigest(messages []models.ChatMessage, viewerID string) (previewText string, unreadCount int) {
	for i, m := range messages {
		if i == 0 {
			previewText = m.Content
		}
		if !m.IsRead && m.UserID != viewerID {
			unreadCount++
		}
	}
	return previewText, unreadCount
}

// OtherParticipant returns the participant slot of chat not equal to
// viewerID.
func OtherParticipant(chat models.Chat, viewerID string) string {
	if chat.Participant1ID == viewerID {
		return chat.Participant2ID
	}
	return chat.Participant1ID
}
