package engine

import (
	"context"
	"log/slog"
	"strings"

	"quad/internal/models"
	"quad/internal/views"
)

// SendMessage optimistically appends a message to the chat and patches the
// chat summary list, then performs the two authoritative writes (insert the
// message, bump the chat's last-activity pointer). On success the temporary
// placeholder is replaced in place by the server row. On failure of either
// write the placeholder is removed, the summary lists are invalidated
// wholesale (the summary patch is not worth inverting precisely), and the
// attempted text is restored as the chat's draft for retry.
func (e *Engine) SendMessage(ctx context.Context, chatID, content string) (*models.ChatMessage, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, models.NewValidationError("message content is required")
	}

	unlock := e.chatMu.lock(chatID)
	defer unlock()

	now := e.now()
	temp := models.ChatMessage{
		ID:        e.newID(),
		ChatID:    chatID,
		UserID:    e.viewerID,
		Content:   trimmed,
		CreatedAt: now,
		Pending:   true,
	}
	e.store.PrependMessage(chatID, temp)
	e.touchSummary(chatID, func(s *models.ChatSummary) {
		s.PreviewText = trimmed
		s.Chat.LastMessageAt = now
	})
	e.store.ClearDraft(chatID)

	confirmed, err := e.backend.InsertMessage(ctx, chatID, trimmed)
	if err == nil {
		// The message row may already exist server-side when this second
		// write fails; the UI still reports failure and the follow-up
		// refresh reconciles.
		err = e.backend.UpdateChatLastActivity(ctx, chatID, confirmed.CreatedAt)
	}
	if err != nil {
		e.store.RemoveMessage(chatID, temp.ID)
		e.store.InvalidateSummaries()
		e.store.SetDraft(chatID, content)
		return nil, models.NewRemoteWriteError(err)
	}

	if !e.store.ReplaceMessage(chatID, temp.ID, *confirmed) {
		// Placeholder already gone (list was refreshed underneath us).
		// Harmless drift: the authoritative refresh supersedes it.
		e.logger.Debug("send placeholder missing at confirmation",
			slog.String("chat_id", chatID),
			slog.String("message_id", confirmed.ID),
		)
	}
	e.touchSummary(chatID, func(s *models.ChatSummary) {
		s.PreviewText = confirmed.Content
		s.Chat.LastMessageAt = confirmed.CreatedAt
	})
	return confirmed, nil
}

// touchSummary patches the chat's cached summary entries. A chat absent from
// every cached list (first message in a brand-new chat) cannot be patched, so
// the lists are dropped and the next read refetches and surfaces it.
func (e *Engine) touchSummary(chatID string, fn func(*models.ChatSummary)) {
	if !e.store.TouchSummary(chatID, fn) {
		e.store.InvalidateSummaries()
	}
}

// MarkChatRead flips every unread message from the other participant to read
// in one batched mutation: cache first, then a single remote write. Rollback
// restores the exact set of flags it flipped.
func (e *Engine) MarkChatRead(ctx context.Context, chatID, otherParticipantID string) error {
	unlock := e.chatMu.lock(chatID)
	defer unlock()

	changed := e.store.MarkMessagesRead(chatID, otherParticipantID)
	e.recomputeSummary(chatID)
	if len(changed) == 0 {
		return nil
	}

	if err := e.backend.MarkMessagesRead(ctx, chatID); err != nil {
		e.store.UnmarkMessagesRead(chatID, changed)
		e.recomputeSummary(chatID)
		return models.NewRemoteWriteError(err)
	}
	return nil
}

// recomputeSummary rebuilds the chat's summary entry from the cached message
// list.
func (e *Engine) recomputeSummary(chatID string) {
	msgs, ok := e.store.Messages(chatID)
	if !ok {
		return
	}
	preview, unread := views.ChatDigest(msgs, e.viewerID)
	e.touchSummary(chatID, func(s *models.ChatSummary) {
		s.PreviewText = preview
		s.UnreadCount = unread
	})
}
