package engine

import (
	"log/slog"

	"quad/internal/models"
)

// ApplyEvent folds one realtime change-feed event into the cache. Events
// carry authoritative rows and are applied directly, with one exception: an
// insert that echoes the viewer's own in-flight optimistic message is
// deduplicated instead of appended twice. Malformed payloads are dropped at
// this boundary with a log line.
func (e *Engine) ApplyEvent(ev models.TableEvent) {
	var err error
	switch ev.Table {
	case models.TableMessages:
		var msg *models.ChatMessage
		if msg, err = ev.Message(); err == nil {
			switch ev.Type {
			case models.EventInsert:
				e.applyMessageInsert(*msg)
			case models.EventUpdate:
				e.applyMessageUpdate(*msg)
			}
		}
	case models.TableVotes:
		var vote *models.Vote
		if vote, err = ev.Vote(); err == nil {
			e.applyVoteChange(*vote)
		}
	case models.TableChats:
		var chat *models.Chat
		if chat, err = ev.Chat(); err == nil {
			e.applyChatUpdate(*chat)
		}
	}
	if err != nil {
		e.logger.Warn("dropping malformed realtime event",
			slog.String("table", ev.Table),
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) applyMessageInsert(msg models.ChatMessage) {
	unlock := e.chatMu.lock(msg.ChatID)
	defer unlock()

	if e.store.HasMessage(msg.ChatID, msg.ID) {
		return
	}
	// Prefer the server-assigned id match above; fall back to matching the
	// echo of our own send against its pending placeholder.
	if msg.UserID == e.viewerID {
		if tempID, ok := e.store.FindPending(msg.ChatID, msg.UserID, msg.Content, msg.CreatedAt, echoWindow); ok {
			e.store.ReplaceMessage(msg.ChatID, tempID, msg)
			e.recomputeSummary(msg.ChatID)
			return
		}
	}
	e.store.InsertMessageOrdered(msg.ChatID, msg)
	e.recomputeSummary(msg.ChatID)
}

func (e *Engine) applyMessageUpdate(msg models.ChatMessage) {
	unlock := e.chatMu.lock(msg.ChatID)
	defer unlock()

	if !e.store.ReplaceMessage(msg.ChatID, msg.ID, msg) {
		// Not cached; nothing to reconcile.
		return
	}
	e.recomputeSummary(msg.ChatID)
}

// applyVoteChange invalidates the target's cached state rather than patching
// it: a single foreign vote row is not enough to recompute the score, and the
// next read refetches the authoritative list.
func (e *Engine) applyVoteChange(vote models.Vote) {
	target := vote.Target()
	if !target.Valid() {
		return
	}
	unlock := e.targetMu.lock(targetKey(target))
	defer unlock()
	e.store.InvalidateVoteState(target)
}

func (e *Engine) applyChatUpdate(chat models.Chat) {
	e.store.TouchSummary(chat.ID, func(s *models.ChatSummary) {
		s.Chat = chat
	})
}
