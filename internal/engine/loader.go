package engine

import (
	"context"
	"strings"

	"quad/internal/models"
	"quad/internal/store"
	"quad/internal/views"
)

const (
	messagePageSize = 50
	previewPageSize = 30
)

// Messages returns the chat's message list, newest first, fetching and
// caching it on a miss.
func (e *Engine) Messages(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	if msgs, ok := e.store.Messages(chatID); ok {
		return msgs, nil
	}
	msgs, err := e.backend.Messages(ctx, chatID, messagePageSize, 0)
	if err != nil {
		return nil, err
	}
	e.store.SetMessages(chatID, msgs)
	return msgs, nil
}

// ChatList returns the viewer's chat summaries for a search filter, fetching
// and caching on a miss. The empty filter is the default view. Filtering
// matches the participant's display name and the preview text,
// case-insensitively.
func (e *Engine) ChatList(ctx context.Context, filter string, resolveName func(id string) string) ([]models.ChatSummary, error) {
	if list, ok := e.store.Summaries(filter); ok {
		return list, nil
	}

	chats, err := e.backend.Chats(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]models.ChatSummary, 0, len(chats))
	needle := strings.ToLower(strings.TrimSpace(filter))
	for _, chat := range chats {
		msgs, ok := e.store.Messages(chat.ID)
		if !ok {
			if msgs, err = e.backend.Messages(ctx, chat.ID, previewPageSize, 0); err != nil {
				return nil, err
			}
			e.store.SetMessages(chat.ID, msgs)
		}
		preview, unread := views.ChatDigest(msgs, e.viewerID)
		if needle != "" {
			name := views.DisplayName(views.OtherParticipant(chat, e.viewerID), resolveName)
			if !strings.Contains(strings.ToLower(name), needle) &&
				!strings.Contains(strings.ToLower(preview), needle) {
				continue
			}
		}
		list = append(list, models.ChatSummary{
			Chat:        chat,
			PreviewText: preview,
			UnreadCount: unread,
		})
	}

	e.store.SetSummaries(filter, list)
	return list, nil
}

// CommentTree returns the reconstructed comment tree for a post, fetching
// and caching the flat list on a miss.
func (e *Engine) CommentTree(ctx context.Context, postID string) ([]*views.CommentNode, error) {
	flat, ok := e.store.Comments(postID)
	if !ok {
		var err error
		if flat, err = e.backend.CommentsFor(ctx, postID); err != nil {
			return nil, err
		}
		e.store.SetComments(postID, flat)
	}
	return views.BuildCommentTree(flat), nil
}

// VoteStateFor returns the viewer's cached vote/score for a target, fetching
// the authoritative vote list on a miss.
func (e *Engine) VoteStateFor(ctx context.Context, target models.VoteTarget) (store.VoteState, error) {
	if !target.Valid() {
		return store.VoteState{}, models.NewValidationError("vote target must name exactly one of post or comment")
	}
	unlock := e.targetMu.lock(targetKey(target))
	defer unlock()
	return e.voteState(ctx, target)
}
