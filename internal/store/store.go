// Package store holds the client-side query cache. The store is an explicit,
// injected object rather than a package singleton so tests and app roots can
// own isolated instances. A single RWMutex makes each operation atomic, which
// stands in for the mutual exclusion the source platform got from its
// single-threaded event loop.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"quad/internal/models"
)

// VoteState is the cached vote/score pair for one target. Vote is nil when
// the viewer has no standing vote.
type VoteState struct {
	Vote  *models.Vote
	Score int
}

type voteKey struct {
	postID    string
	commentID string
}

func keyFor(t models.VoteTarget) voteKey {
	return voteKey{postID: t.PostID, commentID: t.CommentID}
}

// Store is the in-memory query cache. Message lists are newest-first; comment
// lists are oldest-first; summary lists are sorted by LastMessageAt descending
// and keyed by the chat list's search filter (the empty filter is the default,
// most-visited view).
type Store struct {
	mu        sync.RWMutex
	votes     map[voteKey]VoteState
	messages  map[string][]models.ChatMessage
	summaries map[string][]models.ChatSummary
	comments  map[string][]models.Comment
	drafts    map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		votes:     make(map[voteKey]VoteState),
		messages:  make(map[string][]models.ChatMessage),
		summaries: make(map[string][]models.ChatSummary),
		comments:  make(map[string][]models.Comment),
		drafts:    make(map[string]string),
	}
}

// VoteState returns the cached state for a target.
func (s *Store) VoteState(t models.VoteTarget) (VoteState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.votes[keyFor(t)]
	return st, ok
}

// SetVoteState caches the vote/score pair for a target.
func (s *Store) SetVoteState(t models.VoteTarget, st VoteState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[keyFor(t)] = st
}

// InvalidateVoteState drops the cached state for a target.
func (s *Store) InvalidateVoteState(t models.VoteTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.votes, keyFor(t))
}

// Messages returns a copy of the cached message list for a chat.
func (s *Store) Messages(chatID string) ([]models.ChatMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.messages[chatID]
	if !ok {
		return nil, false
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, true
}

// SetMessages replaces the cached message list for a chat.
func (s *Store) SetMessages(chatID string, msgs []models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[chatID] = append([]models.ChatMessage(nil), msgs...)
}

// PrependMessage inserts msg at the head of the chat's message list.
func (s *Store) PrependMessage(chatID string, msg models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[chatID] = append([]models.ChatMessage{msg}, s.messages[chatID]...)
}

// InsertMessageOrdered inserts msg at its CreatedAt position in the chat's
// newest-first list. Feed inserts can arrive out of order; a plain prepend
// would put an older message at the head.
func (s *Store) InsertMessageOrdered(chatID string, msg models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[chatID]
	i := sort.Search(len(list), func(i int) bool {
		return !list[i].CreatedAt.After(msg.CreatedAt)
	})
	list = append(list, models.ChatMessage{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	s.messages[chatID] = list
}

// ReplaceMessage swaps the message with the given id for confirmed, in place.
// This is a single cache write: the temporary id never coexists with its
// confirmed counterpart. Returns false when no such message is cached.
func (s *Store) ReplaceMessage(chatID, id string, confirmed models.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[chatID]
	for i := range msgs {
		if msgs[i].ID == id {
			msgs[i] = confirmed
			return true
		}
	}
	return false
}

// RemoveMessage deletes the message with the given id from the chat's list.
func (s *Store) RemoveMessage(chatID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[chatID]
	for i := range msgs {
		if msgs[i].ID == id {
			s.messages[chatID] = append(msgs[:i], msgs[i+1:]...)
			return true
		}
	}
	return false
}

// FindPending returns the id of a pending placeholder in the chat matching
// author and content with a created-at within window of at. Used to
// deduplicate the realtime echo of the viewer's own optimistic send.
func (s *Store) FindPending(chatID, authorID, content string, at time.Time, window time.Duration) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages[chatID] {
		if !m.Pending || m.UserID != authorID || m.Content != content {
			continue
		}
		d := at.Sub(m.CreatedAt)
		if d < 0 {
			d = -d
		}
		if d <= window {
			return m.ID, true
		}
	}
	return "", false
}

// HasMessage reports whether a message with the given server id is cached.
func (s *Store) HasMessage(chatID, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages[chatID] {
		if m.ID == id {
			return true
		}
	}
	return false
}

// MarkMessagesRead flips IsRead on every cached message in the chat authored
// by authorID. Returns the ids that changed, for rollback.
func (s *Store) MarkMessagesRead(chatID, authorID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []string
	msgs := s.messages[chatID]
	for i := range msgs {
		if msgs[i].UserID == authorID && !msgs[i].IsRead {
			msgs[i].IsRead = true
			changed = append(changed, msgs[i].ID)
		}
	}
	return changed
}

// UnmarkMessagesRead reverts IsRead on the given message ids.
func (s *Store) UnmarkMessagesRead(chatID string, ids []string) {
	if len(ids) == 0 {
		return
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[chatID]
	for i := range msgs {
		if _, ok := set[msgs[i].ID]; ok {
			msgs[i].IsRead = false
		}
	}
}

// Summaries returns a copy of the cached chat list for a search filter.
func (s *Store) Summaries(filter string) ([]models.ChatSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.summaries[filter]
	if !ok {
		return nil, false
	}
	out := make([]models.ChatSummary, len(list))
	copy(out, list)
	return out, true
}

// SetSummaries replaces the cached chat list for a search filter.
func (s *Store) SetSummaries(filter string, list []models.ChatSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[filter] = append([]models.ChatSummary(nil), list...)
}

// TouchSummary patches the summary entry for chatID under every cached filter
// key (including the default empty filter) and resorts each list by last
// activity. fn mutates the entry in place. Reports whether any cached list
// contained the chat.
func (s *Store) TouchSummary(chatID string, fn func(*models.ChatSummary)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := false
	for filter, list := range s.summaries {
		for i := range list {
			if list[i].Chat.ID == chatID {
				fn(&list[i])
				sort.SliceStable(list, func(a, b int) bool {
					return list[a].Chat.LastMessageAt.After(list[b].Chat.LastMessageAt)
				})
				s.summaries[filter] = list
				touched = true
				break
			}
		}
	}
	return touched
}

// InvalidateSummaries drops every cached chat list. Used when a precise
// rollback of a summary patch is not worth attempting.
func (s *Store) InvalidateSummaries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = make(map[string][]models.ChatSummary)
}

// Comments returns a copy of the cached flat comment list for a post.
func (s *Store) Comments(postID string) ([]models.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.comments[postID]
	if !ok {
		return nil, false
	}
	out := make([]models.Comment, len(list))
	copy(out, list)
	return out, true
}

// SetComments replaces the cached comment list for a post.
func (s *Store) SetComments(postID string, list []models.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[postID] = append([]models.Comment(nil), list...)
}

// InvalidateComments drops the cached comment list for a post.
func (s *Store) InvalidateComments(postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.comments, postID)
}

// Draft returns the saved input text for a chat.
func (s *Store) Draft(chatID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drafts[chatID]
}

// SetDraft saves input text for a chat so a failed send can be retried
// without retyping.
func (s *Store) SetDraft(chatID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		delete(s.drafts, chatID)
		return
	}
	s.drafts[chatID] = text
}

// ClearDraft removes the saved input text for a chat.
func (s *Store) ClearDraft(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, chatID)
}
