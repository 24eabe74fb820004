package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quad/internal/models"
	"quad/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const viewerID = "viewer-1"

// stubBackend implements remote.Backend with overridable function fields.
// Unset fields return zero values; errRefresh keeps the detached post-commit
// refresh from clobbering the state under test.
type stubBackend struct {
	mu    sync.Mutex
	calls []string

	votesForFn       func(target models.VoteTarget) ([]models.Vote, error)
	insertVoteFn     func(target models.VoteTarget, voteType models.VoteType) (*models.Vote, error)
	updateVoteFn     func(voteID string, voteType models.VoteType) (*models.Vote, error)
	deleteVoteFn     func(voteID string) error
	insertMessageFn  func(chatID, content string) (*models.ChatMessage, error)
	updateActivityFn func(chatID string, ts time.Time) error
	markReadFn       func(chatID string) error
	messagesFn       func(chatID string, limit, offset int) ([]models.ChatMessage, error)
	chatsFn          func() ([]models.Chat, error)
	commentsForFn    func(postID string) ([]models.Comment, error)
	postsFn          func(category, search string) ([]models.Post, error)
}

var errRefresh = errors.New("refresh disabled")

func (b *stubBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *stubBackend) recorded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

func (b *stubBackend) VotesFor(_ context.Context, target models.VoteTarget) ([]models.Vote, error) {
	b.record("VotesFor")
	if b.votesForFn != nil {
		return b.votesForFn(target)
	}
	return nil, errRefresh
}

func (b *stubBackend) InsertVote(_ context.Context, target models.VoteTarget, voteType models.VoteType) (*models.Vote, error) {
	b.record("InsertVote")
	if b.insertVoteFn != nil {
		return b.insertVoteFn(target, voteType)
	}
	return nil, errors.New("unexpected InsertVote")
}

func (b *stubBackend) UpdateVote(_ context.Context, voteID string, voteType models.VoteType) (*models.Vote, error) {
	b.record("UpdateVote")
	if b.updateVoteFn != nil {
		return b.updateVoteFn(voteID, voteType)
	}
	return nil, errors.New("unexpected UpdateVote")
}

func (b *stubBackend) DeleteVote(_ context.Context, voteID string) error {
	b.record("DeleteVote")
	if b.deleteVoteFn != nil {
		return b.deleteVoteFn(voteID)
	}
	return errors.New("unexpected DeleteVote")
}

func (b *stubBackend) InsertMessage(_ context.Context, chatID, content string) (*models.ChatMessage, error) {
	b.record("InsertMessage")
	if b.insertMessageFn != nil {
		return b.insertMessageFn(chatID, content)
	}
	return nil, errors.New("unexpected InsertMessage")
}

func (b *stubBackend) UpdateChatLastActivity(_ context.Context, chatID string, ts time.Time) error {
	b.record("UpdateChatLastActivity")
	if b.updateActivityFn != nil {
		return b.updateActivityFn(chatID, ts)
	}
	return nil
}

func (b *stubBackend) MarkMessagesRead(_ context.Context, chatID string) error {
	b.record("MarkMessagesRead")
	if b.markReadFn != nil {
		return b.markReadFn(chatID)
	}
	return nil
}

func (b *stubBackend) Messages(_ context.Context, chatID string, limit, offset int) ([]models.ChatMessage, error) {
	b.record("Messages")
	if b.messagesFn != nil {
		return b.messagesFn(chatID, limit, offset)
	}
	return nil, nil
}

func (b *stubBackend) Chats(_ context.Context) ([]models.Chat, error) {
	b.record("Chats")
	if b.chatsFn != nil {
		return b.chatsFn()
	}
	return nil, nil
}

func (b *stubBackend) CommentsFor(_ context.Context, postID string) ([]models.Comment, error) {
	b.record("CommentsFor")
	if b.commentsForFn != nil {
		return b.commentsForFn(postID)
	}
	return nil, nil
}

func (b *stubBackend) Posts(_ context.Context, category, search string) ([]models.Post, error) {
	b.record("Posts")
	if b.postsFn != nil {
		return b.postsFn(category, search)
	}
	return nil, nil
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *stubBackend) {
	t.Helper()
	st := store.New()
	backend := &stubBackend{}
	e := New(st, backend, viewerID, nil)
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	seq := 0
	e.newID = func() string {
		seq++
		return "temp-" + string(rune('0'+seq))
	}
	return e, st, backend
}

func viewerVote(id string, target models.VoteTarget, voteType models.VoteType) *models.Vote {
	v := &models.Vote{ID: id, UserID: viewerID, VoteType: voteType}
	if target.PostID != "" {
		postID := target.PostID
		v.PostID = &postID
	} else {
		commentID := target.CommentID
		v.CommentID = &commentID
	}
	return v
}

func TestCastVote_CreateAppliesUnitDelta(t *testing.T) {
	e, st, backend := newTestEngine(t)
	target := models.PostTarget("post-1")
	st.SetVoteState(target, store.VoteState{Score: 4})

	backend.insertVoteFn = func(tgt models.VoteTarget, voteType models.VoteType) (*models.Vote, error) {
		assert.Equal(t, target, tgt)
		assert.Equal(t, models.VoteUp, voteType)
		return viewerVote("server-vote", tgt, voteType), nil
	}

	require.NoError(t, e.CastVote(context.Background(), target, models.VoteUp))

	state, ok := st.VoteState(target)
	require.True(t, ok)
	assert.Equal(t, 5, state.Score)
	require.NotNil(t, state.Vote)
	assert.Equal(t, "server-vote", state.Vote.ID)
	assert.Equal(t, models.VoteUp, state.Vote.VoteType)
}

func TestCastVote_SameTypeRemoves(t *testing.T) {
	e, st, backend := newTestEngine(t)
	target := models.PostTarget("post-1")
	st.SetVoteState(target, store.VoteState{
		Vote:  viewerVote("v1", target, models.VoteUp),
		Score: 3,
	})

	backend.deleteVoteFn = func(voteID string) error {
		assert.Equal(t, "v1", voteID)
		return nil
	}

	require.NoError(t, e.CastVote(context.Background(), target, models.VoteUp))

	state, _ := st.VoteState(target)
	assert.Nil(t, state.Vote)
	assert.Equal(t, 2, state.Score)
}

func TestCastVote_OppositeTypeSwitchesByTwo(t *testing.T) {
	e, st, backend := newTestEngine(t)
	target := models.CommentTarget("comment-1")
	st.SetVoteState(target, store.VoteState{
		Vote:  viewerVote("v1", target, models.VoteDown),
		Score: -1,
	})

	backend.updateVoteFn = func(voteID string, voteType models.VoteType) (*models.Vote, error) {
		assert.Equal(t, "v1", voteID)
		assert.Equal(t, models.VoteUp, voteType)
		return viewerVote("v1", target, voteType), nil
	}

	require.NoError(t, e.CastVote(context.Background(), target, models.VoteUp))

	state, _ := st.VoteState(target)
	assert.Equal(t, 1, state.Score)
	require.NotNil(t, state.Vote)
	assert.Equal(t, models.VoteUp, state.Vote.VoteType)
}

func TestCastVote_ToggleTwiceIsIdempotent(t *testing.T) {
	e, st, backend := newTestEngine(t)
	target := models.PostTarget("post-1")
	st.SetVoteState(target, store.VoteState{Score: 10})

	backend.insertVoteFn = func(tgt models.VoteTarget, voteType models.VoteType) (*models.Vote, error) {
		return viewerVote("server-vote", tgt, voteType), nil
	}
	backend.deleteVoteFn = func(voteID string) error { return nil }

	require.NoError(t, e.CastVote(context.Background(), target, models.VoteUp))
	require.NoError(t, e.CastVote(context.Background(), target, models.VoteUp))

	state, _ := st.VoteState(target)
	assert.Nil(t, state.Vote)
	assert.Equal(t, 10, state.Score)
}

func TestCastVote_RollbackRestoresExactState(t *testing.T) {
	e, st, backend := newTestEngine(t)
	target := models.PostTarget("post-1")
	prior := store.VoteState{Score: 7}
	st.SetVoteState(target, prior)

	backend.insertVoteFn = func(models.VoteTarget, models.VoteType) (*models.Vote, error) {
		return nil, errors.New("backend down")
	}

	err := e.CastVote(context.Background(), target, models.VoteDown)
	require.Error(t, err)
	assert.True(t, models.IsRemoteWriteError(err))

	state, ok := st.VoteState(target)
	require.True(t, ok)
	assert.Equal(t, prior, state)
}

func TestCastVote_RollbackAfterFailedSwitch(t *testing.T) {
	e, st, backend := newTestEngine(t)
	target := models.PostTarget("post-1")
	prior := store.VoteState{
		Vote:  viewerVote("v1", target, models.VoteUp),
		Score: 2,
	}
	st.SetVoteState(target, prior)

	backend.updateVoteFn = func(string, models.VoteType) (*models.Vote, error) {
		return nil, errors.New("backend down")
	}

	err := e.CastVote(context.Background(), target, models.VoteDown)
	require.Error(t, err)

	state, _ := st.VoteState(target)
	assert.Equal(t, prior.Score, state.Score)
	require.NotNil(t, state.Vote)
	assert.Equal(t, models.VoteUp, state.Vote.VoteType)
}

func TestCastVote_FetchesStateOnCacheMiss(t *testing.T) {
	e, st, backend := newTestEngine(t)
	target := models.PostTarget("post-1")

	fetched := false
	backend.votesForFn = func(tgt models.VoteTarget) ([]models.Vote, error) {
		if fetched {
			return nil, errRefresh
		}
		fetched = true
		other := models.Vote{ID: "o1", UserID: "other", VoteType: models.VoteUp}
		otherPost := target.PostID
		other.PostID = &otherPost
		return []models.Vote{other, *viewerVote("v1", target, models.VoteUp)}, nil
	}
	backend.deleteVoteFn = func(voteID string) error {
		assert.Equal(t, "v1", voteID)
		return nil
	}

	// Viewer already voted up; casting up again toggles it off.
	require.NoError(t, e.CastVote(context.Background(), target, models.VoteUp))

	state, _ := st.VoteState(target)
	assert.Nil(t, state.Vote)
	assert.Equal(t, 1, state.Score)
}

func TestCastVote_Validation(t *testing.T) {
	e, _, backend := newTestEngine(t)

	err := e.CastVote(context.Background(), models.VoteTarget{}, models.VoteUp)
	assert.True(t, models.IsValidationError(err))

	err = e.CastVote(context.Background(), models.PostTarget("post-1"), models.VoteType("sideways"))
	assert.True(t, models.IsValidationError(err))

	assert.Empty(t, backend.recorded())
}

func TestRefreshVotes_SkipsWhenStateChangedDuringFetch(t *testing.T) {
	e, st, backend := newTestEngine(t)
	target := models.PostTarget("post-1")
	st.SetVoteState(target, store.VoteState{Score: 1})

	newer := store.VoteState{Vote: viewerVote("v2", target, models.VoteUp), Score: 2}
	backend.votesForFn = func(models.VoteTarget) ([]models.Vote, error) {
		// A second mutation commits while this fetch is in flight, so the
		// list below is already stale by the time it returns.
		st.SetVoteState(target, newer)
		return []models.Vote{*viewerVote("v1", target, models.VoteUp)}, nil
	}

	e.refreshVotes(target)

	state, ok := st.VoteState(target)
	require.True(t, ok)
	assert.Equal(t, 2, state.Score)
	assert.Equal(t, "v2", state.Vote.ID)
}

func TestRefreshVotes_ConvergesUnchangedState(t *testing.T) {
	e, st, backend := newTestEngine(t)
	target := models.PostTarget("post-1")
	st.SetVoteState(target, store.VoteState{Score: 5})

	other := viewerVote("other-vote", target, models.VoteUp)
	other.UserID = "someone-else"
	backend.votesForFn = func(models.VoteTarget) ([]models.Vote, error) {
		return []models.Vote{*other}, nil
	}

	e.refreshVotes(target)

	state, ok := st.VoteState(target)
	require.True(t, ok)
	assert.Equal(t, 1, state.Score)
	assert.Nil(t, state.Vote)
}

func TestSendMessage_HappyPath(t *testing.T) {
	e, st, backend := newTestEngine(t)
	chatID := "chat-1"
	sentAt := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)

	st.SetMessages(chatID, nil)
	st.SetSummaries("", []models.ChatSummary{
		{Chat: models.Chat{ID: chatID, Participant1ID: viewerID, Participant2ID: "other"}},
	})
	st.SetDraft(chatID, "hello th")

	backend.insertMessageFn = func(id, content string) (*models.ChatMessage, error) {
		assert.Equal(t, chatID, id)
		assert.Equal(t, "hello there", content)
		return &models.ChatMessage{
			ID:        "server-msg",
			ChatID:    chatID,
			UserID:    viewerID,
			Content:   content,
			CreatedAt: sentAt,
		}, nil
	}
	var activityTS time.Time
	backend.updateActivityFn = func(id string, ts time.Time) error {
		activityTS = ts
		return nil
	}

	msg, err := e.SendMessage(context.Background(), chatID, "  hello there  ")
	require.NoError(t, err)
	assert.Equal(t, "server-msg", msg.ID)

	msgs, _ := st.Messages(chatID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "server-msg", msgs[0].ID)
	assert.False(t, msgs[0].Pending)

	summaries, ok := st.Summaries("")
	require.True(t, ok)
	assert.Equal(t, "hello there", summaries[0].PreviewText)
	assert.Equal(t, sentAt, summaries[0].Chat.LastMessageAt)

	assert.Equal(t, sentAt, activityTS)
	assert.Equal(t, "", st.Draft(chatID))
	assert.Equal(t, []string{"InsertMessage", "UpdateChatLastActivity"}, backend.recorded())
}

func TestSendMessage_FailureRollsBackAndRestoresDraft(t *testing.T) {
	e, st, backend := newTestEngine(t)
	chatID := "chat-1"

	existing := models.ChatMessage{ID: "m1", ChatID: chatID, UserID: "other", Content: "earlier"}
	st.SetMessages(chatID, []models.ChatMessage{existing})
	st.SetSummaries("", []models.ChatSummary{{Chat: models.Chat{ID: chatID}}})

	backend.insertMessageFn = func(string, string) (*models.ChatMessage, error) {
		return nil, errors.New("backend down")
	}

	_, err := e.SendMessage(context.Background(), chatID, "doomed message")
	require.Error(t, err)
	assert.True(t, models.IsRemoteWriteError(err))

	msgs, _ := st.Messages(chatID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)

	_, ok := st.Summaries("")
	assert.False(t, ok, "summary lists are invalidated on failure")
	assert.Equal(t, "doomed message", st.Draft(chatID))
}

func TestSendMessage_SecondWriteFailureStillRollsBack(t *testing.T) {
	e, st, backend := newTestEngine(t)
	chatID := "chat-1"
	st.SetMessages(chatID, nil)

	backend.insertMessageFn = func(id, content string) (*models.ChatMessage, error) {
		return &models.ChatMessage{ID: "server-msg", ChatID: id, UserID: viewerID, Content: content, CreatedAt: time.Now()}, nil
	}
	backend.updateActivityFn = func(string, time.Time) error {
		return errors.New("backend down")
	}

	_, err := e.SendMessage(context.Background(), chatID, "hello")
	require.Error(t, err)

	msgs, _ := st.Messages(chatID)
	assert.Empty(t, msgs)
	assert.Equal(t, "hello", st.Draft(chatID))
}

func TestSendMessage_NewChatDropsStaleSummaries(t *testing.T) {
	e, st, backend := newTestEngine(t)
	st.SetSummaries("", []models.ChatSummary{{Chat: models.Chat{ID: "other-chat"}}})

	backend.insertMessageFn = func(id, content string) (*models.ChatMessage, error) {
		return &models.ChatMessage{ID: "server-msg", ChatID: id, UserID: viewerID, Content: content, CreatedAt: time.Now()}, nil
	}

	_, err := e.SendMessage(context.Background(), "brand-new-chat", "first message")
	require.NoError(t, err)

	// The cached lists predate the chat and cannot be patched; dropping them
	// makes the next read refetch and surface it.
	_, ok := st.Summaries("")
	assert.False(t, ok)
}

func TestSendMessage_EmptyContentRejected(t *testing.T) {
	e, _, backend := newTestEngine(t)

	_, err := e.SendMessage(context.Background(), "chat-1", "   ")
	assert.True(t, models.IsValidationError(err))
	assert.Empty(t, backend.recorded())
}

func TestMarkChatRead_FlipsAndCommits(t *testing.T) {
	e, st, backend := newTestEngine(t)
	chatID := "chat-1"

	st.SetMessages(chatID, []models.ChatMessage{
		{ID: "m2", ChatID: chatID, UserID: "other", Content: "newest", IsRead: false},
		{ID: "m1", ChatID: chatID, UserID: "other", Content: "older", IsRead: false},
	})
	st.SetSummaries("", []models.ChatSummary{
		{Chat: models.Chat{ID: chatID}, PreviewText: "newest", UnreadCount: 2},
	})

	require.NoError(t, e.MarkChatRead(context.Background(), chatID, "other"))

	msgs, _ := st.Messages(chatID)
	assert.True(t, msgs[0].IsRead)
	assert.True(t, msgs[1].IsRead)

	summaries, _ := st.Summaries("")
	assert.Equal(t, 0, summaries[0].UnreadCount)
	assert.Equal(t, []string{"MarkMessagesRead"}, backend.recorded())
}

func TestMarkChatRead_RollbackOnFailure(t *testing.T) {
	e, st, backend := newTestEngine(t)
	chatID := "chat-1"

	st.SetMessages(chatID, []models.ChatMessage{
		{ID: "m2", ChatID: chatID, UserID: "other", Content: "newest", IsRead: false},
		{ID: "m1", ChatID: chatID, UserID: "other", Content: "older", IsRead: true},
	})
	st.SetSummaries("", []models.ChatSummary{
		{Chat: models.Chat{ID: chatID}, PreviewText: "newest", UnreadCount: 1},
	})

	backend.markReadFn = func(string) error { return errors.New("backend down") }

	err := e.MarkChatRead(context.Background(), chatID, "other")
	require.Error(t, err)
	assert.True(t, models.IsRemoteWriteError(err))

	msgs, _ := st.Messages(chatID)
	assert.False(t, msgs[0].IsRead)
	assert.True(t, msgs[1].IsRead, "only the flags we flipped are reverted")

	summaries, _ := st.Summaries("")
	assert.Equal(t, 1, summaries[0].UnreadCount)
}

func TestMarkChatRead_NoUnreadSkipsBackend(t *testing.T) {
	e, st, backend := newTestEngine(t)
	chatID := "chat-1"
	st.SetMessages(chatID, []models.ChatMessage{
		{ID: "m1", ChatID: chatID, UserID: "other", Content: "hi", IsRead: true},
	})

	require.NoError(t, e.MarkChatRead(context.Background(), chatID, "other"))
	assert.Empty(t, backend.recorded())
}
