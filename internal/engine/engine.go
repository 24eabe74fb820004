// Package engine implements the optimistic mutation discipline: every
// user-initiated mutation patches the local cache synchronously, then issues
// the authoritative remote write, and reconciles by committing the server's
// row or rolling the patch back exactly. Errors are never retried here;
// retry is a fresh user action.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"quad/internal/models"
	"quad/internal/remote"
	"quad/internal/store"

	"github.com/google/uuid"
)

const (
	// refreshTimeout bounds the low-priority background refresh issued after
	// a committed mutation.
	refreshTimeout = 10 * time.Second
	// echoWindow is how far apart a realtime echo's timestamp may be from a
	// pending placeholder's and still count as the same message.
	echoWindow = 5 * time.Second
)

// keyedMutex serializes operations per key. Consecutive mutations on the
// same vote target or chat queue behind each other instead of racing, so a
// rapid double-tap computes its second delta from the first one's outcome.
type keyedMutex struct {
	mus sync.Map
}

func (k *keyedMutex) lock(key string) func() {
	v, _ := k.mus.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Engine applies optimistic mutations for one signed-in viewer.
type Engine struct {
	store   *store.Store
	backend remote.Backend
	logger  *slog.Logger

	viewerID string

	targetMu keyedMutex
	chatMu   keyedMutex

	// Overridable for tests.
	now   func() time.Time
	newID func() string
}

// New returns an engine over the given cache and backend for viewerID.
func New(st *store.Store, backend remote.Backend, viewerID string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		backend:  backend,
		logger:   logger,
		viewerID: viewerID,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ViewerID returns the signed-in user this engine mutates on behalf of.
func (e *Engine) ViewerID() string { return e.viewerID }

func targetKey(t models.VoteTarget) string {
	if t.PostID != "" {
		return "post:" + t.PostID
	}
	return "comment:" + t.CommentID
}

// CastVote toggles, switches, or creates the viewer's vote on the target.
// The cache patch (vote row and score) lands before the remote write; a
// failed write restores the exact prior state. A committed write triggers a
// background refresh from the authoritative vote list.
func (e *Engine) CastVote(ctx context.Context, target models.VoteTarget, voteType models.VoteType) error {
	if !target.Valid() {
		return models.NewValidationError("vote target must name exactly one of post or comment")
	}
	if !voteType.Valid() {
		return models.NewValidationError("unknown vote type")
	}

	unlock := e.targetMu.lock(targetKey(target))
	defer unlock()

	prior, err := e.voteState(ctx, target)
	if err != nil {
		return err
	}

	next, kind := nextVoteState(prior, target, voteType, e.viewerID, e.newID, e.now)
	e.store.SetVoteState(target, next)

	var (
		confirmed *models.Vote
		writeErr  error
	)
	switch kind {
	case voteRemoved:
		writeErr = e.backend.DeleteVote(ctx, prior.Vote.ID)
	case voteSwitched:
		confirmed, writeErr = e.backend.UpdateVote(ctx, prior.Vote.ID, voteType)
	case voteCreated:
		confirmed, writeErr = e.backend.InsertVote(ctx, target, voteType)
	}
	if writeErr != nil {
		e.store.SetVoteState(target, prior)
		return models.NewRemoteWriteError(writeErr)
	}

	if confirmed != nil {
		// Adopt the server row; the optimistic score stands until refresh.
		e.store.SetVoteState(target, store.VoteState{Vote: confirmed, Score: next.Score})
	}

	go e.refreshVotes(target)
	return nil
}

type voteChange int

const (
	voteCreated voteChange = iota
	voteSwitched
	voteRemoved
)

// nextVoteState computes the optimistic vote/score for casting voteType on
// top of prior: same type removes the vote (delta ∓1), the opposite type
// switches it (delta ±2), no standing vote creates one (delta ±1). The delta
// is exactly what a rollback must undo.
func nextVoteState(
	prior store.VoteState,
	target models.VoteTarget,
	voteType models.VoteType,
	viewerID string,
	newID func() string,
	now func() time.Time,
) (store.VoteState, voteChange) {
	switch {
	case prior.Vote != nil && prior.Vote.VoteType == voteType:
		return store.VoteState{Score: prior.Score - voteType.ScoreValue()}, voteRemoved
	case prior.Vote != nil:
		switched := *prior.Vote
		switched.VoteType = voteType
		return store.VoteState{
			Vote:  &switched,
			Score: prior.Score + 2*voteType.ScoreValue(),
		}, voteSwitched
	default:
		optimistic := &models.Vote{
			ID:        newID(),
			UserID:    viewerID,
			VoteType:  voteType,
			CreatedAt: now(),
		}
		if target.PostID != "" {
			postID := target.PostID
			optimistic.PostID = &postID
		} else {
			commentID := target.CommentID
			optimistic.CommentID = &commentID
		}
		return store.VoteState{
			Vote:  optimistic,
			Score: prior.Score + voteType.ScoreValue(),
		}, voteCreated
	}
}

// voteState returns the cached state for the target, fetching the
// authoritative vote list on a miss.
func (e *Engine) voteState(ctx context.Context, target models.VoteTarget) (store.VoteState, error) {
	if st, ok := e.store.VoteState(target); ok {
		return st, nil
	}
	votes, err := e.backend.VotesFor(ctx, target)
	if err != nil {
		return store.VoteState{}, models.NewRemoteWriteError(err)
	}
	st := stateFromVotes(votes, e.viewerID)
	e.store.SetVoteState(target, st)
	return st, nil
}

func stateFromVotes(votes []models.Vote, viewerID string) store.VoteState {
	var st store.VoteState
	for i := range votes {
		st.Score += votes[i].VoteType.ScoreValue()
		if votes[i].UserID == viewerID {
			vote := votes[i]
			st.Vote = &vote
		}
	}
	return st
}

// sameVoteState reports whether two cached states describe the same vote row
// and score. Pointer identity is useless here because the store copies on
// read.
func sameVoteState(a, b store.VoteState) bool {
	if a.Score != b.Score {
		return false
	}
	if (a.Vote == nil) != (b.Vote == nil) {
		return false
	}
	return a.Vote == nil || (a.Vote.ID == b.Vote.ID && a.Vote.VoteType == b.Vote.VoteType)
}

// refreshVotes converges the cached state with the authoritative vote list
// after a committed mutation. Low priority: it runs detached from the
// triggering call and failures only log.
func (e *Engine) refreshVotes(target models.VoteTarget) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	key := targetKey(target)

	unlock := e.targetMu.lock(key)
	before, hadBefore := e.store.VoteState(target)
	unlock()

	votes, err := e.backend.VotesFor(ctx, target)
	if err != nil {
		e.logger.Warn("vote refresh failed",
			slog.String("target", key),
			slog.String("error", err.Error()),
		)
		return
	}

	unlock = e.targetMu.lock(key)
	defer unlock()
	// A mutation that committed while the fetch was in flight owns the newer
	// cached state; writing the fetched list over it would flash the older
	// tally. That mutation's own refresh converges the cache instead.
	current, ok := e.store.VoteState(target)
	if ok != hadBefore || (ok && !sameVoteState(current, before)) {
		return
	}
	e.store.SetVoteState(target, stateFromVotes(votes, e.viewerID))
}
