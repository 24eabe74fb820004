package devserver

import (
	"quad/internal/middleware"
	"quad/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func (s *Server) broadcast(table, eventType string, row any) {
	ev, err := models.NewTableEvent(table, eventType, row)
	if err != nil {
		s.logger.Error("event marshal failed", "table", table, "error", err.Error())
		return
	}
	s.hub.Broadcast(ev)
}

func countMutation(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	middleware.MutationsTotal.WithLabelValues(kind, outcome).Inc()
}

func targetFromQuery(c *fiber.Ctx) (models.VoteTarget, error) {
	target := models.VoteTarget{
		PostID:    c.Query("post_id"),
		CommentID: c.Query("comment_id"),
	}
	if !target.Valid() {
		return models.VoteTarget{}, models.NewValidationError("exactly one of post_id and comment_id is required")
	}
	return target, nil
}

// GetVotes lists every vote on the target named by the query string.
func (s *Server) GetVotes(c *fiber.Ctx) error {
	target, err := targetFromQuery(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}
	votes, err := s.votes.ListForTarget(c.Context(), target)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	if votes == nil {
		votes = []models.Vote{}
	}
	return c.JSON(votes)
}

type voteRequest struct {
	PostID    *string         `json:"post_id"`
	CommentID *string         `json:"comment_id"`
	VoteType  models.VoteType `json:"vote_type"`
}

// CreateVote records the caller's vote on a target. A second create for the
// same target upserts the direction instead of failing, so a racing client
// converges on one row per (user, target).
func (s *Server) CreateVote(c *fiber.Ctx) error {
	var req voteRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}
	if !req.VoteType.Valid() {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("unknown vote type"))
	}
	target := models.VoteTarget{}
	if req.PostID != nil {
		target.PostID = *req.PostID
	}
	if req.CommentID != nil {
		target.CommentID = *req.CommentID
	}
	if !target.Valid() {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("vote must target exactly one of post or comment"))
	}
	if target.PostID != "" {
		if _, err := s.posts.GetByID(c.Context(), target.PostID); err != nil {
			return models.RespondWithError(c, models.StatusForError(err), err)
		}
	}

	uid := userID(c)
	existing, err := s.votes.FindByUserAndTarget(c.Context(), uid, target)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	if existing != nil {
		existing.VoteType = req.VoteType
		err = s.votes.Update(c.Context(), existing)
		countMutation("vote_create", err)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		}
		s.broadcast(models.TableVotes, models.EventUpdate, existing)
		return c.Status(fiber.StatusCreated).JSON(existing)
	}

	vote := models.Vote{
		ID:        uuid.NewString(),
		UserID:    uid,
		PostID:    req.PostID,
		CommentID: req.CommentID,
		VoteType:  req.VoteType,
	}
	err = s.votes.Create(c.Context(), &vote)
	countMutation("vote_create", err)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	s.broadcast(models.TableVotes, models.EventInsert, &vote)
	return c.Status(fiber.StatusCreated).JSON(vote)
}

// UpdateVote switches the direction of the caller's existing vote.
func (s *Server) UpdateVote(c *fiber.Ctx) error {
	var req struct {
		VoteType models.VoteType `json:"vote_type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}
	if !req.VoteType.Valid() {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("unknown vote type"))
	}

	vote, err := s.votes.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	if vote.UserID != userID(c) {
		return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError("not your vote"))
	}

	vote.VoteType = req.VoteType
	err = s.votes.Update(c.Context(), vote)
	countMutation("vote_update", err)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	s.broadcast(models.TableVotes, models.EventUpdate, vote)
	return c.JSON(vote)
}

// DeleteVote removes the caller's vote. The change rides the feed as an
// update carrying the final row; subscribers refetch the tally either way.
func (s *Server) DeleteVote(c *fiber.Ctx) error {
	vote, err := s.votes.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	if vote.UserID != userID(c) {
		return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError("not your vote"))
	}

	err = s.votes.Delete(c.Context(), vote.ID)
	countMutation("vote_delete", err)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	s.broadcast(models.TableVotes, models.EventUpdate, vote)
	return c.SendStatus(fiber.StatusNoContent)
}
