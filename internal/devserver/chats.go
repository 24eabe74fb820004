package devserver

import (
	"strings"
	"time"

	"quad/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// participantChat loads the chat and rejects callers who are not in it.
func (s *Server) participantChat(c *fiber.Ctx) (*models.Chat, error) {
	chat, err := s.chats.GetChat(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	uid := userID(c)
	if chat.Participant1ID != uid && chat.Participant2ID != uid {
		return nil, models.NewForbiddenError("not a participant of this chat")
	}
	return chat, nil
}

// GetChats lists the caller's chats, most recently active first.
func (s *Server) GetChats(c *fiber.Ctx) error {
	chats, err := s.chats.ChatsForUser(c.Context(), userID(c))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	return c.JSON(chats)
}

type createChatRequest struct {
	ParticipantID string  `json:"participant_id"`
	PostID        *string `json:"post_id"`
}

// CreateChat opens a 1-on-1 chat between the caller and another participant,
// optionally attached to a post.
func (s *Server) CreateChat(c *fiber.Ctx) error {
	var req createChatRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}
	uid := userID(c)
	if req.ParticipantID == "" || req.ParticipantID == uid {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("participant_id must name another user"))
	}
	if !models.IsAnonID(req.ParticipantID) {
		if _, err := s.users.GetByID(c.Context(), req.ParticipantID); err != nil {
			return models.RespondWithError(c, models.StatusForError(err), err)
		}
	}
	if req.PostID != nil {
		if _, err := s.posts.GetByID(c.Context(), *req.PostID); err != nil {
			return models.RespondWithError(c, models.StatusForError(err), err)
		}
	}

	chat := models.Chat{
		ID:             uuid.NewString(),
		Participant1ID: uid,
		Participant2ID: req.ParticipantID,
		PostID:         req.PostID,
		LastMessageAt:  time.Now().UTC(),
	}
	if err := s.chats.CreateChat(c.Context(), &chat); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	s.broadcast(models.TableChats, models.EventInsert, &chat)
	return c.Status(fiber.StatusCreated).JSON(chat)
}

// GetMessages returns a page of the chat's messages, newest first.
func (s *Server) GetMessages(c *fiber.Ctx) error {
	if _, err := s.participantChat(c); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	msgs, err := s.chats.Messages(c.Context(), c.Params("id"), limit, offset)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return c.JSON(msgs)
}

// SendMessage appends a message to the chat. The server assigns id and
// timestamp; the committed row is broadcast on the change feed.
func (s *Server) SendMessage(c *fiber.Ctx) error {
	chat, err := s.participantChat(c)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}
	if strings.TrimSpace(req.Content) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("message content is required"))
	}

	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		UserID:    userID(c),
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
	}
	err = s.chats.CreateMessage(c.Context(), &msg)
	countMutation("message_send", err)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	s.broadcast(models.TableMessages, models.EventInsert, &msg)
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// UpdateChatActivity bumps the chat's denormalized last-activity pointer.
func (s *Server) UpdateChatActivity(c *fiber.Ctx) error {
	chat, err := s.participantChat(c)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	var req struct {
		LastMessageAt time.Time `json:"last_message_at"`
	}
	if err := c.BodyParser(&req); err != nil || req.LastMessageAt.IsZero() {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("last_message_at is required"))
	}

	if err := s.chats.UpdateLastActivity(c.Context(), chat.ID, req.LastMessageAt); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	chat.LastMessageAt = req.LastMessageAt
	s.broadcast(models.TableChats, models.EventUpdate, chat)
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkChatRead flips IsRead on the other participant's messages. Each updated
// row is broadcast so the sender's client can update delivery state.
func (s *Server) MarkChatRead(c *fiber.Ctx) error {
	chat, err := s.participantChat(c)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	updated, err := s.chats.MarkMessagesRead(c.Context(), chat.ID, userID(c))
	countMutation("chat_read", err)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	for i := range updated {
		s.broadcast(models.TableMessages, models.EventUpdate, &updated[i])
	}
	return c.SendStatus(fiber.StatusNoContent)
}
