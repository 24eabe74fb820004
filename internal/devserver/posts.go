package devserver

import (
	"strings"

	"quad/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// GetPosts lists posts filtered by category and search text.
func (s *Server) GetPosts(c *fiber.Ctx) error {
	category := c.Query("category")
	if category != "" && category != models.CategoryFeed && category != models.CategoryLostFound {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("unknown category"))
	}
	posts, err := s.posts.List(c.Context(), category, c.Query("q"))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return c.JSON(posts)
}

type createPostRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// CreatePost creates a feed or lost-and-found post.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("post title is required"))
	}
	if req.Category == "" {
		req.Category = models.CategoryFeed
	}
	if req.Category != models.CategoryFeed && req.Category != models.CategoryLostFound {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("unknown category"))
	}

	post := models.Post{
		ID:       uuid.NewString(),
		UserID:   userID(c),
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
	}
	if err := s.posts.Create(c.Context(), &post); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetComments returns the flat comment list for a post, oldest first.
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID := c.Params("id")
	if _, err := s.posts.GetByID(c.Context(), postID); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	comments, err := s.comments.ListByPost(c.Context(), postID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	return c.JSON(comments)
}

type createCommentRequest struct {
	Content         string  `json:"content"`
	ParentCommentID *string `json:"parent_comment_id"`
	Anonymous       bool    `json:"anonymous"`
}

// CreateComment adds a comment to a post, optionally as a reply and
// optionally under a generated anonymous identity.
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID := c.Params("id")
	if _, err := s.posts.GetByID(c.Context(), postID); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	var req createCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}
	if strings.TrimSpace(req.Content) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("comment content is required"))
	}

	author := userID(c)
	if req.Anonymous {
		// Anonymous identities never resolve to a user row; clients
		// render a number derived from the id.
		author = models.AnonPrefix + uuid.NewString()
	}

	comment := models.Comment{
		ID:              uuid.NewString(),
		PostID:          postID,
		UserID:          &author,
		ParentCommentID: req.ParentCommentID,
		Content:         req.Content,
	}
	err := s.comments.Create(c.Context(), &comment)
	countMutation("comment_create", err)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	s.broadcast(models.TableComments, models.EventInsert, &comment)
	return c.Status(fiber.StatusCreated).JSON(comment)
}
