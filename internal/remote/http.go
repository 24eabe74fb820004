package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"quad/internal/models"
)

const defaultRequestTimeout = 10 * time.Second

// HTTPClient implements Backend against the REST API. Safe for concurrent
// use.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewHTTPClient returns a client for the API at baseURL (e.g.
// "http://localhost:8375").
func NewHTTPClient(baseURL string, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger,
	}
}

// SetToken installs the bearer token attached to subsequent requests.
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *HTTPClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login authenticates and installs the session token.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*models.User, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", credentials{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp.User, nil
}

// Register creates an account and installs the session token.
func (c *HTTPClient) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	body := map[string]string{"username": username, "email": email, "password": password}
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", body, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp.User, nil
}

// VotesFor returns every vote on the target.
func (c *HTTPClient) VotesFor(ctx context.Context, target models.VoteTarget) ([]models.Vote, error) {
	if !target.Valid() {
		return nil, models.NewValidationError("vote target must name exactly one of post or comment")
	}
	q := url.Values{}
	if target.PostID != "" {
		q.Set("post_id", target.PostID)
	} else {
		q.Set("comment_id", target.CommentID)
	}
	var votes []models.Vote
	if err := c.do(ctx, http.MethodGet, "/api/votes?"+q.Encode(), nil, &votes); err != nil {
		return nil, err
	}
	for i := range votes {
		if err := votes[i].Validate(); err != nil {
			return nil, err
		}
	}
	return votes, nil
}

type voteRequest struct {
	PostID    *string         `json:"post_id,omitempty"`
	CommentID *string         `json:"comment_id,omitempty"`
	VoteType  models.VoteType `json:"vote_type"`
}

// InsertVote creates the viewer's vote on the target.
func (c *HTTPClient) InsertVote(ctx context.Context, target models.VoteTarget, voteType models.VoteType) (*models.Vote, error) {
	req := voteRequest{VoteType: voteType}
	if target.PostID != "" {
		req.PostID = &target.PostID
	}
	if target.CommentID != "" {
		req.CommentID = &target.CommentID
	}
	var vote models.Vote
	if err := c.do(ctx, http.MethodPost, "/api/votes", req, &vote); err != nil {
		return nil, err
	}
	if err := vote.Validate(); err != nil {
		return nil, err
	}
	return &vote, nil
}

// UpdateVote changes the direction of an existing vote.
func (c *HTTPClient) UpdateVote(ctx context.Context, voteID string, voteType models.VoteType) (*models.Vote, error) {
	var vote models.Vote
	body := map[string]models.VoteType{"vote_type": voteType}
	if err := c.do(ctx, http.MethodPut, "/api/votes/"+url.PathEscape(voteID), body, &vote); err != nil {
		return nil, err
	}
	if err := vote.Validate(); err != nil {
		return nil, err
	}
	return &vote, nil
}

// DeleteVote removes an existing vote.
func (c *HTTPClient) DeleteVote(ctx context.Context, voteID string) error {
	return c.do(ctx, http.MethodDelete, "/api/votes/"+url.PathEscape(voteID), nil, nil)
}

// InsertMessage creates a message; the server assigns id and timestamp.
func (c *HTTPClient) InsertMessage(ctx context.Context, chatID, content string) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	body := map[string]string{"content": content}
	path := "/api/chats/" + url.PathEscape(chatID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateChatLastActivity bumps the chat's denormalized activity pointer.
func (c *HTTPClient) UpdateChatLastActivity(ctx context.Context, chatID string, ts time.Time) error {
	body := map[string]time.Time{"last_message_at": ts}
	return c.do(ctx, http.MethodPatch, "/api/chats/"+url.PathEscape(chatID)+"/activity", body, nil)
}

// MarkMessagesRead flips IsRead on the other participant's messages.
func (c *HTTPClient) MarkMessagesRead(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/read", nil, nil)
}

// Messages returns a page of the chat's messages, newest first.
func (c *HTTPClient) Messages(ctx context.Context, chatID string, limit, offset int) ([]models.ChatMessage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var msgs []models.ChatMessage
	path := "/api/chats/" + url.PathEscape(chatID) + "/messages?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	for i := range msgs {
		if err := msgs[i].Validate(); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// Chats returns the viewer's chats, most recently active first.
func (c *HTTPClient) Chats(ctx context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &chats); err != nil {
		return nil, err
	}
	for i := range chats {
		if err := chats[i].Validate(); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

// CommentsFor returns the flat comment list for a post, oldest first.
func (c *HTTPClient) CommentsFor(ctx context.Context, postID string) ([]models.Comment, error) {
	var comments []models.Comment
	path := "/api/posts/" + url.PathEscape(postID) + "/comments"
	if err := c.do(ctx, http.MethodGet, path, nil, &comments); err != nil {
		return nil, err
	}
	for i := range comments {
		if err := comments[i].Validate(); err != nil {
			return nil, err
		}
	}
	return comments, nil
}

// Posts returns posts filtered by category and search text.
func (c *HTTPClient) Posts(ctx context.Context, category, search string) ([]models.Post, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if search != "" {
		q.Set("q", search)
	}
	path := "/api/posts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var posts []models.Post
	if err := c.do(ctx, http.MethodGet, path, nil, &posts); err != nil {
		return nil, err
	}
	for i := range posts {
		if err := posts[i].Validate(); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return models.NewInternalError(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return models.NewInternalError(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.NewRemoteWriteError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return c.errorFrom(resp)
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return models.NewRemoteWriteError(fmt.Errorf("decoding %s %s response: %w", method, path, err))
	}
	return nil
}

// errorFrom maps an API error payload onto the client error taxonomy.
func (c *HTTPClient) errorFrom(resp *http.Response) error {
	var payload models.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &payload)
	if payload.Error == "" {
		payload.Error = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return models.NewValidationError(payload.Error)
	case http.StatusUnauthorized:
		return models.NewUnauthorizedError(payload.Error)
	case http.StatusForbidden:
		return models.NewForbiddenError(payload.Error)
	case http.StatusNotFound:
		return &models.AppError{Code: models.CodeNotFound, Message: payload.Error}
	default:
		return models.NewRemoteWriteError(fmt.Errorf("%s (status %d)", payload.Error, resp.StatusCode))
	}
}
