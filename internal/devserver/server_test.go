package devserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quad/internal/config"
	"quad/internal/database"
	"quad/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:      "0",
		JWTSecret: "test-secret",
		DBDriver:  "sqlite",
		Env:       "test",
	}
}

func setupServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	db, err := database.OpenTest()
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return NewServerWithDB(testConfig(), db), db
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.App().Test(req, 5000)
	require.NoError(t, err)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, payload
}

func decodeInto(t *testing.T, raw []byte, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, dest), "payload: %s", raw)
}

// registerUser creates an account through the API and returns its token and
// user row.
func registerUser(t *testing.T, s *Server, username string) (string, models.User) {
	t.Helper()
	resp, raw := doJSON(t, s, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@quad.local",
		"password": "password-123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)

	var auth authResponse
	decodeInto(t, raw, &auth)
	require.NotEmpty(t, auth.Token)
	return auth.Token, auth.User
}

func createTestPost(t *testing.T, s *Server, token, category string) models.Post {
	t.Helper()
	resp, raw := doJSON(t, s, http.MethodPost, "/api/posts", token, map[string]string{
		"title":    "test post",
		"content":  "content",
		"category": category,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	var post models.Post
	decodeInto(t, raw, &post)
	return post
}

func TestRegisterValidation(t *testing.T) {
	s, _ := setupServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing username", map[string]string{"email": "a@b.c", "password": "password-123"}},
		{"short password", map[string]string{"username": "casey", "email": "a@b.c", "password": "short"}},
		{"reserved prefix", map[string]string{"username": "anon-casey", "email": "a@b.c", "password": "password-123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := doJSON(t, s, http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s, _ := setupServer(t)
	registerUser(t, s, "casey")

	t.Run("duplicate username", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "casey", "email": "other@quad.local", "password": "password-123",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("login", func(t *testing.T) {
		resp, raw := doJSON(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "casey@quad.local", "password": "password-123",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var auth authResponse
		decodeInto(t, raw, &auth)
		assert.NotEmpty(t, auth.Token)
		assert.Equal(t, "casey", auth.User.Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "casey@quad.local", "password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown email", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "nobody@quad.local", "password": "password-123",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s, _ := setupServer(t)
	for _, path := range []string{"/api/votes/?post_id=x", "/api/chats/", "/api/posts/"} {
		resp, _ := doJSON(t, s, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestVoteLifecycle(t *testing.T) {
	s, _ := setupServer(t)
	tokenA, _ := registerUser(t, s, "alice")
	tokenB, _ := registerUser(t, s, "bob")
	post := createTestPost(t, s, tokenA, models.CategoryFeed)

	var vote models.Vote
	t.Run("create", func(t *testing.T) {
		resp, raw := doJSON(t, s, http.MethodPost, "/api/votes/", tokenA, map[string]any{
			"post_id": post.ID, "vote_type": "up",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
		decodeInto(t, raw, &vote)
		assert.Equal(t, models.VoteUp, vote.VoteType)
	})

	t.Run("duplicate create upserts", func(t *testing.T) {
		resp, raw := doJSON(t, s, http.MethodPost, "/api/votes/", tokenA, map[string]any{
			"post_id": post.ID, "vote_type": "down",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var upserted models.Vote
		decodeInto(t, raw, &upserted)
		assert.Equal(t, vote.ID, upserted.ID)
		assert.Equal(t, models.VoteDown, upserted.VoteType)
	})

	t.Run("list", func(t *testing.T) {
		resp, raw := doJSON(t, s, http.MethodGet, "/api/votes/?post_id="+post.ID, tokenB, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var votes []models.Vote
		decodeInto(t, raw, &votes)
		require.Len(t, votes, 1)
	})

	t.Run("update by non-owner forbidden", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodPut, "/api/votes/"+vote.ID, tokenB, map[string]string{"vote_type": "up"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("update", func(t *testing.T) {
		resp, raw := doJSON(t, s, http.MethodPut, "/api/votes/"+vote.ID, tokenA, map[string]string{"vote_type": "up"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var updated models.Vote
		decodeInto(t, raw, &updated)
		assert.Equal(t, models.VoteUp, updated.VoteType)
	})

	t.Run("delete by non-owner forbidden", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodDelete, "/api/votes/"+vote.ID, tokenB, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodDelete, "/api/votes/"+vote.ID, tokenA, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, raw := doJSON(t, s, http.MethodGet, "/api/votes/?post_id="+post.ID, tokenA, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var votes []models.Vote
		decodeInto(t, raw, &votes)
		assert.Empty(t, votes)
	})

	t.Run("both targets rejected", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodPost, "/api/votes/", tokenA, map[string]any{
			"post_id": post.ID, "comment_id": "c1", "vote_type": "up",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing post rejected", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodPost, "/api/votes/", tokenA, map[string]any{
			"post_id": "missing", "vote_type": "up",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestChatFlow(t *testing.T) {
	s, _ := setupServer(t)
	tokenA, userA := registerUser(t, s, "alice")
	tokenB, userB := registerUser(t, s, "bob")
	tokenC, _ := registerUser(t, s, "carol")

	var chat models.Chat
	t.Run("create chat", func(t *testing.T) {
		resp, raw := doJSON(t, s, http.MethodPost, "/api/chats/", tokenA, map[string]any{
			"participant_id": userB.ID,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
		decodeInto(t, raw, &chat)
		assert.Equal(t, userA.ID, chat.Participant1ID)
		assert.Equal(t, userB.ID, chat.Participant2ID)
	})

	t.Run("send and list messages", func(t *testing.T) {
		for _, content := range []string{"first", "second"} {
			resp, _ := doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/chats/%s/messages", chat.ID), tokenA,
				map[string]string{"content": content})
			require.Equal(t, http.StatusCreated, resp.StatusCode)
		}

		resp, raw := doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/chats/%s/messages", chat.ID), tokenB, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var msgs []models.ChatMessage
		decodeInto(t, raw, &msgs)
		require.Len(t, msgs, 2)
		assert.Equal(t, "second", msgs[0].Content)
	})

	t.Run("empty message rejected", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/chats/%s/messages", chat.ID), tokenA,
			map[string]string{"content": "   "})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("outsider forbidden", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/chats/%s/messages", chat.ID), tokenC, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("mark read", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/chats/%s/read", chat.ID), tokenB, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		_, raw := doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/chats/%s/messages", chat.ID), tokenB, nil)
		var msgs []models.ChatMessage
		decodeInto(t, raw, &msgs)
		for _, m := range msgs {
			assert.True(t, m.IsRead)
		}
	})

	t.Run("update activity", func(t *testing.T) {
		ts := time.Now().UTC().Add(time.Minute).Truncate(time.Second)
		resp, _ := doJSON(t, s, http.MethodPatch, fmt.Sprintf("/api/chats/%s/activity", chat.ID), tokenA,
			map[string]time.Time{"last_message_at": ts})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		_, raw := doJSON(t, s, http.MethodGet, "/api/chats/", tokenA, nil)
		var chats []models.Chat
		decodeInto(t, raw, &chats)
		require.Len(t, chats, 1)
		assert.True(t, ts.Equal(chats[0].LastMessageAt.UTC()))
	})

	t.Run("chat list scoped to participant", func(t *testing.T) {
		_, raw := doJSON(t, s, http.MethodGet, "/api/chats/", tokenC, nil)
		var chats []models.Chat
		decodeInto(t, raw, &chats)
		assert.Empty(t, chats)
	})
}

func TestPostsAndComments(t *testing.T) {
	s, _ := setupServer(t)
	token, _ := registerUser(t, s, "alice")

	feed := createTestPost(t, s, token, models.CategoryFeed)
	lost := createTestPost(t, s, token, models.CategoryLostFound)

	t.Run("category filter", func(t *testing.T) {
		resp, raw := doJSON(t, s, http.MethodGet, "/api/posts/?category=lostfound", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var posts []models.Post
		decodeInto(t, raw, &posts)
		require.Len(t, posts, 1)
		assert.Equal(t, lost.ID, posts[0].ID)
	})

	t.Run("unknown category rejected", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodGet, "/api/posts/?category=vibes", token, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	var root models.Comment
	t.Run("create comment", func(t *testing.T) {
		resp, raw := doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/posts/%s/comments", feed.ID), token,
			map[string]any{"content": "first!"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		decodeInto(t, raw, &root)
		require.NotNil(t, root.UserID)
		assert.False(t, models.IsAnonID(*root.UserID))
	})

	t.Run("anonymous comment", func(t *testing.T) {
		resp, raw := doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/posts/%s/comments", feed.ID), token,
			map[string]any{"content": "same here", "anonymous": true, "parent_comment_id": root.ID})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var anon models.Comment
		decodeInto(t, raw, &anon)
		require.NotNil(t, anon.UserID)
		assert.True(t, models.IsAnonID(*anon.UserID))
		require.NotNil(t, anon.ParentCommentID)
		assert.Equal(t, root.ID, *anon.ParentCommentID)
	})

	t.Run("list comments", func(t *testing.T) {
		resp, raw := doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/posts/%s/comments", feed.ID), token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var comments []models.Comment
		decodeInto(t, raw, &comments)
		assert.Len(t, comments, 2)
	})

	t.Run("comments on missing post", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodGet, "/api/posts/missing/comments", token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHealthCheck(t *testing.T) {
	s, _ := setupServer(t)
	resp, raw := doJSON(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "healthy")
}
