// Package remote defines the narrow data-access contract the client depends
// on, and an HTTP implementation of it. Everything past this boundary (SQL,
// row-level security, fan-out) belongs to the backend.
package remote

import (
	"context"
	"time"

	"quad/internal/models"
)

// Backend is the remote data-access contract. The optimistic mutation engine
// and the view layer consume it; the dev server (or the hosted backend)
// provides it.
type Backend interface {
	// VotesFor returns every vote on the target.
	VotesFor(ctx context.Context, target models.VoteTarget) ([]models.Vote, error)
	// InsertVote creates the viewer's vote on the target.
	InsertVote(ctx context.Context, target models.VoteTarget, voteType models.VoteType) (*models.Vote, error)
	// UpdateVote changes the direction of an existing vote.
	UpdateVote(ctx context.Context, voteID string, voteType models.VoteType) (*models.Vote, error)
	// DeleteVote removes an existing vote.
	DeleteVote(ctx context.Context, voteID string) error

	// InsertMessage creates a message; the server assigns id and timestamp.
	InsertMessage(ctx context.Context, chatID, content string) (*models.ChatMessage, error)
	// UpdateChatLastActivity bumps the chat's denormalized activity pointer.
	UpdateChatLastActivity(ctx context.Context, chatID string, ts time.Time) error
	// MarkMessagesRead flips IsRead on the other participant's messages.
	MarkMessagesRead(ctx context.Context, chatID string) error
	// Messages returns a page of the chat's messages, newest first.
	Messages(ctx context.Context, chatID string, limit, offset int) ([]models.ChatMessage, error)
	// Chats returns the viewer's chats, most recently active first.
	Chats(ctx context.Context) ([]models.Chat, error)

	// CommentsFor returns the flat comment list for a post, oldest first.
	CommentsFor(ctx context.Context, postID string) ([]models.Comment, error)
	// Posts returns posts filtered by category and search text.
	Posts(ctx context.Context, category, search string) ([]models.Post, error)
}
