package repository

import (
	"context"
	"errors"

	"quad/internal/models"

	"gorm.io/gorm"
)

// VoteRepository defines the interface for vote data operations.
type VoteRepository interface {
	ListForTarget(ctx context.Context, target models.VoteTarget) ([]models.Vote, error)
	GetByID(ctx context.Context, id string) (*models.Vote, error)
	FindByUserAndTarget(ctx context.Context, userID string, target models.VoteTarget) (*models.Vote, error)
	Create(ctx context.Context, vote *models.Vote) error
	Update(ctx context.Context, vote *models.Vote) error
	Delete(ctx context.Context, id string) error
}

type voteRepository struct {
	db *gorm.DB
}

// NewVoteRepository creates a new vote repository.
func NewVoteRepository(db *gorm.DB) VoteRepository {
	return &voteRepository{db: db}
}

func targetScope(target models.VoteTarget) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if target.PostID != "" {
			return db.Where("post_id = ?", target.PostID)
		}
		return db.Where("comment_id = ?", target.CommentID)
	}
}

func (r *voteRepository) ListForTarget(ctx context.Context, target models.VoteTarget) ([]models.Vote, error) {
	var votes []models.Vote
	err := r.db.WithContext(ctx).Scopes(targetScope(target)).Find(&votes).Error
	return votes, err
}

func (r *voteRepository) GetByID(ctx context.Context, id string) (*models.Vote, error) {
	var vote models.Vote
	err := r.db.WithContext(ctx).First(&vote, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Vote", id)
	}
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

func (r *voteRepository) FindByUserAndTarget(ctx context.Context, userID string, target models.VoteTarget) (*models.Vote, error) {
	var vote models.Vote
	err := r.db.WithContext(ctx).
		Scopes(targetScope(target)).
		Where("user_id = ?", userID).
		First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

func (r *voteRepository) Create(ctx context.Context, vote *models.Vote) error {
	return r.db.WithContext(ctx).Create(vote).Error
}

func (r *voteRepository) Update(ctx context.Context, vote *models.Vote) error {
	return r.db.WithContext(ctx).Save(vote).Error
}

func (r *voteRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Vote{}, "id = ?", id).Error
}
