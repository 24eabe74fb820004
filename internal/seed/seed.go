// Package seed generates development and test data for the dev backend.
package seed

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"quad/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db  *gorm.DB
	rng *rand.Rand
}

// NewFactory creates a factory bound to the provided database.
func NewFactory(db *gorm.DB) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{
		db:  db,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// spreadBack returns a timestamp up to maxDays in the past, for a realistic
// created_at distribution.
func (f *Factory) spreadBack(maxDays int) time.Time {
	back := time.Duration(f.rng.Intn(maxDays*24*60)) * time.Minute
	return time.Now().UTC().Add(-back)
}

// CreateUser persists a user with a bcrypt-hashed password.
func (f *Factory) CreateUser(username, email, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    f.spreadBack(120),
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateRandomUser persists a user with generated identity.
func (f *Factory) CreateRandomUser() (*models.User, error) {
	name := strings.ToLower(gofakeit.Username()) + fmt.Sprintf("%03d", f.rng.Intn(1000))
	return f.CreateUser(name, name+"@"+gofakeit.DomainName(), gofakeit.Password(true, true, true, false, false, 12))
}

// CreatePost persists a post in the given category with generated content.
func (f *Factory) CreatePost(author *models.User, category string) (*models.Post, error) {
	post := &models.Post{
		ID:        uuid.NewString(),
		UserID:    author.ID,
		Title:     gofakeit.Sentence(5),
		Content:   gofakeit.Paragraph(1, 3, 8, "\n"),
		Category:  category,
		CreatedAt: f.spreadBack(60),
	}
	if category == models.CategoryLostFound {
		post.Title = "Lost: " + gofakeit.NounConcrete()
	}
	if err := f.db.Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// CreateComment persists a comment, optionally a reply, optionally under a
// generated anonymous identity.
func (f *Factory) CreateComment(author *models.User, post *models.Post, parent *models.Comment, anonymous bool) (*models.Comment, error) {
	authorID := author.ID
	if anonymous {
		authorID = models.AnonPrefix + uuid.NewString()
	}
	comment := &models.Comment{
		ID:        uuid.NewString(),
		PostID:    post.ID,
		UserID:    &authorID,
		Content:   gofakeit.Sentence(10),
		CreatedAt: post.CreatedAt.Add(time.Duration(f.rng.Intn(3600)) * time.Second),
	}
	if parent != nil {
		comment.ParentCommentID = &parent.ID
		comment.CreatedAt = parent.CreatedAt.Add(time.Duration(f.rng.Intn(1800)) * time.Second)
	}
	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateVote persists a vote on the post. Duplicate (user, target) pairs are
// skipped silently so random assignment never trips the unique index.
func (f *Factory) CreateVote(voter *models.User, post *models.Post) error {
	voteType := models.VoteUp
	if f.rng.Intn(4) == 0 {
		voteType = models.VoteDown
	}
	vote := &models.Vote{
		ID:       uuid.NewString(),
		UserID:   voter.ID,
		PostID:   &post.ID,
		VoteType: voteType,
	}
	err := f.db.Create(vote).Error
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return nil
	}
	return err
}

// CreateChat persists a 1-on-1 chat, optionally attached to a post.
func (f *Factory) CreateChat(a, b *models.User, post *models.Post) (*models.Chat, error) {
	chat := &models.Chat{
		ID:             uuid.NewString(),
		Participant1ID: a.ID,
		Participant2ID: b.ID,
		CreatedAt:      f.spreadBack(30),
	}
	if post != nil {
		chat.PostID = &post.ID
	}
	chat.LastMessageAt = chat.CreatedAt
	if err := f.db.Create(chat).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

// CreateMessage persists a message and bumps the chat's activity pointer.
func (f *Factory) CreateMessage(chat *models.Chat, sender *models.User, isRead bool) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		UserID:    sender.ID,
		Content:   gofakeit.Sentence(8),
		IsRead:    isRead,
		CreatedAt: chat.LastMessageAt.Add(time.Duration(1+f.rng.Intn(600)) * time.Second),
	}
	if err := f.db.Create(msg).Error; err != nil {
		return nil, err
	}
	chat.LastMessageAt = msg.CreatedAt
	err := f.db.Model(&models.Chat{}).
		Where("id = ?", chat.ID).
		Update("last_message_at", msg.CreatedAt).Error
	return msg, err
}

// Run populates the database per the profile.
func Run(db *gorm.DB, profile *Profile, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if profile == nil {
		profile = DefaultProfile()
	}

	if profile.Clean {
		// Hard delete in dependency order.
		for _, model := range []any{
			&models.ChatMessage{}, &models.Chat{}, &models.Vote{},
			&models.Comment{}, &models.Post{}, &models.User{},
		} {
			if err := db.Unscoped().Where("1 = 1").Delete(model).Error; err != nil {
				return fmt.Errorf("cleaning tables: %w", err)
			}
		}
	}

	f := NewFactory(db)

	users := make([]*models.User, 0, profile.Users)
	for _, account := range profile.Accounts {
		user, err := f.CreateUser(account.Username, account.Email, account.Password)
		if err != nil {
			return fmt.Errorf("creating account %s: %w", account.Username, err)
		}
		users = append(users, user)
	}
	for len(users) < profile.Users {
		user, err := f.CreateRandomUser()
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		users = append(users, user)
	}
	if len(users) < 2 {
		return fmt.Errorf("seeding needs at least 2 users, have %d", len(users))
	}

	pick := func() *models.User { return users[f.rng.Intn(len(users))] }

	posts := make([]*models.Post, 0, profile.Posts)
	for i := 0; i < profile.Posts; i++ {
		category := models.CategoryFeed
		if i%4 == 0 {
			category = models.CategoryLostFound
		}
		post, err := f.CreatePost(pick(), category)
		if err != nil {
			return fmt.Errorf("creating post: %w", err)
		}
		posts = append(posts, post)
	}

	for _, post := range posts {
		var roots []*models.Comment
		for i := 0; i < profile.CommentsPerPost; i++ {
			var parent *models.Comment
			if len(roots) > 0 && f.rng.Intn(2) == 0 {
				parent = roots[f.rng.Intn(len(roots))]
			}
			comment, err := f.CreateComment(pick(), post, parent, f.rng.Intn(5) == 0)
			if err != nil {
				return fmt.Errorf("creating comment: %w", err)
			}
			if parent == nil {
				roots = append(roots, comment)
			}
		}
		for i := 0; i < profile.VotesPerPost; i++ {
			if err := f.CreateVote(pick(), post); err != nil {
				return fmt.Errorf("creating vote: %w", err)
			}
		}
	}

	for i := 0; i < profile.Chats; i++ {
		a, b := pick(), pick()
		for a.ID == b.ID {
			b = pick()
		}
		var about *models.Post
		if len(posts) > 0 && i%3 == 0 {
			about = posts[f.rng.Intn(len(posts))]
		}
		chat, err := f.CreateChat(a, b, about)
		if err != nil {
			return fmt.Errorf("creating chat: %w", err)
		}
		participants := []*models.User{a, b}
		for j := 0; j < profile.MessagesPerChat; j++ {
			sender := participants[f.rng.Intn(2)]
			// The newest few messages stay unread.
			isRead := j < profile.MessagesPerChat-3
			if _, err := f.CreateMessage(chat, sender, isRead); err != nil {
				return fmt.Errorf("creating message: %w", err)
			}
		}
	}

	logger.Info("seed complete",
		slog.Int("users", len(users)),
		slog.Int("posts", len(posts)),
		slog.Int("chats", profile.Chats),
	)
	return nil
}
