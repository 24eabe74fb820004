package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Account is a fixed login created by the seeder, for demos and manual
// testing against a known password.
type Account struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Profile controls how much data the seeder generates.
type Profile struct {
	Users           int  `yaml:"users"`
	Posts           int  `yaml:"posts"`
	CommentsPerPost int  `yaml:"comments_per_post"`
	VotesPerPost    int  `yaml:"votes_per_post"`
	Chats           int  `yaml:"chats"`
	MessagesPerChat int  `yaml:"messages_per_chat"`
	Clean           bool `yaml:"clean"`

	Accounts []Account `yaml:"accounts"`
}

// DefaultProfile is a small data set suitable for local development.
func DefaultProfile() *Profile {
	return &Profile{
		Users:           12,
		Posts:           30,
		CommentsPerPost: 6,
		VotesPerPost:    8,
		Chats:           8,
		MessagesPerChat: 15,
		Accounts: []Account{
			{Username: "demo", Email: "demo@quad.local", Password: "demo-password"},
		},
	}
}

// LoadProfile reads a yaml profile from path. A missing file falls back to
// the default profile.
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultProfile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading seed profile: %w", err)
	}

	profile := DefaultProfile()
	if err := yaml.Unmarshal(raw, profile); err != nil {
		return nil, fmt.Errorf("parsing seed profile: %w", err)
	}
	if profile.Users < len(profile.Accounts) {
		profile.Users = len(profile.Accounts)
	}
	return profile, nil
}
