// ABOUTME: Store interface and data types for cyborg-gateway persistence
// ABOUTME: Defines Conversation, Message, Profile structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation that already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Role constants for message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Conversation represents a chat conversation owned by exactly one account
type Conversation struct {
	ID             string
	OwnerAccountID string
	Title          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message represents a single message within a conversation.
// Messages are immutable once written and ordered by CreatedAt.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Profile represents a directory entry for an account
type Profile struct {
	AccountID   string
	DisplayName string
	Bio         string
	Tags        []string
	UpdatedAt   time.Time
}

// Follow represents one edge in the follow graph
type Follow struct {
	FollowerID string
	FolloweeID string
	CreatedAt  time.Time
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	ListConversations(ctx context.Context, ownerAccountID string, limit int) ([]*Conversation, error)

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	GetRecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]*Message, error)

	// Profiles (directory)
	UpsertProfile(ctx context.Context, profile *Profile) error
	GetProfile(ctx context.Context, accountID string) (*Profile, error)
	SearchProfiles(ctx context.Context, query string, limit int) ([]*Profile, error)

	// Follow graph
	CreateFollow(ctx context.Context, followerID, followeeID string) error
	DeleteFollow(ctx context.Context, followerID, followeeID string) error
	ListFollowing(ctx context.Context, followerID string, limit int) ([]*Follow, error)

	Close() error
}
