package store

import (
	"context"
	"fmt"

	"github.com/chirino/chat-service/internal/model"
)

const (
	// IndexPartitionPrefix prefixes the username that owns a conversation index partition.
	IndexPartitionPrefix = "c_"
	// IndexIDPrefix prefixes the conversation id inside an index partition.
	IndexIDPrefix = "m_"
)

// AddOutcome tells whether an idempotent insert created a record.
type AddOutcome int

const (
	Created AddOutcome = iota
	AlreadyExisted
)

func (o AddOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExisted:
		return "already_existed"
	}
	return fmt.Sprintf("AddOutcome(%d)", int(o))
}

// AddMessageResult is returned by MessageStore.AddMessage. Message is the stored
// record: the new one when Outcome is Created, the pre-existing one otherwise.
type AddMessageResult struct {
	Outcome AddOutcome
	Message model.Message
}

// PageQuery selects one page of a descending, watermark-filtered listing.
// ContinuationToken is opaque and only carries the resume position; LastSeenUnixTime
// must be resupplied unchanged when following a token.
type PageQuery struct {
	ContinuationToken string
	Limit             int
	LastSeenUnixTime  int64
}

// MessagePage is a page of the ledger, most recent first.
type MessagePage struct {
	Messages          []model.Message
	ContinuationToken string
}

// ConversationPage is a page of one participant's index, most recently active first.
type ConversationPage struct {
	Conversations     []model.Conversation
	ContinuationToken string
}

// MessageStore is the per-conversation message ledger.
type MessageStore interface {
	// AddMessage inserts msg into the conversation's partition. A duplicate id is
	// not an error: the existing record is returned with Outcome AlreadyExisted.
	AddMessage(ctx context.Context, conversationID string, msg model.Message) (AddMessageResult, error)
	GetMessage(ctx context.Context, conversationID string, messageID string) (*model.Message, error)
	DeleteMessage(ctx context.Context, conversationID string, messageID string) error
	GetMessages(ctx context.Context, conversationID string, query PageQuery) (*MessagePage, error)
}

// ConversationStore is the owner-partitioned conversation index.
type ConversationStore interface {
	// AddConversation writes one record per participant, first then second. A
	// conflict on the first write is ignored; a conflict on the second fails with
	// AlreadyExistsError.
	AddConversation(ctx context.Context, conversation model.Conversation) error
	GetConversation(ctx context.Context, username string, conversationID string) (*model.Conversation, error)
	// DeleteConversation removes only username's own record.
	DeleteConversation(ctx context.Context, username string, conversationID string) error
	// UpdateConversation upserts both participants' records in parallel. The stored
	// timestamp never moves backwards, and a missing record is recreated.
	UpdateConversation(ctx context.Context, unixTime int64, conversationID string) error
	GetConversations(ctx context.Context, username string, query PageQuery) (*ConversationPage, error)
}

// DocumentStore is a backend that serves both the ledger and the index.
type DocumentStore interface {
	ConversationStore
	MessageStore
}

// Loader creates a DocumentStore from config.
type Loader func(ctx context.Context) (DocumentStore, error)

// Plugin represents a document store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a document store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered document store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named document store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
