package service

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/telemetry"
)

// NewMessage is a client-submitted message. The server assigns the timestamp.
type NewMessage struct {
	ID             string
	Text           string
	SenderUsername string
}

// Validate rejects a message with a blank id or text.
func (m NewMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return &registrystore.ValidationError{Field: "id", Message: "is required"}
	}
	if strings.TrimSpace(m.Text) == "" {
		return &registrystore.ValidationError{Field: "text", Message: "must not be empty"}
	}
	return nil
}

// MessageList is one page of a conversation's messages, most recent first.
type MessageList struct {
	Messages          []model.MessagesInfo
	ContinuationToken string
}

// MessageService appends to and reads from the message ledger, keeping the
// conversation index's recency in step with new messages.
type MessageService struct {
	store registrystore.DocumentStore
	cfg   *config.Config
	now   func() time.Time
}

// NewMessageService creates a new message service.
func NewMessageService(store registrystore.DocumentStore, cfg *config.Config) *MessageService {
	return &MessageService{store: store, cfg: cfg, now: time.Now}
}

// Add appends msg to the conversation. A repeated id returns the stored message
// unchanged and leaves the conversation's timestamp alone.
func (s *MessageService) Add(ctx context.Context, conversationID string, msg NewMessage) (*model.Message, error) {
	if _, err := registrystore.Participants(conversationID); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return s.add(ctx, conversationID, msg, s.now().UnixMilli())
}

// add stores msg at unixTime. A newly created message moves both index records
// up to its timestamp.
func (s *MessageService) add(ctx context.Context, conversationID string, msg NewMessage, unixTime int64) (*model.Message, error) {
	res, err := s.store.AddMessage(ctx, conversationID, model.Message{
		ID:             msg.ID,
		Text:           msg.Text,
		SenderUsername: msg.SenderUsername,
		UnixTime:       unixTime,
	})
	if err != nil {
		return nil, err
	}
	if res.Outcome == registrystore.AlreadyExisted {
		log.FromContext(ctx).Debug("Message already stored", "conversationId", conversationID, "messageId", msg.ID)
		return &res.Message, nil
	}
	telemetry.Track(ctx, telemetry.EventMessageCreated, "conversationId", conversationID, "messageId", msg.ID)
	if err := s.store.UpdateConversation(ctx, res.Message.UnixTime, conversationID); err != nil {
		return nil, err
	}
	return &res.Message, nil
}

// Get returns a single message.
func (s *MessageService) Get(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	return s.store.GetMessage(ctx, conversationID, messageID)
}

// Delete removes a single message from the ledger.
func (s *MessageService) Delete(ctx context.Context, conversationID, messageID string) error {
	if err := s.store.DeleteMessage(ctx, conversationID, messageID); err != nil {
		return err
	}
	telemetry.Track(ctx, telemetry.EventMessageDeleted, "conversationId", conversationID, "messageId", messageID)
	return nil
}

// List returns a page of messages newer than query.LastSeenUnixTime.
func (s *MessageService) List(ctx context.Context, conversationID string, query registrystore.PageQuery) (*MessageList, error) {
	query.Limit = s.cfg.PageSize(query.Limit)
	page, err := s.store.GetMessages(ctx, conversationID, query)
	if err != nil {
		return nil, err
	}
	infos := make([]model.MessagesInfo, len(page.Messages))
	for i, m := range page.Messages {
		infos[i] = m.Info()
	}
	return &MessageList{Messages: infos, ContinuationToken: page.ContinuationToken}, nil
}
