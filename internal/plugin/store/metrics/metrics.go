package metrics

import (
	"context"
	"time"

	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/telemetry"
)

// Wrap returns a DocumentStore that records StoreLatency for every operation.
func Wrap(inner store.DocumentStore) store.DocumentStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.DocumentStore
}

func observe(op string, start time.Time) {
	telemetry.ObserveStore(op, start)
}

func (m *metricsStore) AddMessage(ctx context.Context, conversationID string, msg model.Message) (store.AddMessageResult, error) {
	defer observe("add_message", time.Now())
	return m.inner.AddMessage(ctx, conversationID, msg)
}

func (m *metricsStore) GetMessage(ctx context.Context, conversationID string, messageID string) (*model.Message, error) {
	defer observe("get_message", time.Now())
	return m.inner.GetMessage(ctx, conversationID, messageID)
}

func (m *metricsStore) DeleteMessage(ctx context.Context, conversationID string, messageID string) error {
	defer observe("delete_message", time.Now())
	return m.inner.DeleteMessage(ctx, conversationID, messageID)
}

func (m *metricsStore) GetMessages(ctx context.Context, conversationID string, query store.PageQuery) (*store.MessagePage, error) {
	defer observe("get_messages", time.Now())
	return m.inner.GetMessages(ctx, conversationID, query)
}

func (m *metricsStore) AddConversation(ctx context.Context, conversation model.Conversation) error {
	defer observe("add_conversation", time.Now())
	return m.inner.AddConversation(ctx, conversation)
}

func (m *metricsStore) GetConversation(ctx context.Context, username string, conversationID string) (*model.Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, username, conversationID)
}

func (m *metricsStore) DeleteConversation(ctx context.Context, username string, conversationID string) error {
	defer observe("delete_conversation", time.Now())
	return m.inner.DeleteConversation(ctx, username, conversationID)
}

func (m *metricsStore) UpdateConversation(ctx context.Context, unixTime int64, conversationID string) error {
	defer observe("update_conversation", time.Now())
	return m.inner.UpdateConversation(ctx, unixTime, conversationID)
}

func (m *metricsStore) GetConversations(ctx context.Context, username string, query store.PageQuery) (*store.ConversationPage, error) {
	defer observe("get_conversations", time.Now())
	return m.inner.GetConversations(ctx, username, query)
}
