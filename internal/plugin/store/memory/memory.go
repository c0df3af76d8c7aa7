// Package memory is a process-local document store for development and tests.
// It follows the same partitioning rules as the database backends.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/pagination"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			return New(), nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

type conversationRecord struct {
	id           string // "m_" + conversation id
	participants []string
	lastModified int64
}

// Store keeps partitions as nested maps: partition key -> record id -> record.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]map[string]conversationRecord
	messages      map[string]map[string]model.Message
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		conversations: map[string]map[string]conversationRecord{},
		messages:      map[string]map[string]model.Message{},
	}
}

// --- Message ledger ---

func (s *Store) AddMessage(_ context.Context, conversationID string, msg model.Message) (registrystore.AddMessageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	partition := s.messages[conversationID]
	if partition == nil {
		partition = map[string]model.Message{}
		s.messages[conversationID] = partition
	}
	if existing, ok := partition[msg.ID]; ok {
		return registrystore.AddMessageResult{Outcome: registrystore.AlreadyExisted, Message: existing}, nil
	}
	partition[msg.ID] = msg
	return registrystore.AddMessageResult{Outcome: registrystore.Created, Message: msg}, nil
}

func (s *Store) GetMessage(_ context.Context, conversationID string, messageID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[conversationID][messageID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	return &msg, nil
}

func (s *Store) DeleteMessage(_ context.Context, conversationID string, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[conversationID][messageID]; !ok {
		return &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	delete(s.messages[conversationID], messageID)
	return nil
}

func (s *Store) GetMessages(_ context.Context, conversationID string, query registrystore.PageQuery) (*registrystore.MessagePage, error) {
	after, err := pagination.Decode(query.ContinuationToken)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	var rows []model.Message
	for _, msg := range s.messages[conversationID] {
		if msg.UnixTime > query.LastSeenUnixTime && after.After(msg.UnixTime, msg.ID) {
			rows = append(rows, msg)
		}
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		return pagination.Less(rows[i].UnixTime, rows[i].ID, rows[j].UnixTime, rows[j].ID)
	})
	page, token := pagination.Trim(rows, query.Limit, func(m model.Message) pagination.Position {
		return pagination.Position{UnixTime: m.UnixTime, ID: m.ID}
	})
	return &registrystore.MessagePage{Messages: page, ContinuationToken: token}, nil
}

// --- Conversation index ---

func (s *Store) insertConversation(username string, rec conversationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := registrystore.IndexPartition(username)
	partition := s.conversations[key]
	if partition == nil {
		partition = map[string]conversationRecord{}
		s.conversations[key] = partition
	}
	if _, ok := partition[rec.id]; ok {
		return &registrystore.AlreadyExistsError{Resource: "conversation", ID: registrystore.ConversationIDFromIndexID(rec.id)}
	}
	partition[rec.id] = rec
	return nil
}

func (s *Store) AddConversation(_ context.Context, conversation model.Conversation) error {
	rec := conversationRecord{
		id:           registrystore.IndexID(conversation.ID),
		participants: append([]string(nil), conversation.Participants...),
		lastModified: conversation.LastModifiedUnixTime,
	}
	var exists *registrystore.AlreadyExistsError
	if err := s.insertConversation(conversation.Participants[0], rec); err != nil && !errors.As(err, &exists) {
		return err
	}
	return s.insertConversation(conversation.Participants[1], rec)
}

func (s *Store) GetConversation(_ context.Context, username string, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.conversations[registrystore.IndexPartition(username)][registrystore.IndexID(conversationID)]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return rec.toModel(), nil
}

func (s *Store) DeleteConversation(_ context.Context, username string, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	partition := s.conversations[registrystore.IndexPartition(username)]
	id := registrystore.IndexID(conversationID)
	if _, ok := partition[id]; !ok {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	delete(partition, id)
	return nil
}

// UpdateConversation upserts both participants' records. Each keeps the later of
// its current and the new timestamp.
func (s *Store) UpdateConversation(_ context.Context, unixTime int64, conversationID string) error {
	participants, err := registrystore.Participants(conversationID)
	if err != nil {
		return err
	}
	for _, username := range participants {
		s.upsert(username, conversationID, participants, unixTime)
	}
	return nil
}

func (s *Store) upsert(username, conversationID string, participants []string, unixTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := registrystore.IndexPartition(username)
	partition := s.conversations[key]
	if partition == nil {
		partition = map[string]conversationRecord{}
		s.conversations[key] = partition
	}
	id := registrystore.IndexID(conversationID)
	rec, ok := partition[id]
	if !ok {
		rec = conversationRecord{id: id, participants: participants}
	}
	if unixTime > rec.lastModified {
		rec.lastModified = unixTime
	}
	partition[id] = rec
}

func (s *Store) GetConversations(_ context.Context, username string, query registrystore.PageQuery) (*registrystore.ConversationPage, error) {
	after, err := pagination.Decode(query.ContinuationToken)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	var rows []conversationRecord
	for _, rec := range s.conversations[registrystore.IndexPartition(username)] {
		if rec.lastModified > query.LastSeenUnixTime && after.After(rec.lastModified, rec.id) {
			rows = append(rows, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		return pagination.Less(rows[i].lastModified, rows[i].id, rows[j].lastModified, rows[j].id)
	})
	page, token := pagination.Trim(rows, query.Limit, func(r conversationRecord) pagination.Position {
		return pagination.Position{UnixTime: r.lastModified, ID: r.id}
	})
	out := make([]model.Conversation, len(page))
	for i, rec := range page {
		out[i] = *rec.toModel()
	}
	return &registrystore.ConversationPage{Conversations: out, ContinuationToken: token}, nil
}

func (r conversationRecord) toModel() *model.Conversation {
	return &model.Conversation{
		ID:                   registrystore.ConversationIDFromIndexID(r.id),
		Participants:         append([]string(nil), r.participants...),
		LastModifiedUnixTime: r.lastModified,
	}
}

var _ registrystore.DocumentStore = (*Store)(nil)
