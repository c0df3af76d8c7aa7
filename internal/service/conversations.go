package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/model"
	registryprofile "github.com/chirino/chat-service/internal/registry/profile"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// recipientLookups bounds the concurrent profile reads made for one listing page.
const recipientLookups = 8

// CreateConversation is a request to start a conversation between two users.
type CreateConversation struct {
	Participants []string
	FirstMessage NewMessage
}

// CreatedConversation is the result of a create.
type CreatedConversation struct {
	ID              string
	CreatedUnixTime int64
}

// ConversationList is one page of a user's conversations with the other
// participant's profile resolved.
type ConversationList struct {
	Conversations     []model.ConversationsInfo
	ContinuationToken string
}

// ConversationService composes the conversation index, the message ledger and
// the profile directory.
type ConversationService struct {
	store    registrystore.DocumentStore
	profiles registryprofile.ProfileStore
	messages *MessageService
	cfg      *config.Config
	now      func() time.Time
}

// NewConversationService creates a new conversation service.
func NewConversationService(store registrystore.DocumentStore, profiles registryprofile.ProfileStore, messages *MessageService, cfg *config.Config) *ConversationService {
	return &ConversationService{
		store:    store,
		profiles: profiles,
		messages: messages,
		cfg:      cfg,
		now:      time.Now,
	}
}

func validateParticipants(participants []string) error {
	if len(participants) != 2 {
		return &registrystore.ValidationError{Field: "participants", Message: "exactly two participants are required"}
	}
	for _, p := range participants {
		if strings.TrimSpace(p) == "" {
			return &registrystore.ValidationError{Field: "participants", Message: "usernames must not be empty"}
		}
		if strings.Contains(p, registrystore.ConversationIDSeparator) {
			return &registrystore.ValidationError{Field: "participants", Message: fmt.Sprintf("username %q must not contain %q", p, registrystore.ConversationIDSeparator)}
		}
	}
	if participants[0] == participants[1] {
		return &registrystore.ValidationError{Field: "participants", Message: "participants must be different users"}
	}
	return nil
}

// Create writes both index records and then appends the first message. Calling it
// again with the same participants and message is a no-op that returns the
// original creation time.
func (s *ConversationService) Create(ctx context.Context, req CreateConversation) (*CreatedConversation, error) {
	if err := validateParticipants(req.Participants); err != nil {
		return nil, err
	}
	if err := req.FirstMessage.Validate(); err != nil {
		return nil, err
	}

	id := registrystore.ConversationID(req.Participants, s.cfg.SortConversationIDs)
	participants, err := registrystore.Participants(id)
	if err != nil {
		return nil, err
	}
	logger := log.FromContext(ctx).With("conversationId", id)

	now := s.now().UnixMilli()
	created := now
	existed := false

	err = s.store.AddConversation(ctx, model.Conversation{
		ID:                   id,
		Participants:         participants,
		LastModifiedUnixTime: now,
	})
	var exists *registrystore.AlreadyExistsError
	switch {
	case err == nil:
		telemetry.Track(ctx, telemetry.EventConversationCreated, "conversationId", id)
	case errors.As(err, &exists):
		existing, err := s.store.GetConversation(ctx, participants[1], id)
		if err != nil {
			return nil, err
		}
		logger.Debug("Conversation already exists", "createdUnixTime", existing.LastModifiedUnixTime)
		created = existing.LastModifiedUnixTime
		existed = true
	default:
		return nil, err
	}

	// A new first message always bumps both records. AddConversation may have
	// absorbed a conflict on one participant left by a half-written create, and
	// the bump brings that record level with the one just inserted.
	msg, err := s.messages.add(ctx, id, req.FirstMessage, now)
	if err != nil {
		logger.Warn("First message append failed; conversation has no messages yet", "err", err)
		return nil, err
	}
	if !existed && msg.UnixTime != now {
		// The message outlived a half-written create and was not re-added.
		logger.Debug("Realigning conversation records after partial create")
		if err := s.store.UpdateConversation(ctx, now, id); err != nil {
			return nil, err
		}
	}
	return &CreatedConversation{ID: id, CreatedUnixTime: created}, nil
}

// Get reads the conversation from username's index. An empty username reads the
// second participant's record.
func (s *ConversationService) Get(ctx context.Context, conversationID, username string) (*model.Conversation, error) {
	participants, err := registrystore.Participants(conversationID)
	if err != nil {
		return nil, err
	}
	if username == "" {
		username = participants[1]
	}
	return s.store.GetConversation(ctx, username, conversationID)
}

// Delete removes username's own record. The other participant keeps theirs.
func (s *ConversationService) Delete(ctx context.Context, conversationID, username string) error {
	if _, err := registrystore.Participants(conversationID); err != nil {
		return err
	}
	if strings.TrimSpace(username) == "" {
		return &registrystore.ValidationError{Field: "username", Message: "is required"}
	}
	if err := s.store.DeleteConversation(ctx, username, conversationID); err != nil {
		return err
	}
	telemetry.Track(ctx, telemetry.EventConversationDeleted, "conversationId", conversationID, "username", username)
	return nil
}

// List returns a page of username's conversations, most recently active first,
// each with the other participant's profile. Any profile lookup failure fails
// the whole page.
func (s *ConversationService) List(ctx context.Context, username string, query registrystore.PageQuery) (*ConversationList, error) {
	if strings.TrimSpace(username) == "" {
		return nil, &registrystore.ValidationError{Field: "username", Message: "is required"}
	}
	query.Limit = s.cfg.PageSize(query.Limit)
	page, err := s.store.GetConversations(ctx, username, query)
	if err != nil {
		return nil, err
	}

	infos := make([]model.ConversationsInfo, len(page.Conversations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recipientLookups)
	for i, c := range page.Conversations {
		g.Go(func() error {
			recipient, err := recipientOf(c.ID, username)
			if err != nil {
				return err
			}
			profile, err := s.profiles.GetProfile(gctx, recipient)
			if err != nil {
				return fmt.Errorf("resolve recipient %q of conversation %s: %w", recipient, c.ID, err)
			}
			infos[i] = model.ConversationsInfo{
				ID:                   c.ID,
				LastModifiedUnixTime: c.LastModifiedUnixTime,
				Recipient:            *profile,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ConversationList{Conversations: infos, ContinuationToken: page.ContinuationToken}, nil
}

func recipientOf(conversationID, username string) (string, error) {
	participants, err := registrystore.Participants(conversationID)
	if err != nil {
		return "", err
	}
	if participants[0] != username {
		return participants[0], nil
	}
	return participants[1], nil
}
