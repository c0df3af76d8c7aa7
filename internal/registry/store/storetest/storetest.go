// Package storetest is a contract suite shared by every DocumentStore backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises the ledger and index contract against s. Every subtest works in
// its own freshly named partitions, so a single store instance can be shared.
func Run(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	t.Run("AddMessageIsIdempotent", func(t *testing.T) { testAddMessageIsIdempotent(t, ctx, s) })
	t.Run("GetAndDeleteMessage", func(t *testing.T) { testGetAndDeleteMessage(t, ctx, s) })
	t.Run("GetMessagesPaging", func(t *testing.T) { testGetMessagesPaging(t, ctx, s) })
	t.Run("GetMessagesWatermark", func(t *testing.T) { testGetMessagesWatermark(t, ctx, s) })
	t.Run("MessagePartitionsAreIsolated", func(t *testing.T) { testMessagePartitionsAreIsolated(t, ctx, s) })
	t.Run("MalformedTokenIsRejected", func(t *testing.T) { testMalformedTokenIsRejected(t, ctx, s) })
	t.Run("AddConversationWritesBothParticipants", func(t *testing.T) { testAddConversationWritesBothParticipants(t, ctx, s) })
	t.Run("AddConversationConflictRules", func(t *testing.T) { testAddConversationConflictRules(t, ctx, s) })
	t.Run("DeleteConversationIsOneSided", func(t *testing.T) { testDeleteConversationIsOneSided(t, ctx, s) })
	t.Run("UpdateConversation", func(t *testing.T) { testUpdateConversation(t, ctx, s) })
	t.Run("UpdateConversationRejectsBadID", func(t *testing.T) { testUpdateConversationRejectsBadID(t, ctx, s) })
	t.Run("GetConversationsPaging", func(t *testing.T) { testGetConversationsPaging(t, ctx, s) })
	t.Run("GetConversationsWatermark", func(t *testing.T) { testGetConversationsWatermark(t, ctx, s) })
}

func user(name string) string {
	return name + "-" + uuid.NewString()[:8]
}

func conversation(a, b string, at int64) model.Conversation {
	return model.Conversation{
		ID:                   a + registrystore.ConversationIDSeparator + b,
		Participants:         []string{a, b},
		LastModifiedUnixTime: at,
	}
}

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	var notFound *registrystore.NotFoundError
	require.True(t, errors.As(err, &notFound), "expected NotFoundError, got %v", err)
}

func testAddMessageIsIdempotent(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	convID := user("alice") + "_" + user("bob")
	first := model.Message{ID: "m1", Text: "hi", SenderUsername: "alice", UnixTime: 1000}

	res, err := s.AddMessage(ctx, convID, first)
	require.NoError(t, err)
	assert.Equal(t, registrystore.Created, res.Outcome)
	assert.Equal(t, first, res.Message)

	again := model.Message{ID: "m1", Text: "changed", SenderUsername: "alice", UnixTime: 2000}
	res, err = s.AddMessage(ctx, convID, again)
	require.NoError(t, err)
	assert.Equal(t, registrystore.AlreadyExisted, res.Outcome)
	assert.Equal(t, first, res.Message)

	stored, err := s.GetMessage(ctx, convID, "m1")
	require.NoError(t, err)
	assert.Equal(t, first, *stored)
}

func testGetAndDeleteMessage(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	convID := user("alice") + "_" + user("bob")

	_, err := s.GetMessage(ctx, convID, "missing")
	requireNotFound(t, err)
	requireNotFound(t, s.DeleteMessage(ctx, convID, "missing"))

	_, err = s.AddMessage(ctx, convID, model.Message{ID: "m1", Text: "hi", SenderUsername: "alice", UnixTime: 1000})
	require.NoError(t, err)
	require.NoError(t, s.DeleteMessage(ctx, convID, "m1"))

	_, err = s.GetMessage(ctx, convID, "m1")
	requireNotFound(t, err)
}

func addMessages(t *testing.T, ctx context.Context, s registrystore.DocumentStore, convID string, times ...int64) {
	t.Helper()
	for i, at := range times {
		_, err := s.AddMessage(ctx, convID, model.Message{
			ID:             fmt.Sprintf("m%d", i+1),
			Text:           fmt.Sprintf("text %d", i+1),
			SenderUsername: "alice",
			UnixTime:       at,
		})
		require.NoError(t, err)
	}
}

func messageTimes(msgs []model.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.UnixTime
	}
	return out
}

func testGetMessagesPaging(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	convID := user("alice") + "_" + user("bob")
	addMessages(t, ctx, s, convID, 100, 200, 300, 400, 500)

	page, err := s.GetMessages(ctx, convID, registrystore.PageQuery{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{500, 400, 300}, messageTimes(page.Messages))
	require.NotEmpty(t, page.ContinuationToken)

	next, err := s.GetMessages(ctx, convID, registrystore.PageQuery{Limit: 3, ContinuationToken: page.ContinuationToken})
	require.NoError(t, err)
	assert.Equal(t, []int64{200, 100}, messageTimes(next.Messages))
	assert.Empty(t, next.ContinuationToken)
}

func testGetMessagesWatermark(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	convID := user("alice") + "_" + user("bob")
	addMessages(t, ctx, s, convID, 100, 200, 300, 400, 500)

	page, err := s.GetMessages(ctx, convID, registrystore.PageQuery{Limit: 2, LastSeenUnixTime: 200})
	require.NoError(t, err)
	assert.Equal(t, []int64{500, 400}, messageTimes(page.Messages))
	require.NotEmpty(t, page.ContinuationToken)

	next, err := s.GetMessages(ctx, convID, registrystore.PageQuery{Limit: 2, LastSeenUnixTime: 200, ContinuationToken: page.ContinuationToken})
	require.NoError(t, err)
	assert.Equal(t, []int64{300}, messageTimes(next.Messages))
	assert.Empty(t, next.ContinuationToken)
}

func testMessagePartitionsAreIsolated(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	a := user("alice") + "_" + user("bob")
	b := user("carol") + "_" + user("dave")
	addMessages(t, ctx, s, a, 100, 200)
	addMessages(t, ctx, s, b, 300)

	page, err := s.GetMessages(ctx, a, registrystore.PageQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{200, 100}, messageTimes(page.Messages))

	_, err = s.GetMessage(ctx, b, "m2")
	requireNotFound(t, err)
}

func testMalformedTokenIsRejected(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	var validation *registrystore.ValidationError

	_, err := s.GetMessages(ctx, "a_b", registrystore.PageQuery{Limit: 1, ContinuationToken: "%%%"})
	require.True(t, errors.As(err, &validation), "got %v", err)

	_, err = s.GetConversations(ctx, "a", registrystore.PageQuery{Limit: 1, ContinuationToken: "%%%"})
	require.True(t, errors.As(err, &validation), "got %v", err)
}

func testAddConversationWritesBothParticipants(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	alice, bob := user("alice"), user("bob")
	conv := conversation(alice, bob, 1234)
	require.NoError(t, s.AddConversation(ctx, conv))

	fromAlice, err := s.GetConversation(ctx, alice, conv.ID)
	require.NoError(t, err)
	fromBob, err := s.GetConversation(ctx, bob, conv.ID)
	require.NoError(t, err)

	assert.Equal(t, conv, *fromAlice)
	assert.Equal(t, *fromAlice, *fromBob)
}

func testAddConversationConflictRules(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	alice, bob := user("alice"), user("bob")
	conv := conversation(alice, bob, 1234)
	require.NoError(t, s.AddConversation(ctx, conv))

	// Only the first participant's record survives, as after a partial failure.
	require.NoError(t, s.DeleteConversation(ctx, bob, conv.ID))

	// A retry absorbs the conflict on the first write and completes the second.
	require.NoError(t, s.AddConversation(ctx, conv))
	_, err := s.GetConversation(ctx, bob, conv.ID)
	require.NoError(t, err)

	// With both records present the second write conflicts.
	err = s.AddConversation(ctx, conv)
	var exists *registrystore.AlreadyExistsError
	require.True(t, errors.As(err, &exists), "expected AlreadyExistsError, got %v", err)
}

func testDeleteConversationIsOneSided(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	alice, bob := user("alice"), user("bob")
	conv := conversation(alice, bob, 1234)
	require.NoError(t, s.AddConversation(ctx, conv))

	require.NoError(t, s.DeleteConversation(ctx, alice, conv.ID))
	_, err := s.GetConversation(ctx, alice, conv.ID)
	requireNotFound(t, err)

	fromBob, err := s.GetConversation(ctx, bob, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, fromBob.ID)

	requireNotFound(t, s.DeleteConversation(ctx, alice, conv.ID))
	_, err = s.GetConversation(ctx, user("nobody"), conv.ID)
	requireNotFound(t, err)
}

func testUpdateConversation(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	alice, bob := user("alice"), user("bob")
	conv := conversation(alice, bob, 1000)
	require.NoError(t, s.AddConversation(ctx, conv))

	require.NoError(t, s.UpdateConversation(ctx, 2000, conv.ID))
	for _, u := range []string{alice, bob} {
		got, err := s.GetConversation(ctx, u, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2000), got.LastModifiedUnixTime)
		assert.Equal(t, []string{alice, bob}, got.Participants)
	}

	// An older timestamp does not move the records backwards.
	require.NoError(t, s.UpdateConversation(ctx, 1500, conv.ID))
	got, err := s.GetConversation(ctx, alice, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.LastModifiedUnixTime)

	// A missing side is recreated by the next update.
	require.NoError(t, s.DeleteConversation(ctx, bob, conv.ID))
	require.NoError(t, s.UpdateConversation(ctx, 3000, conv.ID))
	healed, err := s.GetConversation(ctx, bob, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), healed.LastModifiedUnixTime)
	assert.Equal(t, []string{alice, bob}, healed.Participants)
}

func testUpdateConversationRejectsBadID(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	err := s.UpdateConversation(ctx, 1000, "no-separator")
	var validation *registrystore.ValidationError
	require.True(t, errors.As(err, &validation), "got %v", err)
}

func conversationIDs(convs []model.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func testGetConversationsPaging(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	owner := user("owner")
	var ids []string
	for i := 1; i <= 5; i++ {
		conv := conversation(owner, user(fmt.Sprintf("peer%d", i)), int64(i*100))
		require.NoError(t, s.AddConversation(ctx, conv))
		ids = append(ids, conv.ID)
	}
	// Unrelated partition.
	require.NoError(t, s.AddConversation(ctx, conversation(user("x"), user("y"), 999)))

	page, err := s.GetConversations(ctx, owner, registrystore.PageQuery{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[4], ids[3], ids[2]}, conversationIDs(page.Conversations))
	require.NotEmpty(t, page.ContinuationToken)

	next, err := s.GetConversations(ctx, owner, registrystore.PageQuery{Limit: 3, ContinuationToken: page.ContinuationToken})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1], ids[0]}, conversationIDs(next.Conversations))
	assert.Empty(t, next.ContinuationToken)
}

func testGetConversationsWatermark(t *testing.T, ctx context.Context, s registrystore.DocumentStore) {
	owner := user("owner")
	var ids []string
	for i := 1; i <= 4; i++ {
		conv := conversation(user(fmt.Sprintf("peer%d", i)), owner, int64(i*100))
		require.NoError(t, s.AddConversation(ctx, conv))
		ids = append(ids, conv.ID)
	}

	page, err := s.GetConversations(ctx, owner, registrystore.PageQuery{Limit: 10, LastSeenUnixTime: 200})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[3], ids[2]}, conversationIDs(page.Conversations))
	assert.Empty(t, page.ContinuationToken)

	// Recency bump moves an old conversation back above the watermark.
	require.NoError(t, s.UpdateConversation(ctx, 1000, ids[0]))
	page, err = s.GetConversations(ctx, owner, registrystore.PageQuery{Limit: 10, LastSeenUnixTime: 200})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[3], ids[2]}, conversationIDs(page.Conversations))
}
