package store

import (
	"sort"
	"strings"
)

// ConversationIDSeparator joins the two participants of a conversation id.
const ConversationIDSeparator = "_"

// ConversationID derives the conversation id from a participant pair. The caller's
// order is kept unless sorted is set, in which case the pair is ordered
// lexicographically first.
func ConversationID(participants []string, sorted bool) string {
	pair := []string{participants[0], participants[1]}
	if sorted {
		sort.Strings(pair)
	}
	return pair[0] + ConversationIDSeparator + pair[1]
}

// Participants splits a conversation id back into its two usernames, preserving
// the order they were joined in.
func Participants(conversationID string) ([]string, error) {
	parts := strings.Split(conversationID, ConversationIDSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, &ValidationError{Field: "conversationId", Message: "must be two usernames joined by '_'"}
	}
	return parts, nil
}

// IndexPartition returns the index partition key owned by username.
func IndexPartition(username string) string {
	return IndexPartitionPrefix + username
}

// IndexID returns the id a conversation is stored under in an index partition.
func IndexID(conversationID string) string {
	return IndexIDPrefix + conversationID
}

// ConversationIDFromIndexID strips the index prefix from a stored id.
func ConversationIDFromIndexID(indexID string) string {
	return strings.TrimPrefix(indexID, IndexIDPrefix)
}
