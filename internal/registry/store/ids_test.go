package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversationID_KeepsCallerOrder(t *testing.T) {
	require.Equal(t, "bob_alice", ConversationID([]string{"bob", "alice"}, false))
	require.Equal(t, "alice_bob", ConversationID([]string{"alice", "bob"}, false))
}

func TestConversationID_Sorted(t *testing.T) {
	require.Equal(t, "alice_bob", ConversationID([]string{"bob", "alice"}, true))
	require.Equal(t, "alice_bob", ConversationID([]string{"alice", "bob"}, true))
}

func TestParticipants(t *testing.T) {
	parts, err := Participants("bob_alice")
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "alice"}, parts)

	for _, bad := range []string{"", "alice", "alice_", "_bob", "a_b_c"} {
		_, err := Participants(bad)
		var validation *ValidationError
		require.True(t, errors.As(err, &validation), "expected validation error for %q", bad)
	}
}

func TestIndexKeys(t *testing.T) {
	require.Equal(t, "c_alice", IndexPartition("alice"))
	require.Equal(t, "m_alice_bob", IndexID("alice_bob"))
	require.Equal(t, "alice_bob", ConversationIDFromIndexID("m_alice_bob"))
}
