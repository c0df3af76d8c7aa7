package pagination

import (
	"errors"
	"testing"

	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_EmptyTokenStartsAtTheTop(t *testing.T) {
	p, err := Decode("")
	require.NoError(t, err)
	require.Nil(t, p)
	require.True(t, p.After(1<<62, "zzz"))
}

func TestEncodeDecode(t *testing.T) {
	token := Encode(Position{UnixTime: 1700000000123, ID: "m_alice_bob"})
	require.NotEmpty(t, token)

	p, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), p.UnixTime)
	assert.Equal(t, "m_alice_bob", p.ID)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	for _, token := range []string{"!!!", "bm90LWpzb24", Encode(Position{UnixTime: 5})} {
		_, err := Decode(token)
		var validation *registrystore.ValidationError
		require.True(t, errors.As(err, &validation), "token %q", token)
		require.Equal(t, "continuationToken", validation.Field)
	}
}

func TestPosition_After(t *testing.T) {
	p := &Position{UnixTime: 100, ID: "m2"}

	assert.True(t, p.After(99, "zz"))
	assert.True(t, p.After(100, "m1"))
	assert.False(t, p.After(100, "m2"))
	assert.False(t, p.After(100, "m3"))
	assert.False(t, p.After(101, "a"))
}

func TestTrim(t *testing.T) {
	type row struct {
		t  int64
		id string
	}
	pos := func(r row) Position { return Position{UnixTime: r.t, ID: r.id} }
	rows := []row{{5, "e"}, {4, "d"}, {3, "c"}, {2, "b"}}

	page, token := Trim(rows, 3, pos)
	require.Len(t, page, 3)
	require.NotEmpty(t, token)
	next, err := Decode(token)
	require.NoError(t, err)
	require.Equal(t, Position{UnixTime: 3, ID: "c"}, *next)

	page, token = Trim(rows[:2], 3, pos)
	require.Len(t, page, 2)
	require.Empty(t, token)
}

func TestLess(t *testing.T) {
	assert.True(t, Less(2, "a", 1, "z"))
	assert.True(t, Less(1, "b", 1, "a"))
	assert.False(t, Less(1, "a", 1, "b"))
}
