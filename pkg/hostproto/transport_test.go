package hostproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeCommandDecodesSeek(t *testing.T) {
	raw := []byte(`{"type":"hostproto.Seek","payload":{"Micros":12345}}`)
	cmd, err := decodeCommand(raw)
	require.NoError(t, err)
	seek, ok := cmd.(Seek)
	require.True(t, ok)
	require.Equal(t, int64(12345), seek.Micros)
}

func TestDecodeCommandUnknownTypeErrors(t *testing.T) {
	raw := []byte(`{"type":"hostproto.NotACommand","payload":{}}`)
	_, err := decodeCommand(raw)
	require.Error(t, err)
}

func TestEncodeEventProducesTypeTag(t *testing.T) {
	out, err := encodeEvent(TimeUpdate{Micros: 42})
	require.NoError(t, err)
	require.Contains(t, string(out), `"type":"hostproto.TimeUpdate"`)
	require.Contains(t, string(out), `"Micros":42`)
}

func TestSessionStoreAuthenticate(t *testing.T) {
	store, token, err := NewSessionStore()
	require.NoError(t, err)

	require.False(t, store.IsAuthorized("conn1"))
	require.True(t, store.Authenticate("conn1", token))
	require.True(t, store.IsAuthorized("conn1"))

	require.False(t, store.Authenticate("conn2", "wrong-token"))
	require.False(t, store.IsAuthorized("conn2"))
}
