package biometric

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestIsStableAndScoped(t *testing.T) {
	h, err := NewHasher([]byte("kiosk-secret"))
	require.NoError(t, err)

	a := h.Digest("org-1", "finger-42")
	require.Len(t, a, 64)
	require.Equal(t, a, h.Digest("org-1", "finger-42"))
	require.NotEqual(t, a, h.Digest("org-2", "finger-42"))
	require.NotEqual(t, a, h.Digest("org-1", "finger-43"))
	require.NotEqual(t, h.Digest("org-1a", "b"), h.Digest("org-1", "ab"))

	other, err := NewHasher([]byte("different"))
	require.NoError(t, err)
	require.NotEqual(t, a, other.Digest("org-1", "finger-42"))
}

func TestNewHasherValidatesKey(t *testing.T) {
	_, err := NewHasher(nil)
	require.ErrorIs(t, err, ErrKeyLength)
	_, err = NewHasher([]byte(strings.Repeat("k", 65)))
	require.ErrorIs(t, err, ErrKeyLength)
}
