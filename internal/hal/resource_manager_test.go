package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceManager_DuplicateClaimFails(t *testing.T) {
	rm := NewResourceManager()

	require.NoError(t, rm.Claim(KindPin, "23", "trigger"))

	err := rm.Claim(KindPin, "23", "horn")
	assert.ErrorIs(t, err, ErrClaimed)
	assert.Contains(t, err.Error(), "trigger")

	assert.ErrorIs(t, rm.Claim(KindPin, "23", "trigger"), ErrClaimed, "same owner twice")

	// The same id under another kind is a different resource.
	require.NoError(t, rm.Claim(KindPWMChannel, "23", "front_left_motor"))

	owner, ok := rm.Owner(KindPin, "23")
	assert.True(t, ok)
	assert.Equal(t, "trigger", owner)
}

func TestResourceManager_ClaimAllRollsBack(t *testing.T) {
	rm := NewResourceManager()
	require.NoError(t, rm.Claim(KindPWMChannel, "3", "rear_left_motor"))

	err := rm.ClaimAll(KindPWMChannel, []string{"1", "2", "3"}, "front_left_motor")
	require.ErrorIs(t, err, ErrClaimed)

	_, held := rm.Owner(KindPWMChannel, "1")
	assert.False(t, held)
	_, held = rm.Owner(KindPWMChannel, "2")
	assert.False(t, held)
	assert.Len(t, rm.Claims(), 1)
}

func TestResourceManager_ReleaseAndList(t *testing.T) {
	rm := NewResourceManager()
	require.NoError(t, rm.Claim(KindSerialPort, "/dev/ttyACM0", "bridge"))
	require.NoError(t, rm.Claim(KindPin, "5", "line_left"))
	require.NoError(t, rm.Claim(KindPin, "18", "horn"))

	claims := rm.Claims()
	require.Len(t, claims, 3)
	assert.Equal(t, "pin", claims[0].Kind)
	assert.Equal(t, "18", claims[0].ID)
	assert.Equal(t, KindSerialPort, claims[2].Kind)

	require.NoError(t, rm.Release(KindPin, "5"))
	assert.Error(t, rm.Release(KindPin, "5"))
	require.NoError(t, rm.Claim(KindPin, "5", "line_center"))

	rm.ReleaseAll()
	assert.Empty(t, rm.Claims())
}
