package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierValid(t *testing.T) {
	assert.True(t, TierStandard.Valid())
	assert.True(t, TierAdmin.Valid())
	assert.False(t, Tier("premium").Valid())
	assert.False(t, Tier("").Valid())
}

func TestTierAtLeast(t *testing.T) {
	assert.True(t, TierAdmin.AtLeast(TierStandard))
	assert.True(t, TierAdmin.AtLeast(TierAdmin))
	assert.True(t, TierStandard.AtLeast(TierStandard))
	assert.False(t, TierStandard.AtLeast(TierAdmin))
}

func TestIdentityIsAdmin(t *testing.T) {
	assert.True(t, Identity{UserID: 1, Tier: TierAdmin}.IsAdmin())
	assert.False(t, Identity{UserID: 1, Tier: TierStandard}.IsAdmin())
}
