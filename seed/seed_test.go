package seed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synetech/synepoints/points"
	"github.com/synetech/synepoints/points/store"
	"github.com/synetech/synepoints/seed"
)

func TestSeed_LoadsDemoData(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, seed.Load(ctx, mem))

	users, err := mem.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, points.RoleAdmin, users[0].Role)
	assert.Equal(t, int64(3), users[0].Points)
	assert.Equal(t, int64(5), users[2].Points)

	// Every seeded balance must be explained by the trail.
	for _, u := range users {
		records, err := mem.PointRecordsFor(ctx, u.Email)
		require.NoError(t, err)
		var sum int64
		for _, r := range records {
			sum += r.Points
		}
		assert.Equal(t, u.Points, sum)
	}

	prizes, err := mem.ListPrizes(ctx)
	require.NoError(t, err)
	require.Len(t, prizes, 4)
	assert.False(t, prizes[3].Purchasable(), "negotiated prize stays out of the workflow")

	teams, err := mem.ListTeams(ctx)
	require.NoError(t, err)
	assert.Len(t, teams, 2)

	cats, err := mem.ListRewardCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)
}

func TestSeed_IsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, seed.Load(ctx, mem))
	require.NoError(t, seed.Load(ctx, mem))

	users, err := mem.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	records, err := mem.PointRecordsFor(ctx, "franta.pepa1@synetech.cz")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
