package repository

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/testutil"
)

func TestUserRepository_Upsert(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewGormUserRepository(db)
	ctx := context.Background()
	id := uuid.NewString()

	created, err := repo.Upsert(ctx, &domain.User{ID: id, Username: "alice", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", created.DisplayName)

	require.NoError(t, db.Model(&domain.UserModel{}).Where("id = ?", id).Update("is_live", true).Error)

	updated, err := repo.Upsert(ctx, &domain.User{ID: id, Username: "alice", DisplayName: "Alice L."})
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", updated.DisplayName)
	assert.True(t, updated.IsLive)

	_, err = repo.Upsert(ctx, &domain.User{ID: uuid.NewString(), Username: "alice"})
	assert.ErrorIs(t, err, ErrDuplicateUser)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetByIDs(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewGormUserRepository(db)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		u, err := repo.Upsert(ctx, &domain.User{ID: uuid.NewString(), Username: gofakeit.Username() + gofakeit.DigitN(4)})
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}

	users, err := repo.GetByIDs(ctx, append(ids, uuid.NewString()))
	require.NoError(t, err)
	assert.Len(t, users, 3)
	assert.Contains(t, users, ids[0])

	empty, err := repo.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFollowRepository(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewGormFollowRepository(db)
	ctx := context.Background()

	created, err := repo.Follow(ctx, &domain.Follow{ID: uuid.NewString(), FollowerID: "a", FollowingID: "b"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Follow(ctx, &domain.Follow{ID: uuid.NewString(), FollowerID: "a", FollowingID: "b"})
	require.NoError(t, err)
	assert.False(t, created)

	ok, err := repo.IsFollowing(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.IsFollowing(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, ok)

	followers, err := repo.CountFollowers(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), followers)
	following, err := repo.CountFollowing(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), following)

	removed, err := repo.Unfollow(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.Unfollow(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestParseConsistency(t *testing.T) {
	assert.Equal(t, "LOCAL_ONE", parseConsistency("local_one").String())
	assert.Equal(t, "QUORUM", parseConsistency("QUORUM").String())
	assert.Equal(t, "LOCAL_QUORUM", parseConsistency("bogus").String())
}
