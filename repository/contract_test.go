package repository

import (
	"context"
	"testing"

	"places-server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runUserRepositoryContract exercises behaviour every UserRepository must share.
func runUserRepositoryContract(t *testing.T, repo UserRepository) {
	ctx := context.Background()

	alice := &models.User{Username: "alice", Password: "hash-a", Name: "Alice Liddell"}
	alice.ApplyDefaults()
	require.NoError(t, repo.Create(ctx, alice))
	require.NotEmpty(t, alice.ID)

	bob := &models.User{Username: "bob", Password: "hash-b", Name: "Bobby"}
	bob.ApplyDefaults()
	require.NoError(t, repo.Create(ctx, bob))

	t.Run("duplicate username", func(t *testing.T) {
		dup := &models.User{Username: "alice", Password: "x"}
		assert.ErrorIs(t, repo.Create(ctx, dup), ErrDuplicate)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		count := 0
		for _, u := range all {
			if u.Username == "alice" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("find", func(t *testing.T) {
		got, err := repo.FindByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "alice@example.com", got.Email)

		got, err = repo.FindByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)
		assert.Equal(t, "hash-b", got.Password)

		_, err = repo.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.FindByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list and search strip passwords", func(t *testing.T) {
		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
		for _, u := range all {
			assert.Empty(t, u.Password)
		}

		found, err := repo.Search(ctx, "LIDD")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "alice", found[0].Username)

		found, err = repo.Search(ctx, "b")
		require.NoError(t, err)
		assert.Len(t, found, 1)

		found, err = repo.Search(ctx, ".*")
		require.NoError(t, err)
		assert.Empty(t, found, "query is matched literally")
	})

	t.Run("update profile", func(t *testing.T) {
		got, err := repo.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{Email: "alice@wonder.land"})
		require.NoError(t, err)
		assert.Equal(t, "alice@wonder.land", got.Email)
		assert.Equal(t, "Alice Liddell", got.Name)

		_, err = repo.UpdateProfile(ctx, "missing", models.ProfileUpdate{Name: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("friends are a set", func(t *testing.T) {
		_, err := repo.AddFriend(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		got, err := repo.AddFriend(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{bob.ID}, got.Friends)

		got, err = repo.RemoveFriend(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Friends)

		_, err = repo.AddFriend(ctx, "missing", bob.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func runPlaceRepositoryContract(t *testing.T, repo PlaceRepository) {
	ctx := context.Background()

	p := &models.Place{
		Name:        "Gandan",
		Description: "Monastery",
		Location:    "Ulaanbaatar",
		Rating:      4.5,
		Image:       "https://img.example/gandan.jpg",
		UserID:      "owner-1",
	}
	require.NoError(t, repo.Create(ctx, p))
	require.NotEmpty(t, p.ID)

	other := &models.Place{Name: "Lake", Description: "Blue", Location: "Khuvsgul", Rating: 5, Image: "i", UserID: "owner-2"}
	require.NoError(t, repo.Create(ctx, other))

	got, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, 4.5, got.Rating)
	assert.Equal(t, "owner-1", got.UserID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := repo.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p.ID, mine[0].ID)

	updated, err := repo.Update(ctx, p.ID, models.PlaceInput{Description: "Buddhist monastery"})
	require.NoError(t, err)
	assert.Equal(t, "Buddhist monastery", updated.Description)
	assert.Equal(t, "Gandan", updated.Name)
	assert.Equal(t, 4.5, updated.Rating)

	_, err = repo.Update(ctx, "missing", models.PlaceInput{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err = repo.FindByID(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, p.ID), ErrNotFound)
}
