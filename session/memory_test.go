package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicsaathi/authz"
	"civicsaathi/models"
)

func Test_MemoryStore_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := &Session{
		Token:    "admin_testtoken12345",
		Admin:    authz.Principal{UserID: "root", Role: models.RoleRootAdmin},
		IssuedAt: time.Now(),
	}
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, "root", got.Admin.UserID)

	require.NoError(t, store.Delete(ctx, s.Token))
	_, err = store.Get(ctx, s.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(ctx, s.Token))
}

func Test_MemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, &Session{Token: "admin_copycheck12345"}))

	got, err := store.Get(ctx, "admin_copycheck12345")
	require.NoError(t, err)
	got.Admin.UserID = "mutated"

	again, err := store.Get(ctx, "admin_copycheck12345")
	require.NoError(t, err)
	assert.Empty(t, again.Admin.UserID)
}

func Test_MemoryStore_Touch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	issued := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, &Session{Token: "admin_touchable12345", IssuedAt: issued}))

	seen := issued.Add(2 * time.Hour)
	require.NoError(t, store.Touch(ctx, "admin_touchable12345", seen))

	got, err := store.Get(ctx, "admin_touchable12345")
	require.NoError(t, err)
	assert.Equal(t, seen, got.LastSeen)

	assert.ErrorIs(t, store.Touch(ctx, "admin_missing1234567", seen), ErrNotFound)
}

func Test_Session_Expired(t *testing.T) {
	issued := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s := &Session{IssuedAt: issued}

	assert.False(t, s.Expired(24*time.Hour, issued.Add(1*time.Hour)))
	assert.True(t, s.Expired(24*time.Hour, issued.Add(25*time.Hour)))

	// Activity extends the session.
	s.LastSeen = issued.Add(20 * time.Hour)
	assert.False(t, s.Expired(24*time.Hour, issued.Add(25*time.Hour)))

	// Zero TTL disables expiry.
	assert.False(t, s.Expired(0, issued.Add(1000*time.Hour)))
}
