package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Danya2kk/diplomTMS/errs"
	"github.com/Danya2kk/diplomTMS/model"
	"github.com/Danya2kk/diplomTMS/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := NewStore(db, 100)
	ctx := context.Background()
	alice := testutil.CreateProfile(t, db, "alice", "Alice", "Smith")

	_, err := st.Append(ctx, 1, alice.ID, "   ")
	assert.ErrorIs(t, err, errs.ErrMalformedInput, "whitespace-only content")

	_, err = st.Append(ctx, 1, alice.ID, strings.Repeat("x", 101))
	assert.ErrorIs(t, err, errs.ErrMalformedInput, "over the length cap")

	msg, err := st.Append(ctx, 1, alice.ID, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content, "content is trimmed")
	assert.NotZero(t, msg.ID)
}

func TestListForDayFiltersAndOrders(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := NewStore(db, 0)
	ctx := context.Background()
	alice := testutil.CreateProfile(t, db, "alice", "Alice", "Smith")
	bob := testutil.CreateProfile(t, db, "bob", "Bob", "Jones")

	now := time.Now()
	yesterday := now.AddDate(0, 0, -1)

	// Yesterday's message must not appear in today's replay.
	old := model.ChatMessage{GroupID: 42, ProfileID: alice.ID, Content: "stale"}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Model(&old).UpdateColumn("created_at", yesterday).Error)

	_, err := st.Append(ctx, 42, alice.ID, "first")
	require.NoError(t, err)
	_, err = st.Append(ctx, 42, bob.ID, "second")
	require.NoError(t, err)

	// A different group's traffic is invisible.
	_, err = st.Append(ctx, 7, bob.ID, "other room")
	require.NoError(t, err)

	entries, err := st.ListForDay(ctx, 42, now)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Content)
	assert.Equal(t, "Alice", entries[0].FirstName)
	assert.Equal(t, "second", entries[1].Content)
	assert.Equal(t, "Bob", entries[1].FirstName)

	f := entries[0].Frame()
	assert.Equal(t, "first", f.Message)
	assert.Equal(t, "Alice", f.Username)
	assert.Equal(t, "Smith", f.LastName)

	stale, err := st.ListForDay(ctx, 42, yesterday)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "stale", stale[0].Content)
}
