package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imunoz/finsight/internal/api"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesFileInDataDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, filepath.Join(dir, "history.db"))
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening must not re-apply migrations.
	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.ArchiveConversations([]api.Conversation{{ID: 1, Title: "t"}}))
}

func TestArchiveConversations_Upsert(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.ArchiveConversations([]api.Conversation{
		{ID: 1, Title: "draft", UpdatedAt: "2026-01-01T00:00:00Z", MessageCount: 2},
	}))
	require.NoError(t, s.ArchiveConversations([]api.Conversation{
		{ID: 1, Title: "final", UpdatedAt: "2026-01-02T00:00:00Z", MessageCount: 4},
	}))

	convs, err := s.Conversations()
	require.NoError(t, err)
	require.Len(t, convs, 1, "same id must update in place, not duplicate")
	assert.Equal(t, "final", convs[0].Title)
	assert.Equal(t, 4, convs[0].MessageCount)
}

func TestConversations_OrderedByUpdatedAt(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.ArchiveConversations([]api.Conversation{
		{ID: 1, Title: "old", UpdatedAt: "2026-01-01T00:00:00Z"},
		{ID: 2, Title: "new", UpdatedAt: "2026-02-01T00:00:00Z"},
	}))

	convs, err := s.Conversations()
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, 2, convs[0].ID)
}

func TestArchiveMessages_IgnoresDuplicatesAndPending(t *testing.T) {
	s := openTestStore(t)

	batch := []api.Message{
		{ID: 10, ConversationID: 5, Role: api.RoleUser, Content: "hello"},
		{ID: 11, ConversationID: 5, Role: api.RoleAssistant, Content: "hi"},
		{ID: -1, ConversationID: 5, Role: api.RoleUser, Content: "optimistic, not confirmed"},
	}
	require.NoError(t, s.ArchiveMessages(batch))
	require.NoError(t, s.ArchiveMessages(batch))

	msgs, err := s.Messages(5)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "re-archiving is idempotent and pending rows are skipped")
	assert.Equal(t, 10, msgs[0].ID)
	assert.Equal(t, 11, msgs[1].ID)
}

func TestRecentMessages(t *testing.T) {
	s := openTestStore(t)

	var batch []api.Message
	for i := 1; i <= 5; i++ {
		batch = append(batch, api.Message{ID: i, ConversationID: 1, Role: api.RoleUser, Content: "m"})
	}
	require.NoError(t, s.ArchiveMessages(batch))

	msgs, err := s.RecentMessages(3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	// Newest three, returned oldest first.
	assert.Equal(t, 3, msgs[0].ID)
	assert.Equal(t, 5, msgs[2].ID)
}

func TestSearchMessages(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.ArchiveMessages([]api.Message{
		{ID: 1, ConversationID: 1, Role: api.RoleUser, Content: "how much did storage cost"},
		{ID: 2, ConversationID: 1, Role: api.RoleAssistant, Content: "storage was $120"},
		{ID: 3, ConversationID: 2, Role: api.RoleUser, Content: "unrelated"},
	}))

	msgs, err := s.SearchMessages("storage", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 2, msgs[0].ID, "search returns newest first")
}

func TestPurge(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.ArchiveConversations([]api.Conversation{{ID: 1, Title: "t"}}))
	require.NoError(t, s.ArchiveMessages([]api.Message{{ID: 1, ConversationID: 1, Role: api.RoleUser, Content: "x"}}))

	require.NoError(t, s.Purge())

	convs, err := s.Conversations()
	require.NoError(t, err)
	assert.Empty(t, convs)
	msgs, err := s.Messages(1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
