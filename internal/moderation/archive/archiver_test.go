package archive_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/database/types/enum"
	"github.com/quorumbot/quorum/internal/moderation/archive"
	"github.com/quorumbot/quorum/internal/platform"
	"github.com/quorumbot/quorum/internal/platform/platformtest"
	"github.com/quorumbot/quorum/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const archiveChannelID = uint64(9000)

func testArchiveConfig() *config.Archive {
	return &config.Archive{
		DownloadTimeoutSeconds: 5,
		MaxAttachmentBytes:     1024,
		MaxConcurrentDownloads: 4,
	}
}

func archiveVote() *types.ModerationVote {
	return &types.ModerationVote{
		ID:              uuid.New(),
		GuildID:         1,
		TargetChannelID: 100,
		TargetMessageID: 200,
		TargetUserID:    50,
		Type:            enum.VoteTypeDelete,
		Initiators:      []uint64{60},
		ReactionCount:   10,
	}
}

func TestArchivePostsEmbedAndAttachments(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), 100))
	}))
	defer server.Close()

	client := platformtest.NewFakeClient()
	svc := archive.NewService(client, testArchiveConfig(), zaptest.NewLogger(t))

	msg := &platform.Message{
		ID:         200,
		ChannelID:  100,
		GuildID:    1,
		AuthorID:   50,
		AuthorName: "offender",
		Content:    "archived content",
		Attachments: []platform.Attachment{
			{ID: 1, Filename: "small.png", URL: server.URL, Size: 100},
		},
	}

	err := svc.Archive(context.Background(), archiveVote(), msg, archiveChannelID)
	require.NoError(t, err)

	payload, ok := client.CreatedPayload(archiveChannelID, 90001)
	require.True(t, ok, "archive message should be posted")
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "archived content", payload.Embeds[0].Description)

	// The attachment plus the metadata JSON.
	require.Len(t, payload.Files, 2)

	names := []string{payload.Files[0].Name, payload.Files[1].Name}
	assert.Contains(t, names, "small.png")
	assert.Contains(t, names, "metadata.json")
}

func TestArchiveSkipsOversizedDownloads(t *testing.T) {
	t.Parallel()

	// The server lies about size up front, so the cap triggers mid-stream.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("b"), 4096))
	}))
	defer server.Close()

	client := platformtest.NewFakeClient()
	svc := archive.NewService(client, testArchiveConfig(), zaptest.NewLogger(t))

	msg := &platform.Message{
		ID:        200,
		ChannelID: 100,
		GuildID:   1,
		AuthorID:  50,
		Content:   "big attachment",
		Attachments: []platform.Attachment{
			{ID: 1, Filename: "huge.bin", URL: server.URL},
		},
	}

	err := svc.Archive(context.Background(), archiveVote(), msg, archiveChannelID)
	require.NoError(t, err, "oversized attachments are skipped, not fatal")

	payload, ok := client.CreatedPayload(archiveChannelID, 90001)
	require.True(t, ok)

	// Only the metadata file survives, and it names the skipped upload.
	require.Len(t, payload.Files, 1)
	assert.Equal(t, "metadata.json", payload.Files[0].Name)

	var meta struct {
		SkippedNames []string `json:"skippedNames"`
	}

	require.NoError(t, sonic.Unmarshal(payload.Files[0].Data, &meta))
	assert.Equal(t, []string{"huge.bin"}, meta.SkippedNames)
}

func TestArchiveRejectsDeclaredOversize(t *testing.T) {
	t.Parallel()

	client := platformtest.NewFakeClient()
	svc := archive.NewService(client, testArchiveConfig(), zaptest.NewLogger(t))

	msg := &platform.Message{
		ID:        200,
		ChannelID: 100,
		Content:   "declared oversize",
		Attachments: []platform.Attachment{
			// Declared size over the cap, no download attempted.
			{ID: 1, Filename: "big.bin", URL: "http://127.0.0.1:1/never", Size: 1 << 20},
		},
	}

	err := svc.Archive(context.Background(), archiveVote(), msg, archiveChannelID)
	require.NoError(t, err)

	payload, ok := client.CreatedPayload(archiveChannelID, 90001)
	require.True(t, ok)
	require.Len(t, payload.Files, 1)
	assert.Equal(t, "metadata.json", payload.Files[0].Name)
}
