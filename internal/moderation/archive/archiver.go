// Package archive preserves messages about to be deleted by a vote:
// a copy of the content and re-uploaded attachments posted to the
// guild's archive channel.
package archive

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/platform"
	"github.com/quorumbot/quorum/internal/setup/config"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const archiveEmbedColor = 0x95a5a6

// metadata is the machine-readable record attached to every archive post.
type metadata struct {
	VoteID          string    `json:"voteId"`
	VoteType        string    `json:"voteType"`
	GuildID         uint64    `json:"guildId"`
	ChannelID       uint64    `json:"channelId"`
	MessageID       uint64    `json:"messageId"`
	AuthorID        uint64    `json:"authorId"`
	AuthorName      string    `json:"authorName"`
	Content         string    `json:"content"`
	ReactionCount   int       `json:"reactionCount"`
	Initiators      []uint64  `json:"initiators"`
	AttachmentNames []string  `json:"attachmentNames"`
	SkippedNames    []string  `json:"skippedNames,omitempty"`
	MessageSentAt   time.Time `json:"messageSentAt"`
	ArchivedAt      time.Time `json:"archivedAt"`
}

// Service archives messages into a guild's archive channel.
type Service struct {
	client platform.Client
	http   *retryablehttp.Client
	cfg    *config.Archive
	sem    *semaphore.Weighted
	logger *zap.Logger
}

// NewService creates an archival service.
func NewService(client platform.Client, cfg *config.Archive, logger *zap.Logger) *Service {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.Logger = nil
	httpClient.HTTPClient.Timeout = time.Duration(cfg.DownloadTimeoutSeconds) * time.Second

	return &Service{
		client: client,
		http:   httpClient,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrentDownloads),
		logger: logger.Named("archive"),
	}
}

// Archive posts a copy of the message to the archive channel. Failures
// are reported but never block the punishment that follows.
func (s *Service) Archive(
	ctx context.Context, vote *types.ModerationVote, msg *platform.Message, archiveChannelID uint64,
) error {
	uploads, skipped := s.downloadAttachments(ctx, msg.Attachments)

	meta := metadata{
		VoteID:        vote.ID.String(),
		VoteType:      vote.Type.String(),
		GuildID:       vote.GuildID,
		ChannelID:     msg.ChannelID,
		MessageID:     msg.ID,
		AuthorID:      msg.AuthorID,
		AuthorName:    msg.AuthorName,
		Content:       msg.Content,
		ReactionCount: vote.ReactionCount,
		Initiators:    vote.Initiators,
		MessageSentAt: msg.Timestamp,
		ArchivedAt:    time.Now(),
	}

	for _, u := range uploads {
		meta.AttachmentNames = append(meta.AttachmentNames, u.Name)
	}

	meta.SkippedNames = skipped

	metaBytes, err := sonic.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode archive metadata: %w", err)
	}

	uploads = append(uploads, platform.Upload{Name: "metadata.json", Data: metaBytes})

	payload := platform.MessagePayload{
		Embeds: []platform.Embed{s.buildEmbed(vote, msg, skipped)},
		Files:  uploads,
	}

	if _, err := s.client.CreateMessage(ctx, archiveChannelID, payload); err != nil {
		return fmt.Errorf("failed to post archive message: %w", err)
	}

	s.logger.Info("Archived message",
		zap.String("voteID", vote.ID.String()),
		zap.Uint64("messageID", msg.ID),
		zap.Int("attachments", len(uploads)-1),
		zap.Int("skipped", len(skipped)))

	return nil
}

// downloadAttachments fetches attachments concurrently under the
// semaphore. Oversized or failing downloads are skipped, not fatal.
func (s *Service) downloadAttachments(
	ctx context.Context, attachments []platform.Attachment,
) ([]platform.Upload, []string) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		uploads []platform.Upload
		skipped []string
	)

	for _, att := range attachments {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			skipped = append(skipped, att.Filename)
			mu.Unlock()

			continue
		}

		wg.Add(1)

		go func(att platform.Attachment) {
			defer wg.Done()
			defer s.sem.Release(1)

			data, err := s.download(ctx, att)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				s.logger.Warn("Skipping attachment",
					zap.String("filename", att.Filename),
					zap.Error(err))

				skipped = append(skipped, att.Filename)

				return
			}

			uploads = append(uploads, platform.Upload{Name: att.Filename, Data: data})
		}(att)
	}

	wg.Wait()

	return uploads, skipped
}

// download fetches one attachment, aborting mid-stream past the byte cap.
func (s *Service) download(ctx context.Context, att platform.Attachment) ([]byte, error) {
	if att.Size > 0 && int64(att.Size) > s.cfg.MaxAttachmentBytes {
		return nil, fmt.Errorf("attachment exceeds byte cap: %d > %d", att.Size, s.cfg.MaxAttachmentBytes)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", att.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected download status: %d", resp.StatusCode)
	}

	// Read one byte past the cap to detect servers lying about size.
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment body: %w", err)
	}

	if int64(len(data)) > s.cfg.MaxAttachmentBytes {
		return nil, fmt.Errorf("attachment stream exceeds byte cap: %d", s.cfg.MaxAttachmentBytes)
	}

	return data, nil
}

// buildEmbed renders the human-readable archive record.
func (s *Service) buildEmbed(
	vote *types.ModerationVote, msg *platform.Message, skipped []string,
) platform.Embed {
	now := time.Now()
	content := msg.Content

	if content == "" {
		content = "*no text content*"
	}

	embed := platform.Embed{
		Title:       "Archived message",
		Description: content,
		Color:       archiveEmbedColor,
		Timestamp:   &now,
		Fields: []platform.EmbedField{
			{Name: "Author", Value: fmt.Sprintf("<@%d> (%s)", msg.AuthorID, msg.AuthorName), Inline: true},
			{Name: "Vote", Value: vote.Type.String(), Inline: true},
			{Name: "Reactions", Value: fmt.Sprintf("%d", vote.ReactionCount), Inline: true},
			{Name: "Original location", Value: msg.JumpLink()},
		},
	}

	if len(skipped) > 0 {
		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name:  "Attachments not preserved",
			Value: fmt.Sprintf("%d file(s) skipped", len(skipped)),
		})
	}

	return embed
}
