// Package bot hosts the gateway client and the interaction surface
// that starts moderation votes: a panel with one button per punishment
// and a modal asking for the target message link.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo"
	disgobot "github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quorumbot/quorum/internal/bot/utils"
	"github.com/quorumbot/quorum/internal/cache"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/database/types/enum"
	"github.com/quorumbot/quorum/internal/moderation/announce"
	"github.com/quorumbot/quorum/internal/moderation/vote"
	"github.com/quorumbot/quorum/internal/platform"
)

const (
	panelCommandName  = "selfmod"
	configCommandName = "selfmod-config"

	buttonDeleteCustomID  = "selfmod_delete_message"
	buttonMuteCustomID    = "selfmod_mute_user"
	buttonSeriousCustomID = "selfmod_serious_mute"

	modalCustomIDPrefix      = "selfmod_vote_modal:"
	messageLinkInputCustomID = "message_link"

	allowedChannelsOptionName = "allowed_channels"
	archiveChannelOptionName  = "archive_channel"
	archiveEnabledOptionName  = "archive_enabled"
	voteEmojiOptionName       = "vote_emoji"
)

// VoteStore persists announcement references for fresh votes.
type VoteStore interface {
	SetAnnouncement(ctx context.Context, voteID uuid.UUID, channelID, messageID uint64) error
}

// SettingsStore loads and saves per-guild configuration.
type SettingsStore interface {
	GetGuildSettings(ctx context.Context, guildID uint64) (*types.GuildSettings, error)
	SaveGuildSettings(ctx context.Context, settings *types.GuildSettings) error
}

// Bot wires the gateway event handlers to the vote lifecycle.
type Bot struct {
	client    disgobot.Client
	votes     *vote.Manager
	voteStore VoteStore
	settings  SettingsStore
	channels  *cache.ChannelCache
	platform  platform.Client
	announcer *announce.Service
	logger    *zap.Logger
}

// New builds the gateway client with the interaction listeners.
func New(
	token string,
	votes *vote.Manager,
	voteStore VoteStore,
	settings SettingsStore,
	channels *cache.ChannelCache,
	platformClient platform.Client,
	announcer *announce.Service,
	logger *zap.Logger,
) (*Bot, error) {
	b := &Bot{
		votes:     votes,
		voteStore: voteStore,
		settings:  settings,
		channels:  channels,
		platform:  platformClient,
		announcer: announcer,
		logger:    logger.Named("bot"),
	}

	client, err := disgo.New(token,
		disgobot.WithGatewayConfigOpts(
			gateway.WithIntents(gateway.IntentGuilds),
		),
		disgobot.WithEventListeners(&events.ListenerAdapter{
			OnApplicationCommandInteraction: b.handleCommand,
			OnComponentInteraction:          b.handleComponent,
			OnModalSubmit:                   b.handleModalSubmit,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}

	b.client = client

	return b, nil
}

// Start registers the panel command and opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Registering commands")

	_, err := b.client.Rest().SetGlobalCommands(b.client.ApplicationID(), []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:        panelCommandName,
			Description: "Post the self-moderation vote panel",
		},
		discord.SlashCommandCreate{
			Name:        configCommandName,
			Description: "Configure self-moderation for this server",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        allowedChannelsOptionName,
					Description: "Comma separated channel ids where votes may run, or * for every channel",
				},
				discord.ApplicationCommandOptionChannel{
					Name:        archiveChannelOptionName,
					Description: "Channel receiving archived copies of deleted messages",
				},
				discord.ApplicationCommandOptionBool{
					Name:        archiveEnabledOptionName,
					Description: "Whether messages are archived before deletion",
				},
				discord.ApplicationCommandOptionString{
					Name:        voteEmojiOptionName,
					Description: "Reaction emoji counted as a vote",
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	b.logger.Info("Opening gateway")

	return b.client.OpenGateway(ctx)
}

// Close gracefully shuts down the gateway connection.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")
	b.client.Close(ctx)
}

// handleCommand dispatches the registered slash commands.
func (b *Bot) handleCommand(event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		b.respondError(event.CreateMessage, "This command only works in a server.")
		return
	}

	switch event.SlashCommandInteractionData().CommandName() {
	case panelCommandName:
		b.handlePanelCommand(event)
	case configCommandName:
		b.handleConfigCommand(event)
	}
}

// handlePanelCommand posts the vote panel into the invoking channel.
func (b *Bot) handlePanelCommand(event *events.ApplicationCommandInteractionCreate) {
	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetEmbeds(discord.NewEmbedBuilder().
			SetTitle("Community self-moderation").
			SetDescription("Start a vote against a message. Each button asks for the message link.").
			Build()).
		AddActionRow(
			discord.NewPrimaryButton("Delete message", buttonDeleteCustomID),
			discord.NewSecondaryButton("Mute author", buttonMuteCustomID),
			discord.NewDangerButton("Serious mute", buttonSeriousCustomID),
		).
		Build())
	if err != nil {
		b.logger.Error("Failed to post vote panel", zap.Error(err))
	}
}

// handleConfigCommand updates guild settings from the command options
// and invalidates the monitored-channel cache so the change is visible
// on the next vote.
func (b *Bot) handleConfigCommand(event *events.ApplicationCommandInteractionCreate) {
	ctx := context.Background()

	member := event.Member()
	if member == nil || !member.Permissions.Has(discord.PermissionManageGuild) {
		b.respondError(event.CreateMessage, "Changing these settings requires the Manage Server permission.")
		return
	}

	current, err := b.settings.GetGuildSettings(ctx, uint64(*event.GuildID()))
	if err != nil {
		b.logger.Error("Failed to load guild settings", zap.Error(err))
		b.respondError(event.CreateMessage, "Could not load server settings. Please try again.")

		return
	}

	updated := *current
	data := event.SlashCommandInteractionData()
	changed := false

	if value, ok := data.OptString(allowedChannelsOptionName); ok {
		channelIDs, err := utils.ParseChannelList(value)
		if err != nil {
			b.respondError(event.CreateMessage,
				"Could not parse the channel list. Use comma separated channel ids, or * for every channel.")

			return
		}

		updated.AllowedChannelIDs = channelIDs
		changed = true
	}

	if channel, ok := data.OptChannel(archiveChannelOptionName); ok {
		updated.ArchiveChannelID = uint64(channel.ID)
		changed = true
	}

	if enabled, ok := data.OptBool(archiveEnabledOptionName); ok {
		updated.ArchiveEnabled = enabled
		changed = true
	}

	if emoji, ok := data.OptString(voteEmojiOptionName); ok {
		updated.VoteEmoji = emoji
		changed = true
	}

	if !changed {
		b.respondEphemeral(event.CreateMessage, "Nothing to update. Provide at least one option.")
		return
	}

	if err := b.settings.SaveGuildSettings(ctx, &updated); err != nil {
		b.logger.Error("Failed to save guild settings", zap.Error(err))
		b.respondError(event.CreateMessage, "Could not save the settings. Please try again.")

		return
	}

	if err := b.channels.Invalidate(ctx, updated.GuildID); err != nil {
		// The cache entry still expires on its own TTL.
		b.logger.Warn("Failed to invalidate channel cache",
			zap.Uint64("guildID", updated.GuildID),
			zap.Error(err))
	}

	b.respondEphemeral(event.CreateMessage, "Self-moderation settings updated.")
}

// handleComponent opens the message-link modal for panel buttons.
func (b *Bot) handleComponent(event *events.ComponentInteractionCreate) {
	var voteType enum.VoteType

	switch event.Data.CustomID() {
	case buttonDeleteCustomID:
		voteType = enum.VoteTypeDelete
	case buttonMuteCustomID:
		voteType = enum.VoteTypeMute
	case buttonSeriousCustomID:
		voteType = enum.VoteTypeSeriousMute
	default:
		return
	}

	modal := discord.NewModalCreateBuilder().
		SetCustomID(modalCustomIDPrefix + voteType.String()).
		SetTitle(modalTitle(voteType)).
		AddActionRow(
			discord.NewTextInput(messageLinkInputCustomID, discord.TextInputStyleShort, "Message link").
				WithPlaceholder("https://discord.com/channels/...").
				WithRequired(true),
		).
		Build()

	if err := event.Modal(modal); err != nil {
		b.logger.Error("Failed to show vote modal",
			zap.String("customID", event.Data.CustomID()),
			zap.Error(err))
	}
}

// handleModalSubmit validates the submitted link and starts the vote.
func (b *Bot) handleModalSubmit(event *events.ModalSubmitInteractionCreate) {
	voteTypeName, ok := strings.CutPrefix(event.Data.CustomID, modalCustomIDPrefix)
	if !ok {
		return
	}

	voteType, ok := parseVoteType(voteTypeName)
	if !ok {
		return
	}

	go b.submitVote(event, voteType)
}

// submitVote runs the full eligibility pipeline for one modal submission.
func (b *Bot) submitVote(event *events.ModalSubmitInteractionCreate, voteType enum.VoteType) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in vote submission", zap.Any("panic", r))
		}
	}()

	ctx := context.Background()
	respond := event.CreateMessage

	guildID := event.GuildID()
	if guildID == nil {
		b.respondError(respond, "Votes can only be started in a server.")
		return
	}

	ref, err := utils.ParseMessageLink(event.Data.Text(messageLinkInputCustomID))
	if err != nil {
		b.respondError(respond, "That does not look like a message link. Right-click a message and copy its link.")
		return
	}

	if ref.GuildID != uint64(*guildID) {
		b.respondError(respond, "That message is in a different server.")
		return
	}

	allowed, err := b.channels.IsAllowed(ctx, ref.GuildID, ref.ChannelID)
	if err != nil {
		b.logger.Error("Failed to check monitored channels", zap.Error(err))
		b.respondError(respond, "Could not verify the channel. Please try again.")

		return
	}

	if !allowed {
		b.respondError(respond, "Votes are not enabled in that channel.")
		return
	}

	settings, err := b.settings.GetGuildSettings(ctx, ref.GuildID)
	if err != nil {
		b.logger.Error("Failed to load guild settings", zap.Error(err))
		b.respondError(respond, "Could not load server settings. Please try again.")

		return
	}

	if !b.memberEligible(event, settings, voteType) {
		b.respondError(respond, "You do not have a role that may start this vote.")
		return
	}

	target, err := b.platform.GetMessage(ctx, ref.ChannelID, ref.MessageID)
	if err != nil {
		switch {
		case errors.Is(err, platform.ErrNotFound):
			b.respondError(respond, "That message no longer exists.")
		case errors.Is(err, platform.ErrPermissionDenied):
			b.respondError(respond, "The bot cannot read that channel.")
		default:
			b.logger.Error("Failed to fetch target message", zap.Error(err))
			b.respondError(respond, "Could not fetch the message. Please try again.")
		}

		return
	}

	if target.AuthorIsBot {
		b.respondError(respond, "Votes cannot target bot messages.")
		return
	}

	result, err := b.votes.CreateOrMerge(ctx, vote.CreateRequest{
		GuildID:         ref.GuildID,
		TargetChannelID: ref.ChannelID,
		TargetMessageID: ref.MessageID,
		TargetUserID:    target.AuthorID,
		InitiatorID:     uint64(event.User().ID),
		Type:            voteType,
	})
	if err != nil {
		b.logger.Error("Failed to create vote", zap.Error(err))
		b.respondError(respond, "Could not start the vote. Please try again.")

		return
	}

	switch {
	case result.AlreadyInitiator:
		b.respondEphemeral(respond, "You already support this vote.")
	case result.Merged:
		b.respondEphemeral(respond, fmt.Sprintf("Joined the running vote, now %d initiators.", len(result.Vote.Initiators)))
	default:
		b.announceNewVote(ctx, result.Vote, settings.VoteEmoji)
		b.respondEphemeral(respond, "Vote started. React on the announcement or the target message to support it.")
	}
}

// announceNewVote posts the announcement and records its location.
func (b *Bot) announceNewVote(ctx context.Context, newVote *types.ModerationVote, emoji string) {
	conflict, err := b.votes.ConflictingVote(ctx, newVote.GuildID, newVote.TargetMessageID, newVote.Type)
	if err != nil {
		b.logger.Warn("Failed to check conflicting votes",
			zap.String("key", newVote.Key().String()),
			zap.Error(err))
	}

	messageID, err := b.announcer.Post(ctx, newVote, emoji, conflict)
	if err != nil {
		// The reconciliation loop still drives the vote from target
		// reactions alone.
		b.logger.Error("Failed to post announcement",
			zap.String("key", newVote.Key().String()),
			zap.Error(err))

		return
	}

	if err := b.voteStore.SetAnnouncement(ctx, newVote.ID, newVote.TargetChannelID, messageID); err != nil {
		b.logger.Error("Failed to record announcement",
			zap.String("key", newVote.Key().String()),
			zap.Error(err))
	}
}

// memberEligible checks the initiator's roles against the guild's
// eligible role list for the vote type. An empty list means everyone.
func (b *Bot) memberEligible(
	event *events.ModalSubmitInteractionCreate, settings *types.GuildSettings, voteType enum.VoteType,
) bool {
	required := settings.RoleIDsFor(voteType)
	if len(required) == 0 {
		return true
	}

	member := event.Member()
	if member == nil {
		return false
	}

	for _, roleID := range member.RoleIDs {
		for _, want := range required {
			if uint64(roleID) == want {
				return true
			}
		}
	}

	return false
}

type responder func(discord.MessageCreate, ...rest.RequestOpt) error

func (b *Bot) respondEphemeral(respond responder, content string) {
	err := respond(discord.NewMessageCreateBuilder().
		SetContent(content).
		SetEphemeral(true).
		Build())
	if err != nil {
		b.logger.Error("Failed to respond to interaction", zap.Error(err))
	}
}

func (b *Bot) respondError(respond responder, content string) {
	b.respondEphemeral(respond, content)
}

// modalTitle renders the modal header per vote type.
func modalTitle(voteType enum.VoteType) string {
	switch voteType {
	case enum.VoteTypeMute:
		return "Vote to mute an author"
	case enum.VoteTypeSeriousMute:
		return "Vote for a serious mute"
	default:
		return "Vote to delete a message"
	}
}

// parseVoteType maps a modal custom id suffix back to a vote type.
func parseVoteType(name string) (enum.VoteType, bool) {
	switch name {
	case enum.VoteTypeDelete.String():
		return enum.VoteTypeDelete, true
	case enum.VoteTypeMute.String():
		return enum.VoteTypeMute, true
	case enum.VoteTypeSeriousMute.String():
		return enum.VoteTypeSeriousMute, true
	default:
		return 0, false
	}
}
