package bot

import (
	"anibot/internal/anilistapi"
	"anibot/internal/common"
	"anibot/internal/config"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Time given to a single command or background task
const requestTimeout = 2 * time.Minute

// Cooldowns idle for longer than this are forgotten
const cooldownIdle = time.Hour

type Guild struct {
	id        string
	channelId string
	members   map[string]anilistapi.UserId // discord id -> anilist id
}

// An AniList user whose activity is mirrored into at least one guild
type Follower struct {
	id           anilistapi.UserId
	lastActivity time.Time
}

type Guilds map[string]*Guild
type Followers map[anilistapi.UserId]*Follower

// Where a command comes from
type Request struct {
	guildId   string
	channelId string
	userId    string
}

type Bot struct {
	token             string
	developGuildId    string
	prefix            string
	database          DatabaseBot
	anilistapi        *anilistapi.AnilistApi
	mu                sync.Mutex
	guilds            Guilds
	followers         Followers
	cooldown          *common.Cooldown
	paginators        *common.Cache[string, *Paginator]
	mainCycle         time.Duration
	feedInterval      time.Duration
	housekeeping      time.Duration
	statsTtl          time.Duration
	trendingSchedule  string
	trendingCount     int
	finishersSchedule string
	ctx               context.Context
	now               func() time.Time
}

func CreateBot(cfg config.Config, anilist *anilistapi.AnilistApi, database common.Database) (*Bot, error) {

	var bot Bot

	bot.token = cfg.DiscordToken
	bot.developGuildId = cfg.DevelopGuildId
	bot.prefix = cfg.Prefix
	bot.anilistapi = anilist
	bot.now = time.Now
	bot.ctx = context.Background()

	// Database
	db, err := CreateDatabaseBot(database)
	if err != nil {
		return nil, err
	}
	bot.database = db

	// Initialise values from the database if present
	ctx := context.Background()
	if bot.guilds, err = bot.database.GetGuilds(ctx); err != nil {
		return nil, err
	}
	if bot.followers, err = bot.database.GetFollowers(ctx); err != nil {
		return nil, err
	}

	// Every registered user needs a feed checkpoint
	now := bot.now()
	for _, guild := range bot.guilds {
		for _, id := range guild.members {
			if _, ok := bot.followers[id]; ok {
				continue
			}
			bot.followers[id] = &Follower{id: id, lastActivity: now}
			if err := bot.database.SetFeedCheckpoint(ctx, id, now); err != nil {
				return nil, err
			}
		}
	}
	log.Info().Int("guilds", len(bot.guilds)).Int("followers", len(bot.followers)).Msg("Loaded bot state")

	bot.cooldown = common.NewCooldown(cfg.CommandRate, cfg.CommandBurst)
	bot.paginators = common.NewCache[string, *Paginator](cfg.PaginatorTtl)

	// Timings
	bot.mainCycle = cfg.MainCycle
	bot.feedInterval = cfg.FeedInterval
	bot.housekeeping = cfg.HousekeepingInterval
	bot.statsTtl = cfg.StatsTtl
	bot.trendingSchedule = cfg.TrendingSchedule
	bot.trendingCount = cfg.TrendingCount
	bot.finishersSchedule = cfg.FinishersSchedule

	return &bot, nil
}

func (bot *Bot) Run(ctx context.Context) error {

	bot.ctx = ctx

	// Create session
	discord, err := discordgo.New("Bot " + bot.token)
	if err != nil {
		return fmt.Errorf("could not create discord session: %w", err)
	}
	discord.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	// Event handlers
	discord.AddHandler(func(discord *discordgo.Session, ready *discordgo.Ready) {
		log.Info().Str("user", ready.User.Username).Int("guilds", len(ready.Guilds)).Msg("Connected to Discord")
	})
	discord.AddHandler(bot.Receive)
	discord.AddHandler(bot.Interact)

	// Open session
	if err := discord.Open(); err != nil {
		return fmt.Errorf("could not open discord session: %w", err)
	}
	defer discord.Close()

	// Slash commands, globally unless a development guild is given
	commands, err := discord.ApplicationCommandBulkOverwrite(discord.State.User.ID, bot.developGuildId, Commands())
	if err != nil {
		return fmt.Errorf("could not register slash commands: %w", err)
	}
	log.Info().Msg(fmt.Sprintf("Registered %d slash commands", len(commands)))

	// Digests
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(bot.trendingSchedule, func() { bot.trendingDigest(discord) }); err != nil {
		return fmt.Errorf("could not schedule trending digest: %w", err)
	}
	if _, err := scheduler.AddFunc(bot.finishersSchedule, func() { bot.finishersDigest(discord) }); err != nil {
		return fmt.Errorf("could not schedule finishers digest: %w", err)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	// Periodic work driven by the main loop
	executors := []*common.TimedExecutor{
		common.NewTimedExecutor("feed", bot.feedInterval, func() { bot.pollFeed(discord) }),
		common.NewTimedExecutor("housekeeping", bot.housekeeping, bot.housekeepingTask),
	}

	log.Info().Msg("Starting main loop")
	ticker := time.NewTicker(bot.mainCycle)
	defer ticker.Stop()
	for {
		for _, executor := range executors {
			if executor.Execute() {
				log.Debug().Msg(fmt.Sprintf("Executed %s", executor.Name()))
			}
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping main loop")
			return nil
		case <-ticker.C:
		}
	}
}

func (bot *Bot) Receive(discord *discordgo.Session, message *discordgo.MessageCreate) {

	// Reject my own messages and those of other bots
	if message.Author == nil || message.Author.Bot || message.Author.ID == discord.State.User.ID {
		return
	}

	parseResult := Parse(bot.prefix, message.Content)

	// Not a command, but it may contain links worth a preview
	if parseResult.parseid == PARSEID_NO_BOT_PREFIX {
		if message.GuildID != "" {
			bot.previewLinks(discord, message)
		}
		return
	}

	// Ignore messages from private channels
	if message.GuildID == "" {
		log.Debug().Msg("Ignoring private message")
		bot.sendResponses(discord, message.ChannelID, []Response{ResponseString{privateMessage}})
		return
	}

	if !bot.cooldown.Allow(message.Author.ID) {
		log.Debug().Str("user", message.Author.ID).Msg("Command rejected by cooldown")
		bot.sendResponses(discord, message.ChannelID, []Response{ResponseString{slowDown}})
		return
	}

	ctx, cancel := bot.context()
	defer cancel()

	// Register the guild if it's the first time I see it
	if welcome := bot.initGuild(ctx, message.GuildID, message.ChannelID); welcome != nil {
		bot.sendResponses(discord, message.ChannelID, welcome)
	}

	// Parse the input provided and call the appropriate function
	log.Debug().Msg(fmt.Sprintf("Received message: %s", message.Content))
	var responses []Response
	if parseResult.parseid == PARSEID_OK {
		request := Request{guildId: message.GuildID, channelId: message.ChannelID, userId: message.Author.ID}
		responses = bot.execute(ctx, discord, request, parseResult)
	} else {
		// The command is invalid input, so it contains an error message
		log.Info().Msg(fmt.Sprintf("Wrong input: '%s'. Reason: %s", message.Content, parseResult.errorMessage))
		responses = InputNotValid(parseResult.errorMessage)
	}
	bot.sendResponses(discord, message.ChannelID, responses)
}

func (bot *Bot) Interact(discord *discordgo.Session, interaction *discordgo.InteractionCreate) {

	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		bot.slashCommand(discord, interaction)
	case discordgo.InteractionMessageComponent:
		bot.flipPage(discord, interaction)
	}
}

func (bot *Bot) slashCommand(discord *discordgo.Session, interaction *discordgo.InteractionCreate) {

	if interaction.GuildID == "" {
		bot.respondEphemeral(discord, interaction, privateMessage)
		return
	}
	userId := interactionUserId(interaction)
	if !bot.cooldown.Allow(userId) {
		log.Debug().Str("user", userId).Msg("Command rejected by cooldown")
		bot.respondEphemeral(discord, interaction, slowDown)
		return
	}

	// Acknowledge now, AniList may take a while to answer
	err := discord.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.Error().Err(err).Msg("Could not acknowledge interaction")
		return
	}

	ctx, cancel := bot.context()
	defer cancel()

	if welcome := bot.initGuild(ctx, interaction.GuildID, interaction.ChannelID); welcome != nil {
		bot.sendResponses(discord, interaction.ChannelID, welcome)
	}

	data := interaction.ApplicationCommandData()
	log.Debug().Msg(fmt.Sprintf("Received slash command: %s", data.Name))
	parseResult := ParseInteraction(data)
	var responses []Response
	if parseResult.parseid == PARSEID_OK {
		request := Request{guildId: interaction.GuildID, channelId: interaction.ChannelID, userId: userId}
		responses = bot.execute(ctx, discord, request, parseResult)
	} else {
		log.Info().Msg(fmt.Sprintf("Wrong slash command %s. Reason: %s", data.Name, parseResult.errorMessage))
		responses = InputNotValid(parseResult.errorMessage)
	}
	bot.respondInteraction(discord, interaction, responses)
}

func (bot *Bot) flipPage(discord *discordgo.Session, interaction *discordgo.InteractionCreate) {

	id, action, ok := ParsePageCustomId(interaction.MessageComponentData().CustomID)
	if !ok {
		return
	}
	paginator, found := bot.paginators.Get(id)
	if !found {
		bot.respondEphemeral(discord, interaction, paginatorExpired)
		return
	}
	if !paginator.CanFlip(interactionUserId(interaction)) {
		bot.respondEphemeral(discord, interaction, notYourPages)
		return
	}

	// Flipping keeps the pages alive
	paginator.Flip(action)
	bot.paginators.Set(id, paginator)
	embed, components := paginator.Render()
	err := discord.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Could not flip page")
	}
}

func (bot *Bot) execute(ctx context.Context, discord *discordgo.Session, request Request, parseResult ParseResult) []Response {

	arguments := parseResult.arguments
	switch parseResult.command {
	case COMMAND_REGISTER:
		return bot.register(ctx, request, arguments.Name)
	case COMMAND_UNREGISTER:
		return bot.unregister(ctx, request)
	case COMMAND_PROFILE:
		return bot.profile(ctx, request, arguments.Name)
	case COMMAND_SEARCH:
		return bot.search(ctx, request, arguments.MediaType, arguments.Query)
	case COMMAND_STATS:
		return bot.stats(ctx, request, arguments.Name)
	case COMMAND_PROGRESS:
		return bot.progress(ctx, request, arguments.Query)
	case COMMAND_ACTIVITY:
		return bot.activity(ctx, request, arguments.Name)
	case COMMAND_EXPORT:
		return bot.export(ctx, request, arguments.Name, arguments.MediaType, arguments.Format)
	case COMMAND_TRENDING:
		return bot.trending(ctx, arguments.MediaType)
	case COMMAND_FINISHERS:
		return bot.finishers(ctx, request)
	case COMMAND_CHANNEL:
		return bot.channel(ctx, discord, request, arguments.Channel, arguments.ChannelId)
	case COMMAND_STATUS:
		return bot.status(request)
	case COMMAND_HELP:
		return HelpMessage(bot.prefix)
	}
	log.Error().Msg(fmt.Sprintf("Command %d is not one of the possible ones", parseResult.command))
	return nil
}

// Register the guild if it's the first time I see it. The channel
// used becomes the one for the feed. Returns the welcome message, if any
func (bot *Bot) initGuild(ctx context.Context, guildId string, channelId string) []Response {

	bot.mu.Lock()
	if _, ok := bot.guilds[guildId]; ok {
		bot.mu.Unlock()
		return nil
	}
	log.Info().Msg(fmt.Sprintf("Initialising guild %s", guildId))
	bot.guilds[guildId] = &Guild{id: guildId, channelId: channelId, members: map[string]anilistapi.UserId{}}
	bot.mu.Unlock()

	if err := bot.database.AddGuild(ctx, guildId, channelId); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not store guild %s", guildId))
	}
	return Welcome(bot.prefix, channelId)
}

func (bot *Bot) previewLinks(discord *discordgo.Session, message *discordgo.MessageCreate) {

	links := FindMediaLinks(message.Content)
	if len(links) == 0 || !bot.cooldown.Allow(message.Author.ID) {
		return
	}

	ctx, cancel := bot.context()
	defer cancel()

	responses := []Response{}
	for _, link := range links {
		media, err := bot.anilistapi.GetMedia(ctx, link.Id)
		if err != nil {
			log.Warn().Err(err).Msg(fmt.Sprintf("Could not preview %s %d", link.Type.Lower(), link.Id))
			continue
		}
		responses = append(responses, ResponseEmbed{MediaEmbed(media, bot.now())})
	}
	bot.sendResponses(discord, message.ChannelID, responses)
}

func (bot *Bot) sendResponses(discord *discordgo.Session, channelId string, responses []Response) {
	for _, response := range responses {
		if _, err := discord.ChannelMessageSendComplex(channelId, response.Message()); err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not send message to channel %s", channelId))
		}
	}
}

// The first response replaces the deferred answer, the rest follow it
func (bot *Bot) respondInteraction(discord *discordgo.Session, interaction *discordgo.InteractionCreate, responses []Response) {

	if len(responses) == 0 {
		responses = []Response{ResponseString{"Done"}}
	}
	for i, response := range responses {
		message := response.Message()
		var err error
		if i == 0 {
			_, err = discord.InteractionResponseEdit(interaction.Interaction, webhookEdit(message))
		} else {
			_, err = discord.FollowupMessageCreate(interaction.Interaction, true, webhookParams(message))
		}
		if err != nil {
			log.Error().Err(err).Msg("Could not answer interaction")
		}
	}
}

func (bot *Bot) respondEphemeral(discord *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	err := discord.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.Error().Err(err).Msg("Could not answer interaction")
	}
}

func interactionUserId(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func (bot *Bot) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(bot.ctx, requestTimeout)
}

// Channels of all the guilds, the destinations of the digests
func (bot *Bot) guildChannels() []string {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	channels := make([]string, 0, len(bot.guilds))
	for _, guild := range bot.guilds {
		channels = append(channels, guild.channelId)
	}
	slices.Sort(channels)
	return channels
}

func (bot *Bot) housekeepingTask() {

	ctx, cancel := bot.context()
	defer cancel()

	bot.mu.Lock()
	idsToKeep := make(map[anilistapi.UserId]struct{}, len(bot.followers))
	for id := range bot.followers {
		idsToKeep[id] = struct{}{}
	}
	bot.mu.Unlock()

	bot.anilistapi.Housekeeping(ctx, idsToKeep)
	cooldowns := bot.cooldown.Prune(cooldownIdle)
	paginators := bot.paginators.PurgeExpired()
	log.Info().Int("cooldowns", cooldowns).Int("paginators", paginators).Msg("Housekeeping done")

	stats := bot.anilistapi.Stats()
	log.Info().
		Int("media", stats.Media).
		Int("users", stats.Users).
		Int("names", stats.Names).
		Int("vital_waiting", stats.VitalWaiting).
		Int("cooldowns", bot.cooldown.Len()).
		Int("paginators", bot.paginators.Len()).
		Msg("Still in memory")
}
