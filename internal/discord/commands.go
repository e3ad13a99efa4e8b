package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kotoyomi/kotoyomi/internal/profile"
)

// commandTimeout bounds the store and engine calls made while answering an
// interaction; Discord times the interaction out at 3 s anyway.
const commandTimeout = 3 * time.Second

// characterGreeting is spoken after a voice change so the new voice is heard
// immediately.
const characterGreeting = "よろしくお願いします"

// speakerChoice is one entry of the static speaker choice list offered on
// /character and /my-voice set. Discord caps a choice list at 25 entries;
// /characters lists everything the engine actually has.
type speakerChoice struct {
	name string
	id   int
}

var speakerChoices = []speakerChoice{
	{"四国めたん（ノーマル）", 2},
	{"四国めたん（あまあま）", 0},
	{"四国めたん（ツンツン）", 6},
	{"四国めたん（セクシー）", 4},
	{"ずんだもん（ノーマル）", 3},
	{"ずんだもん（あまあま）", 1},
	{"ずんだもん（ツンツン）", 7},
	{"ずんだもん（セクシー）", 5},
	{"春日部つむぎ（ノーマル）", 8},
	{"波音リツ（ノーマル）", 9},
	{"玄野武宏（ノーマル）", 11},
	{"白上虎太郎（ふつう）", 12},
	{"青山龍星（ノーマル）", 13},
	{"冥鳴ひまり（ノーマル）", 14},
	{"九州そら（ノーマル）", 16},
	{"九州そら（あまあま）", 15},
	{"九州そら（ツンツン）", 18},
	{"九州そら（セクシー）", 17},
	{"もち子さん（ノーマル）", 20},
	{"剣崎雌雄（ノーマル）", 21},
}

// speakerOption builds the shared integer option carrying the speaker style
// ID with the static choice list.
func speakerOption(required bool) *discordgo.ApplicationCommandOption {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(speakerChoices))
	for i, c := range speakerChoices {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: c.name, Value: c.id}
	}
	return &discordgo.ApplicationCommandOption{
		Name:        "speaker",
		Description: "キャラクターを選択してください",
		Type:        discordgo.ApplicationCommandOptionInteger,
		Required:    required,
		Choices:     choices,
	}
}

// registerCommands wires every slash command into the router.
func (b *Bot) registerCommands() {
	r := b.router

	r.RegisterCommand("join", &discordgo.ApplicationCommand{
		Name:        "join",
		Description: "指定したVCに参加します。",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "channel",
				Description: "参加するVCを選択してください。",
				Type:        discordgo.ApplicationCommandOptionChannel,
				ChannelTypes: []discordgo.ChannelType{
					discordgo.ChannelTypeGuildVoice,
					discordgo.ChannelTypeGuildStageVoice,
				},
				Required: true,
			},
		},
	}, b.handleJoin)

	r.RegisterCommand("leave", &discordgo.ApplicationCommand{
		Name:        "leave",
		Description: "現在のVCから退出します。",
	}, b.handleLeave)

	r.RegisterCommand("status", &discordgo.ApplicationCommand{
		Name:        "status",
		Description: "読み上げ設定の状態を確認します。",
	}, b.handleStatus)

	r.RegisterCommand("set-channel", &discordgo.ApplicationCommand{
		Name:        "set-channel",
		Description: "読み上げ対象チャンネルを変更します。",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:         "channel",
				Description:  "読み上げ対象にするテキストチャンネル",
				Type:         discordgo.ApplicationCommandOptionChannel,
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				Required:     false,
			},
		},
	}, b.handleSetChannel)

	r.RegisterCommand("character", &discordgo.ApplicationCommand{
		Name:        "character",
		Description: "読み上げキャラクターを変更します。",
		Options:     []*discordgo.ApplicationCommandOption{speakerOption(true)},
	}, b.handleCharacter)

	r.RegisterCommand("characters", &discordgo.ApplicationCommand{
		Name:        "characters",
		Description: "利用可能なキャラクター一覧を表示します。",
	}, b.handleCharacters)

	r.RegisterCommand("queue", &discordgo.ApplicationCommand{
		Name:        "queue",
		Description: "読み上げキューの状態を確認します。",
	}, b.handleQueue)

	adminOnly := int64(0)
	dmDisabled := false
	r.RegisterCommand("skip", &discordgo.ApplicationCommand{
		Name:                     "skip",
		Description:              "現在の読み上げキューをクリアします。",
		DefaultMemberPermissions: &adminOnly,
		DMPermission:             &dmDisabled,
	}, b.handleSkip)

	speedMin := profile.MinSpeedScale
	r.RegisterCommand("speed", &discordgo.ApplicationCommand{
		Name:        "speed",
		Description: "読み上げ速度を調整します。",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "value",
				Description: "読み上げ速度（0.5～2.0、デフォルト：1.0）",
				Type:        discordgo.ApplicationCommandOptionNumber,
				Required:    true,
				MinValue:    &speedMin,
				MaxValue:    profile.MaxSpeedScale,
			},
		},
	}, b.handleSpeed)

	pitchMin := profile.MinPitchScale
	volumeMin := profile.MinVolumeScale
	intonationMin := profile.MinIntonationScale
	r.RegisterCommand("voice-settings", &discordgo.ApplicationCommand{
		Name:        "voice-settings",
		Description: "音声設定を詳細調整します。",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "speed",
				Description: "読み上げ速度（0.5～2.0）",
				Type:        discordgo.ApplicationCommandOptionNumber,
				MinValue:    &speedMin,
				MaxValue:    profile.MaxSpeedScale,
			},
			{
				Name:        "pitch",
				Description: "音の高さ（-0.15～0.15）",
				Type:        discordgo.ApplicationCommandOptionNumber,
				MinValue:    &pitchMin,
				MaxValue:    profile.MaxPitchScale,
			},
			{
				Name:        "volume",
				Description: "音量（0.5～2.0）",
				Type:        discordgo.ApplicationCommandOptionNumber,
				MinValue:    &volumeMin,
				MaxValue:    profile.MaxVolumeScale,
			},
			{
				Name:        "intonation",
				Description: "抑揚（0.0～2.0）",
				Type:        discordgo.ApplicationCommandOptionNumber,
				MinValue:    &intonationMin,
				MaxValue:    profile.MaxIntonationScale,
			},
		},
	}, b.handleVoiceSettings)

	r.RegisterCommand("my-voice", &discordgo.ApplicationCommand{
		Name:        "my-voice",
		Description: "自分専用の読み上げキャラクターを管理します。",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "set",
				Description: "自分のメッセージ用キャラクターを設定します。",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     []*discordgo.ApplicationCommandOption{speakerOption(true)},
			},
			{
				Name:        "clear",
				Description: "自分専用キャラクターの設定を解除します。",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "list",
				Description: "このサーバーの個人設定一覧を表示します。",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
		},
	}, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		RespondEphemeral(s, i, "サブコマンドを指定してください：`/my-voice set`、`/my-voice clear`、`/my-voice list`")
	})
	r.RegisterHandler("my-voice/set", b.handleMyVoiceSet)
	r.RegisterHandler("my-voice/clear", b.handleMyVoiceClear)
	r.RegisterHandler("my-voice/list", b.handleMyVoiceList)
}

// commandOptions flattens an interaction's options (descending into the
// first subcommand) into a name-keyed map.
func commandOptions(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		opts = opts[0].Options
	}
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

// interactionUser returns the acting user for guild and DM interactions.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

func (b *Bot) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		RespondEphemeral(s, i, "サーバー内で実行してください。")
		return
	}

	opt, ok := commandOptions(i)["channel"]
	if !ok {
		RespondEphemeral(s, i, "ボイスチャンネルを選択してください。")
		return
	}
	channel := opt.ChannelValue(s)
	if channel == nil ||
		(channel.Type != discordgo.ChannelTypeGuildVoice && channel.Type != discordgo.ChannelTypeGuildStageVoice) {
		RespondEphemeral(s, i, "ボイスチャンネルを選択してください。")
		return
	}

	// The channel the command was issued from becomes the reading channel.
	if err := b.joinVoice(i.GuildID, channel.ID, i.ChannelID); err != nil {
		RespondEphemeral(s, i, fmt.Sprintf("VCへの参加に失敗しました：%v", err))
		return
	}

	Respond(s, i, fmt.Sprintf(
		"**%s** に参加しました！\n📢 このチャンネル（<#%s>）のメッセージを読み上げます。",
		channel.Name, i.ChannelID,
	))
}

func (b *Bot) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.connected(i.GuildID) {
		RespondEphemeral(s, i, "BotはVCに参加していません。")
		return
	}
	if err := b.leaveVoice(i.GuildID); err != nil {
		RespondEphemeral(s, i, fmt.Sprintf("退出処理でエラーが発生しました：%v", err))
		return
	}
	Respond(s, i, "VCから退出しました！読み上げ設定とキューもクリアしました。")
}

func (b *Bot) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("📊 **Bot状態**\n")

	_, readingChannelID, connected := b.readingTarget(i.GuildID)
	if connected {
		sb.WriteString("🔊 ボイスチャンネル: **接続中**\n")
	} else {
		sb.WriteString("🔇 ボイスチャンネル: **未接続**\n")
	}
	if readingChannelID != "" {
		fmt.Fprintf(&sb, "📢 読み上げ対象: <#%s>\n", readingChannelID)
	} else {
		sb.WriteString("📢 読み上げ対象: **未設定**\n")
	}

	voice, err := b.profiles.RoomDefault(ctx, i.GuildID)
	if err == nil {
		fmt.Fprintf(&sb, "🎭 現在のキャラクター: **%s**\n", b.engine.SpeakerName(ctx, voice))
	}

	st := b.speech.Status(i.GuildID)
	fmt.Fprintf(&sb, "📝 読み上げキュー: **%d件**", st.QueueLength)
	if st.Draining {
		sb.WriteString(" *(処理中)*")
	}

	RespondEphemeral(s, i, sb.String())
}

func (b *Bot) handleSetChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.connected(i.GuildID) {
		RespondEphemeral(s, i, "先にボイスチャンネルに参加してください（`/join`）。")
		return
	}

	targetID := i.ChannelID
	if opt, ok := commandOptions(i)["channel"]; ok {
		channel := opt.ChannelValue(s)
		if channel == nil || channel.Type != discordgo.ChannelTypeGuildText {
			RespondEphemeral(s, i, "テキストチャンネルを選択してください。")
			return
		}
		targetID = channel.ID
	}

	b.setReadingChannel(i.GuildID, targetID)
	Respond(s, i, fmt.Sprintf("📢 読み上げ対象チャンネルを <#%s> に設定しました！", targetID))
}

func (b *Bot) handleCharacter(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	opt, ok := commandOptions(i)["speaker"]
	if !ok {
		RespondEphemeral(s, i, "キャラクターを選択してください。")
		return
	}
	speakerID := int(opt.IntValue())

	if err := b.profiles.SetRoomDefault(ctx, i.GuildID, speakerID); err != nil {
		RespondEphemeral(s, i, "キャラクターの変更に失敗しました。")
		return
	}

	name := b.engine.SpeakerName(ctx, speakerID)
	Respond(s, i, fmt.Sprintf("🎭 読み上げキャラクターを **%s** に変更しました！", name))

	// Greet in the new voice so the change is audible right away.
	if sink, _, connected := b.readingTarget(i.GuildID); connected {
		user := interactionUser(i)
		userID := ""
		if user != nil {
			userID = user.ID
		}
		b.speech.Submit(i.GuildID, characterGreeting, userID, sink)
	}
}

func (b *Bot) handleCharacters(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	speakers := b.engine.Speakers(ctx)
	if len(speakers) == 0 {
		RespondEphemeral(s, i, "キャラクター情報を取得できませんでした。")
		return
	}

	var sb strings.Builder
	for idx, sp := range speakers {
		if idx == 10 {
			break
		}
		fmt.Fprintf(&sb, "**%s**\n", sp.Name)
		for _, style := range sp.Styles {
			fmt.Fprintf(&sb, "　└ %s (ID: %d)\n", style.Name, style.ID)
		}
		sb.WriteString("\n")
	}

	RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "🎭 利用可能なキャラクター一覧",
		Color:       0x0099FF,
		Description: sb.String(),
		Footer:      &discordgo.MessageEmbedFooter{Text: "キャラクター変更: /character speaker:<ID>"},
	})
}

func (b *Bot) handleQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	st := b.speech.Status(i.GuildID)

	var sb strings.Builder
	sb.WriteString("📝 **読み上げキュー状態**\n")
	fmt.Fprintf(&sb, "待機中: **%d件**\n", st.QueueLength)
	if st.Draining {
		sb.WriteString("状態: **処理中** 🔄")
	} else {
		sb.WriteString("状態: **待機中** ⏸️")
	}

	RespondEphemeral(s, i, sb.String())
}

func (b *Bot) handleSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.connected(i.GuildID) {
		RespondEphemeral(s, i, "BotはVCに参加していません。")
		return
	}
	b.speech.Clear(i.GuildID)
	Respond(s, i, "⏭️ 読み上げキューをクリアしました！")
}

func (b *Bot) handleSpeed(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	opt, ok := commandOptions(i)["value"]
	if !ok {
		RespondEphemeral(s, i, "速度を指定してください。")
		return
	}
	speed := opt.FloatValue()

	params, err := b.profiles.UpdateParameters(ctx, i.GuildID, profile.ParameterUpdate{SpeedScale: &speed})
	if err != nil {
		RespondEphemeral(s, i, "速度の変更に失敗しました。")
		return
	}
	Respond(s, i, fmt.Sprintf("⚡ 読み上げ速度を **%.2f** に設定しました！", params.SpeedScale))
}

func (b *Bot) handleVoiceSettings(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	opts := commandOptions(i)
	var upd profile.ParameterUpdate
	if o, ok := opts["speed"]; ok {
		v := o.FloatValue()
		upd.SpeedScale = &v
	}
	if o, ok := opts["pitch"]; ok {
		v := o.FloatValue()
		upd.PitchScale = &v
	}
	if o, ok := opts["volume"]; ok {
		v := o.FloatValue()
		upd.VolumeScale = &v
	}
	if o, ok := opts["intonation"]; ok {
		v := o.FloatValue()
		upd.IntonationScale = &v
	}
	if upd == (profile.ParameterUpdate{}) {
		RespondEphemeral(s, i, "変更する項目を少なくとも一つ指定してください。")
		return
	}

	params, err := b.profiles.UpdateParameters(ctx, i.GuildID, upd)
	if err != nil {
		RespondEphemeral(s, i, "音声設定の変更に失敗しました。")
		return
	}

	Respond(s, i, fmt.Sprintf(
		"🔧 音声設定を更新しました！\n速度: **%.2f** ／ 高さ: **%.2f** ／ 音量: **%.2f** ／ 抑揚: **%.2f**",
		params.SpeedScale, params.PitchScale, params.VolumeScale, params.IntonationScale,
	))
}

func (b *Bot) handleMyVoiceSet(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	user := interactionUser(i)
	if user == nil {
		RespondEphemeral(s, i, "ユーザー情報が取得できませんでした。")
		return
	}
	opt, ok := commandOptions(i)["speaker"]
	if !ok {
		RespondEphemeral(s, i, "キャラクターを選択してください。")
		return
	}
	speakerID := int(opt.IntValue())

	if err := b.profiles.SetUserOverride(ctx, i.GuildID, user.ID, speakerID); err != nil {
		RespondEphemeral(s, i, "設定に失敗しました。")
		return
	}
	name := b.engine.SpeakerName(ctx, speakerID)
	RespondEphemeral(s, i, fmt.Sprintf("🎭 あなたのメッセージは **%s** が読み上げます！", name))
}

func (b *Bot) handleMyVoiceClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	user := interactionUser(i)
	if user == nil {
		RespondEphemeral(s, i, "ユーザー情報が取得できませんでした。")
		return
	}
	if err := b.profiles.ClearUserOverride(ctx, i.GuildID, user.ID); err != nil {
		RespondEphemeral(s, i, "解除に失敗しました。")
		return
	}
	RespondEphemeral(s, i, "個人設定を解除しました。サーバーのキャラクターで読み上げます。")
}

func (b *Bot) handleMyVoiceList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	overrides, err := b.profiles.UserOverrides(ctx, i.GuildID)
	if err != nil {
		RespondEphemeral(s, i, "一覧の取得に失敗しました。")
		return
	}
	if len(overrides) == 0 {
		RespondEphemeral(s, i, "個人設定はまだありません。`/my-voice set` で設定できます。")
		return
	}

	var sb strings.Builder
	sb.WriteString("🎭 **個人キャラクター設定**\n")
	for _, ov := range overrides {
		fmt.Fprintf(&sb, "<@%s> → **%s**\n", ov.UserID, b.engine.SpeakerName(ctx, ov.VoiceID))
	}
	RespondEphemeral(s, i, sb.String())
}
