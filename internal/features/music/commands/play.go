package commands

import (
	"context"

	"github.com/bwmarrin/discordgo"
	queueview "github.com/hxnx/moetune/internal/features/music/queueview"
	musicsearch "github.com/hxnx/moetune/internal/features/music/search"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/hxnx/moetune/internal/music"
	"github.com/rs/zerolog/log"
)

func (h *Handler) Play(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}

	options := i.ApplicationCommandData().Options
	query := trimOption(options, "query")
	if query == "" {
		shared.RespondEphemeral(s, i, "Tell me what to play.")
		return
	}
	hint := music.ParseSourceHint(shared.GetOptionString(options, "source"))
	userID := shared.GetInteractionUserID(i)

	if err := shared.DeferEphemeral(s, i); err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Msg("play: defer failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	track, err := h.svc.Resolver.Resolve(ctx, query, hint)
	if err != nil {
		log.Warn().Err(err).Str("guild_id", i.GuildID).Str("query", query).Msg("play: resolve failed")
		shared.FollowupEphemeral(s, i, userMessage(err))
		return
	}

	position, total, err := EnqueueAndPlay(ctx, h.svc, s, i.GuildID, userID, track)
	if err != nil && position == 0 {
		shared.FollowupEphemeral(s, i, userMessage(err))
		return
	}
	shared.FollowupComponents(s, i, queueview.BuildAddedComponents(track, position, total))
	if err != nil {
		shared.FollowupEphemeral(s, i, userMessage(err))
	}
}

func (h *Handler) Search(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}

	options := i.ApplicationCommandData().Options
	query := trimOption(options, "query")
	if query == "" {
		shared.RespondEphemeral(s, i, "Tell me what to search for.")
		return
	}
	hint := music.ParseSourceHint(shared.GetOptionString(options, "source"))

	if err := shared.DeferEphemeral(s, i); err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Msg("search: defer failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	results, err := h.svc.Resolver.ResolveSearch(ctx, query, hint, musicsearch.MaxResults)
	if err != nil {
		log.Warn().Err(err).Str("guild_id", i.GuildID).Str("query", query).Msg("search failed")
		shared.FollowupEphemeral(s, i, userMessage(err))
		return
	}
	if len(results) == 0 {
		shared.FollowupEphemeral(s, i, "No results.")
		return
	}

	h.svc.Searches.Save(music.SearchSession{
		GuildID: i.GuildID,
		UserID:  shared.GetInteractionUserID(i),
		Query:   query,
		Results: results,
	})
	shared.FollowupComponents(s, i, musicsearch.BuildSearchComponents(query, results))
}
