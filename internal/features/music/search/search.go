package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/hxnx/moetune/internal/music"
)

const (
	MaxResults       = 5
	MaxSelectOptions = 25
	CustomIDPrefix   = "music_search_select"
)

// BuildSearchComponents renders the result list with a select menu whose
// values are 0-based result indexes.
func BuildSearchComponents(query string, results []music.Track) []discordgo.MessageComponent {
	divider := true
	spacing := discordgo.SeparatorSpacingSizeSmall

	if strings.TrimSpace(query) == "" {
		query = "unknown"
	}

	options := make([]discordgo.SelectMenuOption, 0, min(len(results), MaxSelectOptions))
	for i, track := range results {
		if i >= MaxSelectOptions {
			break
		}
		options = append(options, discordgo.SelectMenuOption{
			Label:       shared.Truncate(track.Title, 80),
			Description: shared.Truncate(describe(track), 100),
			Value:       strconv.Itoa(i),
		})
	}

	components := []discordgo.MessageComponent{
		discordgo.TextDisplay{Content: "🔎 **Search results**"},
		discordgo.TextDisplay{Content: fmt.Sprintf("Query: **%s**", shared.EscapeMarkdown(query))},
		discordgo.TextDisplay{Content: summary(results)},
	}
	if len(options) > 0 {
		components = append(components,
			discordgo.Separator{Divider: &divider, Spacing: &spacing},
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.SelectMenu{
						MenuType:    discordgo.StringSelectMenu,
						CustomID:    CustomIDPrefix,
						Placeholder: "Pick a track to queue",
						Options:     options,
					},
				},
			},
		)
	}

	return []discordgo.MessageComponent{
		discordgo.Container{
			AccentColor: &shared.AccentColor,
			Components:  components,
		},
	}
}

// ParseSelection reads the picked result index from a select interaction.
func ParseSelection(values []string) (int, bool) {
	if len(values) == 0 {
		return 0, false
	}
	index, err := strconv.Atoi(values[0])
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

func summary(results []music.Track) string {
	lines := make([]string, 0, len(results))
	for i, track := range results {
		if i >= MaxResults {
			break
		}
		lines = append(lines, fmt.Sprintf(
			"%d. **%s** [%s]",
			i+1,
			shared.EscapeMarkdown(shared.Truncate(track.Title, 80)),
			music.FormatDuration(track.Duration),
		))
	}
	if len(lines) == 0 {
		return "No results."
	}
	return strings.Join(lines, "\n")
}

func describe(track music.Track) string {
	source := string(track.Source)
	if source == "" {
		source = string(music.TrackSourceUnknown)
	}
	return fmt.Sprintf("%s • %s", source, music.FormatDuration(track.Duration))
}
