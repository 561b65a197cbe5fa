package queueview

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/hxnx/moetune/internal/music"
)

const (
	CustomIDPrefix = "music_queue_page"
	DefaultPerPage = 10
	MaxPerPage     = 25
)

type PageInfo struct {
	Page       int
	PerPage    int
	TotalItems int
	TotalPages int
	StartIndex int
	EndIndex   int
}

// Paginate clamps page and perPage and returns the slice bounds for them.
func Paginate(total, page, perPage int) PageInfo {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	perPage = clamp(perPage, 1, MaxPerPage)
	totalPages := max(1, int(math.Ceil(float64(total)/float64(perPage))))
	page = clamp(page, 1, totalPages)

	start := (page - 1) * perPage
	end := min(start+perPage, total)

	return PageInfo{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
		StartIndex: start,
		EndIndex:   end,
	}
}

// BuildQueueComponents renders one page of the queue. current is the 0-based
// position of the playing track, or -1 when nothing is current.
func BuildQueueComponents(tracks []music.Track, current, page, perPage int) ([]discordgo.MessageComponent, PageInfo) {
	info := Paginate(len(tracks), page, perPage)

	lines := make([]string, 0, info.EndIndex-info.StartIndex)
	for i := info.StartIndex; i < info.EndIndex; i++ {
		lines = append(lines, formatLine(i, tracks[i], i == current))
	}

	listContent := "The queue is empty."
	if len(lines) > 0 {
		listContent = strings.Join(lines, "\n")
	}

	divider := true
	spacing := discordgo.SeparatorSpacingSizeSmall

	components := []discordgo.MessageComponent{
		discordgo.Container{
			AccentColor: &shared.AccentColor,
			Components: []discordgo.MessageComponent{
				discordgo.TextDisplay{Content: "📋 **Queue**"},
				discordgo.TextDisplay{Content: fmt.Sprintf("Page **%d/%d** · **%d** track(s)", info.Page, info.TotalPages, info.TotalItems)},
				discordgo.Separator{Divider: &divider, Spacing: &spacing},
				discordgo.TextDisplay{Content: listContent},
				discordgo.Separator{Divider: &divider, Spacing: &spacing},
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Style:    discordgo.SecondaryButton,
							Label:    "Previous",
							CustomID: MakeQueuePageCustomID(info.Page-1, info.PerPage),
							Disabled: info.Page <= 1,
						},
						discordgo.Button{
							Style:    discordgo.SecondaryButton,
							Label:    "Next",
							CustomID: MakeQueuePageCustomID(info.Page+1, info.PerPage),
							Disabled: info.Page >= info.TotalPages,
						},
					},
				},
			},
		},
	}

	return components, info
}

// BuildAddedComponents confirms a queued track at its 1-based position.
func BuildAddedComponents(track music.Track, position, total int) []discordgo.MessageComponent {
	divider := true
	spacing := discordgo.SeparatorSpacingSizeSmall

	title := fmt.Sprintf("**%s**", shared.EscapeMarkdown(track.Title))
	if track.URL != "" {
		title = fmt.Sprintf("[**%s**](%s)", shared.EscapeMarkdown(track.Title), track.URL)
	}
	body := strings.Join([]string{
		"🎵 " + title,
		"⏱️ Duration: " + music.FormatDuration(track.Duration),
		fmt.Sprintf("📍 Position: #%d of %d", position, total),
	}, "\n")

	inner := []discordgo.MessageComponent{
		discordgo.TextDisplay{Content: "Added to queue"},
		discordgo.Separator{Divider: &divider, Spacing: &spacing},
	}
	if track.Image != "" {
		inner = append(inner, discordgo.Section{
			Components: []discordgo.MessageComponent{
				discordgo.TextDisplay{Content: body},
			},
			Accessory: discordgo.Thumbnail{
				Media: discordgo.UnfurledMediaItem{URL: track.Image},
			},
		})
	} else {
		inner = append(inner, discordgo.TextDisplay{Content: body})
	}

	return []discordgo.MessageComponent{
		discordgo.Container{
			AccentColor: &shared.AccentColor,
			Components:  inner,
		},
	}
}

func formatLine(index int, track music.Track, current bool) string {
	title := strings.TrimSpace(track.Title)
	if title == "" {
		title = "Unknown title"
	}
	title = shared.EscapeMarkdown(shared.Truncate(title, 80))

	line := fmt.Sprintf("%d. %s", index+1, title)
	if track.URL != "" {
		line = fmt.Sprintf("%d. [%s](%s)", index+1, title, track.URL)
	}
	line += " `" + music.FormatDuration(track.Duration) + "`"
	if current {
		line = "▶ " + line
	}
	return line
}

func MakeQueuePageCustomID(page int, perPage int) string {
	if page < 1 {
		page = 1
	}
	perPage = clamp(perPage, 1, MaxPerPage)
	return fmt.Sprintf("%s:%d:%d", CustomIDPrefix, page, perPage)
}

func ParseQueuePageCustomID(customID string) (page int, perPage int, ok bool) {
	if !strings.HasPrefix(customID, CustomIDPrefix+":") {
		return 0, 0, false
	}

	parts := strings.Split(customID, ":")
	if len(parts) != 3 {
		return 0, 0, false
	}

	pageVal, err := strconv.Atoi(parts[1])
	if err != nil || pageVal < 1 {
		return 0, 0, false
	}

	perPageVal, err := strconv.Atoi(parts[2])
	if err != nil || perPageVal < 1 {
		return 0, 0, false
	}

	return pageVal, clamp(perPageVal, 1, MaxPerPage), true
}

func clamp(value, minValue, maxValue int) int {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}
	return value
}
