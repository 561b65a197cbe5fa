package ping

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func textOf(components []discordgo.MessageComponent) string {
	var b strings.Builder
	for _, c := range components {
		switch v := c.(type) {
		case discordgo.Container:
			b.WriteString(textOf(v.Components))
		case discordgo.Section:
			b.WriteString(textOf(v.Components))
		case discordgo.TextDisplay:
			b.WriteString(v.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func TestBuildPingComponentsV2(t *testing.T) {
	now := time.Unix(1700000000, 0)
	components := BuildPingComponentsV2(Stats{
		APILatency:     42 * time.Millisecond,
		GatewayLatency: 50 * time.Millisecond,
		Guilds:         3,
		Shards:         1,
		Uptime:         90 * time.Second,
		MemoryMB:       12.5,
		VoiceSessions:  2,
		RadioStreams:   1,
		Song:           "ClariS - Connect",
	}, now)

	text := textOf(components)
	for _, want := range []string{
		"**API latency:** 42ms",
		"**Servers:** 3 • **Shards:** 1",
		"**Uptime:** 1m30s • **Memory:** 12.50 MB",
		"**Voice sessions:** 2 • **Radio streams:** 1",
		"**On air:** ClariS - Connect",
		"<t:1700000000:R>",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in:\n%s", want, text)
		}
	}

	section := components[0].(discordgo.Container).Components[2].(discordgo.Section)
	if button := section.Accessory.(discordgo.Button); button.CustomID != RefreshCustomID {
		t.Errorf("unexpected refresh id %q", button.CustomID)
	}
}

func TestBuildPingComponentsV2_NoSong(t *testing.T) {
	text := textOf(BuildPingComponentsV2(Stats{Shards: 1}, time.Now()))
	if !strings.Contains(text, "**On air:** nothing announced yet") {
		t.Errorf("expected placeholder song, got:\n%s", text)
	}
}
