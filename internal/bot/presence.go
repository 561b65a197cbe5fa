package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const presenceUpdateInterval = 60 * time.Second

func (b *Bot) startPresenceUpdater() {
	if b.presenceStop != nil {
		return
	}
	b.presenceStop = make(chan struct{})
	go func(stop <-chan struct{}) {
		ticker := time.NewTicker(presenceUpdateInterval)
		defer ticker.Stop()

		b.updatePresence()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				b.updatePresence()
			}
		}
	}(b.presenceStop)
}

func (b *Bot) stopPresenceUpdater() {
	if b.presenceStop == nil {
		return
	}
	close(b.presenceStop)
	b.presenceStop = nil
}

func (b *Bot) updatePresence() {
	song := ""
	if b.services != nil && b.services.Radio != nil {
		if info, ok := b.services.Radio.Song(); ok {
			song = presenceSong(info.Title, info.Artist)
		}
	}

	for _, s := range b.sessions {
		guildCount := 0
		if s.State != nil {
			guildCount = len(s.State.Guilds)
		}

		status := song
		if status == "" {
			status = fmt.Sprintf("shard #%d / %d servers", max(1, s.ShardID+1), guildCount)
		}
		if err := s.UpdateListeningStatus(status); err != nil {
			log.Debug().Err(err).Int("shard", s.ShardID).Msg("failed to update presence")
		}
	}
}

func presenceSong(title, artist string) string {
	switch {
	case title == "":
		return ""
	case artist == "":
		return title
	default:
		return artist + " - " + title
	}
}
