package listeners

import (
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/features/shared"
)

// Handler reacts to music components, voice state changes and requests
// typed into the announce channel.
type Handler struct {
	svc *shared.Services

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New(svc *shared.Services) *Handler {
	return &Handler{
		svc:    svc,
		timers: make(map[string]*time.Timer),
	}
}

func (h *Handler) RouteMusicComponent(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Type != discordgo.InteractionMessageComponent {
		return false
	}

	customID := i.MessageComponentData().CustomID
	if !strings.HasPrefix(customID, "music_") {
		return false
	}

	h.HandleMusicComponent(s, i)
	return true
}
