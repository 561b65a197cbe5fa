// Package events carries player notifications to the command layer.
package events

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

type Kind string

const (
	// KindUpdate is emitted whenever a guild queue changes.
	KindUpdate Kind = "update"
	// KindRemove carries the outcome of a removal request.
	KindRemove Kind = "remove"
	// KindStream carries a plain radio status message.
	KindStream Kind = "stream"
	// KindStreaming carries the radio now-playing embed.
	KindStreaming Kind = "streaming"
	// KindPlaying is emitted when a queued track starts.
	KindPlaying Kind = "playing"
)

type Event struct {
	Kind    Kind
	GuildID string
	Message string
	Embed   *discordgo.MessageEmbed
}

type Handler func(Event)

type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	order    []int
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a function removing it again.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit calls every handler synchronously in subscription order. Handlers may
// subscribe or unsubscribe while being called.
func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
