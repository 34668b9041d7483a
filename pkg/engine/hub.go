package engine

import (
	"context"
	"sync/atomic"

	"padscope/pkg/protocol"
)

type subscription struct {
	ch    chan protocol.Packet
	kinds uint8
}

func (s subscription) wants(kind protocol.PacketKind) bool {
	return s.kinds&(1<<kind) != 0
}

// Hub fans packets out to subscribers. Delivery to a subscriber never
// blocks: one that cannot keep up misses packets. Publish itself blocks
// while the broadcast buffer is full.
type Hub struct {
	broadcast  chan protocol.Packet
	register   chan subscription
	unregister chan chan protocol.Packet
	clients    map[chan protocol.Packet]subscription
	clientBuf  int
	dropped    atomic.Uint64
	done       chan struct{}
}

type Option func(*Hub)

func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan protocol.Packet, size)
		}
	}
}

func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan protocol.Packet, 256),
		register:   make(chan subscription),
		unregister: make(chan chan protocol.Packet),
		clients:    make(map[chan protocol.Packet]subscription),
		clientBuf:  100,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run delivers packets until ctx is cancelled. Packets already queued are
// still delivered before every subscriber channel is closed. Publish and
// Unsubscribe become no-ops afterwards.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.drain()
			for ch := range h.clients {
				close(ch)
			}
			h.clients = map[chan protocol.Packet]subscription{}
			return
		case sub := <-h.register:
			h.clients[sub.ch] = sub
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case packet := <-h.broadcast:
			h.deliver(packet)
		}
	}
}

func (h *Hub) drain() {
	for {
		select {
		case packet := <-h.broadcast:
			h.deliver(packet)
		default:
			return
		}
	}
}

func (h *Hub) deliver(packet protocol.Packet) {
	for ch, sub := range h.clients {
		if !sub.wants(packet.Kind) {
			continue
		}
		select {
		case ch <- packet:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel receiving packets of the given kinds, or of
// every kind when none are given.
func (h *Hub) Subscribe(kinds ...protocol.PacketKind) chan protocol.Packet {
	return h.SubscribeWithBuffer(h.clientBuf, kinds...)
}

func (h *Hub) SubscribeWithBuffer(size int, kinds ...protocol.PacketKind) chan protocol.Packet {
	if size <= 0 {
		size = h.clientBuf
	}
	sub := subscription{ch: make(chan protocol.Packet, size)}
	if len(kinds) == 0 {
		kinds = []protocol.PacketKind{protocol.KindFrame, protocol.KindState}
	}
	for _, k := range kinds {
		sub.kinds |= 1 << k
	}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.ch)
	}
	return sub.ch
}

func (h *Hub) Unsubscribe(ch chan protocol.Packet) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	}
}

func (h *Hub) Publish(packet protocol.Packet) {
	select {
	case h.broadcast <- packet:
	case <-h.done:
	}
}

// Dropped counts packets not delivered to slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
