// Package push fans out item events to websocket subscribers grouped in rooms.
package push

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
)

// Settings tunes per-connection buffering and websocket deadlines.
type Settings struct {
	SendBuffer   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingTimeout  time.Duration
}

// DefaultSettings returns the settings the server runs with.
func DefaultSettings() *Settings {
	return &Settings{
		SendBuffer:   32,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingTimeout:  20 * time.Second,
	}
}

type conn struct {
	id    string
	send  chan []byte
	done  chan struct{}
	once  sync.Once
	rooms map[string]bool
}

func (c *conn) kill() {
	c.once.Do(func() { close(c.done) })
}

// Hub tracks room membership and delivers published events. Each connection
// owns a writer goroutine fed by a bounded buffer; a connection that falls
// behind is closed.
type Hub struct {
	settings *Settings
	metrics  *Metrics

	mu    sync.Mutex
	rooms map[string]map[*conn]struct{}
}

// NewHub returns an empty hub. Nil settings or metrics fall back to defaults.
func NewHub(settings *Settings, metrics *Metrics) *Hub {
	if settings == nil {
		settings = DefaultSettings()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		settings: settings,
		metrics:  metrics,
		rooms:    make(map[string]map[*conn]struct{}),
	}
}

// Publish delivers ev to the feed room and to the room of its item. A
// connection in both rooms receives the event once.
func (h *Hub) Publish(ev entity.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		glog.Errorf("[hub]encode %s error = %s\n", ev.Type, err)
		return
	}
	h.metrics.published.WithLabelValues(string(ev.Type)).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()

	seen := map[*conn]struct{}{}
	for _, room := range []string{entity.FeedRoom, entity.ItemRoom(ev.ItemID)} {
		for c := range h.rooms[room] {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			select {
			case c.send <- frame:
				h.metrics.delivered.Inc()
			default:
				glog.Warningf("[hub]%s send buffer full, closing\n", c.id)
				h.metrics.dropped.Inc()
				c.kill()
			}
		}
	}
	glog.V(2).Infof("[hub]published %s %s to %d\n", ev.Type, ev.ItemID, len(seen))
}

// RoomSize returns the number of connections joined to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *Hub) join(c *conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = true
}

func (h *Hub) leave(c *conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *conn, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

func (h *Hub) leaveAll(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
}

// Serve runs one upgraded connection until the peer goes away, the
// connection falls behind, or ctx ends. id names the connection in logs.
func (h *Hub) Serve(ctx context.Context, ws *websocket.Conn, id string) {
	c := &conn{
		id:    id,
		send:  make(chan []byte, h.settings.SendBuffer),
		done:  make(chan struct{}),
		rooms: make(map[string]bool),
	}
	h.metrics.connections.Inc()
	glog.V(1).Infof("[hub]%s connected\n", id)
	defer func() {
		h.leaveAll(c)
		h.metrics.connections.Dec()
		glog.V(1).Infof("[hub]%s disconnected\n", id)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer ws.Close()
		ping := time.NewTicker(h.settings.PingTimeout)
		defer ping.Stop()

		closeFrame := func() {
			ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}

		for {
			select {
			case <-ctx.Done():
				c.kill()
				closeFrame()
				return
			case <-c.done:
				closeFrame()
				return
			case frame := <-c.send:
				ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
					glog.Infof("[hub]%s-> error = %s\n", id, err)
					c.kill()
					return
				}
			case <-ping.C:
				ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.kill()
					return
				}
			}
		}
	}()

	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout))
		return nil
	})
	for {
		ws.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout))
		var msg entity.SubscribeMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.Infof("[hub]%s<- error = %s\n", id, err)
			}
			break
		}
		if !validRoom(msg.Room) {
			glog.V(1).Infof("[hub]%s bad room %q\n", id, msg.Room)
			continue
		}
		switch msg.Action {
		case entity.ActionSubscribe:
			h.join(c, msg.Room)
		case entity.ActionUnsubscribe:
			h.leave(c, msg.Room)
		default:
			glog.V(1).Infof("[hub]%s unknown action %q\n", id, msg.Action)
			continue
		}
		glog.V(2).Infof("[hub]%s<- %s %s\n", id, msg.Action, msg.Room)
	}
	c.kill()
	<-writerDone
}

func validRoom(room string) bool {
	if room == entity.FeedRoom {
		return true
	}
	id, ok := strings.CutPrefix(room, "item:")
	return ok && id != ""
}
