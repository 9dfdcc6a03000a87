package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
)

// SubscriberSettings tunes reconnect pacing and websocket deadlines of the
// push connection. BufferSize bounds the events channel.
type SubscriberSettings struct {
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	BufferSize       int
}

// DefaultSubscriberSettings returns settings suited to an interactive client.
func DefaultSubscriberSettings() *SubscriberSettings {
	return &SubscriberSettings{
		HandshakeTimeout: 5 * time.Second,
		ReconnectTimeout: 2 * time.Second,
		PingTimeout:      10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      30 * time.Second,
		BufferSize:       64,
	}
}

// Subscriber holds one websocket to the push endpoint and keeps the joined
// rooms across reconnects. Received events are delivered on Events.
type Subscriber struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	token    string
	settings *SubscriberSettings

	mu      sync.Mutex
	rooms   map[string]int
	control chan entity.SubscribeMessage

	events chan entity.Event
}

// NewSubscriber starts connecting to wsURL in the background.
func NewSubscriber(ctx context.Context, wsURL, token string, settings *SubscriberSettings) *Subscriber {
	if settings == nil {
		settings = DefaultSubscriberSettings()
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	s := &Subscriber{
		ctx:      cancelCtx,
		cancel:   cancel,
		url:      wsURL,
		token:    token,
		settings: settings,
		rooms:    make(map[string]int),
		control:  make(chan entity.SubscribeMessage, settings.BufferSize),
		events:   make(chan entity.Event, settings.BufferSize),
	}
	go s.run()
	return s
}

// Events returns the channel of received events. It is closed after Close.
func (s *Subscriber) Events() <-chan entity.Event {
	return s.events
}

// Subscribe joins room and returns the function that leaves it. Joins are
// counted; the room is left when the last holder releases it. release is safe
// to call more than once.
func (s *Subscriber) Subscribe(room string) (release func()) {
	s.mu.Lock()
	s.rooms[room]++
	first := s.rooms[room] == 1
	s.mu.Unlock()
	if first {
		s.sendControl(entity.SubscribeMessage{Action: entity.ActionSubscribe, Room: room})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.rooms[room]--
			last := s.rooms[room] <= 0
			if last {
				delete(s.rooms, room)
			}
			s.mu.Unlock()
			if last {
				s.sendControl(entity.SubscribeMessage{Action: entity.ActionUnsubscribe, Room: room})
			}
		})
	}
}

// Rooms returns the rooms currently joined.
func (s *Subscriber) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		out = append(out, room)
	}
	return out
}

func (s *Subscriber) sendControl(msg entity.SubscribeMessage) {
	select {
	case s.control <- msg:
	case <-s.ctx.Done():
	default:
		// the room set is replayed on the next connect
		glog.Infof("[sub]drop control %s %s\n", msg.Action, msg.Room)
	}
}

// Close stops the subscriber and closes the events channel.
func (s *Subscriber) Close() {
	s.cancel()
}

func (s *Subscriber) run() {
	defer close(s.events)
	defer s.cancel()

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.settings.HandshakeTimeout,
	}
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	for {
		ws, _, err := dialer.DialContext(s.ctx, s.url, header)
		if err != nil {
			glog.Infof("[sub]connect error %s = %s\n", s.url, err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.settings.ReconnectTimeout):
				continue
			}
		}
		glog.V(1).Infof("[sub]connected %s\n", s.url)

		s.handle(ws)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.settings.ReconnectTimeout):
		}
	}
}

// handle serves one connection until it fails or the subscriber closes.
func (s *Subscriber) handle(ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(s.ctx)
	defer handleCancel()

	write := func(msg entity.SubscribeMessage) error {
		ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
		return ws.WriteJSON(msg)
	}

	// rejoin everything held before the connection dropped
	for _, room := range s.Rooms() {
		if err := write(entity.SubscribeMessage{Action: entity.ActionSubscribe, Room: room}); err != nil {
			glog.Infof("[sub]rejoin %s error = %s\n", room, err)
			return
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer func() {
			handleCancel()
			close(writerDone)
		}()

		for {
			select {
			case <-handleCtx.Done():
				ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			case msg := <-s.control:
				if err := write(msg); err != nil {
					glog.Infof("[sub]-> error = %s\n", err)
					return
				}
				glog.V(2).Infof("[sub]-> %s %s\n", msg.Action, msg.Room)
			case <-time.After(s.settings.PingTimeout):
				ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
		return nil
	})

	readerDone := make(chan struct{})
	go func() {
		defer func() {
			handleCancel()
			close(readerDone)
		}()

		for {
			ws.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				if handleCtx.Err() == nil {
					glog.Infof("[sub]<- error = %s\n", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				glog.V(2).Infof("[sub]other=%d <-\n", messageType)
				continue
			}

			var ev entity.Event
			if err := json.Unmarshal(message, &ev); err != nil {
				glog.V(1).Infof("[sub]malformed event = %s\n", err)
				continue
			}
			select {
			case <-handleCtx.Done():
				return
			case s.events <- ev:
				glog.V(2).Infof("[sub]<- %s %s\n", ev.Type, ev.ItemID)
			}
		}
	}()

	<-handleCtx.Done()
	<-writerDone
	// unblocks the reader
	ws.Close()
	<-readerDone
}
