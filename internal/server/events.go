package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Auth-state event types delivered on the session event stream.
const (
	AuthEventSignedIn       = "signed_in"
	AuthEventSignedOut      = "signed_out"
	AuthEventProfileUpdated = "profile_updated"
	authEventHeartbeat      = "heartbeat"

	defaultHeartbeatInterval = 25 * time.Second
	defaultEventBufferSize   = 16
)

// AuthEvent notifies open pages of a user that their session changed.
type AuthEvent struct {
	UserID    string
	Type      string
	Timestamp time.Time
}

// AuthEventDispatcherConfig tunes stream buffering and keep-alives. Zero values use defaults.
type AuthEventDispatcherConfig struct {
	BufferSize        int
	HeartbeatInterval time.Duration
	Clock             func() time.Time
}

// AuthEventDispatcher keeps the open session event streams of each user and
// writes auth events to them as server-sent events.
type AuthEventDispatcher struct {
	mu         sync.RWMutex
	streams    map[string]map[*authStream]struct{}
	bufferSize int
	heartbeat  time.Duration
	clock      func() time.Time
}

type authStream struct {
	events chan AuthEvent
}

type authEventPayload struct {
	Type        string `json:"type"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func NewAuthEventDispatcher(config AuthEventDispatcherConfig) *AuthEventDispatcher {
	dispatcher := &AuthEventDispatcher{
		streams:    make(map[string]map[*authStream]struct{}),
		bufferSize: config.BufferSize,
		heartbeat:  config.HeartbeatInterval,
		clock:      config.Clock,
	}
	if dispatcher.bufferSize <= 0 {
		dispatcher.bufferSize = defaultEventBufferSize
	}
	if dispatcher.heartbeat <= 0 {
		dispatcher.heartbeat = defaultHeartbeatInterval
	}
	if dispatcher.clock == nil {
		dispatcher.clock = time.Now
	}
	return dispatcher
}

// Subscribe registers a stream for userID until ctx is cancelled or cleanup is called.
func (d *AuthEventDispatcher) Subscribe(ctx context.Context, userID string) (<-chan AuthEvent, func()) {
	if userID == "" {
		events := make(chan AuthEvent)
		close(events)
		return events, func() {}
	}
	stream := &authStream{events: make(chan AuthEvent, d.bufferSize)}

	d.mu.Lock()
	if d.streams[userID] == nil {
		d.streams[userID] = make(map[*authStream]struct{})
	}
	d.streams[userID][stream] = struct{}{}
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.remove(userID, stream)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream.events, cleanup
}

// Notify publishes an event of eventType for userID stamped with the dispatcher clock.
func (d *AuthEventDispatcher) Notify(userID string, eventType string) {
	d.Publish(AuthEvent{UserID: userID, Type: eventType, Timestamp: d.clock().UTC()})
}

// Publish delivers event without blocking; full stream buffers drop it.
func (d *AuthEventDispatcher) Publish(event AuthEvent) {
	if event.UserID == "" || event.Type == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for stream := range d.streams[event.UserID] {
		select {
		case stream.events <- event:
		default:
		}
	}
}

// SubscriberCount reports the open streams of userID.
func (d *AuthEventDispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.streams[userID])
}

// ServeStream writes the events of userID to c as server-sent events, with a
// heartbeat between them, until the client goes away.
func (d *AuthEventDispatcher) ServeStream(c *gin.Context, userID string) {
	ctx := c.Request.Context()
	events, cleanup := d.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(d.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			writeAuthEvent(c, event.Type, event.Timestamp)
			return true
		case tick := <-heartbeat.C:
			writeAuthEvent(c, authEventHeartbeat, tick)
			return true
		}
	})
}

func (d *AuthEventDispatcher) remove(userID string, stream *authStream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	streams := d.streams[userID]
	delete(streams, stream)
	if len(streams) == 0 {
		delete(d.streams, userID)
	}
}

func writeAuthEvent(c *gin.Context, eventType string, at time.Time) {
	c.SSEvent(eventType, authEventPayload{Type: eventType, TimestampMs: at.UnixMilli()})
}

func (h *httpHandler) handleSessionEvents(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	h.logger.Debug("session stream opened", zap.String("user_id", userID))
	h.events.ServeStream(c, userID)
	h.logger.Debug("session stream closed", zap.String("user_id", userID))
}
