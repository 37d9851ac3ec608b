package events

import "sync"

// Topic names a logical event stream on the bus.
type Topic string

const (
	// TopicConnectivity carries ConnectivityChanged payloads.
	TopicConnectivity Topic = "connectivity.changed"
	// TopicUnauthorized carries Unauthorized payloads. The session collaborator
	// owns credential invalidation; the engine only reports.
	TopicUnauthorized Topic = "session.unauthorized"
	// TopicNotice carries Notice payloads destined for the UI layer.
	TopicNotice Topic = "notice"
)

// ConnectivityChanged reports an online/offline transition.
type ConnectivityChanged struct {
	Online bool
}

// Unauthorized reports a 401 from the platform API.
type Unauthorized struct {
	Method string
	Path   string
}

// Notice is a user-facing message. Sticky notices stay up until the
// underlying condition clears; others auto-dismiss.
type Notice struct {
	Kind    string
	Message string
	Sticky  bool
}

// Notice kinds published by the engine.
const (
	NoticeOffline       = "offline"
	NoticeServingCached = "serving_cached"
	NoticeActionInvalid = "action_invalid"
	NoticeActionFailed  = "action_failed"
)

// Event pairs a topic with its payload.
type Event struct {
	Topic   Topic
	Payload any
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(Event)

// Bus is a scoped publish/subscribe hub. Subscriptions return a cancel
// function that the owner must call on teardown, so no handler outlives its
// component.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic]map[int]Handler
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic]map[int]Handler)}
}

// Subscribe registers a handler for the topic and returns its cancel function.
func (b *Bus) Subscribe(topic Topic, fn Handler) func() {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs[topic], id)
		b.mu.Unlock()
	}
}

// Publish delivers the payload to every current subscriber of the topic.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	event := Event{Topic: topic, Payload: payload}
	for _, fn := range handlers {
		fn(event)
	}
}
