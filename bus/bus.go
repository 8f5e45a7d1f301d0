// bus.go
package bus

import (
	"strconv"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic is a sequence of tokens. Tokens are strings or integers.
// In subscriptions "+" matches one level and a trailing "#" matches any
// remaining levels, including none.
type Topic []any

const (
	wildOne  = "+"
	wildRest = "#"
)

// T builds a topic. It panics on token types other than string and int kinds.
func T(tokens ...any) Topic {
	for i, tok := range tokens {
		switch v := tok.(type) {
		case string, int, int32, int64, uint8, uint16, uint32:
		default:
			panic("bus: invalid topic token at " + strconv.Itoa(i) + ": " + typeName(v))
		}
	}
	return Topic(tokens)
}

func (t Topic) Len() int     { return len(t) }
func (t Topic) At(i int) any { return t[i] }

// String renders the topic as a slash-separated path.
func (t Topic) String() string {
	var b strings.Builder
	for i, tok := range t {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(tokenString(tok))
	}
	return b.String()
}

func tokenString(tok any) string {
	switch v := tok.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	default:
		return "?"
	}
}

func typeName(v any) string {
	switch v.(type) {
	case []byte:
		return "[]byte"
	case nil:
		return "nil"
	default:
		return "unsupported"
	}
}

// Match reports whether topic t is selected by subscription filter f.
func Match(f, t Topic) bool {
	for i, tok := range f {
		if tok == wildRest {
			return true
		}
		if i >= len(t) {
			return false
		}
		if tok == wildOne {
			continue
		}
		if tokenString(tok) != tokenString(t[i]) {
			return false
		}
	}
	return len(f) == len(t)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu       sync.RWMutex
	subs     []*Subscription
	retained map[string]*Message // topic path -> last retained message
	qLen     int
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{
		retained: make(map[string]*Message),
		qLen:     queueLen,
	}
}

// NewMessage builds a message for topic t.
func (b *Bus) NewMessage(t Topic, payload any, retained bool) *Message {
	return &Message{Topic: t, Payload: payload, Retained: retained}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = append(b.subs, sub)
	for _, m := range b.retained {
		if Match(sub.topic, m.Topic) {
			deliver(sub, m)
		}
	}
}

// Publish delivers a message to all matching subscribers. A retained message
// with a nil payload clears the retained value for its topic.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		key := msg.Topic.String()
		if msg.Payload == nil {
			delete(b.retained, key)
			return
		}
		b.retained[key] = msg
	}
	for _, sub := range b.subs {
		if Match(sub.topic, msg.Topic) {
			deliver(sub, msg)
		}
	}
}

// deliver never blocks the publisher: a full queue drops its oldest entry.
func deliver(sub *Subscription, msg *Message) {
	select {
	case sub.ch <- msg:
	default:
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

func (b *Bus) unsubscribe(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

// NewMessage builds a message on the connection's bus.
func (c *Connection) NewMessage(t Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(t, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes a subscription owned by this connection.
func (c *Connection) Unsubscribe(sub *Subscription) {
	if !c.bus.unsubscribe(sub) {
		return
	}
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		if c.bus.unsubscribe(sub) {
			close(sub.ch)
		}
	}
}
