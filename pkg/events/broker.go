package events

import (
	"sync"
)

// Subscriber is a channel that receives delivery notices
type Subscriber chan *Notice

// Broker fans delivery notices out to subscribers
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	noticeCh    chan *Notice
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new notice broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		noticeCh:    make(chan *Notice, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish publishes a notice to all subscribers
func (b *Broker) Publish(n *Notice) {
	select {
	case b.noticeCh <- n:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case n := <-b.noticeCh:
			b.broadcast(n)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(n *Notice) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- n:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
