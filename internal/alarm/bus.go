// Package alarm is the publish/subscribe channel for the fire alarm.
// A Bus is an ordinary value injected into agents and the fire simulation.
package alarm

import (
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"
)

// Observer receives alarm notifications.
type Observer interface {
	OnAlarm(origin r3.Vec)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(origin r3.Vec)

// OnAlarm calls f(origin).
func (f ObserverFunc) OnAlarm(origin r3.Vec) { f(origin) }

// Subscription identifies one registered observer.
type Subscription uint64

// Bus broadcasts alarm events to subscribers in subscription order.
type Bus struct {
	subs  map[Subscription]Observer
	order []Subscription
	next  Subscription

	triggered bool
	origin    r3.Vec
	published int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Subscription]Observer)}
}

// Subscribe registers o and returns its subscription.
func (b *Bus) Subscribe(o Observer) Subscription {
	b.next++
	b.subs[b.next] = o
	b.order = append(b.order, b.next)
	return b.next
}

// Unsubscribe removes a subscription. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(s Subscription) {
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	for i, id := range b.order {
		if id == s {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int { return len(b.subs) }

// Publish notifies every subscriber of an alarm at origin and returns how
// many were notified. Observers may subscribe or unsubscribe during delivery;
// an observer removed mid-delivery is not notified.
func (b *Bus) Publish(origin r3.Vec) int {
	b.triggered = true
	b.origin = origin
	b.published++

	snapshot := append([]Subscription(nil), b.order...)
	n := 0
	for _, id := range snapshot {
		o, ok := b.subs[id]
		if !ok {
			continue
		}
		o.OnAlarm(origin)
		n++
	}
	slog.Info("alarm raised", "origin", origin, "notified", n)
	return n
}

// Triggered reports whether an alarm has been published and where.
func (b *Bus) Triggered() (r3.Vec, bool) {
	return b.origin, b.triggered
}

// Reset clears the triggered flag. Subscriptions are kept.
func (b *Bus) Reset() {
	b.triggered = false
	b.origin = r3.Vec{}
}
