package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges callback subscriptions to a channel for SSE loops.
// Events are dropped when the channel is full. A nil bus never delivers.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	if bus == nil {
		return func() {}
	}
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
