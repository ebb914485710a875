package dummy

import "github.com/bhussey/showhome/pubsub"

// Subscriber for testing, replays canned events on subscription.
type Subscriber struct {
	Events []*pubsub.Event
}

// ID of Subscriber
func (sub *Subscriber) ID() string {
	return "dummy"
}

func (sub *Subscriber) Subscribe(topics ...pubsub.Topic) <-chan *pubsub.Event {
	ch := make(chan *pubsub.Event)
	go func() {
		for _, ev := range sub.Events {
			for _, t := range topics {
				if t.Match(ev.Topic) {
					ch <- ev
					break
				}
			}
		}
		close(ch)
	}()
	return ch
}

// Close the channel
func (sub *Subscriber) Close(<-chan *pubsub.Event) {
}
