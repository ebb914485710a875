package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/pubsub/dummy"
)

type MockService struct {
	queryHandlers map[string]QueryHandler
}

// ID of the service
func (service *MockService) ID() string {
	return "abc"
}

// Run the service
func (service *MockService) Run() error {
	return nil
}

func (service *MockService) QueryHandlers() QueryHandlers {
	return service.queryHandlers
}

func runQuery(fields pubsub.Fields) *dummy.Publisher {
	query := pubsub.NewEvent("query", fields)
	Subscriber = &dummy.Subscriber{
		Events: []*pubsub.Event{query},
	}
	em := &dummy.Publisher{}
	Publisher = em
	mock := &MockService{
		queryHandlers: map[string]QueryHandler{"help": StaticHandler("squiggle")},
	}
	enabled = []Service{mock}
	QuerySubscriber()
	return em
}

func waitEvents(em *dummy.Publisher, n int) {
	deadline := time.Now().Add(time.Second)
	for len(em.Events) < n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

func TestQuerySubscriber(t *testing.T) {
	em := runQuery(pubsub.Fields{"query": "help"})
	waitEvents(em, 1)
	assert.Len(t, em.Events, 1)
	assert.Equal(t, "alert", em.Events[0].Topic)
	assert.Equal(t, "squiggle", em.Events[0].StringField("message"))
	assert.Equal(t, "abc", em.Events[0].Source())
}

func TestQueryScoped(t *testing.T) {
	em := runQuery(pubsub.Fields{"query": "abc/help"})
	waitEvents(em, 1)
	assert.Len(t, em.Events, 1)
}

func TestQueryOtherService(t *testing.T) {
	em := runQuery(pubsub.Fields{"query": "xyz/help"})
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, em.Events, 0)
}

func TestQueryReplyTo(t *testing.T) {
	em := runQuery(pubsub.Fields{"query": "help", "reply_to": "_rpc.1"})
	waitEvents(em, 1)
	assert.Len(t, em.Events, 1)
	assert.Equal(t, "_rpc.1", em.Events[0].Topic)
}
