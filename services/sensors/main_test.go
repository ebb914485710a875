package sensors

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/bhussey/showhome/config"
	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/services"
)

var service *Service

func Setup(t *testing.T) {
	services.Config = config.ExampleConfig
	service = &Service{}
	assert.NoError(t, service.Init())
}

func TestInterfaces(t *testing.T) {
	var _ services.Service = (*Service)(nil)
	var _ services.ServiceInit = (*Service)(nil)
	var _ services.Queryable = (*Service)(nil)
}

func event(topic, source string, fields pubsub.Fields) *pubsub.Event {
	fields["source"] = source
	return pubsub.NewEvent(topic, fields)
}

func TestReadings(t *testing.T) {
	Setup(t)
	service.handleEvent(event("temp", "ble.a4:c1:38:01:02:03", pubsub.Fields{"temp": 21.5}))
	service.handleEvent(event("velux", "velux.3", pubsub.Fields{"status": "Opening"}))
	service.handleEvent(event("temp", "ble.a4:c1:38:01:02:03", pubsub.Fields{"temp": 21.7}))
	// topics without a value field of interest are dropped
	service.handleEvent(event("heartbeat", "watchdog", pubsub.Fields{}))
	// as are events without a source
	service.handleEvent(pubsub.NewEvent("temp", pubsub.Fields{"temp": 1.0}))

	readings := service.snapshot()
	assert.Len(t, readings, 2)
	assert.Equal(t, 21.7, readings[0].Value)
	assert.Equal(t, "°C", readings[0].Unit)
	assert.Equal(t, "Opening", readings[1].Value)
}

func TestQuery(t *testing.T) {
	Setup(t)
	handler := service.QueryHandlers()["sensors"]
	assert.Equal(t, "no readings yet", handler(services.Question{}).Text)
	service.handleEvent(event("power", "power.meter", pubsub.Fields{"power": 350.0}))
	assert.Contains(t, handler(services.Question{}).Text, "power.meter: 350W")
}

func TestLiveFeed(t *testing.T) {
	Setup(t)
	service.handleEvent(event("temp", "ble.a4:c1:38:01:02:03", pubsub.Fields{"temp": 21.5}))

	server := httptest.NewServer(service.router())
	defer server.Close()
	url := strings.Replace(server.URL, "http", "ws", 1) + "/sensors/live"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	defer client.Close()

	// catchup reading
	var reading Reading
	client.SetReadDeadline(time.Now().Add(time.Second))
	assert.NoError(t, client.ReadJSON(&reading))
	assert.Equal(t, "ble.a4:c1:38:01:02:03", reading.Source)

	// wait for the subscription to register before pushing
	deadline := time.Now().Add(time.Second)
	for {
		service.mutex.Lock()
		n := len(service.clients)
		service.mutex.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	service.handleEvent(event("velux", "velux.3", pubsub.Fields{"status": "Open"}))
	assert.NoError(t, client.ReadJSON(&reading))
	assert.Equal(t, "velux.3", reading.Source)
	assert.Equal(t, "Open", reading.Value)
}

// Bus events and host stats push to the feed from separate goroutines.
func TestLiveFeedConcurrentPush(t *testing.T) {
	Setup(t)
	server := httptest.NewServer(service.router())
	defer server.Close()
	url := strings.Replace(server.URL, "http", "ws", 1) + "/sensors/live"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	defer client.Close()

	deadline := time.Now().Add(time.Second)
	for {
		service.mutex.Lock()
		n := len(service.clients)
		service.mutex.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	const pushes = 50
	var wg sync.WaitGroup
	for _, source := range []string{"velux.3", "velux.4"} {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			for i := 0; i < pushes; i++ {
				service.handleEvent(event("velux", source, pubsub.Fields{"status": "Open"}))
			}
		}(source)
	}
	wg.Wait()

	client.SetReadDeadline(time.Now().Add(time.Second))
	var reading Reading
	for i := 0; i < 2*pushes; i++ {
		assert.NoError(t, client.ReadJSON(&reading))
		assert.Equal(t, "Open", reading.Value)
	}
}
