package velux

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bhussey/showhome/config"
	"github.com/bhussey/showhome/pubsub/dummy"
	"github.com/bhussey/showhome/services"
)

const configTemplate = `
velux:
  port: 7000
  groups:
    main: 1
    annex: 1
  things:
    3:
      label: Office Windows
      time: 45s
      group: main
      pins:
        - {pin: 25, device: "%[1]s", action: open}
        - {pin: 24, device: "%[1]s", action: close}
    4:
      label: Office Blinds
      time: 30s
      group: main
      pins:
        - {pin: 14, device: "%[1]s", action: open}
        - {pin: 18, device: "%[1]s", action: close}
    7:
      label: Annex Blinds
      time: 30s
      group: annex
      pins:
        - {pin: 7, device: "%[1]s", action: open}
        - {pin: 8, device: "%[1]s", action: close}
`

type pinWrite struct {
	Pin   string
	Value string
}

type gpioRecorder struct {
	sync.Mutex
	writes []pinWrite
}

func (g *gpioRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	g.Lock()
	g.writes = append(g.writes, pinWrite{r.URL.Path, r.FormValue("value")})
	g.Unlock()
}

func (g *gpioRecorder) reset() {
	g.Lock()
	g.writes = nil
	g.Unlock()
}

// energised returns the pins set to 0 since the last reset.
func (g *gpioRecorder) energised() []string {
	g.Lock()
	defer g.Unlock()
	var ret []string
	for _, w := range g.writes {
		if w.Value == "0" {
			ret = append(ret, w.Pin)
		}
	}
	return ret
}

var (
	recorder *gpioRecorder
	service  *Service
)

func Setup(t *testing.T) {
	recorder = &gpioRecorder{}
	server := httptest.NewServer(recorder)
	t.Cleanup(server.Close)

	u, _ := url.Parse(server.URL)
	yml := fmt.Sprintf(configTemplate, u.Host)
	conf, err := config.OpenRaw([]byte(yml))
	assert.NoError(t, err)
	services.Config = conf
	services.Publisher = &dummy.Publisher{}

	service = &Service{}
	assert.NoError(t, service.Init())
}

func TestInterfaces(t *testing.T) {
	var _ services.Service = (*Service)(nil)
	var _ services.ServiceInit = (*Service)(nil)
	var _ services.Queryable = (*Service)(nil)
}

func TestPowerBudget(t *testing.T) {
	Setup(t)

	assert.Equal(t, StateUnknown, service.State(3))

	service.AddAction(3, ActionOpen)
	assert.Equal(t, StateOpening, service.State(3))

	// same group at budget: queued
	service.AddAction(4, ActionOpen)
	assert.Equal(t, StateWaiting, service.State(4))

	// different group has its own budget
	service.AddAction(7, ActionOpen)
	assert.Equal(t, StateOpening, service.State(7))

	// first completes, queued action admitted
	service.complete(3)
	assert.Equal(t, StateOpen, service.State(3))
	assert.Equal(t, StateOpening, service.State(4))

	service.complete(4)
	assert.Equal(t, StateOpen, service.State(4))
	service.complete(7)
	assert.Equal(t, StateOpen, service.State(7))
}

func TestQueueReplace(t *testing.T) {
	Setup(t)

	service.AddAction(3, ActionOpen)
	service.AddAction(4, ActionOpen)
	service.AddAction(4, ActionClose)
	assert.Len(t, service.queue, 1)
	assert.Equal(t, ActionClose, service.queue[0].dir)

	service.complete(3)
	assert.Equal(t, StateClosing, service.State(4))
}

func TestRunningThingQueues(t *testing.T) {
	Setup(t)

	service.AddAction(3, ActionOpen)
	// a moving thing cannot reverse mid-travel, the request queues
	service.AddAction(3, ActionClose)
	assert.Equal(t, StateOpening, service.State(3))
	assert.Len(t, service.queue, 1)

	service.complete(3)
	assert.Equal(t, StateClosing, service.State(3))
}

func TestPinWrites(t *testing.T) {
	Setup(t)
	recorder.reset()

	service.AddAction(3, ActionOpen)
	assert.Equal(t, []string{"/api/v1/pin/25"}, recorder.energised())

	recorder.reset()
	service.complete(3)
	// queue empty: everything released, nothing energised
	assert.Empty(t, recorder.energised())

	recorder.reset()
	service.AddAction(3, ActionClose)
	assert.Equal(t, []string{"/api/v1/pin/24"}, recorder.energised())
	service.complete(3)
}

func TestToggle(t *testing.T) {
	Setup(t)

	// unknown state: safest closed first
	service.Toggle(3)
	assert.Equal(t, StateClosing, service.State(3))
	service.complete(3)
	assert.Equal(t, StateClosed, service.State(3))

	service.Toggle(3)
	assert.Equal(t, StateOpening, service.State(3))
	service.complete(3)
	assert.Equal(t, StateOpen, service.State(3))

	service.Toggle(3)
	assert.Equal(t, StateClosing, service.State(3))
	service.complete(3)
}

func TestRest(t *testing.T) {
	Setup(t)
	server := httptest.NewServer(service.router())
	defer server.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(server.URL + path)
		assert.NoError(t, err)
		defer resp.Body.Close()
		body, _ := ioutil.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, body := get("/status/3/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StateUnknown, body)

	code, _ = get("/status/9/")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get("/action/3/1/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StateOpening, service.State(3))

	code, _ = get("/action/3/2/")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = get("/statuses/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "3 Opening")

	service.complete(3)

	code, _ = get("/toggle/4/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StateClosing, service.State(4))
	service.complete(4)
}
