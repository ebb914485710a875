package lighting

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bhussey/showhome/config"
	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/pubsub/dummy"
	"github.com/bhussey/showhome/services"
)

type call struct {
	Path string
	Body map[string]interface{}
	User string
}

type recorder struct {
	sync.Mutex
	calls []call
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	json.NewDecoder(r.Body).Decode(&body)
	user, _, _ := r.BasicAuth()
	rec.Lock()
	rec.calls = append(rec.calls, call{r.URL.Path, body, user})
	rec.Unlock()
}

const configYaml = `
lighting:
  port: 8000
  halcyon:
    url: %q
    user: admin
    password: secret
  gateway: %q
  rooms:
    2: Lounge
    3: Office
  scenes:
    0:
      name: Party
      halcyon: {2: 40, 3: 40}
      xim:
        - {devices: [12], intensity: 0}
        - {devices: [5], intensity: 100}
    3:
      name: Sleep
      halcyon: {2: 5, 3: 0}
      xim:
        - {devices: [5, 12], intensity: 0}
`

var (
	halcyonCalls *recorder
	gatewayCalls *recorder
	service      *Service
)

func Setup(t *testing.T) {
	halcyonCalls = &recorder{}
	gatewayCalls = &recorder{}
	halcyonServer := httptest.NewServer(halcyonCalls)
	gatewayServer := httptest.NewServer(gatewayCalls)
	t.Cleanup(halcyonServer.Close)
	t.Cleanup(gatewayServer.Close)

	yml := fmt.Sprintf(configYaml, halcyonServer.URL, gatewayServer.URL)
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

func TestApplyScene(t *testing.T) {
	Setup(t)

	assert.True(t, service.ApplyScene(0))

	assert.Len(t, halcyonCalls.calls, 2)
	for _, c := range halcyonCalls.calls {
		assert.Equal(t, "/api/rooms/luminanceTarget", c.Path)
		assert.Equal(t, "admin", c.User)
	}

	assert.Len(t, gatewayCalls.calls, 2)
	paths := map[string]float64{}
	for _, c := range gatewayCalls.calls {
		paths[c.Path] = c.Body["intensity"].(float64)
	}
	assert.Equal(t, float64(0), paths["/devices/12"])
	assert.Equal(t, float64(100), paths["/devices/5"])

	assert.False(t, service.ApplyScene(9))
}

func TestSceneByName(t *testing.T) {
	Setup(t)
	state, ok := sceneByName("sleep")
	assert.True(t, ok)
	assert.Equal(t, 3, state)
	_, ok = sceneByName("disco")
	assert.False(t, ok)
}

func TestCommandEvent(t *testing.T) {
	Setup(t)
	service.handleCommand(pubsub.NewCommand("lighting", "party"))
	assert.Len(t, halcyonCalls.calls, 2)

	// not addressed to us
	service.handleCommand(pubsub.NewCommand("light.lounge", "on"))
	assert.Len(t, halcyonCalls.calls, 2)
}

func TestRest(t *testing.T) {
	Setup(t)
	server := httptest.NewServer(service.router())
	defer server.Close()

	resp, err := http.Get(server.URL + "/state/0/")
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, halcyonCalls.calls, 2)

	resp, err = http.Get(server.URL + "/state/7/")
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(server.URL + "/level/2/50/")
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/level/9/50/")
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(server.URL + "/level/2/150/")
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHalcyonDown(t *testing.T) {
	Setup(t)
	// a dead halcyon doesn't stop the xim calls
	service.halcyon.client = &http.Client{Timeout: 10 * time.Millisecond}
	service.halcyon.url = "http://127.0.0.1:1"

	assert.True(t, service.ApplyScene(0))
	assert.Len(t, gatewayCalls.calls, 2)
}
