package gpio

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bhussey/showhome/config"
	"github.com/bhussey/showhome/pubsub/dummy"
	"github.com/bhussey/showhome/services"
)

type memDriver struct {
	values map[int]int
}

func (d *memDriver) Setup(conf config.GpioPinConf) {}

func (d *memDriver) Read(pin int) int {
	return d.values[pin]
}

func (d *memDriver) Write(pin int, value int) {
	d.values[pin] = value
}

var testYaml = `
gpio:
  port: 5000
  pins:
    "25": {pin: 25, direction: out}
    "24": {pin: 24, direction: out}
    "26": {pin: 26, direction: in}
`

var (
	em      *dummy.Publisher
	service *Service
)

func Setup(t *testing.T) *httptest.Server {
	conf, err := config.OpenRaw([]byte(testYaml))
	assert.NoError(t, err)
	services.Config = conf
	em = &dummy.Publisher{}
	services.Publisher = em

	service = &Service{driver: &memDriver{values: map[int]int{}}}
	server := httptest.NewServer(service.router())
	t.Cleanup(server.Close)
	return server
}

func TestInterfaces(t *testing.T) {
	var _ services.Service = (*Service)(nil)
}

func patch(t *testing.T, server *httptest.Server, path string, value string) *http.Response {
	body := strings.NewReader(url.Values{"value": {value}}.Encode())
	req, err := http.NewRequest("PATCH", server.URL+path, body)
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestPatchPin(t *testing.T) {
	server := Setup(t)

	resp := patch(t, server, "/api/v1/pin/25", "1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(server.URL + "/api/v1/pin/25")
	assert.NoError(t, err)
	defer resp2.Body.Close()
	var state pinState
	assert.NoError(t, json.NewDecoder(resp2.Body).Decode(&state))
	assert.Equal(t, 25, state.Num)
	assert.Equal(t, 1, state.Value)

	// every write emits a bus event
	assert.Len(t, em.Events, 1)
	assert.Equal(t, "gpio", em.Events[0].Topic)
	assert.Equal(t, "gpio.25", em.Events[0].Source())
}

func TestPatchUnknownPin(t *testing.T) {
	server := Setup(t)
	resp := patch(t, server, "/api/v1/pin/99", "1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPatchBadValue(t *testing.T) {
	server := Setup(t)
	resp := patch(t, server, "/api/v1/pin/25", "7")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, em.Events)
}

func TestPatchInputPin(t *testing.T) {
	server := Setup(t)
	resp := patch(t, server, "/api/v1/pin/26", "1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPins(t *testing.T) {
	server := Setup(t)
	resp, err := http.Get(server.URL + "/api/v1/pins")
	assert.NoError(t, err)
	defer resp.Body.Close()
	var states []pinState
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&states))
	assert.Len(t, states, 3)
}
