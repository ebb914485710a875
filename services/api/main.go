// Package api is a service providing an HTTP REST API to access showhome and
// control devices.
//
// The endpoints supported are:
//
// http://localhost:8723/query/{query} - query a service, e.g. http://localhost:8723/query/velux/status
//
// http://localhost:8723/devices - list of devices
//
// http://localhost:8723/devices/{device} - single device
//
// http://localhost:8723/devices/control?id=device&control=1 - turn a device on or off
//
// http://localhost:8723/events/feed - continuous live stream of events (line delimited)
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/bhussey/showhome/config"
	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/services"
)

// Service api
type Service struct {
	mutex sync.Mutex
	state map[string]*pubsub.Event
}

// ID of the service
func (self *Service) ID() string {
	return "api"
}

func (self *Service) Init() error {
	self.state = map[string]*pubsub.Event{}
	return nil
}

func errorResponse(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), 500)
}

func apiIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "text/html")
	fmt.Fprintf(w, "<html>Showhome is listening</html>")
}

func jsonResponse(w http.ResponseWriter, obj interface{}) {
	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	err := enc.Encode(obj)
	if err != nil {
		errorResponse(w, err)
	}
}

func query(endpoint string, q string, w http.ResponseWriter) {
	w.Header().Add("Content-Type", "application/json; charset=utf-8")

	ch := services.QueryChannel(endpoint+" "+q, 100*time.Millisecond)

	for ev := range ch {
		fmt.Fprintf(w, ev.String()+"\r\n")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

func apiQuery(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Path[len("/query/"):]
	q := r.URL.Query().Get("q")
	query(endpoint, q, w)
}

type deviceAndState struct {
	config.DeviceConf
	State interface{} `json:"state"`
}

func (self *Service) getDevicesState() map[string]interface{} {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	ret := make(map[string]interface{})
	for name, ev := range self.state {
		ret[name] = ev.Map()
	}
	return ret
}

func (self *Service) apiDevices(w http.ResponseWriter, r *http.Request) {
	ret := make(map[string]deviceAndState)
	state := self.getDevicesState()

	for name, dev := range services.Config.Devices {
		ret[name] = deviceAndState{dev, state[name]}
	}

	jsonResponse(w, ret)
}

func (self *Service) apiDevicesSingle(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["device"]
	dev, ok := services.Config.Devices[name]
	if !ok {
		http.Error(w, "not found: "+name, http.StatusNotFound)
		return
	}
	state := self.getDevicesState()
	jsonResponse(w, deviceAndState{dev, state[name]})
}

func apiDevicesControl(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	device := q.Get("id")
	var command string
	if q.Get("control") == "1" {
		command = "on"
	} else {
		command = "off"
	}
	ev := pubsub.NewCommand(device, command)
	services.Publisher.Emit(ev)
	jsonResponse(w, true)
}

func apiEventsFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topics := q.Get("topics")
	w.Header().Add("Content-Type", "application/json; boundary=NL")

	var subs []pubsub.Topic
	if topics != "" {
		for _, topic := range strings.Split(topics, ",") {
			subs = append(subs, pubsub.Exact(topic))
		}
	} else {
		subs = append(subs, pubsub.All())
	}
	ch := services.Subscriber.Subscribe(subs...)
	defer services.Subscriber.Close(ch)

	for ev := range ch {
		data := ev.Map()
		device := services.Config.LookupDeviceName(ev)
		if device != "" {
			data["device"] = device
		}
		encoder := json.NewEncoder(w)
		err := encoder.Encode(data)
		if err != nil {
			break
		}
		w.Write([]byte("\r\n")) // separator
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

func (self *Service) router() *mux.Router {
	router := mux.NewRouter()
	router.Path("/").HandlerFunc(apiIndex)
	router.PathPrefix("/query/").HandlerFunc(apiQuery)
	router.Path("/devices").HandlerFunc(self.apiDevices)
	router.Path("/devices/control").HandlerFunc(apiDevicesControl)
	router.Path("/devices/{device}").HandlerFunc(self.apiDevicesSingle)
	router.Path("/events/feed").HandlerFunc(apiEventsFeed)
	return router
}

type loggingHandler struct {
	Handler http.Handler
}

func (h loggingHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Printf("%s %s\n", req.Method, req.RequestURI)
	h.Handler.ServeHTTP(w, req)
}

func (self *Service) httpEndpoint() error {
	// not using handlers.LoggingHandler as it hides ResponseWriter.Flush
	handler := loggingHandler{Handler: self.router()}
	addr := ":8723"
	log.Println("Listening on " + addr)
	return http.ListenAndServe(addr, handler)
}

func (self *Service) recordEvents() {
	for ev := range services.Subscriber.Subscribe(pubsub.All()) {
		device := services.Config.LookupDeviceName(ev)
		if device == "" {
			continue
		}
		self.mutex.Lock()
		self.state[device] = ev
		self.mutex.Unlock()
	}
}

// Run the service
func (self *Service) Run() error {
	go self.recordEvents()
	return self.httpEndpoint()
}
