// Service to control XIM BLE lighting modules.
//
// Maintains a registry of modules discovered from their advertisements and
// exposes a small REST API to read state and set intensity.
package xim

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/services"
	"github.com/bhussey/showhome/util"
)

// Sighting of a module decoded from one advertisement.
type Sighting struct {
	Device    int
	Intensity float64
	Rssi      int
}

// Radio abstracts the BLE dongle, so the service can be tested without one.
type Radio interface {
	Scan(ctx context.Context, sightings chan<- Sighting) error
	SetIntensity(device int, level float64) error
}

// Device state from the most recent sighting.
type Device struct {
	Id        int       `json:"id"`
	Intensity float64   `json:"intensity"`
	Rssi      int       `json:"signal_strength"`
	LastSeen  time.Time `json:"last_seen"`
}

const defaultExpiry = 5 * time.Minute

// Service xim
type Service struct {
	mutex   sync.Mutex
	radio   Radio
	devices map[int]*Device
	expiry  time.Duration
}

func (self *Service) ID() string {
	return "xim"
}

func (self *Service) Init() error {
	self.devices = map[int]*Device{}
	self.expiry = defaultExpiry
	if d := services.Config.Xim.Expiry; d != nil {
		self.expiry = d.Duration
	}
	if self.radio == nil {
		self.radio = &bleRadio{}
	}
	return nil
}

func (self *Service) see(s Sighting) {
	self.mutex.Lock()
	device, ok := self.devices[s.Device]
	if !ok {
		log.Printf("Discovered device %d (rssi %d)", s.Device, s.Rssi)
		device = &Device{Id: s.Device}
		self.devices[s.Device] = device
	}
	changed := !ok || device.Intensity != s.Intensity
	device.Intensity = s.Intensity
	device.Rssi = s.Rssi
	device.LastSeen = time.Now()
	self.mutex.Unlock()

	if changed {
		fields := pubsub.Fields{
			"source":    fmt.Sprintf("xim.%d", s.Device),
			"intensity": s.Intensity,
			"rssi":      s.Rssi,
		}
		services.Publisher.Emit(pubsub.NewEvent("xim", fields))
	}
}

// expire drops devices that stopped advertising.
func (self *Service) expire(now time.Time) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	for id, device := range self.devices {
		if now.Sub(device.LastSeen) > self.expiry {
			log.Printf("Device %d not seen for %s, dropping", id, self.expiry)
			delete(self.devices, id)
		}
	}
}

func (self *Service) snapshot() []*Device {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	var ds []*Device
	for _, device := range self.devices {
		copy := *device
		ds = append(ds, &copy)
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i].Id < ds[j].Id })
	return ds
}

func (self *Service) lookup(id int) (Device, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	device, ok := self.devices[id]
	if !ok {
		return Device{}, false
	}
	return *device, true
}

func (self *Service) setIntensity(id int, level float64) error {
	if err := self.radio.SetIntensity(id, level); err != nil {
		return err
	}
	self.mutex.Lock()
	if device, ok := self.devices[id]; ok {
		device.Intensity = level
	}
	self.mutex.Unlock()
	return nil
}

type intensityRequest struct {
	Intensity *float64 `json:"intensity"`
}

func jsonResponse(w http.ResponseWriter, value interface{}) {
	w.Header().Add("Content-Type", "application/json")
	json.NewEncoder(w).Encode(value)
}

func (self *Service) apiDevices(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{"devices": self.snapshot()})
}

func decodeIntensity(r *http.Request) (float64, error) {
	var req intensityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, err
	}
	if req.Intensity == nil {
		return 0, fmt.Errorf("intensity field required")
	}
	if *req.Intensity < 0 || *req.Intensity > 100 {
		return 0, fmt.Errorf("intensity out of range: %v", *req.Intensity)
	}
	return *req.Intensity, nil
}

// POST /devices broadcasts an intensity to every known device.
func (self *Service) apiBroadcast(w http.ResponseWriter, r *http.Request) {
	level, err := decodeIntensity(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, device := range self.snapshot() {
		if err := self.setIntensity(device.Id, level); err != nil {
			log.Printf("Set device %d intensity failed: %s", device.Id, err)
		}
	}
	jsonResponse(w, intensityRequest{&level})
}

func (self *Service) apiDevice(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	device, ok := self.lookup(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodPost {
		level, err := decodeIntensity(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := self.setIntensity(id, level); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		device, _ = self.lookup(id)
	}
	jsonResponse(w, device)
}

func (self *Service) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/devices", self.apiDevices).Methods("GET")
	router.HandleFunc("/devices", self.apiBroadcast).Methods("POST")
	router.HandleFunc("/devices/{id:[0-9]+}", self.apiDevice).Methods("GET", "POST")
	return router
}

func (self *Service) QueryHandlers() services.QueryHandlers {
	return services.QueryHandlers{
		"devices": services.TextHandler(self.queryDevices),
		"help":    services.StaticHandler("devices: list known devices\n"),
	}
}

func (self *Service) queryDevices(q services.Question) string {
	devices := self.snapshot()
	if len(devices) == 0 {
		return "no devices seen"
	}
	msg := ""
	for _, device := range devices {
		msg += fmt.Sprintf("%d: intensity %.0f%% rssi %d seen %s ago\n",
			device.Id, device.Intensity, device.Rssi,
			util.ShortDuration(time.Since(device.LastSeen)))
	}
	return msg
}

func (self *Service) scanLoop() {
	sightings := make(chan Sighting, 16)
	go func() {
		for s := range sightings {
			self.see(s)
		}
	}()
	for {
		if err := self.radio.Scan(context.Background(), sightings); err != nil {
			log.Println("Scan failed:", err)
			time.Sleep(10 * time.Second)
		}
	}
}

func (self *Service) Run() error {
	go self.scanLoop()
	go func() {
		for t := range time.Tick(time.Minute) {
			self.expire(t)
		}
	}()
	return http.ListenAndServe(fmt.Sprintf(":%d", services.Config.Xim.Port), self.router())
}
