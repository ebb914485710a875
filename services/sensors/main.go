// Service aggregating sensor readings for the wall display.
//
// Retains the latest reading per device from the bus, mixes in host stats,
// and serves them over REST plus a websocket live feed.
package sensors

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	linuxproc "github.com/c9s/goprocinfo/linux"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/services"
	"github.com/bhussey/showhome/util"
)

// Reading is the latest value seen for one source.
type Reading struct {
	Source    string      `json:"source"`
	Name      string      `json:"name"`
	Topic     string      `json:"topic"`
	Value     interface{} `json:"value"`
	Unit      string      `json:"unit,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const defaultInterval = 30 * time.Second

// client is one live feed connection. The websocket permits a single
// concurrent writer, so every write goes through the client's own lock.
type client struct {
	sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(r Reading) error {
	c.Lock()
	defer c.Unlock()
	return c.conn.WriteJSON(r)
}

// Service sensors
type Service struct {
	mutex    sync.Mutex
	readings map[string]Reading
	clients  map[*client]bool
}

func (self *Service) ID() string {
	return "sensors"
}

func (self *Service) Init() error {
	self.readings = map[string]Reading{}
	self.clients = map[*client]bool{}
	return nil
}

// valueField picks the interesting field by topic.
var valueField = map[string]string{
	"temp":  "temp",
	"power": "power",
	"touch": "electrode",
	"velux": "status",
	"gpio":  "value",
}

var units = map[string]string{
	"temp":  "°C",
	"power": "W",
}

func (self *Service) handleEvent(ev *pubsub.Event) {
	source := ev.Source()
	if source == "" {
		return
	}
	field, ok := valueField[ev.Topic]
	if !ok {
		return
	}
	value, ok := ev.Fields[field]
	if !ok {
		return
	}
	self.record(Reading{
		Source:    source,
		Name:      services.Config.LookupDeviceName(ev),
		Topic:     ev.Topic,
		Value:     value,
		Unit:      units[ev.Topic],
		Timestamp: ev.Timestamp,
	})
}

func (self *Service) record(r Reading) {
	self.mutex.Lock()
	self.readings[r.Source] = r
	clients := make([]*client, 0, len(self.clients))
	for c := range self.clients {
		clients = append(clients, c)
	}
	self.mutex.Unlock()

	for _, c := range clients {
		if err := c.write(r); err != nil {
			self.dropClient(c)
		}
	}
}

func (self *Service) dropClient(c *client) {
	self.mutex.Lock()
	delete(self.clients, c)
	self.mutex.Unlock()
	c.conn.Close()
}

func (self *Service) snapshot() []Reading {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	var rs []Reading
	for _, r := range self.readings {
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Source < rs[j].Source })
	return rs
}

// hostStats samples load and memory from /proc.
func (self *Service) hostStats() {
	now := time.Now()
	if loadavg, err := linuxproc.ReadLoadAvg("/proc/loadavg"); err == nil {
		self.record(Reading{
			Source:    "host.load",
			Name:      "Load average",
			Topic:     "host",
			Value:     loadavg.Last1Min,
			Timestamp: now,
		})
	}
	if meminfo, err := linuxproc.ReadMemInfo("/proc/meminfo"); err == nil {
		self.record(Reading{
			Source:    "host.memory",
			Name:      "Memory available",
			Topic:     "host",
			Value:     meminfo.MemAvailable / 1024,
			Unit:      "MB",
			Timestamp: now,
		})
	}
}

func (self *Service) apiSensors(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"sensors": self.snapshot()})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (self *Service) apiLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Websocket upgrade failed:", err)
		return
	}
	c := &client{conn: conn}

	// register first so no update can slip between catchup and joining
	self.mutex.Lock()
	self.clients[c] = true
	self.mutex.Unlock()

	// catch up with current state
	for _, reading := range self.snapshot() {
		if err := c.write(reading); err != nil {
			self.dropClient(c)
			return
		}
	}

	// discard anything the client sends, drop it on error
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				self.dropClient(c)
				return
			}
		}
	}()
}

func (self *Service) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/sensors/", self.apiSensors).Methods("GET")
	router.HandleFunc("/sensors/live", self.apiLive)
	return router
}

func (self *Service) QueryHandlers() services.QueryHandlers {
	return services.QueryHandlers{
		"sensors": services.TextHandler(self.querySensors),
		"help":    services.StaticHandler("sensors: list current readings\n"),
	}
}

func (self *Service) querySensors(q services.Question) string {
	readings := self.snapshot()
	if len(readings) == 0 {
		return "no readings yet"
	}
	msg := ""
	for _, r := range readings {
		msg += fmt.Sprintf("%s: %v%s\n", r.Source, r.Value, r.Unit)
	}
	return msg
}

func (self *Service) Run() error {
	interval := defaultInterval
	if d := services.Config.Sensors.Interval; d != nil {
		interval = d.Duration
	}

	go func() {
		self.hostStats()
		scheduler := util.NewScheduler(0, interval)
		for range scheduler.C {
			self.hostStats()
		}
	}()

	go func() {
		events := services.Subscriber.Subscribe(
			pubsub.Exact("temp"), pubsub.Exact("power"), pubsub.Exact("touch"),
			pubsub.Exact("velux"), pubsub.Exact("gpio"))
		for ev := range events {
			self.handleEvent(ev)
		}
	}()

	return http.ListenAndServe(fmt.Sprintf(":%d", services.Config.Sensors.Port), self.router())
}
