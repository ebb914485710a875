// Service exposing Raspberry Pi GPIO pins over REST, the actuation endpoint
// the velux controller drives. Output pins switch active-low relay boards:
// value 1 releases a relay, 0 energises it.
package gpio

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/barnybug/ener314/rpio"
	"github.com/gorilla/mux"

	"github.com/bhussey/showhome/config"
	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/services"
)

// Driver abstracts the pin layer so the REST surface is testable off-device.
type Driver interface {
	Setup(conf config.GpioPinConf)
	Read(pin int) int
	Write(pin int, value int)
}

type rpioDriver struct{}

func (d *rpioDriver) Setup(conf config.GpioPinConf) {
	pin := rpio.Pin(conf.Pin)
	if conf.Direction == "in" {
		pin.Input()
		pin.PullOff()
	} else {
		pin.Output()
	}
}

func (d *rpioDriver) Read(pin int) int {
	if rpio.Pin(pin).Read() == rpio.High {
		return 1
	}
	return 0
}

func (d *rpioDriver) Write(pin int, value int) {
	state := rpio.Low
	if value == 1 {
		state = rpio.High
	}
	rpio.Pin(pin).Write(state)
}

type pinState struct {
	Num   int    `json:"num"`
	Value int    `json:"value"`
	Alias string `json:"alias,omitempty"`
}

// Service gpio
type Service struct {
	driver Driver
}

// ID of the service
func (self *Service) ID() string {
	return "gpio"
}

func (self *Service) lookup(num string) (config.GpioPinConf, bool) {
	conf, ok := services.Config.Gpio.Pins[num]
	return conf, ok
}

func errorResponse(w http.ResponseWriter, code int, msg string) {
	http.Error(w, msg, code)
}

func jsonResponse(w http.ResponseWriter, obj interface{}) {
	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	if err := enc.Encode(obj); err != nil {
		errorResponse(w, 500, err.Error())
	}
}

func (self *Service) apiPins(w http.ResponseWriter, r *http.Request) {
	ret := []pinState{}
	for alias, conf := range services.Config.Gpio.Pins {
		ret = append(ret, pinState{conf.Pin, self.driver.Read(conf.Pin), alias})
	}
	jsonResponse(w, ret)
}

func (self *Service) apiPin(w http.ResponseWriter, r *http.Request) {
	num := mux.Vars(r)["num"]
	conf, ok := self.lookup(num)
	if !ok {
		errorResponse(w, http.StatusNotFound, "Pin not found")
		return
	}
	jsonResponse(w, pinState{conf.Pin, self.driver.Read(conf.Pin), num})
}

func (self *Service) apiPatchPin(w http.ResponseWriter, r *http.Request) {
	num := mux.Vars(r)["num"]
	conf, ok := self.lookup(num)
	if !ok {
		errorResponse(w, http.StatusNotFound, "Pin not found")
		return
	}
	if conf.Direction == "in" {
		errorResponse(w, http.StatusBadRequest, "Pin is an input")
		return
	}
	r.ParseForm()
	value := r.FormValue("value")
	if value != "0" && value != "1" {
		errorResponse(w, http.StatusBadRequest, "value must be 0 or 1")
		return
	}
	v := 0
	if value == "1" {
		v = 1
	}
	self.driver.Write(conf.Pin, v)
	self.emit(num, conf.Pin, v)
	jsonResponse(w, pinState{conf.Pin, v, num})
}

func (self *Service) emit(alias string, pin int, value int) {
	fields := pubsub.Fields{
		"source": fmt.Sprintf("gpio.%s", alias),
		"pin":    pin,
		"value":  value,
	}
	ev := pubsub.NewEvent("gpio", fields)
	services.Config.AddDeviceToEvent(ev)
	services.Publisher.Emit(ev)
}

func (self *Service) router() *mux.Router {
	router := mux.NewRouter()
	router.Path("/api/v1/pins").Methods("GET").HandlerFunc(self.apiPins)
	router.Path("/api/v1/pin/{num}").Methods("GET").HandlerFunc(self.apiPin)
	router.Path("/api/v1/pin/{num}").Methods("PATCH").HandlerFunc(self.apiPatchPin)
	return router
}

const pollInterval = time.Millisecond * 100

// watchInputs polls input pins and emits an event on change.
func (self *Service) watchInputs() {
	last := map[string]int{}
	for alias, conf := range services.Config.Gpio.Pins {
		if conf.Direction == "in" {
			last[alias] = self.driver.Read(conf.Pin)
		}
	}
	if len(last) == 0 {
		return
	}
	for {
		for alias, previous := range last {
			conf := services.Config.Gpio.Pins[alias]
			current := self.driver.Read(conf.Pin)
			if current != previous {
				last[alias] = current
				self.emit(alias, conf.Pin, current)
			}
		}
		time.Sleep(pollInterval)
	}
}

// Run the service
func (self *Service) Run() error {
	if self.driver == nil {
		if err := rpio.Open(); err != nil {
			log.Fatalln("Couldn't open /dev/gpiomem:", err)
		}
		defer rpio.Close()
		self.driver = &rpioDriver{}
	}
	for _, conf := range services.Config.Gpio.Pins {
		self.driver.Setup(conf)
	}
	go self.watchInputs()

	addr := fmt.Sprintf(":%d", services.Config.Gpio.Port)
	log.Println("Listening on " + addr)
	return http.ListenAndServe(addr, self.router())
}
