// Service for the Tinkerforge multitouch panel.
//
// Connects to a brick daemon, recalibrates the capacitive electrodes and
// translates touch events into bus events and configured HTTP actions.
package touch

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Tinkerforge/go-api-bindings/ipconnection"
	"github.com/Tinkerforge/go-api-bindings/multi_touch_bricklet"

	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/services"
)

// Electrode 12 is the proximity sensor, which fires constantly when anyone
// is near the panel.
const proximityMask = 1 << 12

// Service touch
type Service struct {
	client *http.Client
}

func (self *Service) ID() string {
	return "touch"
}

func (self *Service) Init() error {
	self.client = &http.Client{Timeout: 2 * time.Second}
	return nil
}

// touched picks the electrodes newly pressed since the previous state.
func touched(state, previous uint16) []int {
	var electrodes []int
	pressed := state &^ previous
	for i := 0; i < 12; i++ {
		if pressed&(1<<uint(i)) != 0 {
			electrodes = append(electrodes, i)
		}
	}
	return electrodes
}

func (self *Service) fire(electrode int) {
	fields := pubsub.Fields{
		"source":    fmt.Sprintf("touch.%d", electrode),
		"command":   "on",
		"electrode": electrode,
	}
	ev := pubsub.NewEvent("touch", fields)
	services.Config.AddDeviceToEvent(ev)
	services.Publisher.Emit(ev)

	for _, url := range services.Config.Touch.Electrodes[electrode] {
		go self.get(url)
	}
}

func (self *Service) get(url string) {
	resp, err := self.client.Get(url)
	if err != nil {
		log.Printf("Touch action %s failed: %s", url, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("Touch action %s failed: %s", url, resp.Status)
	}
}

func (self *Service) Run() error {
	conf := services.Config.Touch
	ipcon := ipconnection.New()
	defer ipcon.Close()

	mt, err := multi_touch_bricklet.New(conf.Uid, &ipcon)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", conf.Host, conf.Port)
	if err := ipcon.Connect(addr); err != nil {
		return err
	}
	log.Printf("Connected to brick daemon at %s", addr)

	if err := mt.Recalibrate(); err != nil {
		log.Println("Recalibrate failed:", err)
	}

	var previous uint16
	mt.RegisterTouchStateCallback(func(state uint16) {
		// ignore proximity and releases
		state &^= proximityMask
		for _, electrode := range touched(state, previous) {
			log.Printf("Electrode %d touched", electrode)
			self.fire(electrode)
		}
		previous = state
	})

	select {}
}
