// Service for monitoring devices to ensure they're still alive and emitting
// events. Watches a given list of device ids, and alerts if an event has not
// been seen from a device in a configurable time period. Also pings hardware
// hosts so a dead device server is noticed before its devices time out.
package watchdog

import (
	"fmt"
	"log"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tatsushid/go-fastping"

	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/services"
	"github.com/bhussey/showhome/util"
)

type WatchdogDevice struct {
	Name        string
	Timeout     time.Duration
	Alerted     bool
	LastAlerted time.Time
	LastEvent   time.Time
}

type WatchdogDevices []*WatchdogDevice

func (self WatchdogDevices) Less(i, j int) bool {
	return self[i].LastEvent.Before(self[j].LastEvent)
}

func (self WatchdogDevices) Len() int {
	return len(self)
}

func (self WatchdogDevices) Swap(i, j int) {
	self[i], self[j] = self[j], self[i]
}

// devices is written by the Run event loop and read by queries, which arrive
// on their own goroutine.
var mutex sync.Mutex
var devices map[string]*WatchdogDevice

var repeatInterval, _ = time.ParseDuration("12h")

const pingInterval = 20 * time.Second

func sendAlert(name, state string, since time.Time) {
	log.Printf("Sending %s watchdog alert for: %s\n", state, name)
	duration := time.Now().Sub(since)
	message := fmt.Sprintf("%s: %s since %s (%s ago)", state, name,
		since.Local().Format(time.Stamp), util.FriendlyDuration(duration))
	services.SendAlert(message, "watchdog", "", 0)
}

func checkEvent(ev *pubsub.Event) {
	mutex.Lock()
	defer mutex.Unlock()
	device := services.Config.LookupDeviceName(ev)
	w := devices[device]
	if w == nil {
		return
	}

	// recovered?
	if w.Alerted {
		w.Alerted = false
		sendAlert(w.Name, "RECOVERED", w.LastEvent)
	}
	w.LastEvent = ev.Timestamp
}

func checkTimeouts() {
	mutex.Lock()
	defer mutex.Unlock()
	timeouts := []string{}
	var lastEvent time.Time
	for _, w := range devices {
		if w.Alerted {
			// check if should repeat
			if time.Since(w.LastAlerted) > repeatInterval {
				timeouts = append(timeouts, w.Name)
				lastEvent = w.LastEvent
				w.LastAlerted = time.Now()
			}
		} else if time.Since(w.LastEvent) > w.Timeout {
			// first alert
			timeouts = append(timeouts, w.Name)
			lastEvent = w.LastEvent
			w.Alerted = true
			w.LastAlerted = time.Now()
		}
	}

	// send a single alert for multiple devices
	if len(timeouts) > 0 {
		sendAlert(strings.Join(timeouts, ", "), "PROBLEM", lastEvent)
	}
}

// pingLoop pings a host, reporting replies as bus events so the usual
// timeout bookkeeping picks up a host going quiet.
func pingLoop(host string) {
	pinger := fastping.NewPinger()
	addr, err := net.ResolveIPAddr("ip4:icmp", host)
	if err != nil {
		log.Printf("Failed to resolve %s: %s", host, err)
		return
	}
	pinger.AddIPAddr(addr)
	pinger.MaxRTT = pingInterval
	pinger.OnRecv = func(addr *net.IPAddr, rtt time.Duration) {
		fields := pubsub.Fields{
			"source": fmt.Sprintf("ping.%s", host),
			"rtt":    rtt.Seconds() * 1000,
		}
		services.Publisher.Emit(pubsub.NewEvent("ping", fields))
	}
	pinger.RunLoop()
}

// Service watchdog
type Service struct{}

func (self *Service) ID() string {
	return "watchdog"
}

func (self *Service) Run() error {
	mutex.Lock()
	devices = map[string]*WatchdogDevice{}
	now := time.Now()
	for device, timeout := range services.Config.Watchdog.Devices {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			log.Println("Failed to parse:", timeout)
			continue
		}
		// give devices grace period for first event
		devices[device] = &WatchdogDevice{
			Name:      services.Config.Devices[device].Name,
			Timeout:   duration,
			LastEvent: now,
		}
	}

	for _, host := range services.Config.Watchdog.Pings {
		// a host missing 3 ping rounds is a problem
		devices["ping."+host] = &WatchdogDevice{
			Name:      fmt.Sprintf("Host %s", host),
			Timeout:   pingInterval*3 + time.Second,
			LastEvent: now,
		}
		go pingLoop(host)
	}
	mutex.Unlock()

	ticker := time.NewTicker(time.Minute)
	events := services.Subscriber.Subscribe(pubsub.All())
	for {
		select {
		case ev := <-events:
			checkEvent(ev)
		case <-ticker.C:
			checkTimeouts()
		}
	}
}

func (self *Service) QueryHandlers() services.QueryHandlers {
	return services.QueryHandlers{
		"status": services.TextHandler(self.queryStatus),
		"help":   services.StaticHandler("status: get status\n"),
	}
}

func (self *Service) queryStatus(q services.Question) string {
	mutex.Lock()
	defer mutex.Unlock()
	var out string
	var list WatchdogDevices
	for _, device := range devices {
		list = append(list, device)
	}
	// return oldest last
	sort.Sort(sort.Reverse(list))

	now := time.Now()
	for _, w := range list {
		problem := ""
		if w.Alerted {
			problem = "PROBLEM"
		}
		ago := util.ShortDuration(now.Sub(w.LastEvent))
		out += fmt.Sprintf("- %-6s %s %s\n", ago, w.Name, problem)
	}
	return out
}
