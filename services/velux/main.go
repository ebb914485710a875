// Service to control motorised Velux windows and blinds through Pi-GPIO-Server
// relay endpoints.
//
// Actuators draw significant current while travelling, so each belongs to a
// power group with a budget of simultaneously moving devices. Requests beyond
// the budget are queued (state Waiting) and admitted oldest-first as travel
// completes.
package velux

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/barnybug/gofsm"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/services"
)

const (
	ActionClose = 0
	ActionOpen  = 1
)

// State labels, as shown on the wall display and returned by the REST
// endpoints.
const (
	StateUnknown = "Unknown/Stopped"
	StateClosed  = "Closed"
	StateOpen    = "Open"
	StateClosing = "Closing"
	StateOpening = "Opening"
	StateWaiting = "Waiting"
)

// trigger is a gofsm event carrying just a verb.
type trigger string

func (t trigger) Match(s string) bool {
	return string(t) == s
}

const automatonTemplate = `
"velux.%d":
  start: "Unknown/Stopped"
  states:
    "Unknown/Stopped": {}
    "Closed": {}
    "Open": {}
    "Closing": {}
    "Opening": {}
    "Waiting": {}
  transitions:
    "Unknown/Stopped,Closed,Open,Closing,Waiting->Opening":
      - when: open
    "Unknown/Stopped,Closed,Open,Opening,Waiting->Closing":
      - when: close
    "Opening->Open":
      - when: complete
    "Closing->Closed":
      - when: complete
    "Unknown/Stopped,Closed,Open->Waiting":
      - when: queue
`

type action struct {
	tid int
	dir int
}

func (a action) verb() string {
	if a.dir == ActionOpen {
		return "open"
	}
	return "close"
}

// Service velux
type Service struct {
	mutex    sync.Mutex
	automata *gofsm.Automata
	queue    []action
	running  map[int]action
	client   *http.Client
}

func (self *Service) ID() string {
	return "velux"
}

func (self *Service) Init() error {
	conf := services.Config.Velux
	var yml strings.Builder
	for tid := range conf.Things {
		fmt.Fprintf(&yml, automatonTemplate, tid)
	}
	automata, err := gofsm.Load([]byte(yml.String()))
	if err != nil {
		return errors.Wrap(err, "loading velux automata")
	}
	self.automata = automata
	self.running = map[int]action{}
	self.client = &http.Client{Timeout: 500 * time.Millisecond}
	return nil
}

func (self *Service) automaton(tid int) *gofsm.Automaton {
	return self.automata.Automaton[fmt.Sprintf("velux.%d", tid)]
}

// State returns the state label for a thing, or "" if unknown.
func (self *Service) State(tid int) string {
	aut := self.automaton(tid)
	if aut == nil {
		return ""
	}
	return aut.State.Name
}

func (self *Service) setPin(device string, pin int, value int) {
	uri := fmt.Sprintf("http://%s/api/v1/pin/%d", device, pin)
	data := url.Values{"value": {fmt.Sprint(value)}}
	req, err := http.NewRequest("PATCH", uri, strings.NewReader(data.Encode()))
	if err != nil {
		log.Println("Bad pin request:", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := self.client.Do(req)
	if err != nil {
		log.Println(errors.Wrapf(err, "setting pin %d on %s", pin, device))
		return
	}
	resp.Body.Close()
}

// releaseAll releases every relay on every gpio device. Relays are active low:
// 1 released, 0 energised.
func (self *Service) releaseAll() {
	for _, thing := range services.Config.Velux.Things {
		for _, pin := range thing.Pins {
			self.setPin(pin.Device, pin.Pin, 1)
		}
	}
}

// groupRunning counts the things currently travelling in a power group.
func (self *Service) groupRunning(group string) int {
	n := 0
	for tid := range self.running {
		if services.Config.Velux.Things[tid].Group == group {
			n += 1
		}
	}
	return n
}

func (self *Service) budget(group string) int {
	budget := services.Config.Velux.Groups[group]
	if budget == 0 {
		budget = 1
	}
	return budget
}

// AddAction requests a thing be opened or closed, subject to the power budget
// of its group. Over-budget requests are queued, replacing any queued action
// for the same thing.
func (self *Service) AddAction(tid int, dir int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	thing := services.Config.Velux.Things[tid]
	_, moving := self.running[tid]
	if !moving && self.groupRunning(thing.Group) < self.budget(thing.Group) {
		self.start(action{tid, dir})
		return
	}

	// replace any queued action for the same thing
	for i, queued := range self.queue {
		if queued.tid == tid {
			self.queue = append(self.queue[:i], self.queue[i+1:]...)
			break
		}
	}
	self.queue = append(self.queue, action{tid, dir})
	if !moving {
		self.automaton(tid).Process(trigger("queue"))
	}
}

// start energises the pins for an action. Caller holds the mutex.
func (self *Service) start(a action) {
	thing := services.Config.Velux.Things[a.tid]
	log.Printf("Starting %s of %s", a.verb(), thing.Label)
	self.releaseAll()
	for _, pin := range thing.Pins {
		if pin.Action == a.verb() {
			self.setPin(pin.Device, pin.Pin, 0)
		}
	}
	self.running[a.tid] = a
	self.automaton(a.tid).Process(trigger(a.verb()))
	travel := 30 * time.Second
	if thing.Time != nil {
		travel = thing.Time.Duration
	}
	time.AfterFunc(travel, func() {
		self.complete(a.tid)
	})
}

// complete marks a travelling thing as arrived and admits queued actions.
func (self *Service) complete(tid int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if _, ok := self.running[tid]; !ok {
		return
	}
	delete(self.running, tid)
	self.automaton(tid).Process(trigger("complete"))
	self.admitQueued()
	if len(self.running) == 0 && len(self.queue) == 0 {
		self.releaseAll()
	}
}

// admitQueued starts queued actions oldest-first while budgets allow.
// Caller holds the mutex.
func (self *Service) admitQueued() {
	var remaining []action
	for _, a := range self.queue {
		thing := services.Config.Velux.Things[a.tid]
		_, moving := self.running[a.tid]
		if !moving && self.groupRunning(thing.Group) < self.budget(thing.Group) {
			self.start(a)
		} else {
			remaining = append(remaining, a)
		}
	}
	self.queue = remaining
}

// Toggle opens or closes a thing based on its current state. Only a fully
// closed thing is opened; from an unknown state closing is the safe direction.
func (self *Service) Toggle(tid int) {
	switch self.State(tid) {
	case StateClosed:
		self.AddAction(tid, ActionOpen)
	case StateOpen, StateOpening, StateWaiting, StateUnknown:
		self.AddAction(tid, ActionClose)
	}
}

func (self *Service) emitChanges() {
	for change := range self.automata.Changes {
		fields := pubsub.Fields{
			"source": change.Automaton,
			"status": change.New,
		}
		ev := pubsub.NewEvent("velux", fields)
		services.Config.AddDeviceToEvent(ev)
		ev.SetRetained(true)
		services.Publisher.Emit(ev)
	}
}

func (self *Service) drainActions() {
	for range self.automata.Actions {
	}
}

// REST handlers

func (self *Service) thingFromRequest(w http.ResponseWriter, r *http.Request) (int, bool) {
	var tid int
	_, err := fmt.Sscanf(mux.Vars(r)["tid"], "%d", &tid)
	if err != nil {
		http.Error(w, "Page not found", http.StatusNotFound)
		return 0, false
	}
	if _, ok := services.Config.Velux.Things[tid]; !ok {
		http.Error(w, "Page not found", http.StatusNotFound)
		return 0, false
	}
	return tid, true
}

func (self *Service) apiStatuses(w http.ResponseWriter, r *http.Request) {
	for tid := range services.Config.Velux.Things {
		fmt.Fprintf(w, "%d %s\n", tid, self.State(tid))
	}
}

func (self *Service) apiStatus(w http.ResponseWriter, r *http.Request) {
	tid, ok := self.thingFromRequest(w, r)
	if !ok {
		return
	}
	fmt.Fprint(w, self.State(tid))
}

func (self *Service) apiAction(w http.ResponseWriter, r *http.Request) {
	tid, ok := self.thingFromRequest(w, r)
	if !ok {
		return
	}
	var dir int
	_, err := fmt.Sscanf(mux.Vars(r)["action"], "%d", &dir)
	if err != nil || (dir != ActionOpen && dir != ActionClose) {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	self.AddAction(tid, dir)
	fmt.Fprint(w, self.State(tid))
}

func (self *Service) apiToggle(w http.ResponseWriter, r *http.Request) {
	tid, ok := self.thingFromRequest(w, r)
	if !ok {
		return
	}
	self.Toggle(tid)
	fmt.Fprint(w, self.State(tid))
}

func (self *Service) router() *mux.Router {
	router := mux.NewRouter()
	router.Path("/statuses/").HandlerFunc(self.apiStatuses)
	router.Path("/status/{tid}/").HandlerFunc(self.apiStatus)
	router.Path("/action/{tid}/{action}/").HandlerFunc(self.apiAction)
	router.Path("/toggle/{tid}/").HandlerFunc(self.apiToggle)
	return router
}

func (self *Service) QueryHandlers() services.QueryHandlers {
	return services.QueryHandlers{
		"status": services.TextHandler(self.queryStatus),
		"help":   services.StaticHandler("status: get thing states\n"),
	}
}

func (self *Service) queryStatus(q services.Question) string {
	var out string
	for tid, thing := range services.Config.Velux.Things {
		out += fmt.Sprintf("%d %s: %s\n", tid, thing.Label, self.State(tid))
	}
	return out
}

// Run the service
func (self *Service) Run() error {
	go self.emitChanges()
	go self.drainActions()
	// known safe starting point: everything released
	self.releaseAll()

	addr := fmt.Sprintf(":%d", services.Config.Velux.Port)
	log.Println("Listening on " + addr)
	return http.ListenAndServe(addr, self.router())
}
