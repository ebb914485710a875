// Service bridging the bus to an OpenHab instance.
//
// Pushes device state changes to mapped OpenHab items, and polls a command
// item so OpenHab rules and UIs can drive scenes.
package openhab

import (
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/services"
)

const defaultPoll = 5 * time.Second
const maxBackoff = 5 * time.Minute

// Service openhab
type Service struct {
	client      *http.Client
	lastCommand string
}

func (self *Service) ID() string {
	return "openhab"
}

func (self *Service) Init() error {
	self.client = &http.Client{Timeout: 5 * time.Second}
	return nil
}

// stateField picks what to report to openhab per topic.
var stateField = map[string]string{
	"velux":    "status",
	"gpio":     "value",
	"lighting": "scene",
	"temp":     "temp",
	"xim":      "intensity",
}

// itemState renders an event as an openhab item update, if one is mapped.
func itemState(ev *pubsub.Event) (item, state string, ok bool) {
	conf := services.Config.Openhab
	name := services.Config.LookupDeviceName(ev)
	item, ok = conf.Items[name]
	if !ok {
		item, ok = conf.Items[ev.Source()]
	}
	if !ok {
		return "", "", false
	}
	field, ok := stateField[ev.Topic]
	if !ok {
		return "", "", false
	}
	value, ok := ev.Fields[field]
	if !ok {
		return "", "", false
	}
	return item, fmt.Sprint(value), true
}

func (self *Service) pushState(item, state string) error {
	uri := fmt.Sprintf("%s/rest/items/%s/state", services.Config.Openhab.Url, item)
	req, err := http.NewRequest("PUT", uri, strings.NewReader(state))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := self.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "updating item %s", item)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("updating item %s: %s", item, resp.Status)
	}
	return nil
}

func (self *Service) handleEvent(ev *pubsub.Event) {
	item, state, ok := itemState(ev)
	if !ok {
		return
	}
	if err := self.pushState(item, state); err != nil {
		log.Println("Openhab push failed:", err)
	}
}

// readCommand polls the command item for a scene request.
func (self *Service) readCommand() (string, error) {
	conf := services.Config.Openhab
	uri := fmt.Sprintf("%s/rest/items/%s/state", conf.Url, conf.Command_Item)
	resp, err := self.client.Get(uri)
	if err != nil {
		return "", errors.Wrap(err, "polling command item")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", errors.Errorf("polling command item: %s", resp.Status)
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (self *Service) pollCommand() error {
	command, err := self.readCommand()
	if err != nil {
		return err
	}
	if command == "" || command == "NULL" || command == self.lastCommand {
		return nil
	}
	self.lastCommand = command
	log.Printf("Openhab command: %s", command)
	services.Publisher.Emit(pubsub.NewCommand("lighting", command))
	return nil
}

// pollLoop polls with backoff when openhab is unreachable.
func (self *Service) pollLoop() {
	poll := defaultPoll
	if d := services.Config.Openhab.Poll; d != nil {
		poll = d.Duration
	}
	backoff := poll
	for {
		if err := self.pollCommand(); err != nil {
			log.Println(err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		} else {
			backoff = poll
		}
		time.Sleep(backoff)
	}
}

func (self *Service) Run() error {
	if services.Config.Openhab.Command_Item != "" {
		go self.pollLoop()
	}

	events := services.Subscriber.Subscribe(
		pubsub.Exact("velux"), pubsub.Exact("gpio"), pubsub.Exact("lighting"),
		pubsub.Exact("temp"), pubsub.Exact("xim"))
	for ev := range events {
		self.handleEvent(ev)
	}
	return nil
}
