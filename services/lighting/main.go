// Service translating lighting scenes and room levels into Halcyon and XIM
// gateway calls. A scene sets every Halcyon room and XIM device group it
// names; outbound failures are logged and the remaining calls still made.
package lighting

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/bhussey/showhome/pubsub"
	"github.com/bhussey/showhome/services"
)

// Service lighting
type Service struct {
	halcyon *Halcyon
	gateway *Gateway
}

func (self *Service) ID() string {
	return "lighting"
}

func (self *Service) Init() error {
	conf := services.Config.Lighting
	client := &http.Client{Timeout: 2 * time.Second}
	self.halcyon = &Halcyon{
		url:      conf.Halcyon.Url,
		user:     conf.Halcyon.User,
		password: conf.Halcyon.Password,
		client:   client,
	}
	self.gateway = &Gateway{url: conf.Gateway, client: client}
	return nil
}

// ApplyScene pushes a scene's levels to every configured room and device.
func (self *Service) ApplyScene(state int) bool {
	scene, ok := services.Config.Lighting.Scenes[state]
	if !ok {
		return false
	}
	log.Printf("Applying scene %d: %s", state, scene.Name)
	for room, level := range scene.Halcyon {
		if err := self.halcyon.SetLevel(room, level); err != nil {
			log.Println("Halcyon error:", err)
		}
	}
	for _, group := range scene.Xim {
		for _, device := range group.Devices {
			if err := self.gateway.SetIntensity(device, group.Intensity); err != nil {
				log.Println("Xim error:", err)
			}
		}
	}
	self.emit(scene.Name)
	return true
}

func (self *Service) emit(scene string) {
	fields := pubsub.Fields{
		"source": "lighting",
		"scene":  scene,
	}
	ev := pubsub.NewEvent("lighting", fields)
	ev.SetRetained(true)
	services.Publisher.Emit(ev)
}

// sceneByName finds a scene id by its (case-insensitive) name.
func sceneByName(name string) (int, bool) {
	for state, scene := range services.Config.Lighting.Scenes {
		if strings.EqualFold(scene.Name, name) {
			return state, true
		}
	}
	return 0, false
}

func (self *Service) handleCommand(ev *pubsub.Event) {
	if ev.Device() != "lighting" {
		return // command not for us
	}
	if state, ok := sceneByName(ev.Command()); ok {
		self.ApplyScene(state)
	} else {
		log.Println("Scene not recognised:", ev.Command())
	}
}

// REST handlers

func (self *Service) apiState(w http.ResponseWriter, r *http.Request) {
	var state int
	if _, err := fmt.Sscanf(mux.Vars(r)["state"], "%d", &state); err != nil {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	if !self.ApplyScene(state) {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	fmt.Fprint(w, services.Config.Lighting.Scenes[state].Name)
}

func (self *Service) apiLevel(w http.ResponseWriter, r *http.Request) {
	var room, level int
	vars := mux.Vars(r)
	if _, err := fmt.Sscanf(vars["room"], "%d", &room); err != nil {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	if _, err := fmt.Sscanf(vars["level"], "%d", &level); err != nil {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	if _, ok := services.Config.Lighting.Rooms[room]; !ok {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	if level < 0 || level > 100 {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	if err := self.halcyon.SetLevel(room, level); err != nil {
		log.Println("Halcyon error:", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	fmt.Fprintf(w, "%s %d", services.Config.Lighting.Rooms[room], level)
}

func (self *Service) router() *mux.Router {
	router := mux.NewRouter()
	router.Path("/state/{state}/").HandlerFunc(self.apiState)
	router.Path("/level/{room}/{level}/").HandlerFunc(self.apiLevel)
	return router
}

func (self *Service) QueryHandlers() services.QueryHandlers {
	return services.QueryHandlers{
		"scene": services.TextHandler(self.queryScene),
		"help":  services.StaticHandler("scene <name>: apply a lighting scene\n"),
	}
}

func (self *Service) queryScene(q services.Question) string {
	if state, ok := sceneByName(q.Args); ok {
		self.ApplyScene(state)
		return fmt.Sprintf("Applied scene: %s", services.Config.Lighting.Scenes[state].Name)
	}
	return "Scene not found"
}

// Run the service
func (self *Service) Run() error {
	commandChannel := services.Subscriber.Subscribe(pubsub.Prefix("command"))
	go func() {
		for ev := range commandChannel {
			self.handleCommand(ev)
		}
	}()

	addr := fmt.Sprintf(":%d", services.Config.Lighting.Port)
	log.Println("Listening on " + addr)
	return http.ListenAndServe(addr, self.router())
}
