package config

import (
	"io"
	"io/ioutil"
	"os"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/bhussey/showhome/pubsub"
)

type DeviceConf struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Group    string `json:"group"`
	Location string `json:"location"`
}

type EndpointsConf struct {
	Mqtt struct {
		Broker string
	}
	Api string
}

// Duration parses time.Duration strings from yaml.
type Duration struct {
	Duration time.Duration
}

func (self *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var value string
	if err := unmarshal(&value); err != nil {
		return err
	}
	val, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	self.Duration = val
	return nil
}

type GpioPinConf struct {
	Pin       int
	Direction string // "in" or "out"
}

type GpioConf struct {
	Port int
	Pins map[string]GpioPinConf
}

type VeluxPinConf struct {
	Pin    int
	Device string
	Action string // "open" or "close"
}

type VeluxThingConf struct {
	Label string
	Time  *Duration // travel time
	Group string
	Pins  []VeluxPinConf
}

type VeluxConf struct {
	Port   int
	Groups map[string]int // power group -> budget of simultaneous actuators
	Things map[int]VeluxThingConf
}

type HalcyonConf struct {
	Url      string
	User     string
	Password string
}

type XimGroupConf struct {
	Devices   []int
	Intensity int
}

type SceneConf struct {
	Name    string
	Halcyon map[int]int // roomId -> luminance target
	Xim     []XimGroupConf
}

type LightingConf struct {
	Port    int
	Halcyon HalcyonConf
	Gateway string // xim gateway url
	Rooms   map[int]string
	Scenes  map[int]SceneConf
}

type TouchConf struct {
	Host       string
	Port       int
	Uid        string
	Electrodes map[int][]string // electrode -> urls to GET
}

type XimConf struct {
	Port   int
	Expiry *Duration // devices unseen this long are dropped
}

type SensorsConf struct {
	Port     int
	Interval *Duration
}

type OpenhabConf struct {
	Url          string
	Items        map[string]string // device -> item
	Command_Item string
	Poll         *Duration
}

type WatchdogConf struct {
	Devices map[string]string
	Pings   []string
}

// Configuration structure
type Config struct {
	// yaml fields
	Devices   map[string]DeviceConf
	Protocols map[string]map[string]string
	Endpoints EndpointsConf
	Gpio      GpioConf
	Velux     VeluxConf
	Lighting  LightingConf
	Touch     TouchConf
	Xim       XimConf
	Sensors   SensorsConf
	Openhab   OpenhabConf
	Watchdog  WatchdogConf
}

// Open configuration from disk.
func Open() (*Config, error) {
	file, err := os.Open(ConfigPath("showhome.yml"))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return OpenReader(file)
}

// Open configuration from a reader.
func OpenReader(r io.Reader) (*Config, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return OpenRaw(data)
}

// Open configuration from []byte.
func OpenRaw(data []byte) (*Config, error) {
	self := &Config{}
	err := yaml.Unmarshal(data, self)
	if err != nil {
		return nil, err
	}

	for id, device := range self.Devices {
		device.Id = id
		if device.Type == "" {
			device.Type = strings.Split(id, ".")[0]
		}
		self.Devices[id] = device
	}

	return self, nil
}

func (self *Config) AddDeviceToEvent(ev *pubsub.Event) {
	// split source into protocol.id
	ps := strings.SplitN(ev.Source(), ".", 2)
	protocol := ps[0]
	var id string
	if len(ps) > 1 {
		id = ps[1]
	}
	device := self.Protocols[protocol][id]
	if device != "" {
		ev.SetField("device", device)
	}
}

// LookupDeviceName resolves the device name for an event, falling back to the
// event source when unmapped.
func (self *Config) LookupDeviceName(ev *pubsub.Event) string {
	if device := ev.Device(); device != "" {
		return device
	}
	source := ev.Source()
	ps := strings.SplitN(source, ".", 2)
	if len(ps) == 2 {
		if device := self.Protocols[ps[0]][ps[1]]; device != "" {
			return device
		}
	}
	return source
}

// Find the protocol and identifier by device name
func (self *Config) LookupDeviceProtocol(matchName string) map[string]string {
	ret := map[string]string{}
	for protocol, value := range self.Protocols {
		for id, name := range value {
			if name == matchName {
				ret[protocol] = id
			}
		}
	}
	return ret
}

// helpers

// Resolve a configuration file under .config/showhome
func ConfigPath(p string) string {
	if env := os.Getenv("SHOWHOME_CONFIG"); env != "" {
		return env
	}
	config := os.Getenv("XDG_CONFIG_HOME")
	if config == "" {
		config = path.Join(os.Getenv("HOME"), ".config")
	}
	return path.Join(config, "showhome", p)
}
