package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/bhussey/showhome/services"
	"github.com/bhussey/showhome/services/api"
	"github.com/bhussey/showhome/services/gpio"
	"github.com/bhussey/showhome/services/lighting"
	"github.com/bhussey/showhome/services/openhab"
	"github.com/bhussey/showhome/services/sensors"
	"github.com/bhussey/showhome/services/touch"
	"github.com/bhussey/showhome/services/velux"
	"github.com/bhussey/showhome/services/watchdog"
	"github.com/bhussey/showhome/services/xim"
)

func registerServices() {
	// register available services
	services.Register(&api.Service{})
	services.Register(&gpio.Service{})
	services.Register(&lighting.Service{})
	services.Register(&openhab.Service{})
	services.Register(&sensors.Service{})
	services.Register(&touch.Service{})
	services.Register(&velux.Service{})
	services.Register(&watchdog.Service{})
	services.Register(&xim.Service{})
}

func usage() {
	fmt.Println("Usage: showhome COMMAND [SERVICE]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("   service [service...]    Run the given services")
	fmt.Println("   status  [service]       Get service status")
	fmt.Println("   query   ...             Query services")
	fmt.Println("   logs                    Tail the event feed")
	fmt.Println()
}

var emptyParams = url.Values{}

func main() {
	log.SetOutput(os.Stdout)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	ps := []string{}
	if flag.NArg() > 1 {
		ps = flag.Args()[1:]
	}
	// ignore anything after '--'
	for i := range ps {
		if ps[i] == "--" {
			ps = ps[0:i]
			break
		}
	}

	services.SetupLogging()

	command := flag.Args()[0]
	switch command {
	default:
		usage()
	case "status":
		if len(ps) == 0 {
			// all services
			query("status", []string{}, emptyParams)
		} else {
			// single service
			query(ps[0]+"/status", []string{}, url.Values{"responses": {"1"}})
		}
	case "service", "run":
		service(ps)
	case "query":
		if len(ps) == 0 {
			usage()
			return
		}
		query(ps[0], ps[1:], url.Values{"timeout": {"5000"}, "responses": {"1"}})
	case "logs":
		stream("events/feed", emptyParams)
	}
}

// Start builtin services
func service(ss []string) {
	services.Setup("showhome")
	registerServices()
	services.Launch(ss)
}
