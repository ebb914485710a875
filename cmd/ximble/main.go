// Command line proxy for XIM BLE lighting modules. This is launched by
// showhome@ximble as user root as is necessary to snoop bluetooth broadcasts.
//
// Sightings are published as line delimited JSON on stdout, for feeding to
// the xim service on a host without its own dongle.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/pkg/errors"

	"github.com/bhussey/showhome/services/xim"
)

var sightingChannel chan xim.Sighting

func adScanHandler(a ble.Advertisement) {
	sighting, ok := xim.DecodeFrame(a.ManufacturerData())
	if !ok {
		return
	}
	sighting.Rssi = a.RSSI()
	sightingChannel <- sighting
}

func sightings() {
	lastIntensity := map[int]float64{}
	for sighting := range sightingChannel {
		if intensity, ok := lastIntensity[sighting.Device]; ok && intensity == sighting.Intensity {
			continue
		}
		event := map[string]interface{}{
			"topic":     "xim",
			"source":    fmt.Sprintf("xim.%d", sighting.Device),
			"intensity": sighting.Intensity,
			"rssi":      sighting.Rssi,
		}
		data, _ := json.Marshal(event)
		fmt.Println(string(data))
		lastIntensity[sighting.Device] = sighting.Intensity
	}
}

func scan() {
	sightingChannel = make(chan xim.Sighting, 10)
	dur := 5 * time.Second
	log.Println("Started scanning")

	go sightings()
	for {
		ctx := ble.WithSigHandler(context.WithTimeout(context.Background(), dur))
		err := ble.Scan(ctx, false, adScanHandler, nil)
		if errors.Cause(err) == context.Canceled {
			break
		} else if errors.Cause(err) == context.DeadlineExceeded {
			continue
		}
		log.Fatalf(err.Error())
	}
}

func main() {
	d, err := linux.NewDevice()
	if err != nil {
		log.Fatal("Can't create new device:", err)
	}
	ble.SetDefaultDevice(d)
	scan()
}
