package xim

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/pkg/errors"
)

// Company identifier in XIM advertisement frames.
const companyXicato = 0x0596

// Manufacturer frame layout: company id, device id, intensity.
// All fields little-endian.
const frameLength = 5

// bleRadio drives the HCI dongle directly. Needs root.
type bleRadio struct {
	once   sync.Once
	device *linux.Device
	err    error
}

func (r *bleRadio) setup() error {
	r.once.Do(func() {
		device, err := linux.NewDevice()
		if err != nil {
			r.err = errors.Wrap(err, "opening hci device")
			return
		}
		ble.SetDefaultDevice(device)
		r.device = device
	})
	return r.err
}

// DecodeFrame parses the manufacturer data of one advertisement.
func DecodeFrame(data []byte) (Sighting, bool) {
	if len(data) < frameLength {
		return Sighting{}, false
	}
	if binary.LittleEndian.Uint16(data[0:2]) != companyXicato {
		return Sighting{}, false
	}
	return Sighting{
		Device:    int(binary.LittleEndian.Uint16(data[2:4])),
		Intensity: float64(data[4]),
	}, true
}

func EncodeFrame(device int, level float64) []byte {
	data := make([]byte, frameLength)
	binary.LittleEndian.PutUint16(data[0:2], companyXicato)
	binary.LittleEndian.PutUint16(data[2:4], uint16(device))
	data[4] = byte(level)
	return data
}

func (r *bleRadio) Scan(ctx context.Context, sightings chan<- Sighting) error {
	if err := r.setup(); err != nil {
		return err
	}
	handler := func(a ble.Advertisement) {
		sighting, ok := DecodeFrame(a.ManufacturerData())
		if !ok {
			return
		}
		sighting.Rssi = a.RSSI()
		sightings <- sighting
	}
	for {
		ctx := ble.WithSigHandler(context.WithTimeout(ctx, 5*time.Second))
		err := ble.Scan(ctx, false, handler, nil)
		if errors.Cause(err) == context.Canceled {
			return nil
		} else if errors.Cause(err) == context.DeadlineExceeded {
			continue
		}
		return errors.Wrap(err, "scanning")
	}
}

func (r *bleRadio) SetIntensity(device int, level float64) error {
	if err := r.setup(); err != nil {
		return err
	}
	// a short burst of advertisements, the modules latch the first they hear
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := r.device.AdvertiseMfgData(ctx, companyXicato, EncodeFrame(device, level)[2:])
	if errors.Cause(err) == context.DeadlineExceeded {
		return nil
	}
	return errors.Wrapf(err, "advertising to device %d", device)
}
