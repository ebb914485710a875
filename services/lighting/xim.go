package lighting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Gateway is a client for the XIM BLE gateway REST API.
type Gateway struct {
	url    string
	client *http.Client
}

type intensity struct {
	Intensity int `json:"intensity"`
}

// SetIntensity sets a track module intensity, 0-100.
func (g *Gateway) SetIntensity(device int, level int) error {
	data, _ := json.Marshal(intensity{level})
	uri := fmt.Sprintf("%s/devices/%d", g.url, device)
	resp, err := g.client.Post(uri, "application/json", bytes.NewReader(data))
	if err != nil {
		return errors.Wrapf(err, "xim device %d", device)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("xim device %d: %s", device, resp.Status)
	}
	return nil
}
