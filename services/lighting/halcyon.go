package lighting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Halcyon is a client for the Halcyon dimming controller REST API.
type Halcyon struct {
	url      string
	user     string
	password string
	client   *http.Client
}

type luminanceTarget struct {
	RoomId          int `json:"roomId"`
	LuminanceTarget int `json:"luminanceTarget"`
}

// SetLevel sets the luminance target for a room, 0-100.
func (h *Halcyon) SetLevel(room int, level int) error {
	data, _ := json.Marshal(luminanceTarget{room, level})
	uri := h.url + "/api/rooms/luminanceTarget"
	req, err := http.NewRequest("POST", uri, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "halcyon request")
	}
	req.SetBasicAuth(h.user, h.password)
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "halcyon room %d", room)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("halcyon room %d: %s", room, resp.Status)
	}
	return nil
}

func (h *Halcyon) String() string {
	return fmt.Sprintf("halcyon: %s", h.url)
}
