package mqtt

import (
	"log"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/bhussey/showhome/pubsub"
)

// Publisher for mqtt
type Publisher struct {
	broker string
	client MQTT.Client
}

// ID of Publisher
func (pub *Publisher) ID() string {
	return "mqtt: " + pub.broker
}

// Emit an event
func (pub *Publisher) Emit(ev *pubsub.Event) {
	topic := prefix + ev.Topic
	token := pub.client.Publish(topic, 1, ev.Retained, ev.Bytes())
	if token.Wait() && token.Error() != nil {
		log.Println("Failed to publish message:", token.Error())
	}
}

func (pub *Publisher) Close() {
	pub.client.Disconnect(250)
}
