package mqtt

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

// Topic prefix all bus events are published under.
const prefix = "showhome/"

type Broker struct {
	broker     string
	client     MQTT.Client
	subscriber *Subscriber
}

func NewBroker(broker string, name string) *Broker {
	hostname, _ := os.Hostname()
	clientId := fmt.Sprintf("showhome/%s-%s-%d-%d", name, hostname, os.Getpid(), rand.Int())
	opts := MQTT.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientId)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	self := &Broker{broker: broker}
	opts.SetOnConnectHandler(func(client MQTT.Client) {
		if self.subscriber != nil {
			self.subscriber.connected()
		}
	})
	self.client = MQTT.NewClient(opts)
	if token := self.client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln("Couldn't connect to mqtt:", token.Error())
	}
	return self
}

func (self *Broker) Id() string {
	return "mqtt: " + self.broker
}

func (self *Broker) Subscriber() *Subscriber {
	if self.subscriber == nil {
		self.subscriber = NewSubscriber(self)
	}
	return self.subscriber
}

func (self *Broker) Publisher() *Publisher {
	return &Publisher{broker: self.broker, client: self.client}
}
