package mqttadapter

//go:generate mockgen -source=interface.go -destination=mock/mock_mqttadapter.go

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message represents a message in the MQTT protocol.
type Message = mqtt.Message

// MessageCallback handles a message received on a subscribed topic.
type MessageCallback func(Client, Message)

// OnConnectCallback represents a callback function that is called when a connection is established.
type OnConnectCallback func()

// Client is the subset of an MQTT client the bridge needs.
type Client interface {
	// OnConnect sets a callback function to be called when the client is connected,
	// and immediately if it already is.
	// It returns an index that can be used to remove the callback using OffConnect.
	OnConnect(cb OnConnectCallback) int

	// OffConnect removes the callback function associated with the given index.
	OffConnect(idx int)

	// Connect establishes a connection to the MQTT broker.
	Connect(ctx context.Context) error

	// EnsureConnected connects in the background, retrying until it succeeds or Disconnect is called.
	EnsureConnected()

	// Disconnect disconnects the client from the MQTT broker.
	Disconnect()

	// IsConnected returns true if the client is currently connected to the MQTT broker, false otherwise.
	IsConnected() bool

	// Subscribe subscribes to a topic with the specified QoS level and message callback function.
	Subscribe(ctx context.Context, topic string, qos byte, onMsg MessageCallback)

	// SubscribeWait subscribes like Subscribe and waits for the broker to acknowledge it.
	SubscribeWait(ctx context.Context, topic string, qos byte, onMsg MessageCallback) error

	// Unsubscribe unsubscribes from a topic.
	Unsubscribe(ctx context.Context, topic string)

	// PublishBytes publishes data to topic without waiting for the broker.
	PublishBytes(ctx context.Context, topic string, qos byte, retained bool, data []byte)
}
