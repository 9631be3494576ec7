package mqttadapter

import (
	"context"
	stdlog "log"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const retryConnectInterval = 10 * time.Second

var _ Client = (*PahoClient)(nil)

// PahoClient implements Client on top of the paho MQTT client.
type PahoClient struct {
	client        mqtt.Client
	clientOptions *ClientOptions

	onConnectCount     int
	onConnectMu        sync.Mutex
	onConnectCallbacks map[int]OnConnectCallback

	stopRetryConnect atomic.Bool
	printableURL     string

	log *zap.SugaredLogger
}

// New creates a new MQTT client for uri, which should look like "tcp://host:port" or "ssl://host:port".
// Credentials in uri are used for the connection but never logged.
// The client does not connect until Connect or EnsureConnected is called.
func New(uri, clientID string, options ...Option) (*PahoClient, error) {
	server, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, "parse broker url")
	}
	if server.Scheme == "" || server.Host == "" {
		return nil, errors.New("broker url needs a scheme and host")
	}

	log := zap.S().With("module", "mqtt")

	printable := *server
	printable.User = nil
	c := &PahoClient{
		log:                log,
		printableURL:       printable.String(),
		onConnectCallbacks: make(map[int]OnConnectCallback),
	}

	mqttClientOptions := mqtt.NewClientOptions().
		AddBroker(uri).
		SetClientID(clientID).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
			log.Infof("Unhandled message on %s (%d bytes)", m.Topic(), len(m.Payload()))
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Infof("Connected %s", c.printableURL)
			for _, cb := range c.connectCallbacks() {
				go cb()
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warnf("Connection lost %s %v", c.printableURL, err)
		})
	if server.User != nil {
		pass, _ := server.User.Password()
		mqttClientOptions.SetUsername(server.User.Username())
		mqttClientOptions.SetPassword(pass)
	}

	clientOptions := &ClientOptions{ClientOptions: mqttClientOptions}
	for _, o := range options {
		o(clientOptions)
	}

	c.client = mqtt.NewClient(clientOptions.ClientOptions)
	c.clientOptions = clientOptions

	if clientOptions.enableStatus {
		c.OnConnect(func() {
			c.PublishBytes(context.Background(), clientOptions.onlineTopic, 1, true, clientOptions.onlinePayload)
		})
	}

	if clientOptions.enableDebug {
		mqtt.DEBUG = stdlog.New(os.Stderr, "DEBUG - ", stdlog.LstdFlags)
		mqtt.CRITICAL = stdlog.New(os.Stderr, "CRITICAL - ", stdlog.LstdFlags)
		mqtt.WARN = stdlog.New(os.Stderr, "WARN - ", stdlog.LstdFlags)
		mqtt.ERROR = stdlog.New(os.Stderr, "ERROR - ", stdlog.LstdFlags)
	}

	return c, nil
}

// Options returns the paho options the client was built with.
func (c *PahoClient) Options() *mqtt.ClientOptions {
	return c.clientOptions.ClientOptions
}

func (c *PahoClient) connectCallbacks() []OnConnectCallback {
	c.onConnectMu.Lock()
	defer c.onConnectMu.Unlock()

	cbs := make([]OnConnectCallback, 0, len(c.onConnectCallbacks))
	for _, cb := range c.onConnectCallbacks {
		cbs = append(cbs, cb)
	}
	return cbs
}

// OnConnect registers cb to run on every (re)connect. If the client is
// already connected, cb also runs immediately.
func (c *PahoClient) OnConnect(cb OnConnectCallback) int {
	c.onConnectMu.Lock()
	idx := c.onConnectCount
	c.onConnectCount++
	c.onConnectCallbacks[idx] = cb
	c.onConnectMu.Unlock()

	if c.client.IsConnected() {
		cb()
	}
	return idx
}

func (c *PahoClient) OffConnect(idx int) {
	c.onConnectMu.Lock()
	defer c.onConnectMu.Unlock()

	delete(c.onConnectCallbacks, idx)
}

func (c *PahoClient) Connect(ctx context.Context) error {
	token := c.client.Connect()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}

func (c *PahoClient) EnsureConnected() {
	go c.connectAndWaitForSuccess()
}

// connectAndWaitForSuccess retries every retryConnectInterval until connected or stopped.
func (c *PahoClient) connectAndWaitForSuccess() {
	ctx := context.Background()
	for !c.stopRetryConnect.Load() {
		if c.IsConnected() {
			return
		}
		if err := c.Connect(ctx); err != nil {
			c.log.Errorf("Connect failed %s %v", c.printableURL, err)
			time.Sleep(retryConnectInterval)
			c.log.Infof("Try reconnect %s", c.printableURL)
			continue
		}
		return
	}
	c.log.Infof("Stop retry connect %s", c.printableURL)
}

// Disconnect stops reconnecting and waits up to one second for pending work.
func (c *PahoClient) Disconnect() {
	c.stopRetryConnect.Store(true)
	c.client.Disconnect(1000)
}

func (c *PahoClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *PahoClient) Subscribe(ctx context.Context, topic string, qos byte, onMsg MessageCallback) {
	c.log.Debugf("Subscribe topic=%s qos=%d", topic, qos)
	c.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		onMsg(c, m)
	})
}

// SubscribeWait returns once the broker acknowledges the subscription, or with ctx's error.
func (c *PahoClient) SubscribeWait(ctx context.Context, topic string, qos byte, onMsg MessageCallback) error {
	c.log.Debugf("Subscribe topic=%s qos=%d", topic, qos)
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		onMsg(c, m)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return errors.Wrapf(token.Error(), "subscribe %s", topic)
	}
}

func (c *PahoClient) Unsubscribe(ctx context.Context, topic string) {
	c.log.Debugf("Unsubscribe topic=%s", topic)
	c.client.Unsubscribe(topic)
}

func (c *PahoClient) PublishBytes(ctx context.Context, topic string, qos byte, retained bool, data []byte) {
	c.client.Publish(topic, qos, retained, data)
}
