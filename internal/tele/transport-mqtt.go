package tele

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/drybox/internal/sensor"
	"github.com/temoto/drybox/log2"
)

// Client is the part of paho mqtt.Client used here.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

type ClientFactory func(*mqtt.ClientOptions) Client

func NewPahoClient(opt *mqtt.ClientOptions) Client { return mqtt.NewClient(opt) }

// SetLibraryLog routes paho internal warnings and errors.
// Global state, call once from main.
func SetLibraryLog(log *log2.Log) {
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
}

// BrokerURL accepts bare host, host:port or full URL.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	if _, _, err := net.SplitHostPort(broker); err != nil {
		broker = net.JoinHostPort(broker, DefaultBrokerPort)
	}
	return "tcp://" + broker
}

type readingPayload struct {
	DeviceID  string  `json:"id_device"`
	TempValue float64 `json:"temp_value"`
	HumiValue float64 `json:"humi_value"`
}

func EncodeReading(r sensor.Reading) ([]byte, error) {
	b, err := json.Marshal(readingPayload{
		DeviceID:  r.DeviceID,
		TempValue: sensor.Round2(r.Temperature),
		HumiValue: sensor.Round2(r.Humidity),
	})
	return b, errors.Trace(err)
}

// Connect opens fresh MQTT session with broker from settings and subscribes
// to configuration topic. Previous session is discarded.
func (self *Manager) Connect(ctx context.Context) error {
	self.Close()
	config := self.settings.Config()
	url := BrokerURL(config.MqttBroker)
	mopt := mqtt.NewClientOptions().
		AddBroker(url).
		SetClientID(config.MqttClient).
		SetCleanSession(true).
		SetProtocolVersion(4).
		SetAutoReconnect(false).
		SetConnectTimeout(self.opt.NetworkTimeout).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(self.opt.NetworkTimeout).
		SetDefaultPublishHandler(self.onMessage).
		SetConnectionLostHandler(self.onConnectionLost)
	client := self.opt.NewClient(mopt)

	self.log.Infof("mqtt connect broker=%s client=%s", url, config.MqttClient)
	if err := self.waitToken(ctx, client.Connect()); err != nil {
		return RestartError{errors.Annotatef(err, "mqtt connect broker=%s", url)}
	}

	topic := config.MqttConfigTopic
	if err := self.waitToken(ctx, client.Subscribe(topic, 0, self.onMessage)); err != nil {
		client.Disconnect(250)
		return RestartError{errors.Annotatef(err, "mqtt subscribe topic=%s", topic)}
	}
	self.log.Infof("mqtt subscribed topic=%s", topic)

	self.mu.Lock()
	self.client = client
	self.session.BrokerConnected = true
	self.session.Subscribed = []string{topic}
	self.mu.Unlock()
	self.metrics.BrokerConnected(true)
	return nil
}

// PublishReading sends one reading with QoS 0.
func (self *Manager) PublishReading(ctx context.Context, r sensor.Reading) error {
	self.mu.Lock()
	client := self.client
	self.mu.Unlock()
	if client == nil || !client.IsConnected() {
		err := errors.New("mqtt not connected")
		self.metrics.Published(err)
		return err
	}
	payload, err := EncodeReading(r)
	if err != nil {
		return err
	}
	topic := self.settings.Config().MqttSensorTopic
	err = self.waitToken(ctx, client.Publish(topic, 0, false, payload))
	self.metrics.Published(err)
	if err != nil {
		return errors.Annotatef(err, "mqtt publish topic=%s", topic)
	}
	self.log.Debugf("mqtt published topic=%s payload=%s", topic, payload)
	return nil
}

// waitToken waits for token completion, checking ctx between short waits.
func (self *Manager) waitToken(ctx context.Context, tok mqtt.Token) error {
	const step = 100 * time.Millisecond
	deadline := time.Now().Add(self.opt.NetworkTimeout)
	for !tok.WaitTimeout(step) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return errors.Timeoutf("mqtt operation after %v", self.opt.NetworkTimeout)
		}
	}
	return tok.Error()
}

// runs on paho goroutine
func (self *Manager) onMessage(c mqtt.Client, msg mqtt.Message) {
	in := Inbound{
		Topic:      msg.Topic(),
		Payload:    append([]byte(nil), msg.Payload()...),
		ReceivedAt: self.opt.Now(),
	}
	msg.Ack()
	select {
	case self.inbox <- in:
		self.log.Debugf("mqtt inbound topic=%s len=%d", in.Topic, len(in.Payload))
	default:
		self.log.Errorf("mqtt inbox full, drop topic=%s", in.Topic)
		self.metrics.Inbound("overflow")
	}
}

// runs on paho goroutine
func (self *Manager) onConnectionLost(c mqtt.Client, err error) {
	self.log.Errorf("mqtt connection lost err=%v", err)
	self.mu.Lock()
	self.session.BrokerConnected = false
	self.mu.Unlock()
	self.metrics.BrokerConnected(false)
}
