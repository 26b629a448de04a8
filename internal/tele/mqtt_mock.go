package tele

import (
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

type MqttMock struct {
	sync.Mutex
	Opt        *mqtt.ClientOptions
	Pub        chan MockMsg
	ConnectErr error
	SubErr     error
	PubErr     error
	connected  bool
	subs       []MockSub
}
type MockSub struct {
	Pattern string
	Qos     byte
	Handler mqtt.MessageHandler
}

var _ mqtt.Client = &MqttMock{}

func NewMqttMock() *MqttMock {
	return &MqttMock{
		Pub:  make(chan MockMsg, 32),
		subs: make([]MockSub, 0, 16),
	}
}

// Factory plugs mock into Options.NewClient.
func (self *MqttMock) Factory(opt *mqtt.ClientOptions) Client {
	self.Lock()
	self.Opt = opt
	self.Unlock()
	return self
}

// TestPublish delivers message to matching subscription handler.
func (self *MqttMock) TestPublish(t testing.TB, topic string, payload []byte) {
	self.Lock()
	subs := append([]MockSub(nil), self.subs...)
	self.Unlock()
	for _, sub := range subs {
		if topic == sub.Pattern {
			msg := MockMsg{T: topic, P: payload}
			if sub.Qos > 0 {
				msg.acked = make(chan struct{})
			}
			sub.Handler(self, msg)
			if sub.Qos > 0 {
				select {
				case <-msg.acked:
				default:
					t.Errorf("message='%s' handled without Ack()", string(payload))
				}
			}
			return
		}
	}
	t.Errorf("not subscribed for topic=%s", topic)
}

// Drop simulates broker connection loss.
func (self *MqttMock) Drop(err error) {
	self.Lock()
	self.connected = false
	opt := self.Opt
	self.Unlock()
	if opt != nil && opt.OnConnectionLost != nil {
		opt.OnConnectionLost(self, err)
	}
}

func (self *MqttMock) Disconnect(uint) {
	self.Lock()
	self.connected = false
	self.Unlock()
}
func (self *MqttMock) IsConnected() bool {
	self.Lock()
	defer self.Unlock()
	return self.connected
}
func (self *MqttMock) IsConnectionOpen() bool { return self.IsConnected() }

func (self *MqttMock) Connect() mqtt.Token {
	self.Lock()
	defer self.Unlock()
	if self.ConnectErr == nil {
		self.connected = true
	}
	return mockToken{self.ConnectErr}
}

func (self *MqttMock) Publish(topic string, qos byte, retain bool, payload interface{}) mqtt.Token {
	self.Lock()
	err := self.PubErr
	self.Unlock()
	if err != nil {
		return mockToken{err}
	}
	b, _ := payload.([]byte)
	self.Pub <- MockMsg{T: topic, P: b, Q: qos}
	return mockToken{nil}
}

func (self *MqttMock) Subscribe(pattern string, qos byte, handler mqtt.MessageHandler) mqtt.Token {
	self.Lock()
	defer self.Unlock()
	if self.SubErr != nil {
		return mockToken{self.SubErr}
	}
	self.subs = append(self.subs, MockSub{pattern, qos, handler})
	return mockToken{nil}
}

func (self *MqttMock) AddRoute(string, mqtt.MessageHandler) { panic("not implemented") }

func (self *MqttMock) OptionsReader() mqtt.ClientOptionsReader {
	panic("not implemented")
}

func (self *MqttMock) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}
func (self *MqttMock) Unsubscribe(...string) mqtt.Token { panic("not implemented") }

type mockToken struct{ error }

func (tok mockToken) Error() error { return tok.error }
func (tok mockToken) Wait() bool   { return !errors.IsTimeout(tok.error) }
func (tok mockToken) WaitTimeout(time.Duration) bool {
	return !errors.IsTimeout(tok.error)
}

type MockMsg struct {
	T     string
	P     []byte
	Q     byte
	acked chan struct{}
}

func (msg MockMsg) Ack() {
	if msg.acked != nil {
		close(msg.acked)
	}
}

func (msg MockMsg) Duplicate() bool   { return false }
func (msg MockMsg) MessageID() uint16 { return 0 }
func (msg MockMsg) Payload() []byte   { return msg.P }
func (msg MockMsg) Qos() byte         { return msg.Q }
func (msg MockMsg) Retained() bool    { return false }
func (msg MockMsg) Topic() string     { return msg.T }
