// Package tele keeps device online: wireless association, MQTT session,
// reading publish and remote configuration messages.
//
// Contract:
//   - LinkUp retries association forever, only ctx cancel stops it
//   - Connect failure of any kind is RestartError, no in-process retry
//   - inbound messages are queued by MQTT client goroutines and
//     processed by caller via Poll+Handle on its own goroutine
//   - PublishReading is fire once, errors are returned not retried
package tele

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/drybox/hardware/link"
	"github.com/temoto/drybox/helpers"
	"github.com/temoto/drybox/internal/metrics"
	"github.com/temoto/drybox/internal/settings"
	"github.com/temoto/drybox/log2"
)

const (
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultReassociateEvery = 100
	DefaultNetworkTimeout   = 10 * time.Second
	DefaultScreenDelay      = 2 * time.Second
	DefaultInboxSize        = 16
	DefaultBrokerPort       = "1883"
)

type Display interface {
	SetLines(line1, line2 string) error
}

type Options struct {
	Log      *log2.Log
	Link     link.Linker
	Display  Display // optional
	Settings *settings.Store
	Metrics  *metrics.Metrics // optional
	// nil means paho client
	NewClient ClientFactory

	PollInterval     time.Duration
	ReassociateEvery int
	NetworkTimeout   time.Duration
	ScreenDelay      time.Duration
	InboxSize        int
	Sleep            helpers.SleepFunc
	Now              func() time.Time
}

type Session struct {
	Associated      bool
	BrokerConnected bool
	Subscribed      []string
}

func (s Session) String() string {
	return fmt.Sprintf("associated=%t broker=%t subscribed=[%s]",
		s.Associated, s.BrokerConnected, strings.Join(s.Subscribed, ","))
}

type Inbound struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

type Action uint8

const (
	ActionNone Action = iota
	ActionRestart
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRestart:
		return "restart"
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// RestartError means device must restart to recover.
type RestartError struct{ Err error }

func (e RestartError) Error() string { return "restart required: " + e.Err.Error() }

func IsRestart(err error) bool {
	if err == nil {
		return false
	}
	_, ok := errors.Cause(err).(RestartError)
	return ok
}

type Manager struct {
	opt      Options
	log      *log2.Log
	settings *settings.Store
	metrics  *metrics.Metrics
	inbox    chan Inbound

	mu       sync.Mutex
	client   Client
	session  Session
	deviceID string
}

func NewManager(opt Options) *Manager {
	if opt.Settings == nil {
		panic("code error tele.Options.Settings=nil")
	}
	if opt.NewClient == nil {
		opt.NewClient = NewPahoClient
	}
	if opt.PollInterval == 0 {
		opt.PollInterval = DefaultPollInterval
	}
	if opt.ReassociateEvery == 0 {
		opt.ReassociateEvery = DefaultReassociateEvery
	}
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.ScreenDelay == 0 {
		opt.ScreenDelay = DefaultScreenDelay
	}
	if opt.InboxSize == 0 {
		opt.InboxSize = DefaultInboxSize
	}
	if opt.Sleep == nil {
		opt.Sleep = helpers.SleepContext
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Manager{
		opt:      opt,
		log:      opt.Log,
		settings: opt.Settings,
		metrics:  opt.Metrics,
		inbox:    make(chan Inbound, opt.InboxSize),
	}
}

func (self *Manager) Session() Session {
	self.mu.Lock()
	defer self.mu.Unlock()
	s := self.session
	s.Subscribed = append([]string(nil), self.session.Subscribed...)
	return s
}

// DeviceID is link-layer identity, empty before LinkUp.
func (self *Manager) DeviceID() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.deviceID
}

// Poll returns next queued inbound message without blocking.
func (self *Manager) Poll() (Inbound, bool) {
	select {
	case msg := <-self.inbox:
		return msg, true
	default:
		return Inbound{}, false
	}
}

func (self *Manager) Close() {
	self.mu.Lock()
	client := self.client
	self.client = nil
	self.session = Session{Associated: self.session.Associated}
	self.mu.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
	self.metrics.BrokerConnected(false)
}

func (self *Manager) show(l1, l2 string) {
	if self.opt.Display == nil {
		return
	}
	if err := self.opt.Display.SetLines(l1, l2); err != nil {
		self.log.Error(errors.Annotate(err, "tele display"))
	}
}
