// Package text_display keeps two lines of text and pushes them to character display.
// Lines longer than width scroll when Run is active.
package text_display

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/paulrosania/go-charset/charset"
	_ "github.com/paulrosania/go-charset/data"
	"github.com/temoto/alive/v2"
	"github.com/temoto/drybox/log2"
)

const MaxWidth = 40

// HD44780 ROM A00 degree sign
const DegreeByte byte = 0xdf

var spaceBytes = bytes.Repeat([]byte{' '}, MaxWidth)

type TextDisplay struct { //nolint:maligned
	alive *alive.Alive
	mu    sync.Mutex
	dev   Devicer
	log   *log2.Log
	tr    atomic.Value
	width uint32
	state State

	tickd time.Duration
	tick  uint32
	upd   chan<- State
}

type TextDisplayConfig struct {
	Codepage    string
	ScrollDelay time.Duration
	Width       uint32
	Log         *log2.Log
}

type Devicer interface {
	Clear() error
	MoveTo(col, row int) error
	Write(b []byte) error
}

func NewTextDisplay(opt *TextDisplayConfig) (*TextDisplay, error) {
	if opt == nil {
		opt = &TextDisplayConfig{Width: 16}
	}
	if opt.Width == 0 || opt.Width > MaxWidth {
		return nil, errors.NotValidf("display width=%d", opt.Width)
	}
	self := &TextDisplay{
		alive: alive.NewAlive(),
		log:   opt.Log,
		tickd: opt.ScrollDelay,
		width: opt.Width,
	}

	if opt.Codepage != "" {
		if err := self.SetCodepage(opt.Codepage); err != nil {
			return nil, errors.Annotatef(err, "codepage=%s", opt.Codepage)
		}
	}

	return self, nil
}

func (self *TextDisplay) SetCodepage(cp string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	tr, err := charset.TranslatorTo(cp)
	if err != nil {
		return err
	}
	self.tr.Store(tr)
	return nil
}
func (self *TextDisplay) SetDevice(dev Devicer) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.dev = dev
}

func (self *TextDisplay) Width() uint32 { return atomic.LoadUint32(&self.width) }

func (self *TextDisplay) Clear() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.state.Clear()
	if self.dev != nil {
		if err := self.dev.Clear(); err != nil {
			return errors.Annotate(err, "display clear")
		}
	}
	return self.flush()
}

// Message shows s1,s2 while wait() runs then restores previous lines.
func (self *TextDisplay) Message(s1, s2 string, wait func()) error {
	next := State{
		L1: self.Translate(s1),
		L2: self.Translate(s2),
	}

	self.mu.Lock()
	prev := self.state
	self.state = next
	err := self.flush()
	self.mu.Unlock()

	wait()

	self.mu.Lock()
	self.state = prev
	err2 := self.flush()
	self.mu.Unlock()
	if err != nil {
		return err
	}
	return err2
}

// nil: don't change
// len=0: set empty
func (self *TextDisplay) SetLinesBytes(b1, b2 []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	if b1 != nil {
		self.state.L1 = b1
	}
	if b2 != nil {
		self.state.L2 = b2
	}
	atomic.StoreUint32(&self.tick, 0)
	return self.flush()
}

func (self *TextDisplay) SetLines(line1, line2 string) error {
	self.log.Debugf("display l1=%q l2=%q", line1, line2)
	return self.SetLinesBytes(
		self.Translate(line1),
		self.Translate(line2))
}

// SetText splits s at first newline, missing second line is empty.
func (self *TextDisplay) SetText(s string) error {
	l1, l2 := s, ""
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		l1, l2 = s[:i], s[i+1:]
	}
	return self.SetLines(l1, l2)
}

func (self *TextDisplay) Tick() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	atomic.AddUint32(&self.tick, 1)
	return self.flush()
}

// Run scrolls long lines until Stop. No-op with zero scroll delay.
func (self *TextDisplay) Run() {
	self.mu.Lock()
	delay := self.tickd
	self.mu.Unlock()
	if delay == 0 {
		return
	}
	tmr := time.NewTicker(delay)
	defer tmr.Stop()
	stopch := self.alive.StopChan()

	for self.alive.IsRunning() {
		select {
		case <-tmr.C:
			if err := self.Tick(); err != nil {
				self.log.Error(errors.Annotate(err, "display scroll"))
			}
		case <-stopch:
			return
		}
	}
}

func (self *TextDisplay) Stop() { self.alive.Stop() }

// sometimes returns slice into shared spaceBytes
// sometimes returns `b` (len>=width-1)
// sometimes allocates new buffer
func (self *TextDisplay) JustCenter(b []byte) []byte {
	l := len(b)
	w := int(atomic.LoadUint32(&self.width))

	if l == 0 {
		return spaceBytes[:w]
	}
	if l >= w-1 {
		return b
	}
	padtotal := w - l
	n := padtotal / 2
	padleft := spaceBytes[:n]
	padright := spaceBytes[:n+padtotal%2]
	buf := make([]byte, 0, w)
	buf = append(append(append(buf, padleft...), b...), padright...)
	return buf
}

func (self *TextDisplay) PadRight(b []byte) []byte {
	return PadSpace(b, atomic.LoadUint32(&self.width))
}

// Translate converts UTF-8 into display bytes.
// Degree sign always maps to display ROM glyph, the rest goes
// through codepage translator when configured.
// Trailing \x00 disables padding.
func (self *TextDisplay) Translate(s string) []byte {
	if len(s) == 0 {
		return spaceBytes[:0]
	}

	pad := true
	if s[len(s)-1] == '\x00' {
		pad = false
		s = s[:len(s)-1]
	}

	parts := strings.Split(s, "°")
	result := make([]byte, 0, len(s))
	for i, part := range parts {
		if i > 0 {
			result = append(result, DegreeByte)
		}
		result = append(result, self.translateSegment(part)...)
	}

	if pad {
		result = self.PadRight(result)
	}
	return result
}

func (self *TextDisplay) translateSegment(s string) []byte {
	b := []byte(s)
	tr, ok := self.tr.Load().(charset.Translator)
	if !ok || tr == nil || len(b) == 0 {
		return b
	}
	_, tb, err := tr.Translate(b, true)
	if err != nil {
		self.log.Errorf("display translate s=%q err=%v", s, err)
		return b
	}
	// translator reuses single internal buffer, make a copy
	return append([]byte(nil), tb...)
}

func (self *TextDisplay) SetUpdateChan(ch chan<- State) {
	self.upd = ch
}

func (self *TextDisplay) State() State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.state.Copy()
}

func (self *TextDisplay) flush() error {
	var buf1 [MaxWidth]byte
	var buf2 [MaxWidth]byte
	b1 := buf1[:self.width]
	b2 := buf2[:self.width]
	tick := atomic.LoadUint32(&self.tick)
	n1 := scrollWrap(b1, self.state.L1, tick)
	n2 := scrollWrap(b2, self.state.L2, tick)

	var err error
	if self.dev != nil {
		// rewrite without clear, looks smoother
		err = self.writeLine(0, b1, n1)
		if err == nil {
			err = self.writeLine(1, b2, n2)
		}
	}

	if self.upd != nil {
		self.upd <- self.state.Copy()
	}
	return err
}

func (self *TextDisplay) writeLine(row int, b []byte, n uint32) error {
	if n < self.width {
		copy(b[n:], spaceBytes)
	}
	if err := self.dev.MoveTo(0, row); err != nil {
		return errors.Annotatef(err, "display row=%d", row)
	}
	return errors.Annotatef(self.dev.Write(b[:self.width]), "display row=%d", row)
}

type State struct {
	L1, L2 []byte
}

func (s *State) Clear() {
	s.L1 = nil
	s.L2 = nil
}

func (s State) Copy() State {
	return State{
		L1: append([]byte(nil), s.L1...),
		L2: append([]byte(nil), s.L2...),
	}
}

func (s State) Format(width uint32) string {
	return fmt.Sprintf("%s\n%s",
		PadSpace(s.L1, width),
		PadSpace(s.L2, width),
	)
}

func (s State) String() string {
	return fmt.Sprintf("%s\n%s", s.L1, s.L2)
}

func PadSpace(b []byte, width uint32) []byte {
	l := uint32(len(b))

	if l == 0 {
		return spaceBytes[:width]
	}
	if l >= width {
		return b
	}
	buf := make([]byte, 0, width)
	buf = append(append(buf, b...), spaceBytes[:width-l]...)
	return buf
}

// relies that len(buf) == display width
func scrollWrap(buf []byte, content []byte, tick uint32) uint32 {
	length := uint32(len(content))
	width := uint32(len(buf))
	gap := width / 2
	n := 0
	if length <= width {
		n = copy(buf, content)
		copy(buf[n:], spaceBytes)
		return uint32(n)
	}

	offset := tick % (length + gap)
	if offset < length {
		n = copy(buf, content[offset:])
	} else {
		gap = gap - (offset - length)
	}
	n += copy(buf[n:], spaceBytes[:gap])
	n += copy(buf[n:], content[0:])
	return uint32(n)
}
