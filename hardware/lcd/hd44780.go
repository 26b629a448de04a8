// Package lcd drives HD44780 character display behind PCF8574 I2C backpack.
// Controller runs in 4-bit mode, every byte goes as two nibbles.
//
// PCF8574 pin mapping:
// P0=RS P1=RW P2=E P3=backlight P4..P7=D4..D7
package lcd

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/drybox/hardware/i2c"
)

const (
	maskRS         byte = 0x01
	maskRW         byte = 0x02
	maskE          byte = 0x04
	shiftBacklight      = 3
	shiftData           = 4
)

const DefaultAddress byte = 0x27

type Command byte

const (
	CommandClear     Command = 0x01
	CommandHome      Command = 0x02
	CommandEntryMode Command = 0x04
	CommandControl   Command = 0x08
	CommandShift     Command = 0x10
	CommandFunction  Command = 0x20
	CommandCGRAM     Command = 0x40
	CommandAddress   Command = 0x80

	// power-on reset nibble, datasheet figure 24
	CommandFunctionReset Command = 0x30
)

const (
	EntryIncrement Command = 0x02
	EntryShift     Command = 0x01

	Function8Bit   Command = 0x10
	Function2Lines Command = 0x08
	Function5x10   Command = 0x04
)

type Control byte

const (
	ControlOn         Control = 0x04
	ControlUnderscore Control = 0x02
	ControlBlink      Control = 0x01
)

// Commands up to CommandHome take 1.52ms on controller, others 37us.
const (
	slowCommandMax   = 3
	slowCommandDelay = 5 * time.Millisecond
)

type LCD struct {
	bus       i2c.Writer
	addr      byte
	rows      int
	cols      int
	backlight bool
	control   Control

	cursorX        int
	cursorY        int
	impliedNewline bool

	sleep func(time.Duration)
}

type Option func(*LCD)

// WithSleep replaces time.Sleep, tests use it to record delays.
func WithSleep(f func(time.Duration)) Option {
	return func(self *LCD) { self.sleep = f }
}

// New runs power-on init sequence and generic display setup.
// Any bus error is returned as is, display is unusable then.
func New(bus i2c.Writer, addr byte, rows, cols int, opts ...Option) (*LCD, error) {
	if !(rows >= 1 && rows <= 4) {
		return nil, errors.NotValidf("lcd rows=%d", rows)
	}
	if !(cols >= 1 && cols <= 40) {
		return nil, errors.NotValidf("lcd cols=%d", cols)
	}
	self := &LCD{
		bus:   bus,
		addr:  addr,
		rows:  rows,
		cols:  cols,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(self)
	}
	if err := self.init4(); err != nil {
		return nil, errors.Annotatef(err, "lcd init %s", self.String())
	}
	return self, nil
}

func (self *LCD) String() string {
	return fmt.Sprintf("LCD(addr=0x%02x rows=%d cols=%d)", self.addr, self.rows, self.cols)
}

func (self *LCD) Rows() int    { return self.rows }
func (self *LCD) Columns() int { return self.cols }

func (self *LCD) init4() error {
	if err := self.write(0); err != nil {
		return err
	}
	self.sleep(20 * time.Millisecond)
	// special sequence, controller may be in any of 8-bit or 4-bit states
	for _, d := range []time.Duration{5 * time.Millisecond, time.Millisecond, time.Millisecond} {
		if err := self.writeInit(CommandFunctionReset); err != nil {
			return err
		}
		self.sleep(d)
	}
	if err := self.writeInit(CommandFunction); err != nil {
		return err
	}
	self.sleep(time.Millisecond)

	if err := self.setup(); err != nil {
		return err
	}
	fn := CommandFunction
	if self.rows > 1 {
		fn |= Function2Lines
	}
	return self.Command(fn)
}

// Generic part of initialization, same for any HD44780 transport.
func (self *LCD) setup() error {
	self.cursorX, self.cursorY = 0, 0
	self.impliedNewline = false
	self.backlight = true
	if err := self.DisplayOff(); err != nil {
		return err
	}
	if err := self.BacklightOn(); err != nil {
		return err
	}
	if err := self.Clear(); err != nil {
		return err
	}
	if err := self.Command(CommandEntryMode | EntryIncrement); err != nil {
		return err
	}
	if err := self.HideCursor(); err != nil {
		return err
	}
	return self.DisplayOn()
}

func (self *LCD) write(b byte) error {
	return self.bus.Write(self.addr, []byte{b})
}

// latch sets byte with enable bit then clears enable on same byte.
func (self *LCD) latch(b byte) error {
	if err := self.write(b | maskE); err != nil {
		return err
	}
	return self.write(b)
}

func (self *LCD) backlightBit() byte {
	if self.backlight {
		return 1 << shiftBacklight
	}
	return 0
}

// Init nibble goes without backlight bit, only high nibble is used.
func (self *LCD) writeInit(c Command) error {
	return self.latch(((byte(c) >> 4) & 0x0f) << shiftData)
}

func (self *LCD) send(b byte, rs byte) error {
	hi := rs | self.backlightBit() | ((b>>4)&0x0f)<<shiftData
	if err := self.latch(hi); err != nil {
		return err
	}
	lo := rs | self.backlightBit() | (b&0x0f)<<shiftData
	return self.latch(lo)
}

func (self *LCD) Command(c Command) error {
	if err := self.send(byte(c), 0); err != nil {
		return errors.Annotatef(err, "lcd command=0x%02x", byte(c))
	}
	if c <= slowCommandMax {
		self.sleep(slowCommandDelay)
	}
	return nil
}

func (self *LCD) Data(b byte) error {
	return errors.Annotatef(self.send(b, maskRS), "lcd data=0x%02x", b)
}

// BacklightOn/Off is single raw byte, outside of command/data framing.
func (self *LCD) BacklightOn() error {
	self.backlight = true
	return self.write(1 << shiftBacklight)
}

func (self *LCD) BacklightOff() error {
	self.backlight = false
	return self.write(0)
}

func (self *LCD) Backlight() bool { return self.backlight }

func (self *LCD) Clear() error {
	if err := self.Command(CommandClear); err != nil {
		return err
	}
	if err := self.Command(CommandHome); err != nil {
		return err
	}
	self.cursorX, self.cursorY = 0, 0
	return nil
}

func (self *LCD) Home() error {
	if err := self.Command(CommandHome); err != nil {
		return err
	}
	self.cursorX, self.cursorY = 0, 0
	return nil
}

func (self *LCD) Control() Control { return self.control }

func (self *LCD) SetControl(c Control) error {
	self.control = c
	return self.Command(CommandControl | Command(c))
}

func (self *LCD) DisplayOn() error  { return self.SetControl(self.control | ControlOn) }
func (self *LCD) DisplayOff() error { return self.SetControl(0) }

func (self *LCD) ShowCursor() error {
	return self.SetControl(ControlOn | ControlUnderscore)
}

func (self *LCD) HideCursor() error {
	return self.SetControl(ControlOn)
}

func (self *LCD) BlinkCursorOn() error {
	return self.SetControl(ControlOn | ControlUnderscore | ControlBlink)
}

func (self *LCD) BlinkCursorOff() error {
	return self.SetControl(ControlOn | ControlUnderscore)
}

// MoveTo sets DDRAM address, col and row are 0-based.
// Rows 2,3 of 4-line displays continue rows 0,1 after cols characters.
func (self *LCD) MoveTo(col, row int) error {
	if col < 0 || col >= self.cols || row < 0 || row >= self.rows {
		return errors.NotValidf("lcd move col=%d row=%d", col, row)
	}
	self.cursorX, self.cursorY = col, row
	addr := byte(col & 0x3f)
	if row&1 != 0 {
		addr += 0x40
	}
	if row&2 != 0 {
		addr += byte(self.cols)
	}
	return self.Command(CommandAddress | Command(addr))
}

func (self *LCD) Cursor() (col, row int) { return self.cursorX, self.cursorY }

// PutChar writes one byte at cursor, tracks cursor position and
// wraps to next line at the end of row. Newline moves to next row
// unless it comes right after implicit wrap.
func (self *LCD) PutChar(ch byte) error {
	if ch == '\n' {
		if !self.impliedNewline {
			self.cursorX = self.cols
		}
	} else {
		if err := self.Data(ch); err != nil {
			return err
		}
		self.cursorX++
	}
	self.impliedNewline = false
	if self.cursorX >= self.cols {
		self.cursorX = 0
		self.cursorY++
		self.impliedNewline = ch != '\n'
	}
	if self.cursorY >= self.rows {
		self.cursorY = 0
	}
	return self.MoveTo(self.cursorX, self.cursorY)
}

func (self *LCD) PutStr(s string) error {
	return self.Write([]byte(s))
}

// Write implements text_display.Devicer.
func (self *LCD) Write(b []byte) error {
	for _, ch := range b {
		if err := self.PutChar(ch); err != nil {
			return err
		}
	}
	return nil
}

// CustomChar loads 5x8 glyph into CGRAM location 0..7.
func (self *LCD) CustomChar(location byte, glyph [8]byte) error {
	location &= 0x7
	if err := self.Command(CommandCGRAM | Command(location<<3)); err != nil {
		return err
	}
	for _, row := range glyph {
		if err := self.Data(row); err != nil {
			return err
		}
	}
	return self.MoveTo(self.cursorX, self.cursorY)
}
