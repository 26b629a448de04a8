// Package i2c talks to Linux /dev/i2c-N with combined read/write ioctl.
package i2c

// Thanks to
// https://github.com/kidoman/embd and https://bitbucket.org/gmcbay/i2c

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"github.com/juju/errors"
)

const (
	// as defined in /usr/include/linux/i2c-dev.h
	I2C_RDWR = 0x0707 /* Combined R/W transfer (one STOP only) */

	// i2c_msg flags
	// as defined in /usr/include/linux/i2c.h
	I2C_M_RD = 0x0001 /* read data, from slave to master */
)

type i2c_msg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2c_rdwr_ioctl_data struct {
	msgs uintptr
	nmsg uint32
}

// Writer is the only bus capability a write-only peripheral
// like PCF8574 display backpack needs.
type Writer interface {
	Write(addr byte, bw []byte) error
}

// I2CBus interface is used to interact with the I2C bus.
type I2CBus interface {
	Writer
	Init() error
	Close() error
	Tx(addr byte, bw []byte, br []byte) error
}

type i2cBus struct {
	busNo       byte
	file        *os.File
	lk          sync.Mutex
	initialized bool
}

func NewI2CBus(busNo byte) I2CBus {
	return &i2cBus{busNo: busNo}
}

func (b *i2cBus) String() string { return fmt.Sprintf("/dev/i2c-%d", b.busNo) }

func (b *i2cBus) Init() error {
	b.lk.Lock()
	defer b.lk.Unlock()
	return b.init()
}

func (b *i2cBus) init() error {
	if b.initialized {
		return nil
	}

	var err error
	if b.file, err = os.OpenFile(b.String(), os.O_RDWR, os.ModeExclusive); err != nil {
		return errors.Annotatef(err, "i2c open %s", b.String())
	}
	b.initialized = true

	return nil
}

func (b *i2cBus) Write(addr byte, bw []byte) error {
	return b.Tx(addr, bw, nil)
}

func (b *i2cBus) Tx(addr byte, bw []byte, br []byte) error {
	b.lk.Lock()
	defer b.lk.Unlock()

	if err := b.init(); err != nil {
		return err
	}

	nmsg := uint32(0)
	msgs := [2]i2c_msg{}
	if len(bw) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: uint16(addr), flags: 0,
			buf: uintptr(unsafe.Pointer(&bw[0])), len: uint16(len(bw)),
		}
		nmsg++
	}
	if len(br) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: uint16(addr), flags: I2C_M_RD,
			buf: uintptr(unsafe.Pointer(&br[0])), len: uint16(len(br)),
		}
		nmsg++
	}
	if nmsg == 0 {
		return errors.Errorf("i2cBus.Tx both bw=br=empty nothing to do")
	}

	rdwr_data := i2c_rdwr_ioctl_data{
		msgs: uintptr(unsafe.Pointer(&msgs[0])),
		nmsg: nmsg,
	}
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL,
		uintptr(b.file.Fd()), uintptr(I2C_RDWR), uintptr(unsafe.Pointer(&rdwr_data)))
	if errno != 0 {
		return errors.Annotatef(syscall.Errno(errno), "i2c tx %s addr=%#02x", b.String(), addr)
	}
	return nil
}

func (b *i2cBus) Close() error {
	b.lk.Lock()
	defer b.lk.Unlock()

	if !b.initialized {
		return nil
	}
	b.initialized = false
	return b.file.Close()
}
