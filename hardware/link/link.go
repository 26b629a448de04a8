// Package link manages wireless station association.
package link

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"net"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

const (
	DefaultInterface = "wlan0"
	DefaultWpaCli    = "wpa_cli"
	DefaultSysfsNet  = "/sys/class/net"
)

type Linker interface {
	// Associate starts connecting, returns without waiting for result.
	Associate(ssid, password string) error
	IsAssociated() (bool, error)
	HardwareAddr() (net.HardwareAddr, error)
}

// DeviceID formats link-layer address as uppercase hex without separators.
func DeviceID(mac net.HardwareAddr) string {
	return strings.ToUpper(hex.EncodeToString(mac))
}

type Runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output() //nolint:gosec
}

// Wireless talks to wpa_supplicant via wpa_cli and reads sysfs.
type Wireless struct {
	Interface string
	WpaCli    string
	SysfsNet  string
	Run       Runner

	network int // -1 until added
}

func NewWireless(iface, wpaCli string) *Wireless {
	if iface == "" {
		iface = DefaultInterface
	}
	if wpaCli == "" {
		wpaCli = DefaultWpaCli
	}
	return &Wireless{
		Interface: iface,
		WpaCli:    wpaCli,
		SysfsNet:  DefaultSysfsNet,
		Run:       execRunner,
		network:   -1,
	}
}

func (self *Wireless) String() string { return fmt.Sprintf("wireless(%s)", self.Interface) }

func (self *Wireless) wpa(args ...string) (string, error) {
	full := append([]string{"-i", self.Interface}, args...)
	out, err := self.Run(self.WpaCli, full...)
	if err != nil {
		return "", errors.Annotatef(err, "%s %s", self.WpaCli, args[0])
	}
	return strings.TrimSpace(string(out)), nil
}

func (self *Wireless) wpaOK(args ...string) error {
	out, err := self.wpa(args...)
	if err != nil {
		return err
	}
	if out != "OK" {
		return errors.Errorf("%s %s response=%q", self.WpaCli, args[0], out)
	}
	return nil
}

func (self *Wireless) Associate(ssid, password string) error {
	if self.network < 0 {
		out, err := self.wpa("add_network")
		if err != nil {
			return err
		}
		id, err := strconv.Atoi(out)
		if err != nil {
			return errors.Annotatef(err, "add_network response=%q", out)
		}
		self.network = id
	}
	id := strconv.Itoa(self.network)
	steps := [][]string{{"set_network", id, "ssid", strconv.Quote(ssid)}}
	// empty password is open network, psk would be rejected
	if password == "" {
		steps = append(steps, []string{"set_network", id, "key_mgmt", "NONE"})
	} else {
		steps = append(steps,
			[]string{"set_network", id, "key_mgmt", "WPA-PSK"},
			[]string{"set_network", id, "psk", strconv.Quote(password)})
	}
	steps = append(steps, []string{"select_network", id})
	for _, step := range steps {
		if err := self.wpaOK(step...); err != nil {
			return errors.Annotatef(err, "%s associate ssid=%s", self.String(), ssid)
		}
	}
	return nil
}

// IsAssociated is true when supplicant completed handshake and address is assigned.
func (self *Wireless) IsAssociated() (bool, error) {
	out, err := self.wpa("status")
	if err != nil {
		return false, err
	}
	st := parseStatus(out)
	return st["wpa_state"] == "COMPLETED" && st["ip_address"] != "", nil
}

func (self *Wireless) HardwareAddr() (net.HardwareAddr, error) {
	path := filepath.Join(self.SysfsNet, self.Interface, "address")
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	mac, err := net.ParseMAC(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, errors.Annotatef(err, "parse %s", path)
	}
	return mac, nil
}

func parseStatus(s string) map[string]string {
	m := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader([]byte(s)))
	for sc.Scan() {
		kv := strings.SplitN(sc.Text(), "=", 2)
		if len(kv) == 2 {
			m[kv[0]] = kv[1]
		}
	}
	return m
}
