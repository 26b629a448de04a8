package link

import (
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWpa struct {
	calls     []string
	responses map[string]string
	err       error
}

func (f *fakeWpa) run(name string, args ...string) ([]byte, error) {
	call := strings.Join(args, " ")
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	// args[0:2] is "-i wlan0"
	if r, ok := f.responses[args[2]]; ok {
		return []byte(r + "\n"), nil
	}
	return []byte("OK\n"), nil
}

func TestDeviceID(t *testing.T) {
	t.Parallel()

	mac, err := net.ParseMAC("b8:27:eb:12:34:ab")
	require.NoError(t, err)
	assert.Equal(t, "B827EB1234AB", DeviceID(mac))
}

func TestAssociate(t *testing.T) {
	t.Parallel()

	f := &fakeWpa{responses: map[string]string{"add_network": "3"}}
	w := NewWireless("", "")
	w.Run = f.run
	require.NoError(t, w.Associate("drybox", "secret"))
	assert.Equal(t, []string{
		"-i wlan0 add_network",
		`-i wlan0 set_network 3 ssid "drybox"`,
		"-i wlan0 set_network 3 key_mgmt WPA-PSK",
		`-i wlan0 set_network 3 psk "secret"`,
		"-i wlan0 select_network 3",
	}, f.calls)

	// second attempt reuses network
	f.calls = nil
	require.NoError(t, w.Associate("drybox", "secret"))
	assert.Len(t, f.calls, 4)
}

func TestAssociateOpenNetwork(t *testing.T) {
	t.Parallel()

	f := &fakeWpa{responses: map[string]string{"add_network": "0"}}
	w := NewWireless("", "")
	w.Run = f.run
	require.NoError(t, w.Associate("cafe", ""))
	assert.Equal(t, []string{
		"-i wlan0 add_network",
		`-i wlan0 set_network 0 ssid "cafe"`,
		"-i wlan0 set_network 0 key_mgmt NONE",
		"-i wlan0 select_network 0",
	}, f.calls)
}

func TestAssociateFail(t *testing.T) {
	t.Parallel()

	f := &fakeWpa{responses: map[string]string{"add_network": "0", "set_network": "FAIL"}}
	w := NewWireless("wlan1", "")
	w.Run = f.run
	err := w.Associate("x", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAIL")

	w = NewWireless("wlan1", "")
	w.Run = (&fakeWpa{err: fmt.Errorf("exec: not found")}).run
	assert.Error(t, w.Associate("x", "y"))
}

func TestIsAssociated(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status string
		expect bool
	}{
		{"bssid=aa:bb:cc:dd:ee:ff\nssid=drybox\nwpa_state=COMPLETED\nip_address=192.168.1.7", true},
		{"wpa_state=COMPLETED", false},
		{"wpa_state=SCANNING\nip_address=192.168.1.7", false},
		{"", false},
	}
	for i, c := range cases {
		c := c
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			w := NewWireless("", "")
			w.Run = (&fakeWpa{responses: map[string]string{"status": c.status}}).run
			ok, err := w.IsAssociated()
			require.NoError(t, err)
			assert.Equal(t, c.expect, ok)
		})
	}
}

func TestHardwareAddr(t *testing.T) {
	t.Parallel()

	dir, err := ioutil.TempDir("", "drybox-sysfs")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "wlan0"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "wlan0", "address"), []byte("b8:27:eb:00:00:01\n"), 0644))

	w := NewWireless("wlan0", "")
	w.SysfsNet = dir
	mac, err := w.HardwareAddr()
	require.NoError(t, err)
	assert.Equal(t, "B827EB000001", DeviceID(mac))

	w.Interface = "eth9"
	_, err = w.HardwareAddr()
	assert.Error(t, err)
}

func TestMock(t *testing.T) {
	t.Parallel()

	m := NewMock("b8:27:eb:00:00:01", 1)
	ok, _ := m.IsAssociated()
	assert.False(t, ok, "not associated before Associate")
	require.NoError(t, m.Associate("s", "p"))
	ok, _ = m.IsAssociated()
	assert.True(t, ok)
}
