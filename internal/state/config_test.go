package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/drybox/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     map[string]string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", map[string]string{"main": ""}, func(t testing.TB, c *Config) {
			assert.Equal(t, DefaultBaseInterval, c.BaseInterval())
			assert.Equal(t, DefaultPollInterval, c.PollInterval())
			assert.Equal(t, DefaultRestartPause, c.RestartPause())
			assert.False(t, c.Hardware.LCD.Enable)
		}, ""},

		{"hardware", map[string]string{"main": `
hardware {
	i2c_bus = 2
	lcd { enable = true address = 0x3f columns = 20 rows = 4 }
	sensor { driver = "bme280" i2c_bus = "1" address = 0x77 }
	alarm { pin_chip = "/dev/gpiochip1" buzzer_pin = 5 led_pin = 6 }
	link { interface = "wlan1" }
}`}, func(t testing.TB, c *Config) {
			assert.Equal(t, 2, c.Hardware.I2CBus)
			assert.True(t, c.Hardware.LCD.Enable)
			assert.Equal(t, 0x3f, c.Hardware.LCD.Address)
			assert.Equal(t, 20, c.Hardware.LCD.Columns)
			assert.Equal(t, 4, c.Hardware.LCD.Rows)
			assert.Equal(t, "bme280", c.Hardware.Sensor.Driver)
			assert.Equal(t, "1", c.Hardware.Sensor.I2CBus)
			assert.Equal(t, 0x77, c.Hardware.Sensor.Address)
			assert.Equal(t, "/dev/gpiochip1", c.Hardware.Alarm.PinChip)
			assert.Equal(t, 5, c.Hardware.Alarm.BuzzerPin)
			assert.Equal(t, 6, c.Hardware.Alarm.LEDPin)
			assert.Equal(t, "wlan1", c.Hardware.Link.Interface)
		}, ""},

		{"loop", map[string]string{"main": `loop { base_interval_ms = 50 poll_interval_ms = 10 restart_pause_sec = 7 }`},
			func(t testing.TB, c *Config) {
				assert.Equal(t, 50*time.Millisecond, c.BaseInterval())
				assert.Equal(t, 10*time.Millisecond, c.PollInterval())
				assert.Equal(t, 7*time.Second, c.RestartPause())
			}, ""},

		{"include-override", map[string]string{
			"main":  `persist { root = "/a" } include "local" {}`,
			"local": `persist { root = "/b" } log_debug = true`,
		}, func(t testing.TB, c *Config) {
			assert.Equal(t, "/b", c.Persist.Root)
			assert.True(t, c.LogDebug)
		}, ""},

		{"include-optional", map[string]string{
			"main": `restart { mode = "exit" } include "missing" { optional = true }`,
		}, func(t testing.TB, c *Config) {
			assert.Equal(t, RestartModeExit, c.Restart.Mode)
		}, ""},

		{"include-required", map[string]string{"main": `include "missing" {}`},
			nil, "config required name=missing"},

		{"include-loop", map[string]string{
			"main":  `include "other" {}`,
			"other": `include "main" {}`,
		}, nil, "include loop"},

		{"syntax", map[string]string{"main": `hardware {`}, nil, "config unmarshal source=main"},

		{"restart-mode", map[string]string{"main": `restart { mode = "halt" }`}, nil, "restart.mode"},

		{"alarm-same-pin", map[string]string{"main": `hardware { alarm { pin_chip = "x" buzzer_pin = 3 led_pin = 3 } }`},
			nil, "buzzer_pin=led_pin=3"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(c.input)
			config, err := ReadConfig(log, fs, "main")
			if c.expectErr == "" {
				require.NoError(t, err)
				c.check(t, config)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
			}
		})
	}
}

func TestBundledConfig(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	config, err := ReadConfig(log, NewOsFullReader(), "../../drybox.hcl")
	require.NoError(t, err)
	assert.True(t, config.Hardware.LCD.Enable)
	assert.Equal(t, DefaultLCDAddress, config.Hardware.LCD.Address)
	assert.Equal(t, "iio", config.Hardware.Sensor.Driver)
	assert.Equal(t, "wlan0", config.Hardware.Link.Interface)
	assert.Equal(t, RestartModeReboot, config.Restart.Mode)
	assert.Equal(t, 2*time.Second, config.BaseInterval())
	assert.Equal(t, "", config.Metrics.Listen)
}
