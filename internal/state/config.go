package state

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/drybox/helpers"
	"github.com/temoto/drybox/log2"
)

const (
	RestartModeExit   = "exit"
	RestartModeReboot = "reboot"

	DefaultBaseInterval = 2 * time.Second
	DefaultPollInterval = 1 * time.Second
	DefaultRestartPause = 2 * time.Second
	DefaultPersistRoot  = "./tmp-drybox-db"
	DefaultLCDAddress   = 0x27
)

// Config is local service configuration, never changed remotely.
// Remote tunable values live in settings.
type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Hardware struct {
		I2CBus int `hcl:"i2c_bus"`
		LCD    struct {
			Enable      bool   `hcl:"enable"`
			Address     int    `hcl:"address"`
			Rows        int    `hcl:"rows"`
			Columns     int    `hcl:"columns"`
			Codepage    string `hcl:"codepage"`
			ScrollDelay int    `hcl:"scroll_delay"`
		} `hcl:"lcd"`
		Sensor struct {
			Driver   string `hcl:"driver"`
			IIODir   string `hcl:"iio_dir"`
			I2CBus   string `hcl:"i2c_bus"`
			Address  int    `hcl:"address"`
			Attempts int    `hcl:"attempts"`
		} `hcl:"sensor"`
		Alarm struct {
			PinChip   string `hcl:"pin_chip"`
			BuzzerPin int    `hcl:"buzzer_pin"`
			LEDPin    int    `hcl:"led_pin"`
		} `hcl:"alarm"`
		Link struct {
			Driver    string `hcl:"driver"`
			Interface string `hcl:"interface"`
			WpaCli    string `hcl:"wpa_cli"`
			MockMAC   string `hcl:"mock_mac"`
		} `hcl:"link"`
	} `hcl:"hardware"`

	Persist struct {
		Root string `hcl:"root"`
	} `hcl:"persist"`

	Loop struct {
		BaseIntervalMs  int `hcl:"base_interval_ms"`
		PollIntervalMs  int `hcl:"poll_interval_ms"`
		RestartPauseSec int `hcl:"restart_pause_sec"`
	} `hcl:"loop"`

	Restart struct {
		Mode string `hcl:"mode"`
	} `hcl:"restart"`

	Metrics struct {
		Listen string `hcl:"listen"`
	} `hcl:"metrics"`

	LogDebug bool `hcl:"log_debug"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) BaseInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.Loop.BaseIntervalMs, DefaultBaseInterval)
}
func (c *Config) PollInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.Loop.PollIntervalMs, DefaultPollInterval)
}
func (c *Config) RestartPause() time.Duration {
	return helpers.IntSecondDefault(c.Loop.RestartPauseSec, DefaultRestartPause)
}

// Validate checks values that would otherwise fail late on hardware access.
func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	switch c.Restart.Mode {
	case "", RestartModeExit, RestartModeReboot:
	default:
		errs = append(errs, errors.NotValidf("config: restart.mode=%q valid: exit, reboot", c.Restart.Mode))
	}
	if c.Loop.BaseIntervalMs < 0 || c.Loop.PollIntervalMs < 0 || c.Loop.RestartPauseSec < 0 {
		errs = append(errs, errors.NotValidf("config: negative loop interval"))
	}
	if lcd := c.Hardware.LCD; lcd.Enable && (lcd.Address < 0 || lcd.Address > 0x7f) {
		errs = append(errs, errors.NotValidf("config: hardware.lcd.address=0x%02x", lcd.Address))
	}
	if a := c.Hardware.Alarm; a.PinChip != "" && a.BuzzerPin == a.LEDPin {
		errs = append(errs, errors.NotValidf("config: hardware.alarm buzzer_pin=led_pin=%d", a.BuzzerPin))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) String() string {
	return fmt.Sprintf("persist=%s restart=%s lcd=%t sensor=%s link=%s metrics=%s",
		c.Persist.Root, c.Restart.Mode, c.Hardware.LCD.Enable, c.Hardware.Sensor.Driver,
		c.Hardware.Link.Driver, c.Metrics.Listen)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.New("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		errs = append(errs, c.Validate())
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
