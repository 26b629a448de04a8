package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/juju/errors"
)

const (
	KeyWifiSSID        = "WIFI_SSID"
	KeyWifiPassword    = "WIFI_PASSWORD"
	KeyMqttBroker      = "MQTT_BROKER"
	KeyMqttClient      = "MQTT_CLIENT"
	KeyMqttSensorTopic = "MQTT_SENSOR_TOPIC"
	KeyMqttConfigTopic = "MQTT_CONFIG_TOPIC"
	KeyMacAddress      = "MAC_ADDRESS"
	KeyTempLimitLower  = "TEMP_LIMIT_LOWER"
	KeyTempLimitUpper  = "TEMP_LIMIT_UPPER"
	KeyTempSetting     = "TEMP_SETTING"
	KeyHumiLimitLower  = "HUMI_LIMIT_LOWER"
	KeyHumiLimitUpper  = "HUMI_LIMIT_UPPER"
	KeyHumiSetting     = "HUMI_SETTING"
	KeyDelayMeasure    = "DELAY_MEASURE"
	KeyDelayBuzzerOn   = "DELAY_BUZZER_ON"
	KeyDelayBuzzerOff  = "DELAY_BUZZER_OFF"
)

type kind uint8

const (
	kindString kind = iota
	kindFloat
	kindInt
)

// Keys lists canonical record keys in display order.
var Keys = []string{
	KeyWifiSSID,
	KeyWifiPassword,
	KeyMqttBroker,
	KeyMqttClient,
	KeyMqttSensorTopic,
	KeyMqttConfigTopic,
	KeyMacAddress,
	KeyTempLimitLower,
	KeyTempLimitUpper,
	KeyTempSetting,
	KeyHumiLimitLower,
	KeyHumiLimitUpper,
	KeyHumiSetting,
	KeyDelayMeasure,
	KeyDelayBuzzerOn,
	KeyDelayBuzzerOff,
}

var kinds = map[string]kind{
	KeyWifiSSID:        kindString,
	KeyWifiPassword:    kindString,
	KeyMqttBroker:      kindString,
	KeyMqttClient:      kindString,
	KeyMqttSensorTopic: kindString,
	KeyMqttConfigTopic: kindString,
	KeyMacAddress:      kindString,
	KeyTempLimitLower:  kindFloat,
	KeyTempLimitUpper:  kindFloat,
	KeyTempSetting:     kindFloat,
	KeyHumiLimitLower:  kindFloat,
	KeyHumiLimitUpper:  kindFloat,
	KeyHumiSetting:     kindFloat,
	KeyDelayMeasure:    kindInt,
	KeyDelayBuzzerOn:   kindInt,
	KeyDelayBuzzerOff:  kindInt,
}

func IsCanonical(key string) bool { _, ok := kinds[key]; return ok }

// IsStringKey reports whether canonical key holds JSON string value.
func IsStringKey(key string) bool { k, ok := kinds[key]; return ok && k == kindString }

// Config is typed view of the record. Value type, safe to copy.
type Config struct {
	WifiSSID        string
	WifiPassword    string
	MqttBroker      string
	MqttClient      string
	MqttSensorTopic string
	MqttConfigTopic string
	MacAddress      string

	TempLimitLower float64
	TempLimitUpper float64
	TempSetting    float64 // temperature calibration offset
	HumiLimitLower float64
	HumiLimitUpper float64
	HumiSetting    float64 // humidity calibration offset

	DelayMeasure   int // seconds
	DelayBuzzerOn  int // seconds
	DelayBuzzerOff int // seconds
}

func Defaults() map[string]interface{} {
	return map[string]interface{}{
		KeyWifiSSID:        "ssid",
		KeyWifiPassword:    "password",
		KeyMqttBroker:      "ip",
		KeyMqttClient:      "sensor_drybox",
		KeyMqttSensorTopic: "sensores/medidas",
		KeyMqttConfigTopic: "sensores/config",
		KeyMacAddress:      "FFFFFFFFFFFF",
		KeyTempLimitLower:  10.0,
		KeyTempLimitUpper:  23.0,
		KeyTempSetting:     0.0,
		KeyHumiLimitLower:  0.0,
		KeyHumiLimitUpper:  10.0,
		KeyHumiSetting:     0.0,
		KeyDelayMeasure:    20,
		KeyDelayBuzzerOn:   15,
		KeyDelayBuzzerOff:  60,
	}
}

func DefaultConfig() Config {
	c, err := Decode(Defaults())
	if err != nil {
		panic("code error settings defaults: " + err.Error())
	}
	return c
}

func (c Config) MeasureInterval() time.Duration {
	return time.Duration(c.DelayMeasure) * time.Second
}
func (c Config) BuzzerOnDelay() time.Duration {
	return time.Duration(c.DelayBuzzerOn) * time.Second
}
func (c Config) BuzzerOffDelay() time.Duration {
	return time.Duration(c.DelayBuzzerOff) * time.Second
}

func (c Config) String() string {
	return fmt.Sprintf("client=%s broker=%s temp=[%.2f..%.2f]%+.2f humi=[%.2f..%.2f]%+.2f measure=%ds buzzer_on=%ds buzzer_off=%ds",
		c.MqttClient, c.MqttBroker,
		c.TempLimitLower, c.TempLimitUpper, c.TempSetting,
		c.HumiLimitLower, c.HumiLimitUpper, c.HumiSetting,
		c.DelayMeasure, c.DelayBuzzerOn, c.DelayBuzzerOff)
}

// Banner lines for startup log.
func (c Config) Banner() []string {
	return []string{
		fmt.Sprintf("# %s = %v", KeyTempLimitLower, c.TempLimitLower),
		fmt.Sprintf("# %s = %v", KeyTempLimitUpper, c.TempLimitUpper),
		fmt.Sprintf("# %s = %v", KeyTempSetting, c.TempSetting),
		fmt.Sprintf("# %s = %v", KeyHumiLimitLower, c.HumiLimitLower),
		fmt.Sprintf("# %s = %v", KeyHumiLimitUpper, c.HumiLimitUpper),
		fmt.Sprintf("# %s = %v", KeyHumiSetting, c.HumiSetting),
		fmt.Sprintf("# %s = %d", KeyDelayMeasure, c.DelayMeasure),
		fmt.Sprintf("# %s = %d", KeyDelayBuzzerOn, c.DelayBuzzerOn),
		fmt.Sprintf("# %s = %d", KeyDelayBuzzerOff, c.DelayBuzzerOff),
	}
}

// Decode builds typed view. Every canonical key must be present
// with value of matching JSON type. Unknown keys are ignored.
func Decode(m map[string]interface{}) (Config, error) {
	var c Config
	var err error
	str := func(key string, dst *string) {
		if err != nil {
			return
		}
		*dst, err = getString(m, key)
	}
	flt := func(key string, dst *float64) {
		if err != nil {
			return
		}
		*dst, err = getFloat(m, key)
	}
	num := func(key string, dst *int) {
		if err != nil {
			return
		}
		var f float64
		if f, err = getFloat(m, key); err != nil {
			return
		}
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			err = errors.NotValidf("key %s=%v expected integer", key, f)
			return
		}
		*dst = int(f)
	}
	str(KeyWifiSSID, &c.WifiSSID)
	str(KeyWifiPassword, &c.WifiPassword)
	str(KeyMqttBroker, &c.MqttBroker)
	str(KeyMqttClient, &c.MqttClient)
	str(KeyMqttSensorTopic, &c.MqttSensorTopic)
	str(KeyMqttConfigTopic, &c.MqttConfigTopic)
	str(KeyMacAddress, &c.MacAddress)
	flt(KeyTempLimitLower, &c.TempLimitLower)
	flt(KeyTempLimitUpper, &c.TempLimitUpper)
	flt(KeyTempSetting, &c.TempSetting)
	flt(KeyHumiLimitLower, &c.HumiLimitLower)
	flt(KeyHumiLimitUpper, &c.HumiLimitUpper)
	flt(KeyHumiSetting, &c.HumiSetting)
	num(KeyDelayMeasure, &c.DelayMeasure)
	num(KeyDelayBuzzerOn, &c.DelayBuzzerOn)
	num(KeyDelayBuzzerOff, &c.DelayBuzzerOff)
	if err != nil {
		return Config{}, err
	}
	return c, nil
}

func getString(m map[string]interface{}, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.NotFoundf("key %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.NotValidf("key %s=%#v expected string", key, v)
	}
	return s, nil
}

func getFloat(m map[string]interface{}, key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, errors.NotFoundf("key %s", key)
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.NotValidf("key %s=%#v expected number", key, v)
	}
	return f, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func deepCopy(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, v := range x {
			m[k] = deepCopy(v)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(x))
		for i, v := range x {
			s[i] = deepCopy(v)
		}
		return s
	}
	return v
}

func copyMap(src map[string]interface{}) map[string]interface{} {
	return deepCopy(src).(map[string]interface{})
}
