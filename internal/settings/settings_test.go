package settings

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/drybox/log2"
)

func recordJSON(t testing.TB, mod func(m map[string]interface{})) []byte {
	m := Defaults()
	if mod != nil {
		mod(m)
	}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return b
}

func TestLoad(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		data     []byte
		readErr  error
		defaults bool
		check    func(t testing.TB, c Config)
	}{
		{"absent", nil, nil, true, nil},
		{"read-error", nil, fmt.Errorf("EIO"), true, nil},
		{"garbage", []byte("{not json"), nil, true, nil},
		{"array", []byte("[1,2]"), nil, true, nil},
		{"null", []byte("null"), nil, true, nil},
		{"incomplete", recordJSON(t, func(m map[string]interface{}) { delete(m, KeyHumiSetting) }), nil, true, nil},
		{"wrong-type", recordJSON(t, func(m map[string]interface{}) { m[KeyTempLimitUpper] = "23" }), nil, true, nil},
		{"fractional-delay", recordJSON(t, func(m map[string]interface{}) { m[KeyDelayMeasure] = 1.9 }), nil, true, nil},
		{"huge-delay", recordJSON(t, func(m map[string]interface{}) { m[KeyDelayBuzzerOff] = 1e20 }), nil, true, nil},
		{"valid", recordJSON(t, func(m map[string]interface{}) {
			m[KeyTempLimitUpper] = 30.5
			m[KeyDelayMeasure] = 5
		}), nil, false, func(t testing.TB, c Config) {
			assert.Equal(t, 30.5, c.TempLimitUpper)
			assert.Equal(t, 5, c.DelayMeasure)
		}},
		{"valid-with-warning", recordJSON(t, nil), fmt.Errorf("main corrupt, restored from backup"), false, nil},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			storage := &MemoryStorage{Data: c.data, ReadErr: c.readErr}
			s := New(storage, log2.NewTest(t, log2.LDebug))
			config, err := s.Load()
			require.NoError(t, err)
			if c.defaults {
				assert.Equal(t, DefaultConfig(), config)
				assert.Equal(t, 1, storage.Writes, "defaults must be persisted")
				raw := map[string]interface{}{}
				require.NoError(t, json.Unmarshal(storage.Data, &raw))
				assert.Len(t, raw, len(Keys))
			} else {
				assert.Equal(t, 0, storage.Writes)
			}
			if c.check != nil {
				c.check(t, config)
			}
			assert.Equal(t, config, s.Config())
		})
	}
}

func TestLoadDefaultsWriteFail(t *testing.T) {
	t.Parallel()

	storage := &MemoryStorage{WriteErr: fmt.Errorf("read-only file system")}
	s := New(storage, log2.NewTest(t, log2.LDebug))
	config, err := s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
	assert.Equal(t, DefaultConfig(), config)
	assert.Equal(t, DefaultConfig(), s.Config())
}

func TestDefaultsFormat(t *testing.T) {
	t.Parallel()

	_, storage := NewMemory(log2.NewTest(t, log2.LDebug))
	assert.True(t, strings.HasPrefix(string(storage.Data), "{\n    \""), "indented record, got %q", storage.Data)
	c := DefaultConfig()
	assert.Equal(t, "sensor_drybox", c.MqttClient)
	assert.Equal(t, "sensores/medidas", c.MqttSensorTopic)
	assert.Equal(t, "sensores/config", c.MqttConfigTopic)
	assert.Equal(t, 10.0, c.TempLimitLower)
	assert.Equal(t, 23.0, c.TempLimitUpper)
	assert.Equal(t, 10.0, c.HumiLimitUpper)
	assert.Equal(t, 20, c.DelayMeasure)
	assert.Equal(t, 15, c.DelayBuzzerOn)
	assert.Equal(t, 60, c.DelayBuzzerOff)
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	s, storage := NewMemory(log2.NewTest(t, log2.LDebug))
	writes := storage.Writes

	config, err := s.Update(map[string]interface{}{
		KeyTempLimitUpper: 25.0,
		KeyDelayMeasure:   float64(7.9),
		"EXTRA_NOTE":      "kept",
	})
	require.NoError(t, err)
	assert.Equal(t, 25.0, config.TempLimitUpper)
	assert.Equal(t, 7, config.DelayMeasure)
	assert.Equal(t, writes+1, storage.Writes)

	// persisted record contains merge result and unknown key
	persisted := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(storage.Data, &persisted))
	assert.Equal(t, 25.0, persisted[KeyTempLimitUpper])
	assert.Equal(t, "kept", persisted["EXTRA_NOTE"])
	assert.Equal(t, "kept", s.Raw()["EXTRA_NOTE"])

	// same record after reload
	s2 := New(storage, log2.NewTest(t, log2.LDebug))
	reloaded, err := s2.Load()
	require.NoError(t, err)
	assert.Equal(t, config, reloaded)
}

func TestUpdateNoop(t *testing.T) {
	t.Parallel()

	s, storage := NewMemory(log2.NewTest(t, log2.LDebug))
	writes := storage.Writes
	before := s.Config()
	for _, partial := range []map[string]interface{}{nil, {}} {
		config, err := s.Update(partial)
		require.NoError(t, err)
		assert.Equal(t, before, config)
	}
	for _, payload := range []string{"[]", "42", `"str"`, "null", "{bad"} {
		config, err := s.UpdateJSON([]byte(payload))
		require.NoError(t, err, payload)
		assert.Equal(t, before, config)
	}
	assert.Equal(t, writes, storage.Writes)
}

func TestUpdateWriteFail(t *testing.T) {
	t.Parallel()

	s, storage := NewMemory(log2.NewTest(t, log2.LDebug))
	before := s.Config()
	storage.WriteErr = fmt.Errorf("no space left on device")
	config, err := s.Update(map[string]interface{}{KeyTempLimitLower: -5.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no space")
	assert.Equal(t, before, config)
	assert.Equal(t, before, s.Config())
	_, hasKey := s.Raw()[KeyTempLimitLower]
	assert.True(t, hasKey)
	assert.Equal(t, 10.0, s.Raw()[KeyTempLimitLower])
}

func TestUpdateWrongType(t *testing.T) {
	t.Parallel()

	s, storage := NewMemory(log2.NewTest(t, log2.LDebug))
	writes := storage.Writes
	_, err := s.Update(map[string]interface{}{KeyDelayBuzzerOn: "fifteen"})
	require.Error(t, err)
	_, err = s.Update(map[string]interface{}{KeyMqttBroker: 10.0})
	require.Error(t, err)
	_, err = s.Update(map[string]interface{}{KeyDelayMeasure: 1.9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected integer")
	_, err = s.UpdateJSON([]byte(`{"DELAY_BUZZER_ON": 1e20}`))
	require.Error(t, err)
	assert.Equal(t, writes, storage.Writes)
	assert.Equal(t, DefaultConfig(), s.Config())
}

func TestUpdateNoRangeValidation(t *testing.T) {
	t.Parallel()

	s, _ := NewMemory(log2.NewTest(t, log2.LDebug))
	config, err := s.UpdateJSON([]byte(`{"TEMP_LIMIT_LOWER": 40, "TEMP_LIMIT_UPPER": -40, "DELAY_MEASURE": -1}`))
	require.NoError(t, err)
	assert.Equal(t, 40.0, config.TempLimitLower)
	assert.Equal(t, -40.0, config.TempLimitUpper)
	assert.Equal(t, -1, config.DelayMeasure)
}

func TestRawIsCopy(t *testing.T) {
	t.Parallel()

	s, _ := NewMemory(log2.NewTest(t, log2.LDebug))
	_, err := s.Update(map[string]interface{}{"NESTED": map[string]interface{}{"a": 1.0}})
	require.NoError(t, err)
	raw := s.Raw()
	raw[KeyMqttClient] = "hijack"
	raw["NESTED"].(map[string]interface{})["a"] = 2.0
	assert.Equal(t, "sensor_drybox", s.Raw()[KeyMqttClient])
	assert.Equal(t, 1.0, s.Raw()["NESTED"].(map[string]interface{})["a"])
}

func TestFileStorage(t *testing.T) {
	t.Parallel()

	root, err := ioutil.TempDir("", "drybox-settings")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	log := log2.NewTest(t, log2.LDebug)
	s := NewFile(root, log)
	config, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)

	_, err = s.Update(map[string]interface{}{KeyMacAddress: "B827EB000001"})
	require.NoError(t, err)

	config, err = NewFile(root, log).Load()
	require.NoError(t, err)
	assert.Equal(t, "B827EB000001", config.MacAddress)

	// shorter record after longer one
	s = NewFile(root, log)
	_, err = s.Load()
	require.NoError(t, err)
	_, err = s.Update(map[string]interface{}{KeyMqttBroker: "192.168.100.200.example.internal"})
	require.NoError(t, err)
	_, err = s.Update(map[string]interface{}{KeyMqttBroker: "10.0.0.1"})
	require.NoError(t, err)
	config, err = NewFile(root, log).Load()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", config.MqttBroker)
	assert.Equal(t, "B827EB000001", config.MacAddress)
}

func TestBanner(t *testing.T) {
	t.Parallel()

	lines := DefaultConfig().Banner()
	assert.Equal(t, "# TEMP_LIMIT_LOWER = 10", lines[0])
	assert.Equal(t, "# DELAY_BUZZER_OFF = 60", lines[len(lines)-1])
}
