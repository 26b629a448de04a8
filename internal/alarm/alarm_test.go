package alarm

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/temoto/drybox/hardware/buzzer"
	"github.com/temoto/drybox/helpers"
	"github.com/temoto/drybox/internal/sensor"
	"github.com/temoto/drybox/internal/settings"
	"github.com/temoto/drybox/log2"
)

func reading(temp, humi float64) sensor.Reading {
	return sensor.Reading{DeviceID: "test", Temperature: temp, Humidity: humi}
}

func TestBreached(t *testing.T) {
	t.Parallel()

	th := ThresholdsFromConfig(settings.DefaultConfig())
	cases := []struct {
		r      sensor.Reading
		expect bool
	}{
		{reading(20, 5), false},
		{reading(10, 0), false}, // limits are inclusive
		{reading(23, 10), false},
		{reading(9.99, 5), true},
		{reading(23.01, 5), true},
		{reading(20, -0.5), true},
		{reading(20, 10.5), true},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, th.Breached(c.r), c.r.String())
	}
}

// temperature 25.0 over upper 23.0
func TestAssertAndHold(t *testing.T) {
	t.Parallel()

	clock := helpers.NewFakeClock()
	out := &buzzer.Mock{}
	c := NewController(out, log2.NewTest(t, log2.LDebug))
	th := ThresholdsFromConfig(settings.DefaultConfig())
	hot := reading(25.0, 5)
	ok := reading(20.0, 5)

	// first breach fires immediately
	tr, err := c.Evaluate(clock.Now(), hot, th)
	require.NoError(t, err)
	assert.Equal(t, TransitionAssert, tr)
	assert.True(t, out.IsOn())
	assert.True(t, c.State().Asserted)

	// stays active for onDelay even when reading returns to range
	for i := 0; i < 14; i++ {
		clock.Advance(time.Second)
		tr, err = c.Evaluate(clock.Now(), ok, th)
		require.NoError(t, err)
		assert.Equal(t, TransitionNone, tr)
		assert.True(t, out.IsOn())
	}
	clock.Advance(time.Second)
	tr, err = c.Evaluate(clock.Now(), hot, th)
	require.NoError(t, err)
	assert.Equal(t, TransitionClear, tr, "clear is unconditional")
	assert.False(t, out.IsOn())
	assert.Equal(t, clock.Now(), c.State().LastClearedAt)

	// no re-assert within offDelay
	for i := 0; i < 59; i++ {
		clock.Advance(time.Second)
		tr, err = c.Evaluate(clock.Now(), hot, th)
		require.NoError(t, err)
		assert.Equal(t, TransitionNone, tr)
	}
	clock.Advance(time.Second)
	tr, err = c.Evaluate(clock.Now(), hot, th)
	require.NoError(t, err)
	assert.Equal(t, TransitionAssert, tr)
	assert.Equal(t, []bool{true, false, true}, out.History)
}

func TestNoBreachStaysIdle(t *testing.T) {
	t.Parallel()

	clock := helpers.NewFakeClock()
	out := &buzzer.Mock{}
	c := NewController(out, log2.NewTest(t, log2.LDebug))
	th := ThresholdsFromConfig(settings.DefaultConfig())
	for i := 0; i < 100; i++ {
		tr, err := c.Evaluate(clock.Now(), reading(15, 5), th)
		require.NoError(t, err)
		assert.Equal(t, TransitionNone, tr)
		clock.Advance(time.Second)
	}
	assert.Empty(t, out.History)
	assert.Equal(t, "idle", c.State().String())
}

func TestOutputErrorNotCommitted(t *testing.T) {
	t.Parallel()

	clock := helpers.NewFakeClock()
	out := &buzzer.Mock{Err: fmt.Errorf("gpio EBUSY")}
	c := NewController(out, log2.NewTest(t, log2.LDebug))
	th := ThresholdsFromConfig(settings.DefaultConfig())

	tr, err := c.Evaluate(clock.Now(), reading(30, 5), th)
	require.Error(t, err)
	assert.Equal(t, TransitionNone, tr)
	assert.False(t, c.State().Asserted)

	out.Err = nil
	tr, err = c.Evaluate(clock.Now(), reading(30, 5), th)
	require.NoError(t, err)
	assert.Equal(t, TransitionAssert, tr)

	clock.Advance(th.OnDelay)
	out.Err = fmt.Errorf("gpio EBUSY")
	_, err = c.Evaluate(clock.Now(), reading(20, 5), th)
	require.Error(t, err)
	assert.True(t, c.State().Asserted)
}

type mockOutput struct{ mock.Mock }

func (m *mockOutput) Set(on bool) error { return m.Called(on).Error(0) }

func TestOutputCalledOncePerTransition(t *testing.T) {
	t.Parallel()

	clock := helpers.NewFakeClock()
	out := &mockOutput{}
	out.On("Set", true).Return(nil).Once()
	out.On("Set", false).Return(nil).Once()
	c := NewController(out, log2.NewTest(t, log2.LDebug))
	th := ThresholdsFromConfig(settings.DefaultConfig())

	for i := 0; i < int(th.OnDelay/time.Second)+3; i++ {
		_, err := c.Evaluate(clock.Now(), reading(30, 5), th)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	out.AssertExpectations(t)
	out.AssertNumberOfCalls(t, "Set", 2)
}

// Randomized sequences must respect minimum active and silence durations.
func TestHysteresisProperty(t *testing.T) {
	t.Parallel()

	rnd := helpers.RandUnix()
	th := Thresholds{TempLow: 10, TempHigh: 23, HumiLow: 0, HumiHigh: 10, OnDelay: 7 * time.Second, OffDelay: 13 * time.Second}
	for run := 0; run < 50; run++ {
		clock := helpers.NewFakeClock()
		out := &buzzer.Mock{}
		c := NewController(out, nil)
		var lastAssert, lastClear time.Time
		for step := 0; step < 300; step++ {
			clock.Advance(time.Duration(1+rnd.Intn(3)) * time.Second)
			r := reading(float64(5+rnd.Intn(25)), float64(rnd.Intn(12)))
			tr, err := c.Evaluate(clock.Now(), r, th)
			require.NoError(t, err)
			switch tr {
			case TransitionAssert:
				if !lastClear.IsZero() {
					assert.GreaterOrEqual(t, int64(clock.Now().Sub(lastClear)), int64(th.OffDelay))
				}
				lastAssert = clock.Now()
			case TransitionClear:
				assert.GreaterOrEqual(t, int64(clock.Now().Sub(lastAssert)), int64(th.OnDelay))
				lastClear = clock.Now()
			}
		}
	}
}

func TestTransitionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "assert", TransitionAssert.String())
	assert.Equal(t, "Transition(9)", Transition(9).String())
}
