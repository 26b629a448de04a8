package helpers

import (
	"math/rand"
	"time"
)

func RandUnix() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// FakeClock is manual time source for tests of time driven state machines.
type FakeClock struct{ T time.Time }

func NewFakeClock() *FakeClock {
	return &FakeClock{T: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time          { return c.T }
func (c *FakeClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
func (c *FakeClock) Sleep(d time.Duration)   { c.T = c.T.Add(d) }
