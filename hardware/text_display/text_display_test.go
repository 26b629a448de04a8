package text_display

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Parallel()

	const width uint32 = 16
	spaces := strings.Repeat(" ", MaxWidth*2)
	canonical := func(input string, tick uint32) string {
		gap := width / 2
		length := uint32(len(input))
		if length <= width {
			return (input + spaces)[:width]
		}
		help := input + spaces[:gap] + input
		offset := tick % (length + gap)
		return help[offset : offset+width]
	}

	cases := []struct {
		name  string
		input string
	}{
		{"short", "Temp: 1.00"},
		{"full", "Temp: 25.00 C  "},
		{"long1", "Conectando . . . . . ."},
		{"long2", "MAC: B827EB123456 MAC: B827EB123456"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			for tick := uint32(0); tick < uint32(len(c.input)*3); tick++ {
				var buf [width]byte
				scrollWrap(buf[:], []byte(c.input), tick)
				expect := canonical(c.input, tick)
				assert.Equal(t, expect, string(buf[:]), "tick=%d", tick)
			}
		})
	}
}

func TestSetLines(t *testing.T) {
	t.Parallel()

	d, dev := NewMockTextDisplay(&TextDisplayConfig{Width: 16})
	ch := make(chan State, 1)
	d.SetUpdateChan(ch)
	require.NoError(t, d.SetLines(fmt.Sprintf("Temp: %.2f °C", 25.0), fmt.Sprintf("Humi: %.2f %%", 40.0)))
	st := <-ch
	assert.Equal(t, []byte("Temp: 25.00 \xdfC  "), st.L1)
	assert.Equal(t, "Humi: 40.00 %   ", string(st.L2))
	assert.Equal(t, "Temp: 25.00 \xdfC  ", dev.Line(0))
	assert.Equal(t, "Humi: 40.00 %   ", dev.Line(1))

	// shorter text must erase leftovers
	require.NoError(t, d.SetText("WiFi Conectado!"))
	<-ch
	assert.Equal(t, "WiFi Conectado! ", dev.Line(0))
	assert.Equal(t, strings.Repeat(" ", 16), dev.Line(1))
}

func TestMessage(t *testing.T) {
	t.Parallel()

	d, _ := NewMockTextDisplay(&TextDisplayConfig{Width: 8})
	ch := make(chan State, 1)
	d.SetUpdateChan(ch)
	require.NoError(t, d.SetLines("hello", "cursor\x00"))
	assert.Equal(t, "hello   \ncursor", (<-ch).String())
	err := d.Message("padded", "msg", func() {
		assert.Equal(t, "padded  \nmsg     ", (<-ch).String())
	})
	require.NoError(t, err)
	assert.Equal(t, "hello   \ncursor", (<-ch).String())
}

func TestDeviceError(t *testing.T) {
	t.Parallel()

	d, dev := NewMockTextDisplay(&TextDisplayConfig{Width: 16})
	dev.Err = fmt.Errorf("i2c: remote I/O error")
	err := d.SetLines("a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote I/O error")
	// state still updated, next flush may succeed
	assert.Equal(t, "a", strings.TrimSpace(string(d.State().L1)))
}

func TestJustCenter(t *testing.T) {
	t.Parallel()

	d, err := NewTextDisplay(&TextDisplayConfig{Width: 8})
	require.NoError(t, err)
	assert.Equal(t, []byte("longlong"), d.JustCenter([]byte("longlong")))
	assert.Equal(t, []byte("longlon"), d.JustCenter([]byte("longlon")))
	assert.Equal(t, []byte("  long  "), d.JustCenter([]byte("long")))
	assert.Equal(t, []byte("   1    "), d.JustCenter([]byte("1")))
}

func TestInvalidWidth(t *testing.T) {
	t.Parallel()

	_, err := NewTextDisplay(&TextDisplayConfig{Width: MaxWidth + 1})
	assert.Error(t, err)
}
