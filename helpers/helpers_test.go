package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))
	single := fmt.Errorf("single")
	assert.Equal(t, single, FoldErrors([]error{nil, single}))
	err := FoldErrors([]error{fmt.Errorf("first"), nil, fmt.Errorf("second")})
	assert.EqualError(t, err, "first\nsecond")
}

func TestIntSecondDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3*time.Second, IntSecondDefault(0, 3*time.Second))
	assert.Equal(t, 3*time.Second, IntSecondDefault(-1, 3*time.Second))
	assert.Equal(t, 20*time.Second, IntSecondDefault(20, 3*time.Second))
	assert.Equal(t, 100*time.Millisecond, IntMillisecondDefault(0, 100*time.Millisecond))
	assert.Equal(t, 5*time.Millisecond, IntMillisecondDefault(5, 100*time.Millisecond))
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, SleepContext(ctx, time.Hour))
}
