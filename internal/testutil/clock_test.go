package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClockStaysPut(t *testing.T) {
	c := NewManualClock()
	assert.Equal(t, c.Now(), c.Now())
}

func TestManualClockAdvance(t *testing.T) {
	c := NewManualClock()
	start := c.Now()

	c.Advance(3 * time.Second)

	assert.Equal(t, start.Add(3*time.Second), c.Now())
}

func TestManualClockSet(t *testing.T) {
	c := NewManualClock()
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	c.Set(at)

	assert.Equal(t, at, c.Now())
}

func TestManualClockConcurrentAdvance(t *testing.T) {
	c := NewManualClock()
	start := c.Now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Advance(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(time.Second), c.Now())
}
