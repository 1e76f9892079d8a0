package writer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrettySizeBelowThreshold(t *testing.T) {
	assert.Equal(t, "0B", prettySize(0))
	assert.Equal(t, "512B", prettySize(512))
}

func TestPrettySizeScalesToBinaryUnit(t *testing.T) {
	assert.Equal(t, "1 KiB", prettySize(1024))
	assert.Equal(t, "1.5 KiB", prettySize(1536))
	assert.Equal(t, "1 MiB", prettySize(1024*1024))
}

func TestPrettyTimedeltaDropsLeadingZeroParts(t *testing.T) {
	assert.Equal(t, "45s", prettyTimedelta(45*time.Second))
	assert.Equal(t, "2m 5s", prettyTimedelta(2*time.Minute+5*time.Second))
	assert.Equal(t, "1h 0m 3s", prettyTimedelta(time.Hour+3*time.Second))
}

func TestPrettyTimedeltaNegative(t *testing.T) {
	assert.Equal(t, "-30s", prettyTimedelta(-30*time.Second))
}
