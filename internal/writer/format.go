package writer

import (
	"fmt"
	"math"
	"time"
)

var sizeSuffixes = [...]string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB", "ZiB", "YiB"}

// prettySize renders a byte count the way the dumper it is ported from
// does: below 1024 bytes, a bare "NB"; above, scaled to the largest binary
// unit the count fits, rounded to two decimals.
func prettySize(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%dB", size)
	}

	i := int(math.Floor(math.Log(float64(size)) / math.Log(1024)))
	if i >= len(sizeSuffixes) {
		i = len(sizeSuffixes) - 1
	}
	scaled := float64(size) / math.Pow(1024, float64(i))
	return fmt.Sprintf("%s %s", trimTrailingZeros(scaled), sizeSuffixes[i])
}

func trimTrailingZeros(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}

// prettyTimedelta renders a duration as "<days>d <hours>h <mins>m <secs>s",
// dropping leading zero components, matching the source's formatting.
func prettyTimedelta(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}

	totalSecs := d.Seconds()
	secs := math.Mod(totalSecs, 60)
	rem := math.Floor(totalSecs / 60)
	mins := math.Mod(rem, 60)
	rem = math.Floor(rem / 60)
	hours := math.Mod(rem, 24)
	days := math.Floor(rem / 24)

	type part struct {
		n    float64
		unit string
	}
	parts := []part{{days, "d"}, {hours, "h"}, {mins, "m"}, {secs, "s"}}

	start := 0
	for start < len(parts)-1 && parts[start].n == 0 {
		start++
	}
	parts = parts[start:]

	out := sign
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%.0f%s", p.n, p.unit)
	}
	return out
}
