package transcode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// progressUpdate is one parsed block of ffmpeg -progress output.
type progressUpdate struct {
	OutTimeSeconds float64
	Speed          float64
	Done           bool
}

// readProgress consumes ffmpeg's key=value progress stream and invokes fn at
// the end of each block (the "progress=" line). Unknown keys are ignored.
func readProgress(r io.Reader, fn func(progressUpdate)) error {
	scanner := bufio.NewScanner(r)
	var current progressUpdate
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch key {
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				current.OutTimeSeconds = float64(us) / 1e6
			}
		case "out_time_ms":
			// Older ffmpeg builds emit microseconds under this key.
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
				current.OutTimeSeconds = float64(ms) / 1e6
			}
		case "speed":
			if speed, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
				current.Speed = speed
			}
		case "progress":
			current.Done = value == "end"
			if fn != nil {
				fn(current)
			}
		}
	}
	return scanner.Err()
}
