package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseTimecode accepts "SS", "SS.fff", "MM:SS" and "HH:MM:SS".
func ParseTimecode(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timecode")
	}

	parts := strings.Split(s, ":")
	if len(parts) == 1 {
		secs, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, fmt.Errorf("invalid timecode %q", s)
		}
		return secondsToDuration(secs)
	}
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timecode %q: expected HH:MM:SS, MM:SS or seconds", s)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timecode %q: expected HH:MM:SS, MM:SS or seconds", s)
		}
		nums[i] = n
	}

	var h, m, sec int
	if len(nums) == 3 {
		h, m, sec = nums[0], nums[1], nums[2]
		if m > 59 {
			return 0, fmt.Errorf("invalid timecode %q: minutes must be 0-59", s)
		}
		if h > maxTimecodeHours {
			return 0, fmt.Errorf("timecode %q is too large", s)
		}
	} else {
		m, sec = nums[0], nums[1]
		if m > maxTimecodeHours*60 {
			return 0, fmt.Errorf("timecode %q is too large", s)
		}
	}
	if sec > 59 {
		return 0, fmt.Errorf("invalid timecode %q: seconds must be 0-59", s)
	}

	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// FormatTimecode renders d as HH:MM:SS(.mmm), the form ffmpeg accepts for -ss/-t.
func FormatTimecode(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	if ms == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

const (
	maxTimecodeSeconds = float64(math.MaxInt64 / int64(time.Second))
	maxTimecodeHours   = int(math.MaxInt64/int64(time.Hour)) - 1
)

func secondsToDuration(secs float64) (time.Duration, error) {
	if math.Abs(secs) > maxTimecodeSeconds {
		return 0, fmt.Errorf("timecode of %g seconds is too large", secs)
	}
	return time.Duration(math.Round(secs * float64(time.Second))), nil
}

// Timecode decodes from either a JSON number of seconds or a timecode string.
// A malformed value does not fail the surrounding decode; it is kept in Err
// so callers can report it against the field.
type Timecode struct {
	time.Duration
	Set bool

	err error
}

func (t *Timecode) Err() error {
	return t.err
}

func (t *Timecode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Timecode{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		d, err := ParseTimecode(s)
		if err != nil {
			*t = Timecode{Set: true, err: err}
			return nil
		}
		*t = Timecode{Duration: d, Set: true}
		return nil
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		*t = Timecode{Set: true, err: fmt.Errorf("must be seconds or a HH:MM:SS string")}
		return nil
	}
	d, err := secondsToDuration(secs)
	if err != nil {
		*t = Timecode{Set: true, err: err}
		return nil
	}
	*t = Timecode{Duration: d, Set: true}
	return nil
}

func (t Timecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Seconds())
}
