package ffmpeg

import (
	"bytes"
	"strconv"
	"strings"
)

// progressWriter parses the key=value stream of `ffmpeg -progress` and
// reports the encoded fraction of total.
type progressWriter struct {
	total  float64
	report func(float64)
	buf    []byte
	last   float64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		p.line(strings.TrimSpace(string(p.buf[:i])))
		p.buf = p.buf[i+1:]
	}
	return len(b), nil
}

func (p *progressWriter) line(l string) {
	key, value, ok := strings.Cut(l, "=")
	if !ok {
		return
	}
	var frac float64
	switch key {
	// out_time_ms is in microseconds as well.
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || p.total <= 0 {
			return
		}
		frac = float64(us) / 1e6 / p.total
	case "progress":
		if value != "end" {
			return
		}
		frac = 1
	default:
		return
	}
	frac = min(max(frac, 0), 1)
	if frac <= p.last {
		return
	}
	p.last = frac
	if p.report != nil {
		p.report(frac)
	}
}
