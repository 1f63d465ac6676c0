package gateway

import (
	"strconv"
	"strings"
	"time"
)

// buildEnvelope wraps an already-encoded payload without re-marshalling it:
// {"channel":"...","data":...,"ts":"...","seq":N}
func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// channelSymbol extracts the symbol from "pub:signal:SYM:tf" or
// "pub:confluence:SYM". It returns "" for anything else.
func channelSymbol(channel string) string {
	parts := strings.Split(channel, ":")
	if len(parts) < 3 || parts[0] != "pub" {
		return ""
	}
	switch parts[1] {
	case "signal":
		if len(parts) == 4 {
			return parts[2]
		}
	case "confluence":
		if len(parts) == 3 {
			return parts[2]
		}
	}
	return ""
}
