package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var unitDur = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseTimeframe converts an exchange interval ("15m", "4h", "1d") to a duration.
func ParseTimeframe(tf string) (time.Duration, error) {
	tf = strings.TrimSpace(tf)
	if len(tf) < 2 {
		return 0, fmt.Errorf("timeframe %q: too short", tf)
	}
	unit, ok := unitDur[tf[len(tf)-1]]
	if !ok {
		return 0, fmt.Errorf("timeframe %q: unknown unit", tf)
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("timeframe %q: invalid count", tf)
	}
	return time.Duration(n) * unit, nil
}

// SortTimeframes orders timeframes fastest to slowest. Unparseable entries
// keep their relative order and sort after the known ones.
func SortTimeframes(tfs []string) []string {
	out := append([]string(nil), tfs...)
	sort.SliceStable(out, func(i, j int) bool {
		return tfRank(out[i]) < tfRank(out[j])
	})
	return out
}

func tfRank(tf string) time.Duration {
	d, err := ParseTimeframe(tf)
	if err != nil {
		return time.Duration(1<<63 - 1)
	}
	return d
}

// SignalKey identifies one symbol/timeframe pair: "BTCUSDT:15m".
func SignalKey(symbol, timeframe string) string {
	return symbol + ":" + timeframe
}
