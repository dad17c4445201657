package gateway

import (
	"strconv"
	"time"
)

// buildEnvelope wraps a JSON payload for the wire:
// {"channel":"...","data":...,"ts":"...","seq":N,"channel_seq":M}.
// data must already be valid JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// TradeChannel returns the stream channel carrying symbol's trades.
func TradeChannel(symbol string) string {
	return "trades:" + symbol
}

// channelSymbol extracts the symbol from a trades:<symbol> channel.
func channelSymbol(channel string) (string, bool) {
	const prefix = "trades:"
	if len(channel) <= len(prefix) || channel[:len(prefix)] != prefix {
		return "", false
	}
	return channel[len(prefix):], true
}
