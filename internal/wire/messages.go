// Package wire is the message vocabulary and length-prefixed binary
// framing the Push Bus's subscribers are encoded into, adapted from the
// teacher's internal/itch package: same universal-struct-plus-type-byte
// shape and the same 2-byte length-prefixed frame, but carrying
// KlineDelta/TradeEvent/ProgressUpdate fields instead of ITCH order-book
// messages, since this domain has no order book to mirror on the wire.
package wire

import "time"

// MsgType is the wire tag selecting which fields of Message are populated.
type MsgType byte

const (
	MsgKlineDelta     MsgType = 'K'
	MsgTradeEvent     MsgType = 'T'
	MsgProgressUpdate MsgType = 'P'
)

// Message is the universal struct encoded onto the wire. Not all fields
// are populated for every Type, mirroring the teacher's single
// itch.Message carrying every ITCH field regardless of message kind.
type Message struct {
	Type      MsgType
	Timestamp int64 // unix nanoseconds

	InstanceId  string
	Symbol      string
	Granularity string // KlineDelta only

	Open, High, Low, Close, Volume float64 // KlineDelta only

	Side       byte // KlineDelta only future use; TradeEvent: 'B' or 'S'
	Quantity   int64
	Price      float64
	TraderName string // TradeEvent only

	RequestId       string // ProgressUpdate only
	Stage           string
	Percentage      int32
	ProgressMessage string
	Error           string
}

// NowNanos returns the current unix time in nanoseconds, the timestamp
// unit every Message carries.
func NowNanos() int64 {
	return time.Now().UnixNano()
}
