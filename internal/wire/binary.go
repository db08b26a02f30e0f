package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeBinary encodes a Message into its binary wire format, returning
// the encoded bytes including the 2-byte length prefix (SoupBinTCP-style
// framing, same idiom as the teacher's itch.EncodeBinary). Returns nil
// for an unrecognized Type.
func EncodeBinary(m *Message) []byte {
	var body []byte

	switch m.Type {
	case MsgKlineDelta:
		body = encodeKlineDelta(m)
	case MsgTradeEvent:
		body = encodeTradeEvent(m)
	case MsgProgressUpdate:
		body = encodeProgressUpdate(m)
	default:
		return nil
	}

	frame := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(frame[0:2], uint16(len(body)))
	copy(frame[2:], body)
	return frame
}

// DecodeBinary parses one length-prefixed frame (without its 2-byte
// prefix, i.e. the body EncodeBinary produced after frame[2:]) back
// into a Message.
func DecodeBinary(body []byte) (*Message, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("wire: empty frame body")
	}
	switch MsgType(body[0]) {
	case MsgKlineDelta:
		return decodeKlineDelta(body)
	case MsgTradeEvent:
		return decodeTradeEvent(body)
	case MsgProgressUpdate:
		return decodeProgressUpdate(body)
	default:
		return nil, fmt.Errorf("wire: unknown message type %q", body[0])
	}
}

func putString(buf []byte, offset int, s string) int {
	if len(s) > 255 {
		s = s[:255]
	}
	buf[offset] = byte(len(s))
	copy(buf[offset+1:], s)
	return offset + 1 + len(s)
}

func readString(buf []byte, offset int) (string, int, error) {
	if offset >= len(buf) {
		return "", offset, fmt.Errorf("wire: truncated frame reading string length")
	}
	n := int(buf[offset])
	offset++
	if offset+n > len(buf) {
		return "", offset, fmt.Errorf("wire: truncated frame reading string body")
	}
	return string(buf[offset : offset+n]), offset + n, nil
}

func stringSize(s string) int {
	if len(s) > 255 {
		return 256
	}
	return 1 + len(s)
}

// Type(1) + Timestamp(8) + InstanceId + Symbol + Granularity +
// Open(8) + High(8) + Low(8) + Close(8) + Volume(8)
func encodeKlineDelta(m *Message) []byte {
	size := 1 + 8 + stringSize(m.InstanceId) + stringSize(m.Symbol) + stringSize(m.Granularity) + 8*5
	buf := make([]byte, size)
	buf[0] = byte(m.Type)
	binary.BigEndian.PutUint64(buf[1:9], uint64(m.Timestamp))
	off := 9
	off = putString(buf, off, m.InstanceId)
	off = putString(buf, off, m.Symbol)
	off = putString(buf, off, m.Granularity)
	off = putFloat(buf, off, m.Open)
	off = putFloat(buf, off, m.High)
	off = putFloat(buf, off, m.Low)
	off = putFloat(buf, off, m.Close)
	putFloat(buf, off, m.Volume)
	return buf
}

func decodeKlineDelta(buf []byte) (*Message, error) {
	if len(buf) < 9 {
		return nil, fmt.Errorf("wire: KlineDelta frame too short")
	}
	m := &Message{Type: MsgKlineDelta, Timestamp: int64(binary.BigEndian.Uint64(buf[1:9]))}
	off := 9
	var err error
	if m.InstanceId, off, err = readString(buf, off); err != nil {
		return nil, err
	}
	if m.Symbol, off, err = readString(buf, off); err != nil {
		return nil, err
	}
	if m.Granularity, off, err = readString(buf, off); err != nil {
		return nil, err
	}
	if off+40 > len(buf) {
		return nil, fmt.Errorf("wire: KlineDelta frame truncated reading OHLCV")
	}
	m.Open = readFloat(buf, off)
	m.High = readFloat(buf, off+8)
	m.Low = readFloat(buf, off+16)
	m.Close = readFloat(buf, off+24)
	m.Volume = readFloat(buf, off+32)
	return m, nil
}

// Type(1) + Timestamp(8) + InstanceId + Symbol + Side(1) + Quantity(8) +
// Price(8) + TraderName
func encodeTradeEvent(m *Message) []byte {
	size := 1 + 8 + stringSize(m.InstanceId) + stringSize(m.Symbol) + 1 + 8 + 8 + stringSize(m.TraderName)
	buf := make([]byte, size)
	buf[0] = byte(m.Type)
	binary.BigEndian.PutUint64(buf[1:9], uint64(m.Timestamp))
	off := 9
	off = putString(buf, off, m.InstanceId)
	off = putString(buf, off, m.Symbol)
	buf[off] = m.Side
	off++
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(m.Quantity))
	off += 8
	off = putFloat(buf, off, m.Price)
	putString(buf, off, m.TraderName)
	return buf
}

func decodeTradeEvent(buf []byte) (*Message, error) {
	if len(buf) < 9 {
		return nil, fmt.Errorf("wire: TradeEvent frame too short")
	}
	m := &Message{Type: MsgTradeEvent, Timestamp: int64(binary.BigEndian.Uint64(buf[1:9]))}
	off := 9
	var err error
	if m.InstanceId, off, err = readString(buf, off); err != nil {
		return nil, err
	}
	if m.Symbol, off, err = readString(buf, off); err != nil {
		return nil, err
	}
	if off+17 > len(buf) {
		return nil, fmt.Errorf("wire: TradeEvent frame truncated")
	}
	m.Side = buf[off]
	off++
	m.Quantity = int64(binary.BigEndian.Uint64(buf[off : off+8]))
	off += 8
	m.Price = readFloat(buf, off)
	off += 8
	if m.TraderName, _, err = readString(buf, off); err != nil {
		return nil, err
	}
	return m, nil
}

// Type(1) + Timestamp(8) + RequestId + Stage + Percentage(4) + ProgressMessage + Error
func encodeProgressUpdate(m *Message) []byte {
	size := 1 + 8 + stringSize(m.RequestId) + stringSize(m.Stage) + 4 + stringSize(m.ProgressMessage) + stringSize(m.Error)
	buf := make([]byte, size)
	buf[0] = byte(m.Type)
	binary.BigEndian.PutUint64(buf[1:9], uint64(m.Timestamp))
	off := 9
	off = putString(buf, off, m.RequestId)
	off = putString(buf, off, m.Stage)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(m.Percentage))
	off += 4
	off = putString(buf, off, m.ProgressMessage)
	putString(buf, off, m.Error)
	return buf
}

func decodeProgressUpdate(buf []byte) (*Message, error) {
	if len(buf) < 9 {
		return nil, fmt.Errorf("wire: ProgressUpdate frame too short")
	}
	m := &Message{Type: MsgProgressUpdate, Timestamp: int64(binary.BigEndian.Uint64(buf[1:9]))}
	off := 9
	var err error
	if m.RequestId, off, err = readString(buf, off); err != nil {
		return nil, err
	}
	if m.Stage, off, err = readString(buf, off); err != nil {
		return nil, err
	}
	if off+4 > len(buf) {
		return nil, fmt.Errorf("wire: ProgressUpdate frame truncated reading percentage")
	}
	m.Percentage = int32(binary.BigEndian.Uint32(buf[off : off+4]))
	off += 4
	if m.ProgressMessage, off, err = readString(buf, off); err != nil {
		return nil, err
	}
	if m.Error, _, err = readString(buf, off); err != nil {
		return nil, err
	}
	return m, nil
}

func putFloat(buf []byte, offset int, f float64) int {
	binary.BigEndian.PutUint64(buf[offset:offset+8], math.Float64bits(f))
	return offset + 8
}

func readFloat(buf []byte, offset int) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(buf[offset : offset+8]))
}
