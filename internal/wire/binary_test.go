package wire

import (
	"encoding/binary"
	"testing"
)

func TestEncodeBinaryKlineDeltaRoundTrips(t *testing.T) {
	m := &Message{
		Type: MsgKlineDelta, Timestamp: 123456789,
		InstanceId: "inst-1", Symbol: "AAA", Granularity: "1m",
		Open: 10, High: 12, Low: 9.5, Close: 11, Volume: 250,
	}
	frame := EncodeBinary(m)
	if frame == nil {
		t.Fatal("EncodeBinary returned nil")
	}
	bodyLen := binary.BigEndian.Uint16(frame[0:2])
	if int(bodyLen) != len(frame)-2 {
		t.Fatalf("length prefix = %d, want %d", bodyLen, len(frame)-2)
	}

	decoded, err := DecodeBinary(frame[2:])
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if decoded.Symbol != "AAA" || decoded.Granularity != "1m" || decoded.Close != 11 {
		t.Fatalf("decoded = %+v, want symbol AAA granularity 1m close 11", decoded)
	}
	if decoded.Timestamp != 123456789 {
		t.Fatalf("Timestamp = %d, want 123456789", decoded.Timestamp)
	}
}

func TestEncodeBinaryTradeEventRoundTrips(t *testing.T) {
	m := &Message{
		Type: MsgTradeEvent, Timestamp: 42,
		InstanceId: "inst-2", Symbol: "BBB", Side: 'B',
		Quantity: 100, Price: 55.25, TraderName: "trader-1",
	}
	frame := EncodeBinary(m)
	decoded, err := DecodeBinary(frame[2:])
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if decoded.Side != 'B' || decoded.Quantity != 100 || decoded.Price != 55.25 || decoded.TraderName != "trader-1" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestEncodeBinaryProgressUpdateRoundTrips(t *testing.T) {
	m := &Message{
		Type: MsgProgressUpdate, Timestamp: 7,
		RequestId: "req-1", Stage: "CreatingObjects", Percentage: 75,
		ProgressMessage: "constructing objects",
	}
	frame := EncodeBinary(m)
	decoded, err := DecodeBinary(frame[2:])
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if decoded.RequestId != "req-1" || decoded.Percentage != 75 || decoded.Stage != "CreatingObjects" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestEncodeBinaryUnknownTypeReturnsNil(t *testing.T) {
	m := &Message{Type: MsgType('Z')}
	if EncodeBinary(m) != nil {
		t.Fatal("expected nil for unknown message type")
	}
}

func TestDecodeBinaryRejectsTruncatedFrame(t *testing.T) {
	if _, err := DecodeBinary([]byte{byte(MsgKlineDelta)}); err == nil {
		t.Fatal("expected error decoding a truncated frame")
	}
}

func TestDecodeBinaryRejectsUnknownType(t *testing.T) {
	if _, err := DecodeBinary([]byte{'Z', 0, 0, 0, 0, 0, 0, 0, 0}); err == nil {
		t.Fatal("expected error decoding an unknown type")
	}
}
