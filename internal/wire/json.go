package wire

import (
	"encoding/json"
	"fmt"
)

// EncodeJSON encodes a Message into JSON bytes, a human-readable mirror
// of EncodeBinary, the same pairing the teacher's itch package offers.
func EncodeJSON(m *Message) ([]byte, error) {
	obj := msgToMap(m)
	if obj == nil {
		return nil, fmt.Errorf("wire: unsupported message type: %c", m.Type)
	}
	return json.Marshal(obj)
}

func msgToMap(m *Message) map[string]any {
	switch m.Type {
	case MsgKlineDelta:
		return map[string]any{
			"type":        "kline_delta",
			"timestamp":   m.Timestamp,
			"instanceId":  m.InstanceId,
			"symbol":      m.Symbol,
			"granularity": m.Granularity,
			"open":        m.Open,
			"high":        m.High,
			"low":         m.Low,
			"close":       m.Close,
			"volume":      m.Volume,
		}

	case MsgTradeEvent:
		return map[string]any{
			"type":       "trade_event",
			"timestamp":  m.Timestamp,
			"instanceId": m.InstanceId,
			"symbol":     m.Symbol,
			"side":       string([]byte{m.Side}),
			"quantity":   m.Quantity,
			"price":      m.Price,
			"trader":     m.TraderName,
		}

	case MsgProgressUpdate:
		return map[string]any{
			"type":       "progress_update",
			"timestamp":  m.Timestamp,
			"requestId":  m.RequestId,
			"stage":      m.Stage,
			"percentage": m.Percentage,
			"message":    m.ProgressMessage,
			"error":      m.Error,
		}
	}
	return nil
}
