package wire

import (
	"encoding/json"
	"testing"
)

func TestEncodeJSONKlineDelta(t *testing.T) {
	m := &Message{Type: MsgKlineDelta, InstanceId: "i1", Symbol: "AAA", Granularity: "1m", Close: 11.5}
	data, err := EncodeJSON(m)
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if obj["type"] != "kline_delta" || obj["symbol"] != "AAA" {
		t.Fatalf("obj = %+v", obj)
	}
}

func TestEncodeJSONUnknownTypeFails(t *testing.T) {
	m := &Message{Type: MsgType('Z')}
	if _, err := EncodeJSON(m); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
