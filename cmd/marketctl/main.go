// Command marketctl connects to a running market simulator's WebSocket
// stream and prints every kline, trade, and progress message in
// human-readable form.
//
// Usage:
//
//	marketctl -id <instance-id>                      # stream one instance in binary mode
//	marketctl -progress                              # stream every in-flight build's progress
//	marketctl -url ws://host:8100/market-instances/x/stream
//	marketctl -json                                  # request JSON format instead of binary
//	marketctl -stats 10                              # print message rate stats every N seconds
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ndrandal/marketsim/internal/wire"
)

func main() {
	host := flag.String("host", "localhost:8100", "marketsim server host:port")
	instanceId := flag.String("id", "", "Instance id to stream (ignored with -progress)")
	progress := flag.Bool("progress", false, "Stream the progress feed instead of an instance's kline/trade feed")
	url := flag.String("url", "", "Explicit WebSocket endpoint (overrides -host/-id/-progress)")
	useJSON := flag.Bool("json", false, "Request JSON format instead of binary")
	statsInterval := flag.Int("stats", 0, "Print message rate stats every N seconds (0 = off)")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	endpoint := *url
	if endpoint == "" {
		switch {
		case *progress:
			endpoint = fmt.Sprintf("ws://%s/market-instances/progress/stream", *host)
		case *instanceId != "":
			endpoint = fmt.Sprintf("ws://%s/market-instances/%s/stream", *host, *instanceId)
		default:
			log.Fatal("must pass -id, -progress, or -url")
		}
	}

	log.Printf("connecting to %s", endpoint)
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	log.Println("connected")

	format := "binary"
	if *useJSON {
		format = "json"
	}
	sendControl(conn, map[string]any{"action": "format", "format": format})
	log.Printf("streaming in %s mode", format)

	var msgCount uint64
	if *statsInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
			defer ticker.Stop()
			var last uint64
			for range ticker.C {
				cur := atomic.LoadUint64(&msgCount)
				delta := cur - last
				rate := float64(delta) / float64(*statsInterval)
				log.Printf("[stats] %d msgs total | %.1f msgs/sec", cur, rate)
				last = cur
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("read: %v", err)
		}
		atomic.AddUint64(&msgCount, 1)

		if msgType == websocket.TextMessage {
			fmt.Println(string(data))
			continue
		}

		decodeBinaryFrames(data)
	}
}

func sendControl(conn *websocket.Conn, msg map[string]any) {
	data, _ := json.Marshal(msg)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Fatalf("send control: %v", err)
	}
}

// decodeBinaryFrames parses one or more 2-byte-length-prefixed wire
// messages from a single WebSocket binary frame; the server sends one
// frame per event so this almost always loops once.
func decodeBinaryFrames(data []byte) {
	offset := 0
	for offset+2 <= len(data) {
		frameLen := int(data[offset])<<8 | int(data[offset+1])
		if frameLen <= 0 || offset+2+frameLen > len(data) {
			break
		}
		body := data[offset+2 : offset+2+frameLen]
		decodeMessage(body)
		offset += 2 + frameLen
	}
}

func decodeMessage(body []byte) {
	msg, err := wire.DecodeBinary(body)
	if err != nil {
		fmt.Printf("??? %v\n", err)
		return
	}

	switch msg.Type {
	case wire.MsgKlineDelta:
		fmt.Printf("KLINE    %s  instance=%s  stock=%-8s  gran=%-4s  O=%.4f H=%.4f L=%.4f C=%.4f V=%.0f\n",
			fmtTimestamp(msg.Timestamp), msg.InstanceId, msg.Symbol, msg.Granularity,
			msg.Open, msg.High, msg.Low, msg.Close, msg.Volume)

	case wire.MsgTradeEvent:
		fmt.Printf("TRADE    %s  instance=%s  stock=%-8s  %4s  %6d @ %.4f  trader=%s\n",
			fmtTimestamp(msg.Timestamp), msg.InstanceId, msg.Symbol, fmtSide(msg.Side),
			msg.Quantity, msg.Price, msg.TraderName)

	case wire.MsgProgressUpdate:
		status := ""
		if msg.Error != "" {
			status = fmt.Sprintf("  error=%s", msg.Error)
		}
		fmt.Printf("PROGRESS %s  request=%-10s  stage=%-16s  %3d%%  %s%s\n",
			fmtTimestamp(msg.Timestamp), msg.RequestId, msg.Stage, msg.Percentage, msg.ProgressMessage, status)

	default:
		fmt.Printf("UNKNOWN  type=%c len=%d\n", msg.Type, len(body))
	}
}

func fmtTimestamp(nanos int64) string {
	t := time.Unix(0, nanos)
	return t.Format("15:04:05.000000")
}

func fmtSide(b byte) string {
	switch b {
	case 'B':
		return "BUY"
	case 'S':
		return "SELL"
	default:
		return string(b)
	}
}
