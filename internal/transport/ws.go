package transport

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ndrandal/marketsim/internal/factory"
	"github.com/ndrandal/marketsim/internal/pushbus"
	"github.com/ndrandal/marketsim/internal/series"
	"github.com/ndrandal/marketsim/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one connected WebSocket subscriber to a single market
// instance's push bus. Adapted from the teacher's session.Client: the
// bounded send channel and atomic drop counter survive unchanged, the
// symbol-locate subscription set is replaced by the instance's
// pushbus.Subscriber itself. No topic or key filtering is applied:
// every event on the subscribed bus is forwarded.
type wsClient struct {
	id         uint64
	instanceId string
	conn       *websocket.Conn
	sub        *pushbus.Subscriber

	mu     sync.RWMutex
	format wire.MsgType // reused as a two-valued selector: 0 = json, 1 = binary

	sendCh chan []byte
	done   chan struct{}
	once   sync.Once

	dropped uint64
}

const (
	formatJSON   wire.MsgType = 0
	formatBinary wire.MsgType = 1
)

var wsClientIDCounter uint64

func newWsClient(instanceId string, conn *websocket.Conn, sub *pushbus.Subscriber, bufferSize int) *wsClient {
	if bufferSize <= 0 {
		bufferSize = pushbus.DefaultBufferSize
	}
	return &wsClient{
		id:         atomic.AddUint64(&wsClientIDCounter, 1),
		instanceId: instanceId,
		conn:       conn,
		sub:        sub,
		format:     formatJSON,
		sendCh:     make(chan []byte, bufferSize),
		done:       make(chan struct{}),
	}
}

func (c *wsClient) setFormat(f wire.MsgType) {
	c.mu.Lock()
	c.format = f
	c.mu.Unlock()
}

func (c *wsClient) getFormat() wire.MsgType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.format
}

func (c *wsClient) send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		atomic.AddUint64(&c.dropped, 1)
		return false
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// controlMessage is a client->server frame controlling format only;
// there is no topic or key filtering, and a /stream subscription is
// already scoped to one instance's bus.
type controlMessage struct {
	Action string `json:"action"`
	Format string `json:"format,omitempty"`
}

// handleStream upgrades a connection and streams kline, trade, and
// progress events for one instance until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	instanceId := r.PathValue("id")

	sub, err := s.ctrl.Subscribe(instanceId)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.ctrl.Unsubscribe(instanceId, sub)
		log.Printf("transport: websocket upgrade failed: %v", err)
		return
	}

	client := newWsClient(instanceId, conn, sub, s.bufferSize)

	go client.pumpBus()
	go writePump(client)
	go readPump(client, func() { s.ctrl.Unsubscribe(instanceId, sub) })
}

// handleProgressStream upgrades a connection and streams progress
// updates for every in-flight build request; the client filters by
// request id client-side (progress events are keyed by request id,
// not instance id, since the instance doesn't exist until the build
// completes).
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	sub := s.ctrl.SubscribeProgress()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.ctrl.UnsubscribeProgress(sub)
		log.Printf("transport: websocket upgrade failed: %v", err)
		return
	}

	client := newWsClient("", conn, sub, s.bufferSize)

	go client.pumpBus()
	go writePump(client)
	go readPump(client, func() { s.ctrl.UnsubscribeProgress(sub) })
}

// pumpBus drains the pushbus subscriber, translates each event into a
// wire.Message, and enqueues it on the send channel in the client's
// negotiated format.
func (c *wsClient) pumpBus() {
	for {
		select {
		case ev, ok := <-c.sub.Events():
			if !ok {
				return
			}
			msg := toWireMessage(c.instanceId, ev)
			if msg == nil {
				continue
			}
			c.enqueue(msg)
		case <-c.sub.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) enqueue(msg *wire.Message) {
	var data []byte
	if c.getFormat() == formatBinary {
		data = wire.EncodeBinary(msg)
	} else {
		var err error
		data, err = wire.EncodeJSON(msg)
		if err != nil {
			return
		}
	}
	if data == nil {
		return
	}
	c.send(data)
}

func toWireMessage(instanceId string, ev pushbus.Event) *wire.Message {
	switch ev.Topic {
	case pushbus.TopicKline:
		delta, ok := ev.Payload.(series.Delta)
		if !ok {
			return nil
		}
		return &wire.Message{
			Type:        wire.MsgKlineDelta,
			Timestamp:   wire.NowNanos(),
			InstanceId:  instanceId,
			Symbol:      ev.Key,
			Granularity: string(delta.Granularity),
			Open:        delta.Bucket.Open,
			High:        delta.Bucket.High,
			Low:         delta.Bucket.Low,
			Close:       delta.Bucket.Close,
			Volume:      delta.Bucket.Volume,
		}

	case pushbus.TopicTrade:
		trade, ok := ev.Payload.(factory.TradeEvent)
		if !ok {
			return nil
		}
		return &wire.Message{
			Type:       wire.MsgTradeEvent,
			Timestamp:  trade.OccurredAt.UnixNano(),
			InstanceId: instanceId,
			Symbol:     trade.Symbol,
			Side:       trade.Side,
			Quantity:   trade.Quantity,
			Price:      trade.Price,
			TraderName: trade.TraderName,
		}

	case pushbus.TopicProgress:
		rec, ok := ev.Payload.(factory.ProgressRecord)
		if !ok {
			return nil
		}
		errMsg := ""
		if rec.Error != nil {
			errMsg = *rec.Error
		}
		return &wire.Message{
			Type:            wire.MsgProgressUpdate,
			Timestamp:       wire.NowNanos(),
			RequestId:       rec.RequestId,
			Stage:           string(rec.Stage),
			Percentage:      int32(rec.Percentage),
			ProgressMessage: rec.Message,
			Error:           errMsg,
		}
	}
	return nil
}

// readPump processes control frames (format switch) from the client
// and unregisters it from the bus on disconnect.
func readPump(c *wsClient, unsubscribe func()) {
	defer func() {
		unsubscribe()
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("transport: client %d read error: %v", c.id, err)
			}
			return
		}

		var ctl controlMessage
		if err := json.Unmarshal(message, &ctl); err != nil {
			continue
		}
		if ctl.Action == "format" {
			switch ctl.Format {
			case "binary":
				c.setFormat(formatBinary)
			case "json":
				c.setFormat(formatJSON)
			}
		}
	}
}

// writePump relays queued frames to the socket and sends periodic pings.
func writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.sendCh:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			msgType := websocket.TextMessage
			if c.getFormat() == formatBinary {
				msgType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(msgType, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
