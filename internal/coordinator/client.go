package coordinator

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cardtable/coordinator/internal/logging"
)

const sendQueueSize = 256

var connSequence atomic.Int64

// WSClient adapts one websocket connection to the Conn interface. Reads and
// writes each run on their own goroutine; the write pump owns the socket for
// outbound traffic so frames never interleave.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:     "conn-" + strconv.FormatInt(connSequence.Add(1), 10),
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
}

// ID implements Conn.
func (w *WSClient) ID() string { return w.id }

// Send implements Conn. A full queue drops the payload rather than blocking
// the coordinator behind a slow reader.
func (w *WSClient) Send(payload []byte) bool {
	select {
	case <-w.closed:
		return false
	default:
	}
	select {
	case w.send <- payload:
		return true
	default:
		return false
	}
}

// CloseWithCode implements Conn. The close frame is written directly so it
// still goes out when the send queue is saturated.
func (w *WSClient) CloseWithCode(code int, reason string) {
	w.closeOnce.Do(func() {
		close(w.closed)
		deadline := time.Now().Add(time.Second)
		message := websocket.FormatCloseMessage(code, reason)
		_ = w.conn.WriteControl(websocket.CloseMessage, message, deadline)
		_ = w.conn.Close()
	})
}

// WSHandler upgrades HTTP requests and runs the connection lifecycle against
// the coordinator.
type WSHandler struct {
	coordinator *Coordinator
	log         *logging.Logger
	upgrader    websocket.Upgrader

	maxFrameBytes int64
	pingInterval  time.Duration
}

// NewWSHandler builds the websocket endpoint. An empty allowedOrigins list
// accepts any origin; otherwise the Origin header must match exactly.
func NewWSHandler(coordinator *Coordinator, logger *logging.Logger, allowedOrigins []string, maxFrameBytes int64, pingInterval time.Duration) *WSHandler {
	if logger == nil {
		logger = logging.L()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	handler := &WSHandler{
		coordinator:   coordinator,
		log:           logger,
		maxFrameBytes: maxFrameBytes,
		pingInterval:  pingInterval,
	}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return handler
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	permitted := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		permitted[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := permitted[origin]
		return ok
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	client := newWSClient(socket)
	//1.- The transport cap mirrors the router's check so oversized frames
	// are refused before they are buffered in full.
	if h.maxFrameBytes > 0 {
		socket.SetReadLimit(h.maxFrameBytes)
	}

	//2.- The write pump owns the socket for outbound traffic; the read loop
	// runs on the request goroutine until the connection dies.
	h.coordinator.Attach(client)
	go h.writePump(client)
	h.readPump(client)
}

func (h *WSHandler) readPump(client *WSClient) {
	defer func() {
		h.coordinator.Detach(client)
		client.CloseWithCode(websocket.CloseNormalClosure, "")
	}()
	for {
		kind, payload, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket read ended",
					logging.String("conn", client.id), logging.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		h.coordinator.HandleMessage(client, payload)
	}
}

func (h *WSHandler) writePump(client *WSClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		client.CloseWithCode(websocket.CloseNormalClosure, "")
	}()
	for {
		select {
		case <-client.closed:
			return
		case payload := <-client.send:
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := client.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
