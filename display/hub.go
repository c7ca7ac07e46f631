package display

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/swdee/go-alpr/pipeline"
	"go.uber.org/zap"
)

const (
	// pongWait is how long a viewer may stay silent before it is dropped
	pongWait = 60 * time.Second
	// writeWait is the deadline for a single message write
	writeWait = 10 * time.Second
	// pingPeriod must be shorter than pongWait so viewers answer in time
	pingPeriod = (pongWait * 9) / 10
)

// PlateMessage is the JSON form of a plate reading
type PlateMessage struct {
	Text       string     `json:"text"`
	Confidence float32    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

// Message is the JSON published to viewers for every processed frame
type Message struct {
	Seq         int64          `json:"seq"`
	Text        string         `json:"text"`
	Plates      []PlateMessage `json:"plates"`
	Frame       string         `json:"frame"`
	Crop        string         `json:"crop"`
	InferenceMs float64        `json:"inference_ms"`
	Error       string         `json:"error,omitempty"`
}

// NewMessage converts a pipeline Result for publishing
func NewMessage(r pipeline.Result) Message {

	msg := Message{
		Seq:         r.Seq,
		Text:        r.Text,
		Plates:      make([]PlateMessage, 0, len(r.Plates)),
		Frame:       fmt.Sprintf("%dx%d", r.FrameSize.X, r.FrameSize.Y),
		Crop:        fmt.Sprintf("%dx%d", r.CropSize.X, r.CropSize.Y),
		InferenceMs: float64(r.InferenceTime.Microseconds()) / 1000,
	}

	if r.Err != nil {
		msg.Error = r.Err.Error()
	}

	for _, p := range r.Plates {
		msg.Plates = append(msg.Plates, PlateMessage{
			Text:       p.Text,
			Confidence: p.Confidence,
			Box:        [4]float64{p.Location.Left, p.Location.Top, p.Location.Right, p.Location.Bottom},
		})
	}

	return msg
}

// Hub broadcasts pipeline results to websocket viewers
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	// done is closed once Run returns
	done       chan struct{}
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
	pongWait   time.Duration
	pingPeriod time.Duration
	log        *zap.SugaredLogger
}

// NewHub returns a Hub, call Run to start delivering messages
func NewHub(logger *zap.SugaredLogger) *Hub {

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
		log:        logger,
	}
}

// Run serves register, unregister and broadcast requests until ctx is
// cancelled, then closes all viewer connections
func (h *Hub) Run(ctx context.Context) error {

	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()

			return ctx.Err()

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()

			h.log.Infow("viewer connected", "clients", count)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()

			h.log.Infow("viewer disconnected", "clients", count)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				err := client.WriteMessage(websocket.TextMessage, message)

				if err != nil {
					h.log.Warnw("error sending message", "error", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// OnResult publishes a processed frame to all viewers.  Messages are dropped
// when viewers can not keep up.
func (h *Hub) OnResult(r pipeline.Result) {

	data, err := json.Marshal(NewMessage(r))

	if err != nil {
		h.log.Errorw("error encoding result", "seq", r.Seq, "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.log.Debugw("viewer message dropped", "seq", r.Seq)
	}
}

// ClientCount returns the number of connected viewers
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.clients)
}

// ServeHTTP upgrades a viewer connection and holds it until the viewer goes
// away
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	conn, err := h.upgrader.Upgrade(w, r, nil)

	if err != nil {
		h.log.Warnw("websocket upgrade error", "error", err)
		return
	}

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
			conn.Close()
		}
	}()

	stop := make(chan struct{})
	defer close(stop)

	go h.ping(conn, stop)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ping keeps the viewer's read deadline alive until stop is closed.
// WriteControl may run concurrently with the broadcast writes in Run.
func (h *Hub) ping(conn *websocket.Conn, stop <-chan struct{}) {

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))

			if err != nil {
				h.log.Debugw("error sending ping", "error", err)
				return
			}
		}
	}
}
