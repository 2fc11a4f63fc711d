package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/events"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/utils"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxMessage   = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // the API is served on loopback
	},
}

// Message is a control message exchanged with clients
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Dropped uint64 `json:"dropped,omitempty"`
}

// Handler manages WebSocket connections
type Handler struct {
	bus     *events.Bus
	metrics *monitoring.Metrics
	logger  *zap.Logger
	buffer  int
}

// NewHandler creates a new WebSocket handler
func NewHandler(bus *events.Bus, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{bus: bus, metrics: metrics, logger: logger, buffer: 256}
}

// HandleEvents upgrades the request and streams events until the client
// goes away or the bus is closed
func (h *Handler) HandleEvents(c *gin.Context) {
	appID := c.Query("app_id")
	if appID != "" {
		if err := utils.ValidateID(appID, "app_id", false); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	sub := h.bus.Subscribe(h.buffer)
	defer sub.Cancel()

	pongs := make(chan struct{}, 1)
	done := make(chan struct{})
	go h.readLoop(conn, pongs, done)

	log := h.logger.With(zap.String("remote", c.ClientIP()), zap.String("app_id", appID))
	log.Debug("Event stream opened")

	if err := h.write(conn, Message{Type: "system", Message: "connected"}); err != nil {
		return
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	var reported uint64
	for {
		select {
		case <-done:
			log.Debug("Event stream closed by client")
			return
		case evt, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if appID != "" && evt.AppID != appID {
				continue
			}
			if dropped := sub.Dropped(); dropped > reported {
				reported = dropped
				if err := h.write(conn, Message{Type: "overflow", Dropped: dropped}); err != nil {
					return
				}
			}
			if err := h.write(conn, evt); err != nil {
				log.Debug("Event stream write failed", zap.Error(err))
				return
			}
		case <-pongs:
			if err := h.write(conn, Message{Type: "pong"}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop consumes client messages. All writes stay on the handler
// goroutine; replies are requested through pongs.
func (h *Handler) readLoop(conn *websocket.Conn, pongs chan<- struct{}, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if msg.Type == "ping" {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
