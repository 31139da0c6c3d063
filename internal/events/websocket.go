package events

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     buildCheckOrigin(),
}

// buildCheckOrigin restricts websocket upgrades to an allowlist in
// production when DISCOVERY_ALLOWED_ORIGINS is set; otherwise all origins
// are accepted, with a warning logged only in production.
func buildCheckOrigin() func(r *http.Request) bool {
	env := os.Getenv("DISCOVERY_ENV")
	allowedRaw := os.Getenv("DISCOVERY_ALLOWED_ORIGINS")

	if env == "production" && allowedRaw != "" {
		allowed := make(map[string]bool)
		for _, origin := range strings.Split(allowedRaw, ",") {
			allowed[strings.TrimSpace(origin)] = true
		}
		log.Printf("[WS] origin allowlist active (%d origins)", len(allowed))
		return func(r *http.Request) bool {
			if allowed[r.Header.Get("Origin")] {
				return true
			}
			log.Printf("[WS] rejected connection from origin: %s", r.Header.Get("Origin"))
			return false
		}
	}

	if env == "production" && allowedRaw == "" {
		log.Println("[WS] DISCOVERY_ALLOWED_ORIGINS not set in production, allowing all origins")
	}
	return func(r *http.Request) bool { return true }
}

// Hub upgrades HTTP connections to websockets and streams an
// organization's events to them. It is a one-way push surface: clients
// never send domain messages back, only pong keepalives.
type Hub struct {
	bus    Bus
	logger *log.Logger
}

// NewHub creates a websocket hub backed by bus.
func NewHub(bus Bus, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(log.Writer(), "[WS] ", log.LstdFlags)
	}
	return &Hub{bus: bus, logger: logger}
}

// ServeHTTP upgrades the request and streams organizationID's events
// until the client disconnects. organizationID must already have been
// resolved and authorized by upstream middleware.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, organizationID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}

	ch, unsubscribe := h.bus.Subscribe(organizationID)
	h.logger.Printf("subscriber connected: org=%s", organizationID)

	go h.stream(conn, ch, unsubscribe, organizationID)
}

func (h *Hub) stream(conn *websocket.Conn, events <-chan *CloudEvent, unsubscribe func(), organizationID string) {
	defer func() {
		unsubscribe()
		conn.Close()
		h.logger.Printf("subscriber disconnected: org=%s", organizationID)
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// drain and discard any client-sent frames so pong handling runs;
	// this hub accepts no inbound domain messages.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := event.JSON()
			if err != nil {
				h.logger.Printf("failed to marshal event %s: %v", event.ID, err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
