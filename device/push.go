package device

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime"
	"sync"

	"github.com/gorilla/websocket"
)

type pushData struct {
	Memory uint64 `json:"memory"`
}

type pushMessage struct {
	Logs map[string]string `json:"logs"`
	Data pushData          `json:"data"`
}

// pushHandler serves /connect-websocket. Only one client is served at a
// time; a new connection closes the previous one.
type pushHandler struct {
	journal  *Journal
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	active *websocket.Conn
}

func newPushHandler(journal *Journal, logger *log.Logger) *pushHandler {
	return &pushHandler{
		journal: journal,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (p *pushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Printf("Websocket upgrade failed: %v", err)
		return
	}

	p.mu.Lock()
	if p.active != nil {
		p.active.Close()
	}
	p.active = conn
	p.mu.Unlock()
	p.logger.Printf("Log client connected from %s", r.RemoteAddr)

	defer func() {
		p.mu.Lock()
		if p.active == conn {
			p.active = nil
		}
		p.mu.Unlock()
		conn.Close()
	}()

	// The client never sends anything; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lastSent := int64(-1)
	for {
		changed := p.journal.Changed()
		logs, last := p.journal.Snapshot()
		if last != lastSent {
			payload, err := json.Marshal(pushMessage{Logs: logs, Data: pushData{Memory: freeMemory()}})
			if err != nil {
				p.logger.Printf("Error encoding log push: %v", err)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				p.logger.Printf("Error writing log push: %v", err)
				return
			}
			lastSent = last
		}

		select {
		case <-changed:
		case <-closed:
			p.logger.Printf("Log client disconnected from %s", r.RemoteAddr)
			return
		}
	}
}

func (p *pushHandler) closeActive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		p.active.Close()
		p.active = nil
	}
}

func freeMemory() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapIdle
}
