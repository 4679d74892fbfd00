package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Generator produces a reply for a prompt; the relay holder satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// WSMessage is the JSON frame exchanged on /ws.
// Example: {"type": "chat", "content": "hello"}
type WSMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// jsonMarshal is used when encoding WSMessage; tests may replace it to force Marshal errors.
var (
	jsonMarshalMu sync.RWMutex
	jsonMarshal   = json.Marshal
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and answers each "chat" frame with a "chat"
// reply generated through gen. Bad frames and generation failures produce an
// "error" frame; the connection stays open. Only GET is accepted.
func HandleWS(w http.ResponseWriter, r *http.Request, gen Generator, logger *slog.Logger) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var in WSMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			writeWSMessage(conn, &writeMu, &WSMessage{Type: "error", Content: "invalid JSON"})
			continue
		}
		if in.Type != "chat" {
			writeWSMessage(conn, &writeMu, &WSMessage{Type: "error", Content: "unsupported message type: " + in.Type})
			continue
		}
		if strings.TrimSpace(in.Content) == "" {
			writeWSMessage(conn, &writeMu, &WSMessage{Type: "error", Content: "content must not be empty"})
			continue
		}

		reply, err := gen.Generate(r.Context(), in.Content)
		if err != nil {
			code := statusFor(err)
			logger.Warn("ws completion failed", "status", code, "error", err)
			writeWSMessage(conn, &writeMu, &WSMessage{Type: "error", Content: "error: " + publicError(code)})
			continue
		}
		writeWSMessage(conn, &writeMu, &WSMessage{Type: "chat", Content: reply})
	}
}

func writeWSMessage(conn *websocket.Conn, mu *sync.Mutex, msg *WSMessage) {
	jsonMarshalMu.RLock()
	marshal := jsonMarshal
	jsonMarshalMu.RUnlock()
	data, err := marshal(msg)
	if err != nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, data)
}
