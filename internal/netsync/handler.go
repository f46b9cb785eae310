package netsync

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/talgya/tradewinds/internal/economy"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades a join request. Query parameters: name, and player for a
// client reconnecting under its old id.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var id economy.PlayerID
	if raw := r.URL.Query().Get("player"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid player parameter", http.StatusBadRequest)
			return
		}
		id = economy.PlayerID(n)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade error", "error", err)
		return
	}
	h.ServePeer(conn, id, r.URL.Query().Get("name"))
}
