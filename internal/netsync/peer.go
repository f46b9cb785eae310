package netsync

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // TurnFinished carries every city
	sendBuffer     = 256
)

// Peer is one connection to the host. The local player's peer has no
// connection and no send queue; it reads state through the hub.
type Peer struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	PlayerID economy.PlayerID // assigned by the hub on registration
	Name     string
}

func newPeer(hub *Hub, conn *websocket.Conn, id economy.PlayerID, name string) *Peer {
	return &Peer{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		PlayerID: id,
		Name:     name,
	}
}

func (p *Peer) local() bool { return p.send == nil }

// deliver queues a frame without blocking.
func (p *Peer) deliver(frame []byte) bool {
	if p.local() {
		return true
	}
	select {
	case p.send <- frame:
		return true
	default:
		slog.Warn("peer send buffer full, dropping message", "player", p.PlayerID)
		return false
	}
}

// readPump forwards frames from the socket to the hub.
func (p *Peer) readPump() {
	defer func() {
		select {
		case p.hub.unregister <- p:
		case <-p.hub.done:
		}
		p.conn.Close()
	}()
	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("ws read error", "player", p.PlayerID, "error", err)
			}
			return
		}
		env, err := protocol.Parse(frame)
		if err != nil {
			slog.Warn("ws parse error", "player", p.PlayerID, "error", err)
			continue
		}
		select {
		case p.hub.incoming <- Incoming{Peer: p, Envelope: env}:
		case <-p.hub.done:
			return
		}
	}
}

// writePump drains the send queue to the socket and keeps it alive.
func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Incoming pairs a message with its source peer.
type Incoming struct {
	Peer     *Peer
	Envelope protocol.Envelope
}
