package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// Client is one websocket subscriber. Subscribers may restrict the
// RFM scores and customer IDs they receive.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	filters   ClientFilters
	mu        sync.RWMutex
	lastPing  time.Time
	connected bool
}

// ClientFilters narrows the rows a subscriber receives. Empty filters
// mean everything.
type ClientFilters struct {
	RFMScores   []string `json:"rfm_scores"`
	CustomerIDs []string `json:"customer_ids"`
}

type subscribeMessage struct {
	Type    string        `json:"type"`
	Filters ClientFilters `json:"filters"`
}

// SaveToWebSocket pushes the scored RFM table to connected websocket
// clients, one JSON message per customer row.
type SaveToWebSocket struct {
	hub        *Hub
	processors []processor.Processor
	upgrader   websocket.Upgrader
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("WebSocket client connected, total clients: %d", h.clientCount())
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected, total clients: %d", h.clientCount())
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.connected {
					continue
				}
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func NewSaveToWebSocket(config map[string]interface{}) (*SaveToWebSocket, error) {
	port, ok := config["port"].(string)
	if !ok {
		port = "8080"
	}

	path, ok := config["path"].(string)
	if !ok {
		path = "/ws"
	}

	hub := NewHub()
	go hub.run()

	ws := &SaveToWebSocket{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, ws.handleWebSocket)
	go func() {
		addr := fmt.Sprintf(":%s", port)
		log.Printf("Starting WebSocket server on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("WebSocket server error: %v", err)
		}
	}()

	return ws, nil
}

func (w *SaveToWebSocket) handleWebSocket(rw http.ResponseWriter, req *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan []byte, 256),
		connected: true,
		lastPing:  time.Now(),
	}

	w.hub.register <- client

	go w.readPump(client)
	go w.writePump(client)
}

func (w *SaveToWebSocket) readPump(client *Client) {
	defer func() {
		w.hub.unregister <- client
		client.conn.Close()
	}()

	client.conn.SetReadLimit(64 * 1024)
	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.mu.Lock()
		client.lastPing = time.Now()
		client.mu.Unlock()
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			break
		}

		var sub subscribeMessage
		if err := json.Unmarshal(message, &sub); err != nil {
			log.Printf("Error parsing client message: %v", err)
			continue
		}

		if sub.Type == "subscribe" {
			client.mu.Lock()
			client.filters = sub.Filters
			client.mu.Unlock()
			log.Printf("Client filters updated: %+v", sub.Filters)
		}
	}
}

func (w *SaveToWebSocket) writePump(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			client.mu.RLock()
			lastPing := client.lastPing
			client.mu.RUnlock()

			if time.Since(lastPing) > 90*time.Second {
				log.Printf("WebSocket client timed out")
				return
			}
		}
	}
}

func (w *SaveToWebSocket) Subscribe(processor processor.Processor) {
	w.processors = append(w.processors, processor)
}

func (w *SaveToWebSocket) Process(ctx context.Context, msg processor.Message) error {
	table, err := extractTable(msg)
	if err != nil {
		return fmt.Errorf("error extracting RFM table: %w", err)
	}

	w.hub.mu.Lock()
	defer w.hub.mu.Unlock()

	for _, row := range table.Rows {
		payload, err := json.Marshal(map[string]interface{}{
			"type":           "customer_rfm",
			"customer_id":    row.CustomerID,
			"recency":        row.Recency,
			"frequency":      row.Frequency,
			"monetary":       row.Monetary.String(),
			"r_score":        row.RScore,
			"f_score":        row.FScore,
			"m_score":        row.MScore,
			"rfm_score":      row.RFMScore,
			"reference_date": table.ReferenceDate.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("error marshaling customer row: %w", err)
		}

		for client := range w.hub.clients {
			if !client.connected {
				continue
			}
			if !shouldSendToClient(client, row) {
				continue
			}
			select {
			case client.send <- payload:
			default:
				close(client.send)
				delete(w.hub.clients, client)
			}
		}
	}

	return nil
}

func shouldSendToClient(client *Client, row processor.CustomerRFM) bool {
	client.mu.RLock()
	filters := client.filters
	client.mu.RUnlock()

	if len(filters.RFMScores) == 0 && len(filters.CustomerIDs) == 0 {
		return true
	}

	if len(filters.RFMScores) > 0 {
		match := false
		for _, score := range filters.RFMScores {
			if score == row.RFMScore {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if len(filters.CustomerIDs) > 0 {
		match := false
		for _, id := range filters.CustomerIDs {
			if id == row.CustomerID {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	return true
}

func (w *SaveToWebSocket) Close() error {
	w.hub.mu.Lock()
	defer w.hub.mu.Unlock()
	for client := range w.hub.clients {
		client.conn.Close()
	}
	return nil
}
