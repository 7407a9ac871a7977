package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// PortfolioUpdate is pushed to an account's live connections after a trade
// commits. Money fields are formatted decimal strings.
type PortfolioUpdate struct {
	Type        string `json:"type"`
	Symbol      string `json:"symbol"`
	Shares      int64  `json:"shares"`
	SharesAfter int64  `json:"shares_after"`
	Price       string `json:"price"`
	Cash        string `json:"cash"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(accountID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[accountID] == nil {
		h.clients[accountID] = make(map[*Client]struct{})
	}
	h.clients[accountID][client] = struct{}{}
}

func (h *Hub) Unregister(accountID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[accountID] == nil {
		return
	}
	delete(h.clients[accountID], client)
	if len(h.clients[accountID]) == 0 {
		delete(h.clients, accountID)
	}
}

func (h *Hub) ClientCount(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[accountID])
}

// BroadcastPortfolio never blocks: a client whose buffer is full misses the
// update and picks up current state on its next portfolio read.
func (h *Hub) BroadcastPortfolio(accountID string, update PortfolioUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		slog.Error("encode portfolio update", "account_id", accountID, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[accountID] {
		select {
		case client.send <- payload:
		default:
			slog.Warn("dropping portfolio update for slow client", "account_id", accountID)
		}
	}
}
