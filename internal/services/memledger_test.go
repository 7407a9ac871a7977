package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"tradesim/internal/models"
	"tradesim/internal/quote"
	"tradesim/internal/store"
	"tradesim/internal/websocket"

	"github.com/jmoiron/sqlx"
)

// memLedger is an in-memory ledger whose WithTx holds one lock for the whole
// closure and restores a snapshot when the closure fails.
type memLedger struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	holdings map[string]map[string]models.Holding
	txs      []models.Transaction
	audit    []store.AuditEntry
	seq      int64
	fail     map[string]error
}

func newMemLedger() *memLedger {
	return &memLedger{
		accounts: make(map[string]models.Account),
		holdings: make(map[string]map[string]models.Holding),
		fail:     make(map[string]error),
	}
}

func (l *memLedger) seed(id string, cash int64) {
	l.accounts[id] = models.Account{ID: id, Username: id, Cash: cash, OpeningCash: cash}
}

// seedHolding places a position without a matching history row.
func (l *memLedger) seedHolding(accountID, symbol string, shares int64) {
	if l.holdings[accountID] == nil {
		l.holdings[accountID] = make(map[string]models.Holding)
	}
	l.holdings[accountID][symbol] = models.Holding{AccountID: accountID, Symbol: symbol, Name: symbol + " Inc.", Shares: shares}
}

type memSnapshot struct {
	accounts map[string]models.Account
	holdings map[string]map[string]models.Holding
	txs      []models.Transaction
	audit    []store.AuditEntry
	seq      int64
}

func (l *memLedger) snapshot() memSnapshot {
	s := memSnapshot{
		accounts: make(map[string]models.Account, len(l.accounts)),
		holdings: make(map[string]map[string]models.Holding, len(l.holdings)),
		txs:      append([]models.Transaction(nil), l.txs...),
		audit:    append([]store.AuditEntry(nil), l.audit...),
		seq:      l.seq,
	}
	for k, v := range l.accounts {
		s.accounts[k] = v
	}
	for acc, rows := range l.holdings {
		cp := make(map[string]models.Holding, len(rows))
		for sym, h := range rows {
			cp[sym] = h
		}
		s.holdings[acc] = cp
	}
	return s
}

func (l *memLedger) restore(s memSnapshot) {
	l.accounts = s.accounts
	l.holdings = s.holdings
	l.txs = s.txs
	l.audit = s.audit
	l.seq = s.seq
}

func (l *memLedger) WithTx(_ context.Context, fn func(*sqlx.Tx) error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := l.snapshot()
	defer func() {
		if p := recover(); p != nil {
			l.restore(snap)
			panic(p)
		}
		if err != nil {
			l.restore(snap)
		}
	}()
	return fn(nil)
}

func (l *memLedger) injected(op string) error {
	return l.fail[op]
}

type memAccounts struct{ *memLedger }

func (m memAccounts) Create(_ context.Context, _ store.Execer, id, username, hash string, cash int64) error {
	if err := m.injected("account.create"); err != nil {
		return err
	}
	for _, a := range m.accounts {
		if a.Username == username {
			return store.ErrUsernameTaken
		}
	}
	m.accounts[id] = models.Account{ID: id, Username: username, PasswordHash: hash, Cash: cash, OpeningCash: cash}
	return nil
}

func (m memAccounts) GetByID(_ context.Context, id string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return models.Account{}, store.ErrNotFound
	}
	return acc, nil
}

func (m memAccounts) GetByUsername(_ context.Context, username string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return models.Account{}, store.ErrNotFound
}

func (m memAccounts) GetForUpdate(_ context.Context, _ store.Getter, id string) (models.Account, error) {
	if err := m.injected("account.lock"); err != nil {
		return models.Account{}, err
	}
	acc, ok := m.accounts[id]
	if !ok {
		return models.Account{}, store.ErrNotFound
	}
	return acc, nil
}

func (m memAccounts) UpdateCash(_ context.Context, _ store.Execer, id string, cash int64) error {
	if err := m.injected("account.update_cash"); err != nil {
		return err
	}
	if cash < 0 {
		return models.ErrNegativeCash
	}
	acc := m.accounts[id]
	acc.Cash = cash
	m.accounts[id] = acc
	return nil
}

func (m memAccounts) Reconcile(_ context.Context, id string) (store.Reconciliation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return store.Reconciliation{}, store.ErrNotFound
	}
	rec := store.Reconciliation{AccountID: id, Cash: acc.Cash, ExpectedCash: acc.OpeningCash}
	sums := map[string]int64{}
	for _, t := range m.txs {
		if t.AccountID != id {
			continue
		}
		rec.ExpectedCash += t.Amount()
		sums[t.Symbol] += t.Shares
	}
	for sym := range m.holdings[id] {
		if _, ok := sums[sym]; !ok {
			sums[sym] = 0
		}
	}
	symbols := make([]string, 0, len(sums))
	for sym := range sums {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		held := m.holdings[id][sym].Shares
		if held != sums[sym] {
			rec.Holdings = append(rec.Holdings, store.HoldingDrift{Symbol: sym, Held: held, Expected: sums[sym]})
		}
	}
	return rec, nil
}

type memHoldings struct{ *memLedger }

func (m memHoldings) Get(_ context.Context, accountID, symbol string) (models.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holdings[accountID][symbol]
	if !ok {
		return models.Holding{}, store.ErrNotFound
	}
	return h, nil
}

func (m memHoldings) GetForUpdate(_ context.Context, _ store.Getter, accountID, symbol string) (models.Holding, error) {
	h, ok := m.holdings[accountID][symbol]
	if !ok {
		return models.Holding{}, store.ErrNotFound
	}
	return h, nil
}

func (m memHoldings) Upsert(_ context.Context, _ store.Getter, h models.Holding) (int64, error) {
	if err := m.injected("holding.upsert"); err != nil {
		return 0, err
	}
	if err := h.Validate(); err != nil {
		return 0, err
	}
	if m.holdings[h.AccountID] == nil {
		m.holdings[h.AccountID] = make(map[string]models.Holding)
	}
	cur, ok := m.holdings[h.AccountID][h.Symbol]
	if ok {
		cur.Shares += h.Shares
	} else {
		cur = h
	}
	m.holdings[h.AccountID][h.Symbol] = cur
	return cur.Shares, nil
}

func (m memHoldings) UpdateShares(_ context.Context, _ store.Execer, accountID, symbol string, shares int64) error {
	if err := m.injected("holding.update"); err != nil {
		return err
	}
	if shares <= 0 {
		return models.ErrNonPositiveShare
	}
	h, ok := m.holdings[accountID][symbol]
	if !ok {
		return store.ErrNotFound
	}
	h.Shares = shares
	m.holdings[accountID][symbol] = h
	return nil
}

func (m memHoldings) Delete(_ context.Context, _ store.Execer, accountID, symbol string) error {
	if err := m.injected("holding.delete"); err != nil {
		return err
	}
	if _, ok := m.holdings[accountID][symbol]; !ok {
		return store.ErrNotFound
	}
	delete(m.holdings[accountID], symbol)
	return nil
}

func (m memHoldings) ListByAccount(_ context.Context, accountID string) ([]models.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]models.Holding, 0, len(m.holdings[accountID]))
	for _, h := range m.holdings[accountID] {
		rows = append(rows, h)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
	return rows, nil
}

type memTransactions struct{ *memLedger }

func (m memTransactions) Append(_ context.Context, _ store.Getter, in store.TransactionInput) (models.Transaction, error) {
	if err := m.injected("transaction.append"); err != nil {
		return models.Transaction{}, err
	}
	if err := models.ValidateTrade(in.Type, in.Shares, in.Price); err != nil {
		return models.Transaction{}, err
	}
	m.seq++
	row := models.Transaction{
		ID:        in.ID,
		Seq:       m.seq,
		AccountID: in.AccountID,
		Symbol:    in.Symbol,
		Shares:    in.Shares,
		Price:     in.Price,
		Type:      in.Type,
	}
	m.txs = append(m.txs, row)
	return row, nil
}

func (m memTransactions) ListByAccount(_ context.Context, accountID string, order store.SortOrder, limit, offset int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.Transaction
	for _, t := range m.txs {
		if t.AccountID == accountID {
			rows = append(rows, t)
		}
	}
	if order == store.OrderDesc {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	if offset >= len(rows) {
		return []models.Transaction{}, nil
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m memTransactions) CountByAccount(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.txs {
		if t.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

type memAudit struct{ *memLedger }

func (m memAudit) Log(_ context.Context, _ store.Execer, actorID, action, entityType, entityID, data string) error {
	if err := m.injected("audit.log"); err != nil {
		return err
	}
	m.audit = append(m.audit, store.AuditEntry{
		ID:         fmt.Sprintf("log-%d", len(m.audit)+1),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
	})
	return nil
}

// fixedQuotes answers from a price table; unknown symbols fail. A symbol
// listed in canonical is echoed back under its canonical spelling.
type fixedQuotes struct {
	mu        sync.Mutex
	prices    map[string]int64
	names     map[string]string
	canonical map[string]string
	calls     int
}

func newFixedQuotes() *fixedQuotes {
	return &fixedQuotes{prices: map[string]int64{}, names: map[string]string{}, canonical: map[string]string{}}
}

func (q *fixedQuotes) set(symbol string, price int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prices[symbol] = price
}

func (q *fixedQuotes) setName(symbol, name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.names[symbol] = name
}

func (q *fixedQuotes) Quote(_ context.Context, symbol string) (models.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	symbol = quote.NormalizeSymbol(symbol)
	price, ok := q.prices[symbol]
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s", quote.ErrLookupFailed, symbol)
	}
	name := q.names[symbol]
	if name == "" {
		name = symbol + " Inc."
	}
	if c, ok := q.canonical[symbol]; ok {
		symbol = c
	}
	return models.Quote{Symbol: symbol, Name: name, Price: price}, nil
}

// stallingQuotes answers listed symbols at once and blocks on the rest until
// the caller's context ends.
type stallingQuotes struct {
	prices map[string]int64
}

func (q stallingQuotes) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	if price, ok := q.prices[symbol]; ok {
		return models.Quote{Symbol: symbol, Name: symbol, Price: price}, nil
	}
	<-ctx.Done()
	return models.Quote{}, fmt.Errorf("%w: %v", quote.ErrLookupFailed, ctx.Err())
}

type recordingHub struct {
	mu      sync.Mutex
	updates []websocket.PortfolioUpdate
}

func (h *recordingHub) BroadcastPortfolio(_ string, update websocket.PortfolioUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, update)
}

type harness struct {
	ledger *memLedger
	quotes *fixedQuotes
	hub    *recordingHub
	svc    *PortfolioService
}

func newHarness() *harness {
	l := newMemLedger()
	q := newFixedQuotes()
	h := &recordingHub{}
	return &harness{
		ledger: l,
		quotes: q,
		hub:    h,
		svc:    NewPortfolioService(l, memAccounts{l}, memHoldings{l}, memTransactions{l}, memAudit{l}, q, h),
	}
}

func (h *harness) state() memSnapshot {
	h.ledger.mu.Lock()
	defer h.ledger.mu.Unlock()
	return h.ledger.snapshot()
}

var errDiskFull = errors.New("disk full")
