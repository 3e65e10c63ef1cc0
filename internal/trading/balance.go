package trading

import (
	"context"
	"sync"
	"time"
)

// BalanceSource — источник балансов (биржа)
type BalanceSource interface {
	GetBalance(ctx context.Context, asset string) (float64, error)
}

type balanceEntry struct {
	amount  float64
	fetched time.Time
}

// BalanceManager кэширует балансы с TTL и сериализует расчет
// размера входа по котируемой валюте: две горутины не должны
// считать количество от одного и того же еще не потраченного баланса.
type BalanceManager struct {
	source BalanceSource
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]balanceEntry
	locks map[string]*sync.Mutex
}

// NewBalanceManager создает менеджер балансов
func NewBalanceManager(source BalanceSource, ttl time.Duration) *BalanceManager {
	return &BalanceManager{
		source: source,
		ttl:    ttl,
		cache:  make(map[string]balanceEntry),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Lock захватывает валюту на время расчета и размещения ордера.
// Возвращает функцию освобождения.
func (m *BalanceManager) Lock(asset string) func() {
	m.mu.Lock()
	lock, ok := m.locks[asset]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[asset] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Get возвращает доступный баланс, используя кэш с TTL
func (m *BalanceManager) Get(ctx context.Context, asset string) (float64, error) {
	m.mu.Lock()
	entry, ok := m.cache[asset]
	m.mu.Unlock()

	if ok && time.Since(entry.fetched) < m.ttl {
		return entry.amount, nil
	}

	amount, err := m.source.GetBalance(ctx, asset)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.cache[asset] = balanceEntry{amount: amount, fetched: time.Now()}
	m.mu.Unlock()

	return amount, nil
}

// Invalidate сбрасывает кэш валюты. Вызывается сразу после
// размещения любого ордера, затрагивающего эту валюту.
func (m *BalanceManager) Invalidate(asset string) {
	m.mu.Lock()
	delete(m.cache, asset)
	m.mu.Unlock()
}
