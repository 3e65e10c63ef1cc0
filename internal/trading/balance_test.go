package trading

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeBalanceSource считает обращения к бирже
type fakeBalanceSource struct {
	mu     sync.Mutex
	amount float64
	err    error
	calls  int
}

func (f *fakeBalanceSource) GetBalance(ctx context.Context, asset string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.amount, nil
}

func (f *fakeBalanceSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestBalanceGetCachesWithinTTL(t *testing.T) {
	source := &fakeBalanceSource{amount: 1000}
	m := NewBalanceManager(source, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := m.Get(ctx, "USDT")
		if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		if got != 1000 {
			t.Errorf("баланс %v, ожидался 1000", got)
		}
	}

	if source.callCount() != 1 {
		t.Errorf("в пределах TTL ожидался 1 запрос к бирже, было %d", source.callCount())
	}
}

func TestBalanceGetRefreshesAfterTTL(t *testing.T) {
	source := &fakeBalanceSource{amount: 1000}
	m := NewBalanceManager(source, 10*time.Millisecond)
	ctx := context.Background()

	if _, err := m.Get(ctx, "USDT"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := m.Get(ctx, "USDT"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if source.callCount() != 2 {
		t.Errorf("после истечения TTL ожидалось 2 запроса, было %d", source.callCount())
	}
}

func TestBalanceInvalidateForcesRefresh(t *testing.T) {
	source := &fakeBalanceSource{amount: 1000}
	m := NewBalanceManager(source, time.Minute)
	ctx := context.Background()

	if _, err := m.Get(ctx, "USDT"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	m.Invalidate("USDT")
	if _, err := m.Get(ctx, "USDT"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if source.callCount() != 2 {
		t.Errorf("после сброса кэша ожидалось 2 запроса, было %d", source.callCount())
	}
}

func TestBalanceGetPropagatesError(t *testing.T) {
	source := &fakeBalanceSource{err: fmt.Errorf("биржа недоступна")}
	m := NewBalanceManager(source, time.Minute)

	if _, err := m.Get(context.Background(), "USDT"); err == nil {
		t.Error("ошибка источника должна возвращаться вызывающему")
	}
}

func TestBalanceCachePerAsset(t *testing.T) {
	source := &fakeBalanceSource{amount: 500}
	m := NewBalanceManager(source, time.Minute)
	ctx := context.Background()

	if _, err := m.Get(ctx, "USDT"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if _, err := m.Get(ctx, "BTC"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if source.callCount() != 2 {
		t.Errorf("разные валюты кэшируются раздельно, ожидалось 2 запроса, было %d", source.callCount())
	}
}

func TestBalanceLockSerializes(t *testing.T) {
	m := NewBalanceManager(&fakeBalanceSource{}, time.Minute)

	unlock := m.Lock("USDT")

	acquired := make(chan struct{})
	go func() {
		second := m.Lock("USDT")
		close(acquired)
		second()
	}()

	select {
	case <-acquired:
		t.Fatal("вторая горутина не должна захватить валюту до освобождения")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("вторая горутина не дождалась освобождения валюты")
	}
}
