package cache

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/voxel-mesher/internal/logging"
)

// writeItem отложенная запись в ColdStorage
type writeItem struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// writeBehind буфер отложенных записей в ColdStorage.
// Последняя запись ключа заменяет предыдущую. forget убирает ключ из буфера
// и из хранилища так, что идущий сброс его не вернёт.
type writeBehind struct {
	store ColdStorage
	batch int

	mu      sync.Mutex
	pending map[string]*writeItem

	// flushMu держится на время Store пачки и Delete в forget
	flushMu sync.Mutex

	full chan struct{}
}

func newWriteBehind(store ColdStorage, batch int) *writeBehind {
	return &writeBehind{
		store:   store,
		batch:   batch,
		pending: make(map[string]*writeItem),
		full:    make(chan struct{}, 1),
	}
}

// enqueue false, если буфер переполнен (2 пачки) и ключа в нём ещё нет
func (w *writeBehind) enqueue(item *writeItem) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.pending[item.Key]; !ok && len(w.pending) >= 2*w.batch {
		return false
	}
	w.pending[item.Key] = item

	if len(w.pending) >= w.batch {
		select {
		case w.full <- struct{}{}:
		default:
		}
	}
	return true
}

// forget снимает ключ с очереди и удаляет его из ColdStorage
func (w *writeBehind) forget(ctx context.Context, key string) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	delete(w.pending, key)
	w.mu.Unlock()

	return w.store.Delete(ctx, key)
}

func (w *writeBehind) pendingLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// flush записывает накопленное, возвращает число неудачных записей
func (w *writeBehind) flush() int {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]*writeItem)
	w.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := 0
	for _, item := range batch {
		if err := w.store.Store(ctx, item.Key, item.Value, item.TTL); err != nil {
			failed++
			logging.Error("Write-Behind: запись %s: %v", item.Key, err)
		}
	}
	logging.Debug("Write-Behind: %d записей (%d с ошибкой) за %v", len(batch), failed, time.Since(start))
	return failed
}

// run сбрасывает буфер по тикеру и при заполнении пачки, до закрытия stop
func (w *writeBehind) run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flush()
		case <-w.full:
			w.flush()
		case <-stop:
			w.flush()
			return
		}
	}
}
