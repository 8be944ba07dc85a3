// Package keylock сериализует работу по логическому ключу внутри процесса.
package keylock

import (
	"context"
	"sync"
)

// Locker выдаёт отдельную блокировку на каждый ключ и освобождает её, когда ключ
// больше никому не нужен.
type Locker[K comparable] struct {
	mu    sync.Mutex
	slots map[K]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// New создаёт Locker.
func New[K comparable]() *Locker[K] {
	return &Locker[K]{slots: make(map[K]*slot)}
}

// Lock захватывает ключ или возвращает ошибку контекста, если дождаться не удалось.
// Возвращённую функцию нужно вызвать ровно один раз.
func (l *Locker[K]) Lock(ctx context.Context, key K) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *Locker[K]) release(key K, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// Len возвращает количество ключей, которые сейчас кем-то удерживаются или ожидаются.
func (l *Locker[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
