package assistant

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// TurnGuard допускает не более одного хода на беседу. Слот освобождается
// только после завершения хода и паузы cooldown.
type TurnGuard struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]*semaphore.Weighted
	cooldown time.Duration
}

func NewTurnGuard(cooldown time.Duration) *TurnGuard {
	return &TurnGuard{
		slots:    make(map[uuid.UUID]*semaphore.Weighted),
		cooldown: cooldown,
	}
}

// TryAcquire занимает слот беседы без ожидания. При успехе возвращает функцию
// освобождения; повторные вызовы release безопасны.
func (g *TurnGuard) TryAcquire(conversationID uuid.UUID) (release func(), ok bool) {
	sem := g.slot(conversationID)
	if !sem.TryAcquire(1) {
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if g.cooldown <= 0 {
				sem.Release(1)
				return
			}
			time.AfterFunc(g.cooldown, func() { sem.Release(1) })
		})
	}, true
}

func (g *TurnGuard) slot(conversationID uuid.UUID) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()

	sem, ok := g.slots[conversationID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		g.slots[conversationID] = sem
	}
	return sem
}
