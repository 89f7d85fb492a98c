package services

import (
	"context"
	"log"
	"sync"
	"time"

	"gamesync/models"
)

const expireTimeout = 10 * time.Second

// TimerScheduler owns the playing → finished transition for timed games. The
// stored Timer stays the single source of truth; the scheduler only wakes up
// at the deadline and asks the controller to expire the game.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	expire func(ctx context.Context, id string) error
	now    func() time.Time
}

func NewTimerScheduler(expire func(ctx context.Context, id string) error) *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[string]*time.Timer),
		expire: expire,
		now:    time.Now,
	}
}

// Schedule arms (or re-arms) the expiry of session id at deadline.
func (t *TimerScheduler) Schedule(id string, deadline time.Time) {
	wait := deadline.Sub(t.now())
	if wait < 0 {
		wait = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[id]; ok {
		existing.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(wait, func() {
		t.mu.Lock()
		if t.timers[id] == timer {
			delete(t.timers, id)
		}
		t.mu.Unlock()
		t.fire(id)
	})
	t.timers[id] = timer
	log.Printf("Timer armed for game %s: %s remaining", id, wait.Round(time.Second))
}

func (t *TimerScheduler) fire(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()
	if err := t.expire(ctx, id); err != nil {
		log.Printf("Failed to expire game %s: %v", id, err)
	}
}

func (t *TimerScheduler) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
}

// Pending returns the number of armed timers.
func (t *TimerScheduler) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Resume arms timers for every playing session, e.g. after a restart.
func (t *TimerScheduler) Resume(sessions []models.GameSession) int {
	n := 0
	for _, s := range sessions {
		if s.Status != models.StatusPlaying || s.Timer == nil || !s.Timer.Initialized {
			continue
		}
		t.Schedule(s.ID, s.Timer.Deadline())
		n++
	}
	return n
}

// Stop disarms every timer.
func (t *TimerScheduler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
