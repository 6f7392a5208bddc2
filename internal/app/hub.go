package app

import (
	"sync"

	"challenge-engine/internal/domain"
)

// LeaderboardHub fans leaderboard snapshots out to live subscribers of a challenge.
type LeaderboardHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardHub() *LeaderboardHub {
	return &LeaderboardHub{subscribers: make(map[string]map[chan domain.Leaderboard]struct{})}
}

// Subscribe registers a listener. The caller must invoke cancel to avoid leaks.
func (h *LeaderboardHub) Subscribe(challengeID string) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	set, ok := h.subscribers[challengeID]
	if !ok {
		set = make(map[chan domain.Leaderboard]struct{})
		h.subscribers[challengeID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		set, ok := h.subscribers[challengeID]
		if !ok {
			return
		}
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.subscribers, challengeID)
		}
	}
	return ch, cancel
}

// Publish delivers lb to every subscriber of its challenge. A full buffer drops its
// oldest snapshot so a slow reader never blocks completions.
func (h *LeaderboardHub) Publish(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[lb.ChallengeID] {
		select {
		case ch <- lb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

// SubscriberCount reports how many listeners a challenge has.
func (h *LeaderboardHub) SubscriberCount(challengeID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[challengeID])
}
