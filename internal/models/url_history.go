package models

import "time"

// URLHistoryCapacity bounds the per-source URL check log.
const URLHistoryCapacity = 20

// URL check status values recorded in the history ring.
const (
	URLCheckNotFound = "404"
	URLCheckOK       = "ok"
)

// URLCheck is one probe result recorded against a source's URL.
type URLCheck struct {
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
}

// URLHistory is a fixed-capacity ring of the most recent URL checks for a
// source. Only the trailing run of "404" entries is ever interpreted; the
// ring makes the "last 20" bound structural rather than a convention on a
// growing slice. Fields are exported so the ring round-trips through
// badgerhold's encoder unchanged.
type URLHistory struct {
	Checks [URLHistoryCapacity]URLCheck `json:"checks"`
	Head   int                          `json:"head"` // index of the oldest entry
	Count  int                          `json:"count"`
}

// Append records a check, evicting the oldest entry once the ring is full.
func (h *URLHistory) Append(check URLCheck) {
	idx := (h.Head + h.Count) % URLHistoryCapacity
	h.Checks[idx] = check
	if h.Count < URLHistoryCapacity {
		h.Count++
	} else {
		h.Head = (h.Head + 1) % URLHistoryCapacity
	}
}

// Len returns the number of recorded checks.
func (h *URLHistory) Len() int {
	return h.Count
}

// At returns the i-th entry in chronological order (0 = oldest).
func (h *URLHistory) At(i int) URLCheck {
	return h.Checks[(h.Head+i)%URLHistoryCapacity]
}

// Snapshot returns the entries oldest-first.
func (h *URLHistory) Snapshot() []URLCheck {
	out := make([]URLCheck, h.Count)
	for i := 0; i < h.Count; i++ {
		out[i] = h.At(i)
	}
	return out
}

// TrailingRun counts how many of the newest entries share the given status.
func (h *URLHistory) TrailingRun(status string) int {
	run := 0
	for i := h.Count - 1; i >= 0; i-- {
		if h.At(i).Status != status {
			break
		}
		run++
	}
	return run
}
