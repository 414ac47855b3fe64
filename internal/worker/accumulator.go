package worker

import (
	"sort"
	"strings"
)

// replyAccumulator collects reply text for one ExecuteTask call. Upstream
// payloads repeat text in several shapes (incremental deltas, cumulative
// per-round replies, whole-turn replies), so the accumulator tracks the
// cumulative length already observed per round and returns only the text
// added since the last observation. It is scoped to a single call and is
// not safe for concurrent use; the session's listener invokes it from the
// progress-dispatch path only.
type replyAccumulator struct {
	// rounds holds the cumulative text observed per round index.
	rounds map[int]string
}

func newReplyAccumulator() *replyAccumulator {
	return &replyAccumulator{rounds: make(map[int]string)}
}

// observeDelta appends an incremental chunk to a round.
// Deltas are new text by definition; returns the chunk unchanged.
func (a *replyAccumulator) observeDelta(round int, delta string) string {
	a.rounds[round] += delta
	return delta
}

// observeRound records a cumulative per-round reply and returns the suffix
// not yet seen for that round. Replays of already-observed prefixes return
// the empty string.
func (a *replyAccumulator) observeRound(round int, cumulative string) string {
	seen := a.rounds[round]
	if len(cumulative) <= len(seen) {
		return ""
	}
	a.rounds[round] = cumulative
	return cumulative[len(seen):]
}

// observeReply records a cumulative whole-turn reply. Any text beyond the
// total already accumulated is attributed to the highest round.
func (a *replyAccumulator) observeReply(cumulative string) string {
	total := a.text()
	if len(cumulative) <= len(total) {
		return ""
	}
	increment := cumulative[len(total):]
	a.rounds[a.maxRound()] += increment
	return increment
}

// observeMessage records a complete standalone message as its own round.
func (a *replyAccumulator) observeMessage(message string) string {
	round := a.maxRound()
	if a.rounds[round] != "" {
		round++
	}
	a.rounds[round] = message
	return message
}

// text returns all accumulated text in round-index order.
func (a *replyAccumulator) text() string {
	if len(a.rounds) == 0 {
		return ""
	}
	indices := make([]int, 0, len(a.rounds))
	for i := range a.rounds {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var b strings.Builder
	for _, i := range indices {
		b.WriteString(a.rounds[i])
	}
	return b.String()
}

func (a *replyAccumulator) maxRound() int {
	max := 0
	for i := range a.rounds {
		if i > max {
			max = i
		}
	}
	return max
}
