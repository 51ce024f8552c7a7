package chat

import (
	"sort"
	"strings"
	"time"

	"imgchat/internal/transport"
)

// NoResponse is the bot side of a turn whose user message never got a reply.
const NoResponse = "No response"

type TurnKind int

const (
	// TurnConfirmed is a server-acknowledged exchange.
	TurnConfirmed TurnKind = iota
	// TurnPending is an optimistic local insert awaiting reconciliation.
	TurnPending
)

// Turn is one paired (user message, bot response) exchange. A pending turn has
// no bot response yet.
type Turn struct {
	ID           string
	Kind         TurnKind
	ContextTitle string
	UserMessage  string
	BotResponse  string
	Timestamp    time.Time
}

// Thread is the conversation attached to one image, turns oldest first.
type Thread struct {
	ImageID      string
	Title        string
	LastActivity time.Time
	Turns        []Turn
}

// Clone returns a copy whose turn slice does not alias the receiver's.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Turns = append([]Turn(nil), t.Turns...)
	return &cp
}

// Grouper reshapes a flat chat-event log into per-image threads.
//
// The zero value reproduces the historical pairing policy: each user message
// takes the earliest later bot reply without marking it consumed, so one reply
// can pair with several user messages when timestamps allow it. Setting
// ConsumeReplies pairs every reply at most once, at the cost of different
// output on such logs.
type Grouper struct {
	ConsumeReplies bool
}

// Group builds one thread per distinct image id, threads ordered by most
// recent activity first, turns within a thread oldest first. Events without
// an image id are dropped. The input is not mutated and identical input
// yields identical output.
func (g Grouper) Group(events []transport.ChatEvent) []Thread {
	byImage := make(map[string]*Thread)
	var order []string
	consumed := make(map[int]bool)

	for i, ev := range events {
		if ev.ImageID == "" {
			continue
		}
		th, ok := byImage[ev.ImageID]
		if !ok {
			th = &Thread{ImageID: ev.ImageID, Title: ev.SummaryTitle, LastActivity: ev.Timestamp}
			byImage[ev.ImageID] = th
			order = append(order, ev.ImageID)
		}
		if th.Title == "" && ev.SummaryTitle != "" {
			th.Title = ev.SummaryTitle
		}
		if ev.Role != transport.RoleUser {
			continue
		}

		response := NoResponse
		if j, ok := g.findReply(events, i, consumed); ok {
			response = events[j].Content
			if g.ConsumeReplies {
				consumed[j] = true
			}
		}

		th.Turns = append(th.Turns, Turn{
			ID:           ev.ID,
			Kind:         TurnConfirmed,
			ContextTitle: ContextTitle(ev.Content),
			UserMessage:  ev.Content,
			BotResponse:  response,
			Timestamp:    ev.Timestamp,
		})
		if ev.Timestamp.After(th.LastActivity) {
			th.LastActivity = ev.Timestamp
		}
	}

	threads := make([]Thread, 0, len(order))
	for _, id := range order {
		th := byImage[id]
		sort.SliceStable(th.Turns, func(a, b int) bool {
			return th.Turns[a].Timestamp.Before(th.Turns[b].Timestamp)
		})
		threads = append(threads, *th)
	}
	sort.SliceStable(threads, func(a, b int) bool {
		return threads[a].LastActivity.After(threads[b].LastActivity)
	})
	return threads
}

// findReply locates the earliest bot event strictly after the user event at
// index i that is either unattributed or attributed to the same image. Ties on
// timestamp resolve to the earlier arrival.
func (g Grouper) findReply(events []transport.ChatEvent, i int, consumed map[int]bool) (int, bool) {
	user := events[i]
	best := -1
	for j, ev := range events {
		if ev.Role != transport.RoleBot {
			continue
		}
		if g.ConsumeReplies && consumed[j] {
			continue
		}
		if !ev.Timestamp.After(user.Timestamp) {
			continue
		}
		if ev.ImageID != "" && ev.ImageID != user.ImageID {
			continue
		}
		if best == -1 || ev.Timestamp.Before(events[best].Timestamp) {
			best = j
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// ContextTitle derives a short summary for list views: the first five words of
// the message, ellipsized.
func ContextTitle(message string) string {
	words := strings.Fields(message)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ") + "..."
}
