package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"imgchat/internal/identity"
	"imgchat/internal/transport"
)

// Transport is the slice of the backend client the conversation engine needs.
// *transport.Client and *transport.Mock both satisfy it.
type Transport interface {
	FetchChatEvents(ctx context.Context, f transport.Filter) ([]transport.ChatEvent, error)
	FetchImage(ctx context.Context, imageID, userID string) (*transport.ImageRef, error)
	SendMessage(ctx context.Context, req transport.SendRequest) (*transport.ChatReply, error)
	DeleteChatHistory(ctx context.Context, imageID, userID string) (*transport.DeleteResult, error)
}

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusActive
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusActive:
		return "active"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Session is the read-only snapshot handed to the presentation layer.
type Session struct {
	Status        Status
	CurrentImage  *transport.ImageRef
	CurrentThread *Thread
	ErrorMessage  string
}

// ErrStaleResult marks a completed request whose target context is no longer
// the active one. It is discarded, never surfaced to the user.
var ErrStaleResult = errors.New("result no longer matches current session")

// Controller owns the single session: which image is active, which transcript
// is displayed, and every transition between them. All mutations funnel
// through its methods; callers only ever see copies.
type Controller struct {
	mu        sync.Mutex
	transport Transport
	identity  identity.Provider
	grouper   Grouper
	log       zerolog.Logger
	now       func() time.Time

	session Session
	history []Thread
	// epoch invalidates in-flight results; see beginTransitionLocked.
	epoch        uint64
	sendInFlight bool
}

func NewController(t Transport, id identity.Provider, log zerolog.Logger) *Controller {
	return &Controller{
		transport: t,
		identity:  id,
		log:       log,
		now:       time.Now,
		session:   Session{Status: StatusIdle},
	}
}

// SetGrouper replaces the grouping policy. Call before first use.
func (c *Controller) SetGrouper(g Grouper) { c.grouper = g }

// Snapshot returns a copy of the session safe to render from any goroutine.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Session {
	s := c.session
	if s.CurrentImage != nil {
		img := *s.CurrentImage
		s.CurrentImage = &img
	}
	s.CurrentThread = s.CurrentThread.Clone()
	return s
}

// History returns the cached sidebar listing, most recent thread first.
func (c *Controller) History() []Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Thread, len(c.history))
	for i := range c.history {
		out[i] = *c.history[i].Clone()
	}
	return out
}

// SelectFromHistory makes the given image the active conversation. On failure
// the prior image and transcript are left untouched so the last good state
// stays visible behind the error.
func (c *Controller) SelectFromHistory(ctx context.Context, imageID string) error {
	userID := c.identity.CurrentUser().ID

	c.mu.Lock()
	ep := c.beginTransitionLocked()
	c.mu.Unlock()

	img, err := c.transport.FetchImage(ctx, imageID, userID)
	var events []transport.ChatEvent
	if err == nil {
		events, err = c.transport.FetchChatEvents(ctx, transport.Filter{UserID: userID, ImageID: imageID})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != ep {
		c.log.Debug().Str("image_id", imageID).Msg("dropping stale select result")
		return ErrStaleResult
	}
	if err != nil {
		c.session.Status = StatusError
		c.session.ErrorMessage = "Failed to load image and chat history: " + errorMessage(err)
		c.log.Warn().Err(err).Str("image_id", imageID).Msg("select from history failed")
		return err
	}

	c.session.Status = StatusActive
	c.session.ErrorMessage = ""
	c.session.CurrentImage = img
	c.session.CurrentThread = c.threadFor(img, events)
	return nil
}

// OnImageUploaded makes a freshly uploaded image active. A new image normally
// has no history yet; any server-confirmed events for it are fetched best
// effort, but a fetch failure never blocks the session from going active.
func (c *Controller) OnImageUploaded(ctx context.Context, img *transport.ImageRef) error {
	userID := c.identity.CurrentUser().ID

	c.mu.Lock()
	ep := c.beginTransitionLocked()
	c.session.CurrentImage = img
	c.session.CurrentThread = &Thread{ImageID: img.ImageID, Title: img.DisplayTitle()}
	c.mu.Unlock()

	events, err := c.transport.FetchChatEvents(ctx, transport.Filter{UserID: userID, ImageID: img.ImageID})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != ep {
		return ErrStaleResult
	}
	c.session.Status = StatusActive
	c.session.ErrorMessage = ""
	if err != nil {
		c.log.Warn().Err(err).Str("image_id", img.ImageID).Msg("history fetch for new image failed")
		return nil
	}
	c.session.CurrentThread = c.threadFor(img, events)
	return nil
}

// RefreshHistory rebuilds the sidebar listing from the user's full event log.
func (c *Controller) RefreshHistory(ctx context.Context) error {
	userID := c.identity.CurrentUser().ID

	c.mu.Lock()
	ep := c.epoch
	c.mu.Unlock()

	events, err := c.transport.FetchChatEvents(ctx, transport.Filter{UserID: userID})
	if err != nil {
		return err
	}
	threads := c.grouper.Group(events)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != ep {
		return ErrStaleResult
	}
	c.history = threads
	return nil
}

// DeleteThread removes an image's chat history on the server and drops it
// from the cached listing. If it was the active conversation the transcript
// is cleared but the image stays selected.
func (c *Controller) DeleteThread(ctx context.Context, imageID string) error {
	userID := c.identity.CurrentUser().ID
	if _, err := c.transport.DeleteChatHistory(ctx, imageID, userID); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.history[:0]
	for _, th := range c.history {
		if th.ImageID != imageID {
			kept = append(kept, th)
		}
	}
	c.history = kept
	if c.session.CurrentImage != nil && c.session.CurrentImage.ImageID == imageID {
		c.session.CurrentThread = &Thread{ImageID: imageID, Title: c.session.CurrentImage.DisplayTitle()}
	}
	return nil
}

// Reset returns the session to idle, used on logout or explicit start-over.
// Any in-flight results become stale and are discarded on arrival.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.sendInFlight = false
	c.session = Session{Status: StatusIdle}
	c.history = nil
}

// beginTransitionLocked enters Loading and invalidates every earlier
// in-flight operation. Returns the epoch the caller must present when
// applying its result.
func (c *Controller) beginTransitionLocked() uint64 {
	c.epoch++
	c.session.Status = StatusLoading
	return c.epoch
}

func (c *Controller) threadFor(img *transport.ImageRef, events []transport.ChatEvent) *Thread {
	for _, th := range c.grouper.Group(events) {
		if th.ImageID == img.ImageID {
			t := th
			if t.Title == "" {
				t.Title = img.DisplayTitle()
			}
			return &t
		}
	}
	return &Thread{ImageID: img.ImageID, Title: img.DisplayTitle()}
}

func errorMessage(err error) string {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
