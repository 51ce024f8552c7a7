package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"imgchat/internal/transport"
)

var (
	// ErrEmptyMessage rejects a send whose content trims to nothing.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoImage rejects a send when no image is active.
	ErrNoImage = errors.New("no image selected")
	// ErrSendInFlight rejects a second send while one awaits reconciliation.
	ErrSendInFlight = errors.New("a message is already being sent")
)

// Send submits one user message about the active image. The message appears
// in the transcript immediately as a pending turn; on success it is replaced
// by the confirmed exchange, on failure it is removed so the transcript is
// exactly its pre-send state. At most one send is in flight at a time.
func (c *Controller) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)

	c.mu.Lock()
	if content == "" {
		c.mu.Unlock()
		return ErrEmptyMessage
	}
	if c.session.CurrentImage == nil || c.session.CurrentThread == nil {
		c.mu.Unlock()
		return ErrNoImage
	}
	if c.sendInFlight {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	c.sendInFlight = true
	ep := c.epoch
	imageID := c.session.CurrentImage.ImageID
	userID := c.identity.CurrentUser().ID

	pending := Turn{
		ID:           "temp-" + uuid.NewString(),
		Kind:         TurnPending,
		ContextTitle: ContextTitle(content),
		UserMessage:  content,
		Timestamp:    c.now().UTC(),
	}
	c.session.CurrentThread.Turns = append(c.session.CurrentThread.Turns, pending)
	c.mu.Unlock()

	reply, err := c.transport.SendMessage(ctx, transport.SendRequest{
		Message: content,
		ImageID: imageID,
		UserID:  userID,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendInFlight = false

	if c.epoch != ep || c.session.CurrentImage == nil || c.session.CurrentImage.ImageID != imageID {
		// The session moved to a different image mid-send; the thread that
		// held the stub is gone and the reply belongs to nothing visible.
		// The image check catches a transition that was already in flight
		// when this send began and so shares its epoch.
		c.log.Debug().Str("image_id", imageID).Msg("dropping stale send result")
		return ErrStaleResult
	}

	turns := c.session.CurrentThread.Turns
	for i := range turns {
		if turns[i].ID != pending.ID {
			continue
		}
		if err != nil {
			c.session.CurrentThread.Turns = append(turns[:i], turns[i+1:]...)
			break
		}
		now := c.now().UTC()
		turns[i] = Turn{
			ID:           uuid.NewString(),
			Kind:         TurnConfirmed,
			ContextTitle: pending.ContextTitle,
			UserMessage:  content,
			BotResponse:  reply.Response,
			Timestamp:    now,
		}
		if now.After(c.session.CurrentThread.LastActivity) {
			c.session.CurrentThread.LastActivity = now
		}
		break
	}

	if err != nil {
		c.log.Warn().Err(err).Str("image_id", imageID).Msg("send failed, rolled back")
		return errors.New(sendErrorMessage(err))
	}
	c.session.ErrorMessage = ""
	return nil
}

// Sending reports whether a send is awaiting reconciliation.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendInFlight
}

func sendErrorMessage(err error) string {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Failed to send message"
}
