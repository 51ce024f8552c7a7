package transport

import (
	"fmt"
	"time"
)

const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// ChatEvent is one entry of the server's flat chat log. Events are immutable
// once received; the client reshapes them but never writes them back.
type ChatEvent struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// ImageID is empty for events the server could not attribute to an image.
	ImageID      string `json:"image_id"`
	SummaryTitle string `json:"chat_summary_title,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

// Label is one detected object with the classifier's confidence.
type Label struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ImageRef is the server-side metadata for an uploaded image.
type ImageRef struct {
	ImageID string `json:"image_id"`
	// The images endpoint returns the raw document keyed by _id while upload
	// responses carry image_id. Both map onto ImageID.
	RawID             string  `json:"_id,omitempty"`
	Title             string  `json:"title,omitempty"`
	Description       string  `json:"description,omitempty"`
	GeneratedTitle    string  `json:"generated_title,omitempty"`
	VisionDescription string  `json:"vision_description,omitempty"`
	Filename          string  `json:"filename,omitempty"`
	URL               string  `json:"url,omitempty"`
	Labels            []Label `json:"labels,omitempty"`
}

// DisplayTitle picks the best available human title for the image.
func (r *ImageRef) DisplayTitle() string {
	switch {
	case r == nil:
		return ""
	case r.GeneratedTitle != "":
		return r.GeneratedTitle
	case r.Title != "":
		return r.Title
	case r.Filename != "":
		return r.Filename
	default:
		return "Untitled"
	}
}

// Filter narrows a chat-history fetch. Empty fields are omitted from the query.
type Filter struct {
	UserID  string
	ImageID string
}

type SendRequest struct {
	Message string `json:"message"`
	ImageID string `json:"image_id"`
	UserID  string `json:"user_id"`
}

type ChatReply struct {
	Response       string `json:"response"`
	ImageID        string `json:"image_id"`
	ConversationID string `json:"conversation_id"`
}

type DeleteResult struct {
	Message      string `json:"message"`
	DeletedCount int    `json:"deleted_count"`
}

type UploadResult struct {
	Message           string  `json:"message"`
	ImageID           string  `json:"image_id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	VisionDescription string  `json:"vision_description"`
	GeneratedTitle    string  `json:"generated_title"`
	Labels            []Label `json:"labels"`
}

type User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type DatabaseStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ServerStatus struct {
	Server   string         `json:"server"`
	Database DatabaseStatus `json:"database"`
}

// APIError is a non-2xx response decoded from the server's error payload.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Details    string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}
