package transport

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mock simulates the image-chat backend in memory so the client can run
// without a server (and so tests have a deterministic backend). It implements
// the same surface as Client.
type Mock struct {
	mu     sync.Mutex
	images map[string]*ImageRef
	events []ChatEvent
	Calls  int
}

func NewMock() *Mock {
	return &Mock{images: make(map[string]*ImageRef)}
}

// Seed installs an image and its chat events, replacing any prior state for
// that image id.
func (m *Mock) Seed(img ImageRef, events ...ChatEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[img.ImageID] = &img
	m.events = append(m.events, events...)
}

func (m *Mock) Status(ctx context.Context) (*ServerStatus, error) {
	return &ServerStatus{Server: "running", Database: DatabaseStatus{Status: "Connected"}}, nil
}

func (m *Mock) FetchChatEvents(ctx context.Context, f Filter) ([]ChatEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	var out []ChatEvent
	for _, ev := range m.events {
		if f.ImageID != "" && ev.ImageID != f.ImageID {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *Mock) FetchImage(ctx context.Context, imageID, userID string) (*ImageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	img, ok := m.images[imageID]
	if !ok {
		return nil, &APIError{StatusCode: 404, Message: "Image not found"}
	}
	cp := *img
	return &cp, nil
}

func (m *Mock) SendMessage(ctx context.Context, req SendRequest) (*ChatReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	img, ok := m.images[req.ImageID]
	if !ok {
		return nil, &APIError{StatusCode: 404, Message: "Image not found"}
	}
	reply := m.replyFor(img, req.Message)
	now := time.Now().UTC()
	m.events = append(m.events,
		ChatEvent{ID: uuid.NewString(), Role: RoleUser, Content: req.Message, Timestamp: now, ImageID: req.ImageID},
		ChatEvent{ID: uuid.NewString(), Role: RoleBot, Content: reply, Timestamp: now.Add(time.Millisecond), ImageID: req.ImageID},
	)
	return &ChatReply{Response: reply, ImageID: req.ImageID, ConversationID: uuid.NewString()}, nil
}

func (m *Mock) replyFor(img *ImageRef, message string) string {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "what") || strings.Contains(msg, "see"):
		if len(img.Labels) > 0 {
			names := make([]string, 0, len(img.Labels))
			for _, l := range img.Labels {
				names = append(names, l.Label)
			}
			return "I can see: " + strings.Join(names, ", ") + "."
		}
		if img.VisionDescription != "" {
			return img.VisionDescription
		}
		return "I don't have analysis data for this image yet."
	case strings.Contains(msg, "title"):
		return "This image is titled " + img.DisplayTitle() + "."
	default:
		return fmt.Sprintf("You asked about %q. The image %s doesn't tell me more than that.", message, img.DisplayTitle())
	}
}

func (m *Mock) DeleteChatHistory(ctx context.Context, imageID, userID string) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	kept := m.events[:0]
	deleted := 0
	for _, ev := range m.events {
		if ev.ImageID == imageID {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return &DeleteResult{Message: "Chat history deleted successfully", DeletedCount: deleted}, nil
}

func (m *Mock) UploadImage(ctx context.Context, path, title, description, userID string) (*UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if title == "" {
		title = filepath.Base(path)
	}
	img := &ImageRef{
		ImageID:           uuid.NewString(),
		Title:             title,
		Description:       description,
		Filename:          filepath.Base(path),
		GeneratedTitle:    title,
		VisionDescription: "A locally mocked image with no real analysis.",
		Labels: []Label{
			{Label: "object", Confidence: 0.92},
			{Label: "background", Confidence: 0.71},
		},
	}
	m.images[img.ImageID] = img
	return &UploadResult{
		Message:           "File uploaded and analyzed successfully",
		ImageID:           img.ImageID,
		Title:             img.Title,
		Description:       img.Description,
		VisionDescription: img.VisionDescription,
		GeneratedTitle:    img.GeneratedTitle,
		Labels:            img.Labels,
	}, nil
}

func (m *Mock) Login(ctx context.Context, email, password string) (*User, error) {
	name := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		name = email[:i]
	}
	return &User{UserID: "mock-" + name, Username: name, Email: email}, nil
}

func (m *Mock) Register(ctx context.Context, username, email, password string) (string, error) {
	return "mock-" + username, nil
}
