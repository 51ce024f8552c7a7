package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"imgchat/internal/chat"
	"imgchat/internal/identity"
	"imgchat/internal/transport"
)

// Backend is the full client surface of the image-chat server: the
// conversation-engine slice plus the calls only the UI and CLI use.
// *transport.Client and *transport.Mock both satisfy it.
type Backend interface {
	chat.Transport
	Status(ctx context.Context) (*transport.ServerStatus, error)
	UploadImage(ctx context.Context, path, title, description, userID string) (*transport.UploadResult, error)
	Login(ctx context.Context, email, password string) (*transport.User, error)
	Register(ctx context.Context, username, email, password string) (string, error)
}

// Application wires config, logging, transport, identity and the
// conversation controller together.
type Application struct {
	Config     Config
	Logger     zerolog.Logger
	Backend    Backend
	Identity   *identity.Store
	Controller *chat.Controller
}

func NewApplication(cfg Config, mockMode bool) *Application {
	logPath := cfg.LogFile
	if logPath == "" {
		logPath = DefaultLogPath()
	}
	logger := NewLogger(logPath, cfg.LogLevel)

	var backend Backend
	if mockMode {
		backend = seededMock()
	} else {
		backend = transport.NewClient(cfg.ServerURL, logger)
	}

	ident := identity.NewStore(cfg.UserID)
	if cfg.Username != "" {
		ident.SetUser(identity.User{ID: cfg.UserID, Username: cfg.Username})
	}

	controller := chat.NewController(backend, ident, logger)
	controller.SetGrouper(chat.Grouper{ConsumeReplies: cfg.ConsumeReplies})

	return &Application{
		Config:     cfg,
		Logger:     logger,
		Backend:    backend,
		Identity:   ident,
		Controller: controller,
	}
}

// seededMock gives offline mode something to browse.
func seededMock() *transport.Mock {
	m := transport.NewMock()
	base := time.Now().UTC().Add(-24 * time.Hour)
	m.Seed(
		transport.ImageRef{
			ImageID:           "demo-cat",
			Title:             "cat.jpg",
			GeneratedTitle:    "Tabby Cat on a Sofa",
			VisionDescription: "A tabby cat sitting on a gray sofa next to a cushion.",
			Labels: []transport.Label{
				{Label: "cat", Confidence: 0.98},
				{Label: "sofa", Confidence: 0.87},
			},
		},
		transport.ChatEvent{ID: "e1", Role: transport.RoleUser, Content: "what is this", Timestamp: base, ImageID: "demo-cat"},
		transport.ChatEvent{ID: "e2", Role: transport.RoleBot, Content: "I can see: cat, sofa.", Timestamp: base.Add(2 * time.Second), ImageID: "demo-cat"},
	)
	return m
}
