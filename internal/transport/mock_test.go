package transport

import (
	"context"
	"errors"
	"testing"
)

func TestMock_UploadThenChatThenDelete(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	up, err := m.UploadImage(ctx, "/tmp/cat.jpg", "", "my cat", "u1")
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if up.ImageID == "" || up.Title != "cat.jpg" {
		t.Errorf("upload = %+v", up)
	}

	reply, err := m.SendMessage(ctx, SendRequest{Message: "what do you see", ImageID: up.ImageID, UserID: "u1"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if reply.Response == "" {
		t.Error("empty reply")
	}

	events, err := m.FetchChatEvents(ctx, Filter{ImageID: up.ImageID})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events after one exchange, want 2", len(events))
	}
	if events[0].Role != RoleUser || events[1].Role != RoleBot {
		t.Errorf("roles = %s, %s", events[0].Role, events[1].Role)
	}

	res, err := m.DeleteChatHistory(ctx, up.ImageID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if res.DeletedCount != 2 {
		t.Errorf("deleted = %d", res.DeletedCount)
	}
	events, _ = m.FetchChatEvents(ctx, Filter{ImageID: up.ImageID})
	if len(events) != 0 {
		t.Errorf("%d events survived delete", len(events))
	}
}

func TestMock_UnknownImage(t *testing.T) {
	m := NewMock()
	_, err := m.SendMessage(context.Background(), SendRequest{Message: "hi", ImageID: "nope", UserID: "u1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Errorf("err = %v, want 404 APIError", err)
	}
}
