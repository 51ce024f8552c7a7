package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, zerolog.Nop())
}

func TestFetchChatEvents_QueryAndDecode(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat-history" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "u1" {
			t.Errorf("user_id = %q", got)
		}
		if got := r.URL.Query().Get("image_id"); got != "img1" {
			t.Errorf("image_id = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"chat_history": []map[string]any{
				{"id": "a", "role": "user", "content": "hi", "timestamp": "2024-03-01T12:00:00+00:00", "image_id": "img1"},
				{"id": "b", "role": "bot", "content": "hello", "timestamp": nil, "image_id": "img1"},
			},
		})
	})

	events, err := c.FetchChatEvents(context.Background(), Filter{UserID: "u1", ImageID: "img1"})
	if err != nil {
		t.Fatalf("FetchChatEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if !events[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", events[0].Timestamp, want)
	}
	if !events[1].Timestamp.IsZero() {
		t.Errorf("null timestamp decoded to %v", events[1].Timestamp)
	}
}

func TestFetchImage_MapsRawID(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/abc123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"_id":             "abc123",
			"title":           "cat.jpg",
			"generated_title": "Tabby Cat",
			"labels":          []map[string]any{{"label": "cat", "confidence": 0.98}},
		})
	})

	img, err := c.FetchImage(context.Background(), "abc123", "u1")
	if err != nil {
		t.Fatalf("FetchImage: %v", err)
	}
	if img.ImageID != "abc123" {
		t.Errorf("ImageID = %q", img.ImageID)
	}
	if img.DisplayTitle() != "Tabby Cat" {
		t.Errorf("DisplayTitle = %q", img.DisplayTitle())
	}
	if len(img.Labels) != 1 || img.Labels[0].Label != "cat" {
		t.Errorf("labels = %+v", img.Labels)
	}
}

func TestSendMessage_PostsJSON(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Message != "what is it" || req.ImageID != "img1" || req.UserID != "u1" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(ChatReply{Response: "a cat", ImageID: "img1"})
	})

	reply, err := c.SendMessage(context.Background(), SendRequest{Message: "what is it", ImageID: "img1", UserID: "u1"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if reply.Response != "a cat" {
		t.Errorf("response = %q", reply.Response)
	}
}

func TestErrorPayloadBecomesAPIError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Image not found"})
	})

	_, err := c.FetchImage(context.Background(), "missing", "u1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T %v, want *APIError", err, err)
	}
	if apiErr.StatusCode != 404 || apiErr.Message != "Image not found" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestNonJSONErrorBodyKeepsStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})

	_, err := c.Status(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if apiErr.StatusCode != 502 {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Error() == "" {
		t.Error("empty error string")
	}
}

func TestDeleteChatHistory(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/chat-history/img1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "u1" {
			t.Errorf("user_id = %q", got)
		}
		_ = json.NewEncoder(w).Encode(DeleteResult{Message: "Chat history deleted successfully", DeletedCount: 4})
	})

	res, err := c.DeleteChatHistory(context.Background(), "img1", "u1")
	if err != nil {
		t.Fatalf("DeleteChatHistory: %v", err)
	}
	if res.DeletedCount != 4 {
		t.Errorf("deleted = %d", res.DeletedCount)
	}
}

func TestLogin_UnwrapsUser(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "sam@example.com" {
			t.Errorf("email = %q", body["email"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "Login successful",
			"user":    User{UserID: "u9", Username: "sam", Email: "sam@example.com"},
		})
	})

	user, err := c.Login(context.Background(), "sam@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.UserID != "u9" || user.Username != "sam" {
		t.Errorf("user = %+v", user)
	}
}
