package chat

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"imgchat/internal/transport"
)

func activeController(t *testing.T, ft *fakeTransport) *Controller {
	t.Helper()
	c := newTestController(t, ft)
	if err := c.SelectFromHistory(context.Background(), "img1"); err != nil {
		t.Fatalf("activating session: %v", err)
	}
	return c
}

func TestSend_AppendsConfirmedTurn(t *testing.T) {
	ft := &fakeTransport{
		sendMessage: func(ctx context.Context, req transport.SendRequest) (*transport.ChatReply, error) {
			if req.ImageID != "img1" || req.UserID != "u1" {
				t.Errorf("request = %+v", req)
			}
			return &transport.ChatReply{Response: "it is a cat", ImageID: req.ImageID}, nil
		},
	}
	c := activeController(t, ft)

	if err := c.Send(context.Background(), "what is it"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	s := c.Snapshot()
	turns := s.CurrentThread.Turns
	last := turns[len(turns)-1]
	if last.Kind != TurnConfirmed {
		t.Errorf("last turn kind = %v, want confirmed", last.Kind)
	}
	if last.UserMessage != "what is it" || last.BotResponse != "it is a cat" {
		t.Errorf("last turn = %+v", last)
	}
	for _, turn := range turns {
		if turn.Kind == TurnPending {
			t.Error("pending turn survived reconciliation")
		}
	}
}

func TestSend_ValidationRejectsWithoutStateChange(t *testing.T) {
	calls := 0
	ft := &fakeTransport{
		sendMessage: func(ctx context.Context, req transport.SendRequest) (*transport.ChatReply, error) {
			calls++
			return &transport.ChatReply{Response: "ok"}, nil
		},
	}

	t.Run("empty message", func(t *testing.T) {
		c := activeController(t, ft)
		before := c.Snapshot().CurrentThread.Turns
		if err := c.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("err = %v, want ErrEmptyMessage", err)
		}
		if !reflect.DeepEqual(before, c.Snapshot().CurrentThread.Turns) {
			t.Error("thread changed")
		}
	})

	t.Run("no active image", func(t *testing.T) {
		c := newTestController(t, ft)
		if err := c.Send(context.Background(), "hello"); !errors.Is(err, ErrNoImage) {
			t.Fatalf("err = %v, want ErrNoImage", err)
		}
	})

	if calls != 0 {
		t.Errorf("transport called %d times for rejected sends", calls)
	}
}

func TestSend_FailureRollsBackExactly(t *testing.T) {
	ft := &fakeTransport{
		sendMessage: func(ctx context.Context, req transport.SendRequest) (*transport.ChatReply, error) {
			return nil, &transport.APIError{StatusCode: 500, Message: "Failed to process chat request"}
		},
	}
	c := activeController(t, ft)
	before := c.Snapshot().CurrentThread.Turns

	err := c.Send(context.Background(), "describe it")
	if err == nil {
		t.Fatal("Send should fail")
	}
	if err.Error() != "Failed to process chat request" {
		t.Errorf("error = %q, want the server's message", err.Error())
	}
	after := c.Snapshot().CurrentThread.Turns
	if !reflect.DeepEqual(before, after) {
		t.Errorf("thread not restored:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestSend_GenericMessageForTransportFailure(t *testing.T) {
	ft := &fakeTransport{
		sendMessage: func(ctx context.Context, req transport.SendRequest) (*transport.ChatReply, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	c := activeController(t, ft)

	err := c.Send(context.Background(), "hello")
	if err == nil || err.Error() != "Failed to send message" {
		t.Errorf("error = %v, want generic send failure", err)
	}
}

func TestSend_SingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	ft := &fakeTransport{
		sendMessage: func(ctx context.Context, req transport.SendRequest) (*transport.ChatReply, error) {
			calls++
			close(started)
			<-release
			return &transport.ChatReply{Response: "slow reply"}, nil
		},
	}
	c := activeController(t, ft)

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "first") }()
	<-started

	turnsBefore := c.Snapshot().CurrentThread.Turns
	if err := c.Send(context.Background(), "second"); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("second send err = %v, want ErrSendInFlight", err)
	}
	if !reflect.DeepEqual(turnsBefore, c.Snapshot().CurrentThread.Turns) {
		t.Error("rejected send mutated the thread")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
	if calls != 1 {
		t.Errorf("transport called %d times, want 1", calls)
	}
}

func TestSend_PendingTurnVisibleDuringFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ft := &fakeTransport{
		sendMessage: func(ctx context.Context, req transport.SendRequest) (*transport.ChatReply, error) {
			close(started)
			<-release
			return &transport.ChatReply{Response: "done"}, nil
		},
	}
	c := activeController(t, ft)

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "show me now") }()
	<-started

	turns := c.Snapshot().CurrentThread.Turns
	last := turns[len(turns)-1]
	if last.Kind != TurnPending {
		t.Errorf("last turn kind = %v, want pending", last.Kind)
	}
	if last.UserMessage != "show me now" {
		t.Errorf("pending turn = %+v", last)
	}
	if !c.Sending() {
		t.Error("Sending() = false during flight")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestSend_StaleReconciliationDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ft := &fakeTransport{
		sendMessage: func(ctx context.Context, req transport.SendRequest) (*transport.ChatReply, error) {
			close(started)
			<-release
			return &transport.ChatReply{Response: "late reply"}, nil
		},
	}
	c := activeController(t, ft)

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "question for img1") }()
	<-started

	// Navigate away mid-send; the late reply must not touch img2's thread.
	if err := c.SelectFromHistory(context.Background(), "img2"); err != nil {
		t.Fatal(err)
	}
	close(release)

	if err := <-done; !errors.Is(err, ErrStaleResult) {
		t.Fatalf("stale send returned %v, want ErrStaleResult", err)
	}
	s := c.Snapshot()
	if s.CurrentImage.ImageID != "img2" {
		t.Fatalf("current image = %+v", s.CurrentImage)
	}
	for _, turn := range s.CurrentThread.Turns {
		if turn.BotResponse == "late reply" || turn.UserMessage == "question for img1" {
			t.Errorf("late reconciliation leaked into img2: %+v", turn)
		}
	}
}

func TestSend_StaleWhenOverlappingSelectLandsFirst(t *testing.T) {
	selectStarted := make(chan struct{})
	selectRelease := make(chan struct{})
	sendStarted := make(chan struct{})
	sendRelease := make(chan struct{})
	ft := &fakeTransport{
		fetchEvents: func(ctx context.Context, f transport.Filter) ([]transport.ChatEvent, error) {
			if f.ImageID == "img2" {
				close(selectStarted)
				<-selectRelease
			}
			return nil, nil
		},
		sendMessage: func(ctx context.Context, req transport.SendRequest) (*transport.ChatReply, error) {
			close(sendStarted)
			<-sendRelease
			return &transport.ChatReply{Response: "reply for img1"}, nil
		},
	}
	c := activeController(t, ft)

	// A navigation to img2 is already in flight when the send begins, so
	// both share an epoch. The send still targets img1.
	selectDone := make(chan error, 1)
	go func() { selectDone <- c.SelectFromHistory(context.Background(), "img2") }()
	<-selectStarted

	sendDone := make(chan error, 1)
	go func() { sendDone <- c.Send(context.Background(), "question for img1") }()
	<-sendStarted

	close(selectRelease)
	if err := <-selectDone; err != nil {
		t.Fatalf("SelectFromHistory: %v", err)
	}
	waitFor(t, func() bool { return c.Snapshot().CurrentImage.ImageID == "img2" })

	close(sendRelease)
	if err := <-sendDone; !errors.Is(err, ErrStaleResult) {
		t.Fatalf("send against replaced image returned %v, want ErrStaleResult", err)
	}
	s := c.Snapshot()
	for _, turn := range s.CurrentThread.Turns {
		if turn.BotResponse == "reply for img1" || turn.UserMessage == "question for img1" {
			t.Errorf("reconciliation leaked into img2: %+v", turn)
		}
	}
}
