package application_test

import (
	"context"
	"errors"
	"testing"

	"callrec/internal/application"
)

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, string) error { return f.err }

func TestNotifiers_FanOut(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	boom := errors.New("boom")
	ns := application.Notifiers{a, failingNotifier{err: boom}, b}

	err := ns.Notify(context.Background(), "hello")
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.messages) != 1 || len(b.messages) != 1 {
		t.Errorf("every notifier should receive the message: a=%v b=%v", a.messages, b.messages)
	}
}

func TestIndicators_ShowRollsBack(t *testing.T) {
	first := &fakeIndicator{}
	second := &fakeIndicator{showErr: errors.New("unreachable")}
	is := application.Indicators{first, second}

	if err := is.Show(context.Background(), application.SessionInfo{ID: "s1"}); err == nil {
		t.Fatal("expected Show to fail")
	}
	if first.isVisible() {
		t.Error("first indicator should be dismissed after the second failed")
	}
	if first.dismissed != 1 {
		t.Errorf("first dismissed %d times, want 1", first.dismissed)
	}
}

func TestIndicators_DismissAll(t *testing.T) {
	a, b := &fakeIndicator{}, &fakeIndicator{}
	is := application.Indicators{a, b}
	ctx := context.Background()

	if err := is.Show(ctx, application.SessionInfo{ID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if !a.isVisible() || !b.isVisible() {
		t.Fatal("both indicators should be visible")
	}
	if err := is.Dismiss(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if a.isVisible() || b.isVisible() {
		t.Error("both indicators should be dismissed")
	}
}
