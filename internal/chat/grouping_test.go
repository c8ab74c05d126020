package chat

import (
	"testing"
	"time"

	"github.com/pawlink/pawlink-chat/pkg/models"
)

func TestAnnotateAvatarRuns(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		{ID: "1", Sender: models.SenderCoordinator, Timestamp: base},
		{ID: "2", Sender: models.SenderCoordinator, Timestamp: base.Add(10 * time.Second)},
		{ID: "3", Sender: models.SenderUser, Timestamp: base.Add(20 * time.Second)},
		{ID: "4", Sender: models.SenderCoordinator, Timestamp: base.Add(30 * time.Second)},
	}

	got := Annotate(msgs)
	wantAvatar := []bool{true, false, false, true}
	for i, d := range got {
		if d.ShowAvatar != wantAvatar[i] {
			t.Errorf("message %s: ShowAvatar = %v, want %v", d.ID, d.ShowAvatar, wantAvatar[i])
		}
	}
}

func TestAnnotateOwnMessagesNeverShowAvatar(t *testing.T) {
	msgs := []models.Message{
		{ID: "1", Sender: models.SenderUser},
		{ID: "2", Sender: models.SenderUser},
	}
	for _, d := range Annotate(msgs) {
		if d.ShowAvatar {
			t.Errorf("message %s: own message must not show an avatar", d.ID)
		}
	}
}

func TestAnnotateTimeSeparatorBoundary(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		{ID: "1", Sender: models.SenderUser, Timestamp: base},
		// Exactly at the gap: no separator.
		{ID: "2", Sender: models.SenderUser, Timestamp: base.Add(5 * time.Minute)},
		// One second past the gap: separator.
		{ID: "3", Sender: models.SenderUser, Timestamp: base.Add(10*time.Minute + 1*time.Second)},
		// Just under the gap: no separator.
		{ID: "4", Sender: models.SenderUser, Timestamp: base.Add(15*time.Minute + 1*time.Second).Add(-1 * time.Second)},
	}

	got := Annotate(msgs)
	wantSep := []bool{true, false, true, false}
	for i, d := range got {
		if d.ShowTimeSeparator != wantSep[i] {
			t.Errorf("message %s: ShowTimeSeparator = %v, want %v", d.ID, d.ShowTimeSeparator, wantSep[i])
		}
	}
}

func TestAnnotateEmptyAndSingle(t *testing.T) {
	if got := Annotate(nil); len(got) != 0 {
		t.Errorf("expected empty result for nil input, got %v", got)
	}

	single := Annotate([]models.Message{{ID: "1", Sender: models.SenderCoordinator}})
	if len(single) != 1 {
		t.Fatalf("expected 1 annotated message, got %d", len(single))
	}
	if !single[0].ShowAvatar || !single[0].ShowTimeSeparator {
		t.Errorf("first counterpart message should show avatar and separator, got %+v", single[0])
	}
}

func TestAnnotateIsDeterministic(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		{ID: "1", Sender: models.SenderCoordinator, Timestamp: base},
		{ID: "2", Sender: models.SenderUser, Timestamp: base.Add(6 * time.Minute)},
	}
	a := Annotate(msgs)
	b := Annotate(msgs)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("annotation not deterministic at index %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}
