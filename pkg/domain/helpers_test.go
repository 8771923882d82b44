package domain

import (
	"reflect"
	"testing"
	"time"
)

func TestInitials(t *testing.T) {
	tests := map[string]string{
		"Alex Morgan":        "AM",
		"jordan":             "J",
		"  Sam   Lee  Park ": "SL",
		"":                   "",
		"42 Robots":          "R",
	}
	for in, want := range tests {
		if got := Initials(in); got != want {
			t.Fatalf("Initials(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUniqueIDsKeepsFirstSeenOrder(t *testing.T) {
	got := UniqueIDs([]string{"b", "a", "b", " ", "c", "a"})
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("UniqueIDs = %v, want %v", got, want)
	}
}

func TestParseEntityKind(t *testing.T) {
	for _, k := range EntityKinds {
		got, err := ParseEntityKind(string(k))
		if err != nil || got != k {
			t.Fatalf("ParseEntityKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseEntityKind("user"); err == nil {
		t.Fatalf("expected users to be rejected as timeline kind")
	}
}

func TestEmailThreadLatestEmailAndActivity(t *testing.T) {
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	thread := EmailThread{
		CreatedAt: base.Add(-time.Hour),
		Emails: []Email{
			{ID: "e1", SentAt: base},
			{ID: "e2", SentAt: base.Add(2 * time.Hour)},
			{ID: "e3", SentAt: base.Add(time.Hour)},
		},
	}
	latest, ok := thread.LatestEmail()
	if !ok || latest.ID != "e2" {
		t.Fatalf("latest email = %+v, ok=%v", latest, ok)
	}
	if got := thread.LastActivity(); !got.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("last activity = %v", got)
	}
	if got := (EmailThread{CreatedAt: base}).LastActivity(); !got.Equal(base) {
		t.Fatalf("empty thread activity = %v", got)
	}
}

func TestTaskPatchStatusDrivesCompletion(t *testing.T) {
	task := Task{TicketID: "NEB-1", Status: TaskTodo}
	done := TaskDone
	TaskPatch{Status: &done}.Apply(&task)
	if task.Status != TaskDone || !task.IsCompleted || task.TicketID != "NEB-1" {
		t.Fatalf("unexpected task after patch: %+v", task)
	}
}
