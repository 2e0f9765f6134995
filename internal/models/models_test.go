package models

import (
	"testing"
	"time"
)

func TestMessageHasContent(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want bool
	}{
		{"body only", Message{Body: "hi"}, true},
		{"media only", Message{MediaURL: "https://cdn.example.com/a.jpg"}, true},
		{"both", Message{Body: "hi", MediaURL: "https://cdn.example.com/a.jpg"}, true},
		{"empty", Message{}, false},
	}

	for _, tc := range cases {
		if got := tc.msg.HasContent(); got != tc.want {
			t.Errorf("%s: HasContent() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMarkSeenByIsSetLike(t *testing.T) {
	msg := Message{ID: "m1"}

	msg.MarkSeenBy("u1")
	msg.MarkSeenBy("u2")
	msg.MarkSeenBy("u1")
	msg.MarkSeenBy("u1")

	if len(msg.SeenIDs) != 2 {
		t.Fatalf("SeenIDs length = %d, want 2 (got %v)", len(msg.SeenIDs), msg.SeenIDs)
	}
	if !msg.SeenBy("u1") || !msg.SeenBy("u2") {
		t.Errorf("SeenBy lost a member: %v", msg.SeenIDs)
	}
	if msg.SeenBy("u3") {
		t.Errorf("SeenBy(u3) = true, want false")
	}
}

func TestIsEditedDeadband(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	within := created.Add(800 * time.Millisecond)
	msg := Message{CreatedAt: created, EditedAt: &within}
	if msg.IsEdited() {
		t.Errorf("edit within deadband flagged as edited")
	}

	later := created.Add(5 * time.Second)
	msg.EditedAt = &later
	if !msg.IsEdited() {
		t.Errorf("edit after deadband not flagged")
	}

	msg.EditedAt = nil
	if msg.IsEdited() {
		t.Errorf("nil EditedAt flagged as edited")
	}
}

func TestMessageCloneIsDeep(t *testing.T) {
	msg := Message{
		ID:        "m1",
		SeenIDs:   []string{"u1"},
		Reactions: []Reaction{{Emoji: "👍", UserID: "u2"}},
	}

	cp := msg.Clone()
	cp.MarkSeenBy("u9")
	cp.Reactions[0].Emoji = "❤️"

	if len(msg.SeenIDs) != 1 {
		t.Errorf("clone shares SeenIDs backing array")
	}
	if msg.Reactions[0].Emoji != "👍" {
		t.Errorf("clone shares Reactions backing array")
	}
}

func TestThreadHasMember(t *testing.T) {
	thread := Thread{ID: "t1", MemberIDs: []string{"u1", "u2"}}

	if !thread.HasMember("u1") {
		t.Errorf("HasMember(u1) = false, want true")
	}
	if thread.HasMember("u3") {
		t.Errorf("HasMember(u3) = true, want false")
	}
}
