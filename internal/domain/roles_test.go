package domain

import "testing"

func TestAdminsContains(t *testing.T) {
	admins := NewAdmins([]int64{10, 0, 20})
	tests := []struct {
		name   string
		userID int64
		want   bool
	}{
		{name: "first admin", userID: 10, want: true},
		{name: "second admin", userID: 20, want: true},
		{name: "regular user", userID: 30, want: false},
		{name: "zero id ignored", userID: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := admins.Contains(tt.userID); got != tt.want {
				t.Fatalf("Contains(%d) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
	if len(admins.IDs()) != 2 {
		t.Fatalf("expected 2 admins, got %d", len(admins.IDs()))
	}
}

func TestReactionRecordCounts(t *testing.T) {
	rec := NewReactionRecord("101")
	rec.Members[ReactionLike][1] = struct{}{}
	rec.Members[ReactionLike][2] = struct{}{}
	rec.Members[ReactionPoop][3] = struct{}{}

	counts := rec.Counts()
	if counts[ReactionLike] != 2 || counts[ReactionPoop] != 1 || counts[ReactionHeart] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if len(counts) != len(ReactionKinds) {
		t.Fatalf("counts must cover every kind, got %d", len(counts))
	}
	if ids := rec.UserIDs(ReactionLike); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if !rec.Has(ReactionPoop, 3) || rec.Has(ReactionPoop, 1) {
		t.Fatal("unexpected membership")
	}
}

func TestReactionKindValid(t *testing.T) {
	if !ReactionHeart.Valid() || ReactionKind("wow").Valid() {
		t.Fatal("unexpected reaction validity")
	}
	if ReactionLike.Emoji() != "👍" {
		t.Fatalf("unexpected emoji %q", ReactionLike.Emoji())
	}
}
