package notify

import (
	"testing"

	"gh-notify-bot/internal/domain"
)

func snap(state, title string, assignee *domain.Assignee) domain.IssueSnapshot {
	return domain.IssueSnapshot{State: state, Title: title, Assignee: assignee, Number: 7, URL: "https://example.com/7"}
}

func TestDiffOnlyTitle(t *testing.T) {
	prev := snap("open", "старый заголовок", nil)
	cur := snap("open", "новый заголовок", nil)

	diff := Diff(cur, prev)

	if diff.Title == nil || *diff.Title != "новый заголовок" {
		t.Fatalf("ожидали изменение заголовка, получили %+v", diff)
	}
	if diff.State != nil || diff.Assignee != nil {
		t.Fatalf("ожидали только заголовок в диффе, получили %+v", diff)
	}
}

func TestDiffStateCaseInsensitive(t *testing.T) {
	prev := snap("OPEN", "t", nil)
	cur := snap("open", "t", nil)

	if diff := Diff(cur, prev); !diff.Empty() {
		t.Fatalf("регистр не должен считаться изменением: %+v", diff)
	}
}

func TestDiffStateCapitalized(t *testing.T) {
	prev := snap("open", "t", nil)
	cur := snap("CLOSED", "t", nil)

	diff := Diff(cur, prev)
	if diff.State == nil || *diff.State != "Closed" {
		t.Fatalf("ожидали Closed, получили %+v", diff.State)
	}
}

func TestDiffAssigneeTransitions(t *testing.T) {
	alice := &domain.Assignee{ID: 1, Login: "alice"}
	bob := &domain.Assignee{ID: 2, Login: "bob"}
	aliceRenamed := &domain.Assignee{ID: 1, Login: "alice-new"}

	tests := []struct {
		name    string
		current *domain.Assignee
		prev    *domain.Assignee
		changed bool
	}{
		{name: "absent to present", current: alice, prev: nil, changed: true},
		{name: "present to absent", current: nil, prev: alice, changed: true},
		{name: "id change", current: bob, prev: alice, changed: true},
		{name: "same id different login", current: aliceRenamed, prev: alice, changed: false},
		{name: "both absent", current: nil, prev: nil, changed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := Diff(snap("open", "t", tt.current), snap("open", "t", tt.prev))
			if got := diff.Assignee != nil; got != tt.changed {
				t.Fatalf("assignee changed = %v, want %v", got, tt.changed)
			}
			if tt.changed && tt.current == nil && diff.Assignee.To != nil {
				t.Fatalf("снятие исполнителя должно давать To == nil")
			}
		})
	}
}

func TestDiffIdenticalSnapshotsEmpty(t *testing.T) {
	s := snap("open", "t", &domain.Assignee{ID: 3, Login: "carol"})
	if diff := Diff(s, s); !diff.Empty() {
		t.Fatalf("одинаковые снапшоты должны давать пустой дифф: %+v", diff)
	}
}
