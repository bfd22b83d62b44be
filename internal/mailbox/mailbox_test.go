package mailbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/ShayCichocki/colony/pkg/models"
)

func TestMailbox_SendPoll(t *testing.T) {
	m := New(0, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := m.Send(ctx, models.Message{ID: fmt.Sprintf("m%d", i), To: "orch-web"}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if n := m.Pending("orch-web"); n != 3 {
		t.Errorf("Pending() = %d, want 3", n)
	}

	msgs, err := m.Poll(ctx, "orch-web")
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(msgs) != 3 || msgs[0].ID != "m0" || msgs[2].ID != "m2" {
		t.Errorf("Poll() = %+v, want m0..m2 in order", msgs)
	}
	if again, _ := m.Poll(ctx, "orch-web"); len(again) != 0 {
		t.Errorf("second Poll() = %d messages, want 0", len(again))
	}
}

func TestMailbox_DropsOldestWhenFull(t *testing.T) {
	m := New(2, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m.Send(ctx, models.Message{ID: fmt.Sprintf("m%d", i), To: "commander"})
	}
	msgs, _ := m.Poll(ctx, "commander")
	if len(msgs) != 2 || msgs[0].ID != "m1" {
		t.Errorf("Poll() = %+v, want m1, m2", msgs)
	}
	if m.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", m.Dropped())
	}
}
