package adaptation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/colony/internal/constraints"
	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/internal/orchestrator/policy"
	"github.com/ShayCichocki/colony/pkg/models"
)

type fakeEscalator struct {
	mu  sync.Mutex
	got []models.RuleAdjustmentProposal
	err error
}

func (f *fakeEscalator) EscalateProposal(_ context.Context, p models.RuleAdjustmentProposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, p)
	return f.err
}

type fakeLedger struct {
	mu    sync.Mutex
	saved map[string]models.RuleAdjustmentProposal
}

func (f *fakeLedger) SaveProposal(_ context.Context, p models.RuleAdjustmentProposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string]models.RuleAdjustmentProposal)
	}
	f.saved[p.ID] = p
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func setup(t *testing.T, threshold int) (*Engine, *constraints.Store, *fakeEscalator, *fakeLedger, *clock) {
	t.Helper()
	store := constraints.NewStore()
	err := store.Seed(models.DomainConfig{
		Name:     "web",
		Workers:  []int{1, 2, 3, 4, 5, 6, 7},
		CanDo:    []string{"create assigned file"},
		CannotDo: []string{"install packages", "use inline styles"},
	})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	esc := &fakeEscalator{}
	led := &fakeLedger{}
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := New(Config{
		Store:     store,
		Policy:    policy.AdaptationPolicy{Threshold: threshold, Window: 24 * time.Hour},
		Escalator: esc,
		Ledger:    led,
		Now:       clk.now,
	})
	return e, store, esc, led, clk
}

func friction(id string, typ models.FrictionType, rule, suggestion string) models.FrictionRecord {
	return models.FrictionRecord{ID: id, Type: typ, Domain: "web", BlockedByRule: rule, Suggestion: suggestion}
}

func TestRecord_MinorAutoApplies(t *testing.T) {
	e, store, esc, led, _ := setup(t, 3)
	ctx := context.Background()

	var p *models.RuleAdjustmentProposal
	for i := 1; i <= 3; i++ {
		var err error
		p, err = e.Record(ctx, friction(fmt.Sprintf("f%d", i), models.FrictionRuleTooStrict, "use inline styles", ""))
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if i < 3 && p != nil {
			t.Fatalf("proposal fired early at record %d", i)
		}
	}
	if p == nil {
		t.Fatal("no proposal at threshold")
	}
	if p.Scope != models.ScopeMinor || p.Status != models.ProposalAutoApplied {
		t.Errorf("proposal = %s/%s, want MINOR/AUTO_APPLIED", p.Scope, p.Status)
	}
	if p.AppliedVersion != 2 {
		t.Errorf("AppliedVersion = %d, want 2", p.AppliedVersion)
	}
	if len(p.Evidence) != 3 {
		t.Errorf("evidence = %d records, want 3", len(p.Evidence))
	}

	env, _ := store.Snapshot("web")
	for _, r := range env.CannotDo {
		if r == "use inline styles" {
			t.Errorf("cannot_do still contains the removed rule: %v", env.CannotDo)
		}
	}
	if len(esc.got) != 0 {
		t.Errorf("minor proposal escalated")
	}
	if _, ok := led.saved[p.ID]; !ok {
		t.Errorf("proposal not persisted")
	}
	if n := len(e.Pending("web")); n != 0 {
		t.Errorf("window not consumed: %d keys pending", n)
	}
}

func TestRecord_DuplicateIDsIgnored(t *testing.T) {
	e, _, _, _, _ := setup(t, 2)
	ctx := context.Background()
	f := friction("same", models.FrictionRuleTooStrict, "install packages", "")
	for i := 0; i < 5; i++ {
		p, err := e.Record(ctx, f)
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if p != nil {
			t.Fatal("duplicate records fired a proposal")
		}
	}
}

func TestRecord_WindowExpiry(t *testing.T) {
	e, _, _, _, clk := setup(t, 2)
	ctx := context.Background()

	f1 := friction("f1", models.FrictionRuleTooStrict, "install packages", "")
	f1.Timestamp = clk.t
	if _, err := e.Record(ctx, f1); err != nil {
		t.Fatal(err)
	}
	clk.t = clk.t.Add(25 * time.Hour)
	p, err := e.Record(ctx, friction("f2", models.FrictionRuleTooStrict, "install packages", ""))
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Fatal("expired record counted toward threshold")
	}
}

func TestRecord_MajorEscalatesOncePerKey(t *testing.T) {
	e, store, esc, _, _ := setup(t, 2)
	ctx := context.Background()

	var fired []*models.RuleAdjustmentProposal
	for i := 1; i <= 6; i++ {
		p, err := e.Record(ctx, friction(fmt.Sprintf("s%d", i), models.FrictionScopeTooBig, "", ""))
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if p != nil {
			fired = append(fired, p)
		}
	}
	if len(fired) != 1 {
		t.Fatalf("fired %d proposals, want 1 while the first is open", len(fired))
	}
	if fired[0].Status != models.ProposalEscalated || fired[0].Scope != models.ScopeMajor {
		t.Errorf("proposal = %s/%s, want MAJOR/ESCALATED", fired[0].Scope, fired[0].Status)
	}
	if len(esc.got) != 1 {
		t.Errorf("escalator called %d times, want 1", len(esc.got))
	}
	if v := store.Version("web"); v != 1 {
		t.Errorf("escalation changed envelope to v%d", v)
	}
	if keys := e.OpenKeys("web"); len(keys) != 1 {
		t.Errorf("OpenKeys = %v", keys)
	}
}

func TestResolve(t *testing.T) {
	e, store, _, led, _ := setup(t, 1)
	ctx := context.Background()

	p, err := e.Record(ctx, friction("w1", models.FrictionWrongSlice, "use inline styles", "use CSS modules"))
	if err != nil || p == nil {
		t.Fatalf("Record() = %v, %v", p, err)
	}

	got, err := e.Resolve(ctx, p.ID, true, "ok")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Status != models.ProposalApproved || got.AppliedVersion != 2 {
		t.Errorf("resolved = %s v%d, want APPROVED v2", got.Status, got.AppliedVersion)
	}
	env, _ := store.Snapshot("web")
	if env.CannotDo[1] != "use CSS modules" {
		t.Errorf("cannot_do = %v, want rule rewritten", env.CannotDo)
	}
	if led.saved[p.ID].Status != models.ProposalApproved {
		t.Errorf("ledger not updated")
	}
	if len(e.OpenKeys("web")) != 0 {
		t.Errorf("key still open after resolution")
	}

	if _, err := e.Resolve(ctx, p.ID, false, "again"); err == nil {
		t.Error("resolving a closed proposal succeeded")
	}
	if _, err := e.Resolve(ctx, "missing", true, ""); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Resolve(missing) = %v, want ErrNotFound", err)
	}
}

func TestResolve_RejectLeavesEnvelope(t *testing.T) {
	e, store, _, _, _ := setup(t, 1)
	ctx := context.Background()
	p, _ := e.Record(ctx, friction("d1", models.FrictionDependencyIssue, "", "merge slices 2 and 3"))
	got, err := e.Resolve(ctx, p.ID, false, "no")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Status != models.ProposalRejected || got.Resolution != "no" {
		t.Errorf("resolved = %+v", got)
	}
	if v := store.Version("web"); v != 1 {
		t.Errorf("rejection changed envelope to v%d", v)
	}
}

func TestRecord_StaleRuleRejected(t *testing.T) {
	e, _, _, _, _ := setup(t, 1)
	p, err := e.Record(context.Background(), friction("x", models.FrictionRuleTooStrict, "no such rule", ""))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if p.Status != models.ProposalRejected {
		t.Errorf("Status = %s, want REJECTED", p.Status)
	}
}

func TestRecord_InvalidInput(t *testing.T) {
	e, _, _, _, _ := setup(t, 1)
	ctx := context.Background()
	if _, err := e.Record(ctx, models.FrictionRecord{Type: "bogus", Domain: "web"}); err == nil {
		t.Error("unknown type accepted")
	}
	if _, err := e.Record(ctx, models.FrictionRecord{Type: models.FrictionToolingGap}); !errors.Is(err, errs.ErrInvalidDomain) {
		t.Errorf("missing domain = %v, want ErrInvalidDomain", err)
	}
}

func TestRestore_BlocksOpenKey(t *testing.T) {
	e, _, esc, _, _ := setup(t, 1)
	e.Restore(models.RuleAdjustmentProposal{
		ID:       "old",
		Domain:   "web",
		Key:      models.FrictionKey{Type: models.FrictionScopeTooSmall},
		Status:   models.ProposalEscalated,
		Evidence: []models.FrictionRecord{{ID: "e1"}},
	})
	p, err := e.Record(context.Background(), friction("e2", models.FrictionScopeTooSmall, "", ""))
	if err != nil {
		t.Fatal(err)
	}
	if p != nil || len(esc.got) != 0 {
		t.Error("restored open proposal did not block its key")
	}
	if _, ok := e.Get("old"); !ok {
		t.Error("restored proposal missing")
	}
}
