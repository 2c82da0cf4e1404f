package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fieldline/internal/apperr"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func seedWorker(t *testing.T, env testEnv, id string, rate float64) domain.Worker {
	t.Helper()
	w, err := env.Engine.CreateWorker(env.Ctx, engine.WorkerCreateOptions{ID: id, Name: "Worker " + id, HourlyRate: rate, ActorID: "tester"})
	if err != nil {
		t.Fatalf("seed worker: %v", err)
	}
	return w
}

func seedClient(t *testing.T, env testEnv, id string, billingRate *float64) domain.Client {
	t.Helper()
	c, err := env.Engine.CreateClient(env.Ctx, engine.ClientCreateOptions{
		ID: id, Name: "Client " + id, Email: id + "@example.com", BillingRate: billingRate, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return c
}

func seedContract(t *testing.T, env testEnv, id, clientID string, hours float64) domain.Contract {
	t.Helper()
	c, err := env.Engine.CreateContract(env.Ctx, engine.ContractCreateOptions{
		ID: id, ClientID: clientID, OrderNumber: "ord-" + id, TotalHours: hours,
		StartDate: "2026-01-01T00:00:00Z", EndDate: "2026-12-31T00:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	return c
}

// advance walks the activity forward through the given statuses.
func advance(t *testing.T, env testEnv, id string, statuses ...string) domain.Activity {
	t.Helper()
	var a domain.Activity
	var err error
	for _, s := range statuses {
		a, err = env.Engine.SetActivityStatus(env.Ctx, id, s, false, "tester")
		if err != nil {
			t.Fatalf("set status %s: %v", s, err)
		}
	}
	return a
}

func ptr(f float64) *float64 { return &f }

func TestDurationComputedFromWindow(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "survey", ClientID: "c1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T14:30:00Z",
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.DurationHours != 4.5 {
		t.Fatalf("duration = %v, want 4.5", a.DurationHours)
	}
	if a.Status != domain.ActivityUnassigned {
		t.Fatalf("status = %s, want unassigned", a.Status)
	}

	// Moving a bound recomputes the stored duration.
	end := "2026-01-10T12:00:00Z"
	a, err = env.Engine.UpdateActivity(env.Ctx, a.ID, engine.ActivityUpdateOptions{ScheduledEnd: &end, ActorID: "tester"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if a.DurationHours != 2 {
		t.Fatalf("duration = %v, want 2", a.DurationHours)
	}

	// Fractional seconds are truncated, so the stored duration stays equal
	// to the difference of the stored bounds.
	a, err = env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "fractional", ClientID: "c1",
		ScheduledStart: "2026-01-11T10:00:00.75Z", ScheduledEnd: "2026-01-11T12:00:00.25Z",
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create fractional: %v", err)
	}
	if a.ScheduledStart != "2026-01-11T10:00:00Z" || a.ScheduledEnd != "2026-01-11T12:00:00Z" {
		t.Fatalf("bounds = %s / %s", a.ScheduledStart, a.ScheduledEnd)
	}
	if a.DurationHours != 2 {
		t.Fatalf("fractional duration = %v, want 2", a.DurationHours)
	}
}

func TestCreateActivityValidation(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)

	var ve apperr.ValidationError
	_, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "", ClientID: "c1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	})
	if !errors.As(err, &ve) {
		t.Fatalf("missing title: got %v, want ValidationError", err)
	}

	_, err = env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "x", ClientID: "c1",
		ScheduledStart: "2026-01-10T12:00:00Z", ScheduledEnd: "2026-01-10T10:00:00Z", ActorID: "tester",
	})
	if !errors.As(err, &ve) {
		t.Fatalf("end before start: got %v, want ValidationError", err)
	}

	var nfe apperr.NotFoundError
	_, err = env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "x", ClientID: "nope",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	})
	if !errors.As(err, &nfe) {
		t.Fatalf("unknown client: got %v, want NotFoundError", err)
	}
}

func TestAvailabilityConflictWindows(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)
	if _, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "busy", ClientID: "c1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	}); err != nil {
		t.Fatalf("seed committed activity: %v", err)
	}

	check := func(start, end string) engine.AvailabilityResult {
		res, err := env.Engine.CheckAvailability(env.Ctx, "w1", start, end, "")
		if err != nil {
			t.Fatalf("check %s-%s: %v", start, end, err)
		}
		return res
	}

	if res := check("2026-01-10T11:00:00Z", "2026-01-10T13:00:00Z"); res.Available {
		t.Fatal("overlapping interval should conflict")
	}
	if res := check("2026-01-10T08:00:00Z", "2026-01-10T09:00:00Z"); !res.Available {
		t.Fatal("disjoint interval should be available")
	}
	// Touching endpoints conflict under the default policy.
	if res := check("2026-01-10T12:00:00Z", "2026-01-10T14:00:00Z"); res.Available {
		t.Fatal("endpoint-touching interval should conflict by default")
	}
	env.Engine.Config.Scheduling.EndpointTouchConflicts = false
	if res := check("2026-01-10T12:00:00Z", "2026-01-10T14:00:00Z"); !res.Available {
		t.Fatal("endpoint-touching interval should be available under strict overlap")
	}
}

func TestAvailabilityUnknownWorker(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CheckAvailability(env.Ctx, "ghost", "2026-01-10T10:00:00Z", "2026-01-10T12:00:00Z", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Available || len(res.ConflictingActivities) != 0 {
		t.Fatalf("unknown worker should be trivially available, got %+v", res)
	}
}

func TestAssignConflictCarriesWinner(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)

	first, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "first", ClientID: "c1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "second", ClientID: "c1",
		ScheduledStart: "2026-01-10T11:00:00Z", ScheduledEnd: "2026-01-10T13:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.AssignActivity(env.Ctx, first.ID, "w1", "tester"); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	_, err = env.Engine.AssignActivity(env.Ctx, second.ID, "w1", "tester")
	var ce apperr.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("second assign: got %v, want ConflictError", err)
	}
	if len(ce.ActivityIDs) != 1 || ce.ActivityIDs[0] != first.ID {
		t.Fatalf("conflict set = %v, want [%s]", ce.ActivityIDs, first.ID)
	}
}

func TestUnassignRevertsToUnassigned(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "job", ClientID: "c1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != domain.ActivityScheduled {
		t.Fatalf("status = %s, want scheduled", a.Status)
	}
	a, err = env.Engine.AssignActivity(env.Ctx, a.ID, "", "tester")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if a.Status != domain.ActivityUnassigned || a.WorkerID != nil {
		t.Fatalf("unassign left status=%s worker=%v", a.Status, a.WorkerID)
	}
}

func TestForwardOnlyTransitions(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "job", ClientID: "c1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}

	var ce apperr.ConflictError
	// Skipping ahead is rejected.
	if _, err := env.Engine.SetActivityStatus(env.Ctx, a.ID, domain.ActivityVerified, false, "tester"); !errors.As(err, &ce) {
		t.Fatalf("scheduled->verified: got %v, want ConflictError", err)
	}
	// invoiced is never writable here, not even with force.
	if _, err := env.Engine.SetActivityStatus(env.Ctx, a.ID, domain.ActivityInvoiced, true, "tester"); !errors.As(err, &ce) {
		t.Fatalf("force to invoiced: got %v, want ConflictError", err)
	}
	// The ordered path works.
	a = advance(t, env, a.ID, domain.ActivityInProgress, domain.ActivityDone, domain.ActivityVerified)
	if a.Status != domain.ActivityVerified {
		t.Fatalf("status = %s, want verified", a.Status)
	}
	// Rewinding without force is rejected; force allows it.
	if _, err := env.Engine.SetActivityStatus(env.Ctx, a.ID, domain.ActivityDone, false, "tester"); !errors.As(err, &ce) {
		t.Fatalf("verified->done: got %v, want ConflictError", err)
	}
	if _, err := env.Engine.SetActivityStatus(env.Ctx, a.ID, domain.ActivityDone, true, "tester"); err != nil {
		t.Fatalf("forced rewind: %v", err)
	}
}

func TestStatusRequiresWorker(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "job", ClientID: "c1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	var ce apperr.ConflictError
	if _, err := env.Engine.SetActivityStatus(env.Ctx, a.ID, domain.ActivityScheduled, false, "tester"); !errors.As(err, &ce) {
		t.Fatalf("unassigned->scheduled without worker: got %v, want ConflictError", err)
	}
}

func TestCapacityLedger(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)
	seedContract(t, env, "k1", "c1", 10)

	hours, err := env.Engine.ContractHours(env.Ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if hours.RemainingHours != 10 || hours.UsedHours != 0 {
		t.Fatalf("fresh contract = %+v", hours)
	}

	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "job", ClientID: "c1", ContractID: "k1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T14:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	advance(t, env, a.ID, domain.ActivityInProgress, domain.ActivityDone, domain.ActivityVerified)

	hours, err = env.Engine.ContractHours(env.Ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if hours.TotalHours != 10 || hours.UsedHours != 4 || hours.RemainingHours != 6 {
		t.Fatalf("after verify = %+v, want 10/4/6", hours)
	}

	// A 7h request against 6h remaining is rejected up front.
	_, err = env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "too big", ClientID: "c1", ContractID: "k1",
		ScheduledStart: "2026-01-12T08:00:00Z", ScheduledEnd: "2026-01-12T15:00:00Z", ActorID: "tester",
	})
	var cpe apperr.CapacityError
	if !errors.As(err, &cpe) {
		t.Fatalf("got %v, want CapacityError", err)
	}
	if cpe.Requested != 7 || cpe.Remaining != 6 {
		t.Fatalf("capacity error = %+v", cpe)
	}
}

func TestCapacityCheckedAtVerification(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)
	seedContract(t, env, "k1", "c1", 6)

	// Two 4h activities both pass the look-ahead check while unverified:
	// without reservation the ledger only counts confirmed hours.
	a1, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "a1", ClientID: "c1", ContractID: "k1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T08:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	a2, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "a2", ClientID: "c1", ContractID: "k1", WorkerID: "w1",
		ScheduledStart: "2026-01-11T08:00:00Z", ScheduledEnd: "2026-01-11T12:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}

	advance(t, env, a1.ID, domain.ActivityInProgress, domain.ActivityDone, domain.ActivityVerified)
	advance(t, env, a2.ID, domain.ActivityInProgress, domain.ActivityDone)
	// The second verification would overdraw the contract and is rejected.
	_, err = env.Engine.SetActivityStatus(env.Ctx, a2.ID, domain.ActivityVerified, false, "tester")
	var cpe apperr.CapacityError
	if !errors.As(err, &cpe) {
		t.Fatalf("got %v, want CapacityError", err)
	}
}

func TestReserveUnverifiedPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Capacity.ReserveUnverified = true
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)
	seedContract(t, env, "k1", "c1", 6)

	if _, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "a1", ClientID: "c1", ContractID: "k1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T08:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	// With reservation on, the scheduled 4h already count.
	_, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "a2", ClientID: "c1", ContractID: "k1",
		ScheduledStart: "2026-01-11T08:00:00Z", ScheduledEnd: "2026-01-11T12:00:00Z", ActorID: "tester",
	})
	var cpe apperr.CapacityError
	if !errors.As(err, &cpe) {
		t.Fatalf("got %v, want CapacityError", err)
	}
}

func TestWindowEditRechecksVerifiedHours(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)
	seedContract(t, env, "k1", "c1", 10)

	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "job", ClientID: "c1", ContractID: "k1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T08:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	advance(t, env, a.ID, domain.ActivityInProgress, domain.ActivityDone, domain.ActivityVerified)

	// Stretching the verified window to 40h would overdraw the 10h contract.
	end := "2026-01-12T00:00:00Z"
	_, err = env.Engine.UpdateActivity(env.Ctx, a.ID, engine.ActivityUpdateOptions{ScheduledEnd: &end, ActorID: "tester"})
	var cpe apperr.CapacityError
	if !errors.As(err, &cpe) {
		t.Fatalf("stretch to 40h: got %v, want CapacityError", err)
	}
	hours, err := env.Engine.ContractHours(env.Ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if hours.UsedHours != 4 {
		t.Fatalf("used after rejected edit = %v, want 4", hours.UsedHours)
	}

	// Growing to exactly the remainder (net +6h against 6h remaining) passes.
	end = "2026-01-10T18:00:00Z"
	if _, err := env.Engine.UpdateActivity(env.Ctx, a.ID, engine.ActivityUpdateOptions{ScheduledEnd: &end, ActorID: "tester"}); err != nil {
		t.Fatalf("grow to 10h: %v", err)
	}
	hours, _ = env.Engine.ContractHours(env.Ctx, "k1")
	if hours.UsedHours != 10 || hours.RemainingHours != 0 {
		t.Fatalf("ledger after grow = %+v, want 10/0", hours)
	}

	// Shrinking releases hours and never needs capacity.
	end = "2026-01-10T12:00:00Z"
	if _, err := env.Engine.UpdateActivity(env.Ctx, a.ID, engine.ActivityUpdateOptions{ScheduledEnd: &end, ActorID: "tester"}); err != nil {
		t.Fatalf("shrink: %v", err)
	}
	hours, _ = env.Engine.ContractHours(env.Ctx, "k1")
	if hours.UsedHours != 4 {
		t.Fatalf("used after shrink = %v, want 4", hours.UsedHours)
	}
}

func TestConcurrentAssignSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)

	windows := [][2]string{
		{"2026-01-10T10:00:00Z", "2026-01-10T12:00:00Z"},
		{"2026-01-10T11:00:00Z", "2026-01-10T13:00:00Z"},
	}
	ids := make([]string, 2)
	for i, w := range windows {
		a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
			Title: "job", ClientID: "c1",
			ScheduledStart: w[0], ScheduledEnd: w[1], ActorID: "tester",
		})
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = a.ID
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.Engine.AssignActivity(env.Ctx, ids[i], "w1", "tester")
		}(i)
	}
	wg.Wait()

	winner, loser := -1, -1
	for i, err := range results {
		if err == nil {
			if winner >= 0 {
				t.Fatal("both assignments succeeded")
			}
			winner = i
		} else {
			loser = i
		}
	}
	if winner < 0 || loser < 0 {
		t.Fatalf("results = %v, want exactly one success", results)
	}
	var ce apperr.ConflictError
	if !errors.As(results[loser], &ce) {
		t.Fatalf("loser error = %v, want ConflictError", results[loser])
	}
	if len(ce.ActivityIDs) != 1 || ce.ActivityIDs[0] != ids[winner] {
		t.Fatalf("conflict set = %v, want [%s]", ce.ActivityIDs, ids[winner])
	}
}

func TestAtMostOnceBilling(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", ptr(50))
	seedWorker(t, env, "w1", 40)
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "job", ClientID: "c1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T14:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	advance(t, env, a.ID, domain.ActivityInProgress, domain.ActivityDone, domain.ActivityVerified)

	inv, err := env.Engine.GenerateClientInvoice(env.Ctx, "c1", "2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", "tester")
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if inv.TotalAmount != 200 {
		t.Fatalf("total = %v, want 200", inv.TotalAmount)
	}
	if inv.Kind != domain.KindClientBill || inv.Status != domain.InvoiceDraft {
		t.Fatalf("invoice = %+v", inv)
	}
	got, err := env.Engine.Repo.GetActivity(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ActivityInvoiced {
		t.Fatalf("activity status = %s, want invoiced", got.Status)
	}

	// Rerunning the same period selects nothing: the flip is the guarantee.
	second, err := env.Engine.GenerateClientInvoice(env.Ctx, "c1", "2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", "tester")
	if err != nil {
		t.Fatalf("second invoice: %v", err)
	}
	if second.TotalAmount != 0 {
		t.Fatalf("second total = %v, want 0", second.TotalAmount)
	}
}

func TestWindowContainmentSelection(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", ptr(50))
	seedWorker(t, env, "w1", 40)
	// Partially overlapping the period: excluded from selection.
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "straddler", ClientID: "c1", WorkerID: "w1",
		ScheduledStart: "2026-01-31T22:00:00Z", ScheduledEnd: "2026-02-01T02:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	advance(t, env, a.ID, domain.ActivityInProgress, domain.ActivityDone, domain.ActivityVerified)

	inv, err := env.Engine.GenerateClientInvoice(env.Ctx, "c1", "2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if inv.TotalAmount != 0 {
		t.Fatalf("straddling activity was billed: total = %v", inv.TotalAmount)
	}
	got, _ := env.Engine.Repo.GetActivity(env.Ctx, a.ID)
	if got.Status != domain.ActivityVerified {
		t.Fatalf("straddler status = %s, want verified", got.Status)
	}
}

func TestBillingRateDefaultsToZero(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "job", ClientID: "c1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T14:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	advance(t, env, a.ID, domain.ActivityInProgress, domain.ActivityDone, domain.ActivityVerified)
	inv, err := env.Engine.GenerateClientInvoice(env.Ctx, "c1", "2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if inv.TotalAmount != 0 {
		t.Fatalf("total = %v, want 0 for unset billing rate", inv.TotalAmount)
	}
}

func TestWorkerPayout(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", ptr(50))
	seedWorker(t, env, "w1", 80)
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "job", ClientID: "c1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T14:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	advance(t, env, a.ID, domain.ActivityInProgress, domain.ActivityDone, domain.ActivityVerified)

	inv, err := env.Engine.GenerateWorkerPayout(env.Ctx, "w1", "2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if inv.TotalAmount != 320 {
		t.Fatalf("payout = %v, want 320", inv.TotalAmount)
	}
	if inv.Kind != domain.KindWorkerPayout {
		t.Fatalf("kind = %s", inv.Kind)
	}
	// By default payouts do not consume the activities.
	got, _ := env.Engine.Repo.GetActivity(env.Ctx, a.ID)
	if got.Status != domain.ActivityVerified {
		t.Fatalf("status = %s, want verified after payout", got.Status)
	}

	// With the lock policy on, a payout flips the selection like billing.
	env.Engine.Config.Invoicing.LockPayoutActivities = true
	if _, err := env.Engine.GenerateWorkerPayout(env.Ctx, "w1", "2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", "tester"); err != nil {
		t.Fatal(err)
	}
	got, _ = env.Engine.Repo.GetActivity(env.Ctx, a.ID)
	if got.Status != domain.ActivityInvoiced {
		t.Fatalf("status = %s, want invoiced under lock policy", got.Status)
	}
}

func TestInvoiceValidation(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	var ve apperr.ValidationError
	_, err := env.Engine.GenerateClientInvoice(env.Ctx, "c1", "2026-02-01T00:00:00Z", "2026-01-01T00:00:00Z", "tester")
	if !errors.As(err, &ve) {
		t.Fatalf("inverted period: got %v, want ValidationError", err)
	}
	var nfe apperr.NotFoundError
	_, err = env.Engine.GenerateClientInvoice(env.Ctx, "ghost", "2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", "tester")
	if !errors.As(err, &nfe) {
		t.Fatalf("unknown client: got %v, want NotFoundError", err)
	}
	_, err = env.Engine.GenerateWorkerPayout(env.Ctx, "ghost", "2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", "tester")
	if !errors.As(err, &nfe) {
		t.Fatalf("unknown worker: got %v, want NotFoundError", err)
	}
}

func TestInvoiceStatusForwardOnly(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	inv, err := env.Engine.GenerateClientInvoice(env.Ctx, "c1", "2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", "tester")
	if err != nil {
		t.Fatal(err)
	}
	var ce apperr.ConflictError
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, inv.ID, domain.InvoicePaid, "tester"); !errors.As(err, &ce) {
		t.Fatalf("draft->paid: got %v, want ConflictError", err)
	}
	inv, err = env.Engine.SetInvoiceStatus(env.Ctx, inv.ID, domain.InvoiceSent, "tester")
	if err != nil || inv.Status != domain.InvoiceSent {
		t.Fatalf("draft->sent: %v", err)
	}
	inv, err = env.Engine.SetInvoiceStatus(env.Ctx, inv.ID, domain.InvoicePaid, "tester")
	if err != nil || inv.Status != domain.InvoicePaid {
		t.Fatalf("sent->paid: %v", err)
	}
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, inv.ID, domain.InvoiceDraft, "tester"); !errors.As(err, &ce) {
		t.Fatalf("paid->draft: got %v, want ConflictError", err)
	}
}

func TestContractOrderUniquePerClient(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedClient(t, env, "c2", nil)
	if _, err := env.Engine.CreateContract(env.Ctx, engine.ContractCreateOptions{
		ClientID: "c1", OrderNumber: "PO-1", TotalHours: 10,
		StartDate: "2026-01-01T00:00:00Z", EndDate: "2026-06-01T00:00:00Z", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	var ce apperr.ConflictError
	_, err := env.Engine.CreateContract(env.Ctx, engine.ContractCreateOptions{
		ClientID: "c1", OrderNumber: "PO-1", TotalHours: 5,
		StartDate: "2026-01-01T00:00:00Z", EndDate: "2026-06-01T00:00:00Z", ActorID: "tester",
	})
	if !errors.As(err, &ce) {
		t.Fatalf("duplicate order: got %v, want ConflictError", err)
	}
	// Same order number under a different client is fine.
	if _, err := env.Engine.CreateContract(env.Ctx, engine.ContractCreateOptions{
		ClientID: "c2", OrderNumber: "PO-1", TotalHours: 5,
		StartDate: "2026-01-01T00:00:00Z", EndDate: "2026-06-01T00:00:00Z", ActorID: "tester",
	}); err != nil {
		t.Fatalf("same order other client: %v", err)
	}
}

func TestDeleteRules(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)
	seedContract(t, env, "k1", "c1", 10)
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "job", ClientID: "c1", ContractID: "k1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Deleting a referenced client is blocked.
	var ce apperr.ConflictError
	if err := env.Engine.DeleteClient(env.Ctx, "c1", "tester"); !errors.As(err, &ce) {
		t.Fatalf("delete referenced client: got %v, want ConflictError", err)
	}
	// Deleting the contract detaches the activity instead of cascading.
	if err := env.Engine.DeleteContract(env.Ctx, "k1", "tester"); err != nil {
		t.Fatalf("delete contract: %v", err)
	}
	got, err := env.Engine.Repo.GetActivity(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ContractID != nil {
		t.Fatalf("activity still references deleted contract: %v", *got.ContractID)
	}
	// Deleting the worker nulls the reference too.
	if err := env.Engine.DeleteWorker(env.Ctx, "w1", "tester"); err != nil {
		t.Fatalf("delete worker: %v", err)
	}
	got, _ = env.Engine.Repo.GetActivity(env.Ctx, a.ID)
	if got.WorkerID != nil {
		t.Fatalf("activity still references deleted worker: %v", *got.WorkerID)
	}
	// Activities delete in any state.
	if err := env.Engine.DeleteActivity(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatalf("delete activity: %v", err)
	}
}

func TestEventLogRecordsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", nil)
	seedWorker(t, env, "w1", 40)
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "job", ClientID: "c1", WorkerID: "w1",
		ScheduledStart: "2026-01-10T10:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	advance(t, env, a.ID, domain.ActivityInProgress)

	evs, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "activity.status", "", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 {
		t.Fatalf("status events = %d, want 1", len(evs))
	}
	if evs[0].ActorID != "tester" {
		t.Fatalf("actor = %s", evs[0].ActorID)
	}
}

func TestEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	seedClient(t, env, "c1", ptr(50))
	seedWorker(t, env, "w1", 40)
	seedContract(t, env, "k1", "c1", 10)

	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		Title: "install", ClientID: "c1", ContractID: "k1",
		ScheduledStart: "2026-01-10T08:00:00Z", ScheduledEnd: "2026-01-10T12:00:00Z", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.AssignActivity(env.Ctx, a.ID, "w1", "tester")
	if err != nil || a.Status != domain.ActivityScheduled {
		t.Fatalf("assign: %v (status %s)", err, a.Status)
	}
	advance(t, env, a.ID, domain.ActivityInProgress, domain.ActivityDone, domain.ActivityVerified)

	hours, err := env.Engine.ContractHours(env.Ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if hours.TotalHours != 10 || hours.UsedHours != 4 || hours.RemainingHours != 6 {
		t.Fatalf("ledger = %+v, want 10/4/6", hours)
	}

	inv, err := env.Engine.GenerateClientInvoice(env.Ctx, "c1", "2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if inv.TotalAmount != 200 {
		t.Fatalf("invoice total = %v, want 200", inv.TotalAmount)
	}
	got, _ := env.Engine.Repo.GetActivity(env.Ctx, a.ID)
	if got.Status != domain.ActivityInvoiced {
		t.Fatalf("status = %s, want invoiced", got.Status)
	}
}
