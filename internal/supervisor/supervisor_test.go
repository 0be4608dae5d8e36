package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"runplane/internal/artifact"
	"runplane/internal/classify"
	"runplane/internal/runstore"
	"runplane/internal/workfn"
)

func testConfig() Config {
	return Config{
		MaxAutoReruns:       2,
		MaxTotalDuration:    30 * time.Second,
		RerunBackoff:        time.Millisecond,
		ConfidenceThreshold: 0.55,
	}
}

func newTestSupervisor(t *testing.T, work workfn.WorkFunc) (*Supervisor, runstore.Store) {
	t.Helper()
	store := runstore.NewMemoryStore(runstore.RetentionConfig{})
	sup := New(Options{
		Store:  store,
		Sink:   artifact.NewFileSink(t.TempDir()),
		Work:   work,
		Config: testConfig(),
	})
	return sup, store
}

func waitTerminal(t *testing.T, store runstore.Store, jobID string) *runstore.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal status", jobID)
	return nil
}

func eventTypes(t *testing.T, store runstore.Store, jobID string) []runstore.EventType {
	t.Helper()
	events, _, err := store.ListEvents(context.Background(), jobID, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	out := make([]runstore.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func hasEvent(types []runstore.EventType, want runstore.EventType) bool {
	for _, tp := range types {
		if tp == want {
			return true
		}
	}
	return false
}

func TestRun_SucceedsFirstAttempt(t *testing.T) {
	work := func(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error) {
		return &runstore.WorkResult{
			Output:    json.RawMessage(`{"answer":42}`),
			Artifacts: map[string]string{"stdout": "all steps passed"},
		}, nil
	}
	sup, store := newTestSupervisor(t, work)

	id, err := sup.Submit(context.Background(), json.RawMessage(`{"goal":"demo"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, store, id)

	if job.Status != runstore.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", job.Status)
	}
	if len(job.Attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(job.Attempts))
	}
	if job.Attempts[0].Status != runstore.AttemptSucceeded {
		t.Errorf("attempt status = %s", job.Attempts[0].Status)
	}
	if job.Result == nil || string(job.Result.Output) != `{"answer":42}` {
		t.Errorf("result not recorded: %+v", job.Result)
	}
	if job.FinishedAt.IsZero() {
		t.Error("finished_at not set on terminal job")
	}
	if job.IncidentLocator != "" {
		t.Errorf("unexpected incident locator %q", job.IncidentLocator)
	}
	if job.Attempts[0].Artifacts["stdout"] == "" {
		t.Error("stdout artifact locator not recorded")
	}

	types := eventTypes(t, store, id)
	for _, want := range []runstore.EventType{
		runstore.EventJobRunning,
		runstore.EventAttemptStarted,
		runstore.EventAttemptSucceeded,
		runstore.EventJobFinished,
	} {
		if !hasEvent(types, want) {
			t.Errorf("missing event %s in %v", want, types)
		}
	}
}

func TestRun_ExhaustsRerunBudgetOnPersistentInfraFailure(t *testing.T) {
	var calls int
	var mu sync.Mutex
	work := func(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return &runstore.WorkResult{
			Unresolved: []string{"step 3 did not finish"},
			Artifacts:  map[string]string{"stderr": "connection reset by peer"},
		}, nil
	}
	sup, store := newTestSupervisor(t, work)

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, store, id)

	if job.Status != runstore.StatusNeedsAttention {
		t.Fatalf("status = %s, want needs_attention", job.Status)
	}
	if want := testConfig().MaxAutoReruns + 1; len(job.Attempts) != want {
		t.Fatalf("attempts = %d, want %d", len(job.Attempts), want)
	}
	mu.Lock()
	gotCalls := calls
	mu.Unlock()
	if gotCalls != len(job.Attempts) {
		t.Errorf("work calls = %d, attempts = %d", gotCalls, len(job.Attempts))
	}
	if job.IncidentLocator == "" {
		t.Error("needs_attention job must carry an incident locator")
	}
	for i, a := range job.Attempts {
		if a.Classification == nil || a.Classification.Category != "infra" {
			t.Errorf("attempt %d classification = %+v, want infra", i, a.Classification)
		}
		if a.FinishedAt.IsZero() {
			t.Errorf("attempt %d finished_at not set", i)
		}
	}

	// 最后一次 Attempt 没有后续 rerun，不得标记 rerun_scheduled，
	// rerun 事件数也只对应真正发生过的重跑
	last := job.Attempts[len(job.Attempts)-1]
	if last.Status != runstore.AttemptRemediated {
		t.Errorf("last attempt status = %s, want remediated", last.Status)
	}

	types := eventTypes(t, store, id)
	reruns := 0
	for _, tp := range types {
		if tp == runstore.EventAttemptRerunPlanned {
			reruns++
		}
	}
	if reruns != testConfig().MaxAutoReruns {
		t.Errorf("rerun events = %d, want %d", reruns, testConfig().MaxAutoReruns)
	}
	if !hasEvent(types, runstore.EventJobIncident) {
		t.Errorf("missing incident event in %v", types)
	}
	if !hasEvent(types, runstore.EventJobFinished) {
		t.Errorf("missing finished event in %v", types)
	}
}

func TestRun_LowConfidenceClassificationEscalates(t *testing.T) {
	work := func(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error) {
		return &runstore.WorkResult{
			Unresolved: []string{"step 4 halted"},
			Artifacts:  map[string]string{"stdout": "run stopped for an undetermined reason"},
		}, nil
	}
	sup, store := newTestSupervisor(t, work)

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, store, id)

	if job.Status != runstore.StatusNeedsAttention {
		t.Fatalf("status = %s, want needs_attention", job.Status)
	}
	if len(job.Attempts) != 1 {
		t.Fatalf("attempts = %d, want 1: low confidence must not trigger remediation or rerun", len(job.Attempts))
	}
	a := job.Attempts[0]
	if a.Classification == nil || a.Classification.Category != classify.CategoryUnknown {
		t.Errorf("classification = %+v, want unknown", a.Classification)
	}
	if a.Classification != nil && a.Classification.Confidence != classify.UnknownConfidence {
		t.Errorf("confidence = %v, want %v", a.Classification.Confidence, classify.UnknownConfidence)
	}
	if a.Remediation != nil {
		t.Errorf("remediation = %+v, want nil: the catalog must not be consulted", a.Remediation)
	}
	if a.FinishedAt.IsZero() {
		t.Error("attempt finished_at not set")
	}
	if job.IncidentLocator == "" {
		t.Error("incident locator missing")
	}

	types := eventTypes(t, store, id)
	if hasEvent(types, runstore.EventAttemptRemediated) {
		t.Errorf("unexpected remediation event in %v", types)
	}
	if hasEvent(types, runstore.EventAttemptRerunPlanned) {
		t.Errorf("unexpected rerun event in %v", types)
	}
}

func TestRun_DurationBudgetStopsNextAttempt(t *testing.T) {
	var calls int
	var mu sync.Mutex
	work := func(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		return &runstore.WorkResult{
			Unresolved: []string{"step 1 did not finish"},
			Artifacts:  map[string]string{"stderr": "connection reset by peer"},
		}, nil
	}
	store := runstore.NewMemoryStore(runstore.RetentionConfig{})
	sup := New(Options{
		Store: store,
		Sink:  artifact.NewFileSink(t.TempDir()),
		Work:  work,
		Config: Config{
			MaxAutoReruns:       5,
			MaxTotalDuration:    30 * time.Millisecond,
			RerunBackoff:        time.Millisecond,
			ConfidenceThreshold: 0.55,
		},
	})

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, store, id)

	if job.Status != runstore.StatusNeedsAttention {
		t.Fatalf("status = %s, want needs_attention", job.Status)
	}
	mu.Lock()
	gotCalls := calls
	mu.Unlock()
	if gotCalls != 1 {
		t.Fatalf("work calls = %d, want 1: budget must stop the loop before the second attempt", gotCalls)
	}
	if len(job.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(job.Attempts))
	}
	if job.IncidentLocator == "" {
		t.Error("incident locator missing")
	}
	if job.FinishedAt.IsZero() {
		t.Error("finished_at not set")
	}

	types := eventTypes(t, store, id)
	if !hasEvent(types, runstore.EventJobIncident) {
		t.Errorf("missing incident event in %v", types)
	}
	if !hasEvent(types, runstore.EventJobFinished) {
		t.Errorf("missing finished event in %v", types)
	}
}

func TestRun_FlakyFailureSucceedsOnRerun(t *testing.T) {
	var calls int
	var mu sync.Mutex
	work := func(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return &runstore.WorkResult{
				Unresolved: []string{"step 2 timed out waiting for element"},
				Artifacts:  map[string]string{"log": "intermittent failure, passed on retry locally"},
			}, nil
		}
		return &runstore.WorkResult{Artifacts: map[string]string{"log": "clean pass"}}, nil
	}
	sup, store := newTestSupervisor(t, work)

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, store, id)

	if job.Status != runstore.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", job.Status)
	}
	if len(job.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(job.Attempts))
	}
	first := job.Attempts[0]
	if first.Classification == nil || first.Classification.Category != "flaky" {
		t.Errorf("first attempt classification = %+v, want flaky", first.Classification)
	}
	if first.Remediation == nil || !first.Remediation.Safe {
		t.Errorf("first attempt remediation = %+v, want safe", first.Remediation)
	}
	if job.IncidentLocator != "" {
		t.Errorf("succeeded job must not carry incident locator, got %q", job.IncidentLocator)
	}
}

func TestRun_UnsafeCategoryEscalatesImmediately(t *testing.T) {
	work := func(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error) {
		return &runstore.WorkResult{
			Unresolved: []string{"checkout flow broken"},
			Artifacts:  map[string]string{"report": "assertion failed: expected 200 got 500"},
		}, nil
	}
	sup, store := newTestSupervisor(t, work)

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, store, id)

	if job.Status != runstore.StatusNeedsAttention {
		t.Fatalf("status = %s, want needs_attention", job.Status)
	}
	if len(job.Attempts) != 1 {
		t.Fatalf("attempts = %d, want 1: product failures must not auto-rerun", len(job.Attempts))
	}
	a := job.Attempts[0]
	if a.Classification == nil || a.Classification.Category != "product" {
		t.Errorf("classification = %+v, want product", a.Classification)
	}
	if a.Remediation == nil || a.Remediation.Safe {
		t.Errorf("remediation = %+v, want unsafe", a.Remediation)
	}
	if job.IncidentLocator == "" {
		t.Error("incident locator missing")
	}

	types := eventTypes(t, store, id)
	if hasEvent(types, runstore.EventAttemptRerunPlanned) {
		t.Errorf("unexpected rerun event in %v", types)
	}
}

func TestRun_WorkErrorBecomesAutomationIncident(t *testing.T) {
	work := func(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error) {
		return nil, errors.New("interpreter crashed")
	}
	sup, store := newTestSupervisor(t, work)

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, store, id)

	if job.Status != runstore.StatusNeedsAttention {
		t.Fatalf("status = %s, want needs_attention", job.Status)
	}
	if len(job.Attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(job.Attempts))
	}
	cls := job.Attempts[0].Classification
	if cls == nil || cls.Category != "automation" {
		t.Fatalf("classification = %+v, want automation", cls)
	}
	if cls.Confidence != workErrorConfidence {
		t.Errorf("confidence = %v, want %v", cls.Confidence, workErrorConfidence)
	}
	if job.IncidentLocator == "" {
		t.Error("incident locator missing")
	}
}

func TestRun_WorkPanicIsContained(t *testing.T) {
	work := func(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error) {
		panic("boom")
	}
	sup, store := newTestSupervisor(t, work)

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, store, id)

	if job.Status != runstore.StatusNeedsAttention {
		t.Fatalf("status = %s, want needs_attention", job.Status)
	}
	cls := job.Attempts[0].Classification
	if cls == nil || cls.Category != "automation" {
		t.Fatalf("classification = %+v, want automation", cls)
	}
}

func TestCancel_MidAttempt(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	work := func(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error) {
		close(started)
		<-release
		return &runstore.WorkResult{Artifacts: map[string]string{"log": "done"}}, nil
	}
	sup, store := newTestSupervisor(t, work)

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	if err := sup.Cancel(context.Background(), id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	mid, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if mid.Status != runstore.StatusCancelling {
		t.Errorf("status during cancellation = %s, want cancelling", mid.Status)
	}

	close(release)
	job := waitTerminal(t, store, id)

	if job.Status != runstore.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", job.Status)
	}
	if job.FinishedAt.IsZero() {
		t.Error("finished_at not set on cancelled job")
	}
	if len(job.Attempts) != 1 || job.Attempts[0].Status != runstore.AttemptCancelled {
		t.Errorf("attempts = %+v, want one cancelled attempt", job.Attempts)
	}

	types := eventTypes(t, store, id)
	if !hasEvent(types, runstore.EventAttemptCancelled) {
		t.Errorf("missing attempt.cancelled in %v", types)
	}
	if !hasEvent(types, runstore.EventJobCancelled) {
		t.Errorf("missing job.cancelled in %v", types)
	}
	if hasEvent(types, runstore.EventJobFinished) {
		t.Errorf("cancelled job must not emit job.finished: %v", types)
	}
}

func TestCancel_TerminalJobIsNoop(t *testing.T) {
	sup, store := newTestSupervisor(t, workfn.Echo)

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, store, id)
	if job.Status != runstore.StatusSucceeded {
		t.Fatalf("status = %s", job.Status)
	}

	if err := sup.Cancel(context.Background(), id); err != nil {
		t.Fatalf("cancel on terminal job: %v", err)
	}
	after, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Status != runstore.StatusSucceeded || after.CancelRequested {
		t.Errorf("terminal job mutated by cancel: %+v", after)
	}

	if err := sup.Cancel(context.Background(), "job-missing"); !errors.Is(err, runstore.ErrNotFound) {
		t.Errorf("cancel unknown job = %v, want ErrNotFound", err)
	}
}

// failingSink 所有写入都失败
type failingSink struct{}

func (failingSink) WriteText(ctx context.Context, jobID, runID, attemptID, name, content string) (string, error) {
	return "", fmt.Errorf("sink unavailable")
}
func (failingSink) WriteJSON(ctx context.Context, jobID, runID, attemptID, name string, payload any) (string, error) {
	return "", fmt.Errorf("sink unavailable")
}
func (failingSink) WriteIncident(ctx context.Context, jobID string, payload any) (string, error) {
	return "", fmt.Errorf("sink unavailable")
}

type countingMetrics struct {
	mu          sync.Mutex
	sinkFailed  int
	jobFinished int
}

func (m *countingMetrics) JobFinished(string, time.Duration) {
	m.mu.Lock()
	m.jobFinished++
	m.mu.Unlock()
}
func (m *countingMetrics) AttemptClassified(string)        {}
func (m *countingMetrics) RemediationApplied(string, bool) {}
func (m *countingMetrics) SinkWriteFailed() {
	m.mu.Lock()
	m.sinkFailed++
	m.mu.Unlock()
}

func TestRun_SinkFailureLeavesJobRunning(t *testing.T) {
	store := runstore.NewMemoryStore(runstore.RetentionConfig{})
	metrics := &countingMetrics{}
	sup := New(Options{
		Store:   store,
		Sink:    failingSink{},
		Work:    workfn.Echo,
		Config:  testConfig(),
		Metrics: metrics,
	})

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	sup.Wait()

	job, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != runstore.StatusRunning {
		t.Fatalf("status = %s, want running as the alarm condition", job.Status)
	}
	if !job.FinishedAt.IsZero() {
		t.Error("finished_at must stay zero while non-terminal")
	}
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.sinkFailed == 0 {
		t.Error("sink failure metric not recorded")
	}
	if metrics.jobFinished != 0 {
		t.Error("job finished metric recorded for a job that never finished")
	}
}

func TestTailer_StreamsUntilTerminalEvent(t *testing.T) {
	sup, store := newTestSupervisor(t, workfn.Echo)

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tailer := NewTailer(store, 5*time.Millisecond)

	var got []runstore.EventType
	for ev := range tailer.Tail(ctx, id, 0) {
		got = append(got, ev.Type)
	}
	if len(got) == 0 {
		t.Fatal("no events streamed")
	}
	if got[len(got)-1] != runstore.EventJobFinished {
		t.Errorf("stream did not end at terminal event: %v", got)
	}
	if got[0] != runstore.EventJobRunning {
		t.Errorf("stream did not start at the beginning: %v", got)
	}
}

func TestTailer_ResumesFromCursor(t *testing.T) {
	sup, store := newTestSupervisor(t, workfn.Echo)

	id, err := sup.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, store, id)

	all, next, err := store.ListEvents(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(all) < 2 {
		t.Fatalf("expected several events, got %d", len(all))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tailer := NewTailer(store, 5*time.Millisecond)

	from := all[1].Index
	var got []runstore.Event
	for ev := range tailer.Tail(ctx, id, from) {
		got = append(got, ev)
	}
	if len(got) != len(all)-1 {
		t.Fatalf("resumed stream length = %d, want %d", len(got), len(all)-1)
	}
	if got[0].Index != from {
		t.Errorf("first resumed index = %d, want %d", got[0].Index, from)
	}
	if got[len(got)-1].Index+1 != next {
		t.Errorf("stream end index = %d, cursor = %d", got[len(got)-1].Index, next)
	}
}
