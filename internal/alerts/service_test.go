package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/logtrap/internal/errs"
	"github.com/good-yellow-bee/logtrap/internal/models"
	"github.com/good-yellow-bee/logtrap/internal/notifier"
	"github.com/good-yellow-bee/logtrap/internal/storage"
)

// fakeStorage bundles the in-memory repositories behind the Storage
// interface.
type fakeStorage struct {
	traps    *fakeTrapRepo
	rules    *fakeRuleRepo
	channels *fakeChannelRepo
	history  *fakeHistoryRepo
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		traps:    &fakeTrapRepo{traps: make(map[string]*models.LogTrap)},
		rules:    &fakeRuleRepo{},
		channels: &fakeChannelRepo{channels: make(map[string]*models.AlertChannel)},
		history:  &fakeHistoryRepo{alerts: make(map[string]*models.AlertHistory)},
	}
}

func (f *fakeStorage) Open() error    { return nil }
func (f *fakeStorage) Close() error   { return nil }
func (f *fakeStorage) Migrate() error { return nil }

func (f *fakeStorage) Traps() storage.TrapRepository               { return f.traps }
func (f *fakeStorage) Rules() storage.RuleRepository               { return f.rules }
func (f *fakeStorage) Channels() storage.ChannelRepository         { return f.channels }
func (f *fakeStorage) AlertHistory() storage.AlertHistoryRepository { return f.history }

type fakeTrapRepo struct {
	traps map[string]*models.LogTrap
}

func (f *fakeTrapRepo) Create(ctx context.Context, trap *models.LogTrap) error { return nil }

func (f *fakeTrapRepo) GetByID(ctx context.Context, teamID, id string) (*models.LogTrap, error) {
	trap, ok := f.traps[id]
	if !ok || trap.TeamID != teamID {
		return nil, errs.NotFound("trap", id)
	}
	return trap, nil
}

func (f *fakeTrapRepo) Update(ctx context.Context, trap *models.LogTrap) error { return nil }
func (f *fakeTrapRepo) Delete(ctx context.Context, teamID, id string) error    { return nil }
func (f *fakeTrapRepo) List(ctx context.Context, teamID string) ([]*models.LogTrap, error) {
	return nil, nil
}
func (f *fakeTrapRepo) ListActive(ctx context.Context, teamID string) ([]*models.LogTrap, error) {
	return nil, nil
}
func (f *fakeTrapRepo) SetActive(ctx context.Context, teamID, id string, active bool) error {
	return nil
}
func (f *fakeTrapRepo) UpdateStats(ctx context.Context, teamID, id string, triggeredAt time.Time) error {
	return nil
}

type fakeRuleRepo struct {
	rules []*models.AlertRule
}

func (f *fakeRuleRepo) Create(ctx context.Context, rule *models.AlertRule) error { return nil }
func (f *fakeRuleRepo) GetByID(ctx context.Context, teamID, id string) (*models.AlertRule, error) {
	return nil, errs.NotFound("rule", id)
}
func (f *fakeRuleRepo) Update(ctx context.Context, rule *models.AlertRule) error { return nil }
func (f *fakeRuleRepo) Delete(ctx context.Context, teamID, id string) error      { return nil }
func (f *fakeRuleRepo) List(ctx context.Context, teamID string) ([]*models.AlertRule, error) {
	return nil, nil
}

func (f *fakeRuleRepo) ListActiveByTrap(ctx context.Context, teamID, trapID string) ([]*models.AlertRule, error) {
	var out []*models.AlertRule
	for _, rule := range f.rules {
		if rule.TeamID == teamID && rule.TrapID == trapID && rule.IsActive {
			out = append(out, rule)
		}
	}
	return out, nil
}

type fakeChannelRepo struct {
	channels map[string]*models.AlertChannel
}

func (f *fakeChannelRepo) Create(ctx context.Context, ch *models.AlertChannel) error { return nil }
func (f *fakeChannelRepo) GetByID(ctx context.Context, teamID, id string) (*models.AlertChannel, error) {
	ch, ok := f.channels[id]
	if !ok || ch.TeamID != teamID {
		return nil, errs.NotFound("channel", id)
	}
	return ch, nil
}
func (f *fakeChannelRepo) Update(ctx context.Context, ch *models.AlertChannel) error { return nil }
func (f *fakeChannelRepo) Delete(ctx context.Context, teamID, id string) error       { return nil }
func (f *fakeChannelRepo) List(ctx context.Context, teamID string) ([]*models.AlertChannel, error) {
	return nil, nil
}
func (f *fakeChannelRepo) ListActive(ctx context.Context, teamID string) ([]*models.AlertChannel, error) {
	return nil, nil
}

type fakeHistoryRepo struct {
	mu     sync.Mutex
	alerts map[string]*models.AlertHistory
}

func (f *fakeHistoryRepo) CreateIfNoneSince(ctx context.Context, h *models.AlertHistory, cutoff time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.alerts {
		if existing.RuleID == h.RuleID && existing.TeamID == h.TeamID && !existing.CreatedAt.Before(cutoff) {
			return false, nil
		}
	}
	cp := *h
	f.alerts[h.ID] = &cp
	return true, nil
}

func (f *fakeHistoryRepo) ExistsSince(ctx context.Context, teamID, ruleID string, cutoff time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.alerts {
		if existing.RuleID == ruleID && existing.TeamID == teamID && !existing.CreatedAt.Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeHistoryRepo) GetByID(ctx context.Context, teamID, id string) (*models.AlertHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.alerts[id]
	if !ok || h.TeamID != teamID {
		return nil, errs.NotFound("alert", id)
	}
	cp := *h
	return &cp, nil
}

func (f *fakeHistoryRepo) UpdateStatus(ctx context.Context, h *models.AlertHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.alerts[h.ID]; !ok {
		return errs.NotFound("alert", h.ID)
	}
	cp := *h
	f.alerts[h.ID] = &cp
	return nil
}

func (f *fakeHistoryRepo) List(ctx context.Context, teamID string, limit, offset int) ([]*models.AlertHistory, int64, error) {
	return nil, 0, nil
}

func (f *fakeHistoryRepo) ListByTrap(ctx context.Context, teamID, trapID string, limit, offset int) ([]*models.AlertHistory, int64, error) {
	return nil, 0, nil
}

func (f *fakeHistoryRepo) CountActiveBySeverity(ctx context.Context, teamID string) (map[models.Severity]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[models.Severity]int64)
	for _, h := range f.alerts {
		if h.TeamID != teamID || h.Status == models.StatusResolved {
			continue
		}
		out[h.Severity]++
	}
	return out, nil
}

func (f *fakeHistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

// recordingNotifier captures delivered notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []*notifier.Notification
	err  error
}

func (r *recordingNotifier) Type() models.ChannelType { return models.ChannelWebhook }

func (r *recordingNotifier) Send(ctx context.Context, ch *models.AlertChannel, n *notifier.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fixture struct {
	store    *fakeStorage
	svc      *Service
	recorder *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newFakeStorage()
	store.traps.traps["trap-1"] = &models.LogTrap{
		ID: "trap-1", Name: "db errors", Type: models.TrapTypePattern, TeamID: "team-1",
	}
	store.channels.channels["ch-1"] = &models.AlertChannel{
		ID: "ch-1", Name: "ops", Type: models.ChannelWebhook, TeamID: "team-1", IsActive: true,
		Configuration: `{"url":"https://hooks.example.com/x"}`,
	}
	store.rules.rules = []*models.AlertRule{
		{
			ID: "rule-1", TrapID: "trap-1", ChannelID: "ch-1", TeamID: "team-1",
			Severity: models.SeverityCritical, ThrottleMinutes: 10, IsActive: true,
		},
	}

	recorder := &recordingNotifier{}
	dispatcher := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{Enabled: false})
	dispatcher.Register(recorder)

	svc := NewService(store, dispatcher)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &fixture{store: store, svc: svc, recorder: recorder, now: now}
}

func TestFireAlertsCreatesHistoryAndDelivers(t *testing.T) {
	fx := newFixture(t)

	fired, err := fx.svc.FireAlerts(context.Background(), "team-1", "trap-1", "db is down")
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("fired = %d alerts, want 1", len(fired))
	}

	alert := fired[0]
	if alert.Status != models.StatusFired {
		t.Errorf("status = %s, want FIRED", alert.Status)
	}
	if alert.Severity != models.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", alert.Severity)
	}
	if alert.RuleID != "rule-1" || alert.TrapID != "trap-1" || alert.ChannelID != "ch-1" {
		t.Error("expected rule, trap and channel ids snapshotted on the alert")
	}
	if fx.recorder.count() != 1 {
		t.Errorf("deliveries = %d, want 1", fx.recorder.count())
	}
}

func TestFireAlertsThrottlesWithinWindow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.svc.FireAlerts(ctx, "team-1", "trap-1", "first")
	if err != nil || len(first) != 1 {
		t.Fatalf("first fire = (%v, %v), want one alert", first, err)
	}

	// Second firing within the 10 minute throttle is suppressed.
	second, err := fx.svc.FireAlerts(ctx, "team-1", "trap-1", "second")
	if err != nil {
		t.Fatalf("second fire: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second fire created %d alerts, want 0", len(second))
	}
	if fx.recorder.count() != 1 {
		t.Errorf("deliveries = %d, want 1", fx.recorder.count())
	}
}

func TestFireAlertsFiresAgainAfterWindow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.FireAlerts(ctx, "team-1", "trap-1", "first"); err != nil {
		t.Fatalf("first fire: %v", err)
	}

	later := fx.now.Add(11 * time.Minute)
	fx.svc.now = func() time.Time { return later }

	second, err := fx.svc.FireAlerts(ctx, "team-1", "trap-1", "second")
	if err != nil {
		t.Fatalf("second fire: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("second fire created %d alerts, want 1 after throttle expiry", len(second))
	}
}

func TestFireAlertsThrottlesPerRule(t *testing.T) {
	fx := newFixture(t)
	fx.store.rules.rules = append(fx.store.rules.rules, &models.AlertRule{
		ID: "rule-2", TrapID: "trap-1", ChannelID: "ch-1", TeamID: "team-1",
		Severity: models.SeverityInfo, ThrottleMinutes: 10, IsActive: true,
	})

	fired, err := fx.svc.FireAlerts(context.Background(), "team-1", "trap-1", "boom")
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(fired) != 2 {
		t.Fatalf("fired = %d alerts, want one per rule", len(fired))
	}
}

func TestFireAlertsSkipsInactiveRules(t *testing.T) {
	fx := newFixture(t)
	fx.store.rules.rules[0].IsActive = false

	fired, err := fx.svc.FireAlerts(context.Background(), "team-1", "trap-1", "boom")
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(fired) != 0 {
		t.Fatalf("fired = %d alerts, want 0 for inactive rule", len(fired))
	}
}

func TestFireAlertsSurvivesDeliveryFailure(t *testing.T) {
	fx := newFixture(t)
	fx.recorder.err = context.DeadlineExceeded

	fired, err := fx.svc.FireAlerts(context.Background(), "team-1", "trap-1", "boom")
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("fired = %d alerts, want 1: the alert record outlives delivery failure", len(fired))
	}
	if _, getErr := fx.svc.Get(context.Background(), "team-1", fired[0].ID); getErr != nil {
		t.Errorf("alert not persisted: %v", getErr)
	}
}

func TestFireAlertsSkipsInactiveChannelButKeepsAlert(t *testing.T) {
	fx := newFixture(t)
	fx.store.channels.channels["ch-1"].IsActive = false

	fired, err := fx.svc.FireAlerts(context.Background(), "team-1", "trap-1", "boom")
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("fired = %d, want 1", len(fired))
	}
	if fx.recorder.count() != 0 {
		t.Errorf("deliveries = %d, want 0 for inactive channel", fx.recorder.count())
	}
}

func TestAcknowledgeAndResolve(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fired, err := fx.svc.FireAlerts(ctx, "team-1", "trap-1", "boom")
	if err != nil || len(fired) != 1 {
		t.Fatalf("fire = (%v, %v)", fired, err)
	}
	id := fired[0].ID

	acked, err := fx.svc.Acknowledge(ctx, "team-1", id, "user-1")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if acked.Status != models.StatusAcknowledged || acked.AcknowledgedBy != "user-1" {
		t.Errorf("acknowledged alert = %+v", acked)
	}

	resolved, err := fx.svc.Resolve(ctx, "team-1", id, "user-2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != models.StatusResolved || resolved.ResolvedBy != "user-2" {
		t.Errorf("resolved alert = %+v", resolved)
	}
	if resolved.AcknowledgedBy != "user-1" {
		t.Error("resolution overwrote the original acknowledger")
	}

	// Lifecycle is monotonic.
	if _, err := fx.svc.Acknowledge(ctx, "team-1", id, "user-3"); !errs.IsValidation(err) {
		t.Errorf("acknowledging resolved alert: got %v, want validation error", err)
	}
	if _, err := fx.svc.Resolve(ctx, "team-1", id, "user-3"); !errs.IsValidation(err) {
		t.Errorf("re-resolving alert: got %v, want validation error", err)
	}
}

func TestResolveWithoutAcknowledgeStampsResolver(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fired, err := fx.svc.FireAlerts(ctx, "team-1", "trap-1", "boom")
	if err != nil || len(fired) != 1 {
		t.Fatalf("fire = (%v, %v)", fired, err)
	}

	resolved, err := fx.svc.Resolve(ctx, "team-1", fired[0].ID, "user-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.AcknowledgedBy != "user-1" || resolved.AcknowledgedAt == nil {
		t.Error("expected implicit acknowledgment by the resolver")
	}
}

func TestLifecycleScopedToTeam(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fired, err := fx.svc.FireAlerts(ctx, "team-1", "trap-1", "boom")
	if err != nil || len(fired) != 1 {
		t.Fatalf("fire = (%v, %v)", fired, err)
	}

	if _, err := fx.svc.Acknowledge(ctx, "team-2", fired[0].ID, "intruder"); !errs.IsNotFound(err) {
		t.Errorf("cross-team acknowledge: got %v, want not found", err)
	}
}

func TestCreateChannelRunsSSRFGuard(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ch := &models.AlertChannel{
		Name: "internal", Type: models.ChannelWebhook, TeamID: "team-1",
		Configuration: `{"url":"http://10.0.0.5/hook"}`,
	}
	if err := fx.svc.CreateChannel(ctx, ch); !errs.IsSecurity(err) {
		t.Fatalf("create with private URL: got %v, want security error", err)
	}

	ch.Configuration = `{"url":"http://93.184.216.34/hook"}`
	if err := fx.svc.CreateChannel(ctx, ch); err != nil {
		t.Fatalf("create with public URL: %v", err)
	}
	if ch.ID == "" || ch.CreatedAt.IsZero() {
		t.Error("expected id and timestamps to be assigned")
	}
}

func TestUpdateChannelRevalidatesURL(t *testing.T) {
	fx := newFixture(t)

	ch := fx.store.channels.channels["ch-1"]
	ch.Configuration = `{"url":"http://169.254.169.254/latest"}`
	if err := fx.svc.UpdateChannel(context.Background(), ch); !errs.IsSecurity(err) {
		t.Fatalf("update to link-local URL: got %v, want security error", err)
	}
}

func TestCreateRuleChecksReferences(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	rule := &models.AlertRule{
		TrapID: "missing", ChannelID: "ch-1", TeamID: "team-1",
		Severity: models.SeverityWarning, ThrottleMinutes: 5,
	}
	if err := fx.svc.CreateRule(ctx, rule); !errs.IsNotFound(err) {
		t.Fatalf("create with missing trap: got %v, want not found", err)
	}

	rule.TrapID = "trap-1"
	rule.ChannelID = "missing"
	if err := fx.svc.CreateRule(ctx, rule); !errs.IsNotFound(err) {
		t.Fatalf("create with missing channel: got %v, want not found", err)
	}

	rule.ChannelID = "ch-1"
	if err := fx.svc.CreateRule(ctx, rule); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rule.ID == "" {
		t.Error("expected rule id to be assigned")
	}
}

func TestCreateRuleRejectsBadThrottle(t *testing.T) {
	fx := newFixture(t)

	rule := &models.AlertRule{
		TrapID: "trap-1", ChannelID: "ch-1", TeamID: "team-1",
		Severity: models.SeverityInfo, ThrottleMinutes: 0,
	}
	if err := fx.svc.CreateRule(context.Background(), rule); !errs.IsValidation(err) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestActiveCounts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fired, err := fx.svc.FireAlerts(ctx, "team-1", "trap-1", "boom")
	if err != nil || len(fired) != 1 {
		t.Fatalf("fire = (%v, %v)", fired, err)
	}

	counts, err := fx.svc.ActiveCounts(ctx, "team-1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[models.SeverityCritical] != 1 {
		t.Errorf("critical count = %d, want 1", counts[models.SeverityCritical])
	}

	if _, err := fx.svc.Resolve(ctx, "team-1", fired[0].ID, "user-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	counts, err = fx.svc.ActiveCounts(ctx, "team-1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[models.SeverityCritical] != 0 {
		t.Errorf("critical count after resolve = %d, want 0", counts[models.SeverityCritical])
	}
}
