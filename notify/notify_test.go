package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/notify"
	"github.com/warp/commerce-engine/store/sqlite"
	"github.com/warp/commerce-engine/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// recordingMailer fails the first `failures` sends, then records messages.
type recordingMailer struct {
	mu       sync.Mutex
	sent     []notify.Message
	attempts int
	failures int
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp: connection reset")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Message(nil), m.sent...)
}

func (m *recordingMailer) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

type testEnv struct {
	t       *testing.T
	ctx     context.Context
	store   *sqlstore.Store
	mailer  *recordingMailer
	owner   *commerce.Administrator
	product *commerce.Product
	client  *commerce.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{t: t, ctx: context.Background(), store: store, mailer: &recordingMailer{}}
	env.owner = env.admin("owner@shop.test", true)
	env.admin("partner@shop.test", true)
	env.admin("retired@shop.test", false)

	env.product = &commerce.Product{
		Name: "Lantern", Description: "A lantern for camping", Price: commerce.NewMoney(12.5),
		SKU: "PRD-LANTERN1", Stock: 50, Active: true, AdministratorID: env.owner.ID,
	}
	require.NoError(t, store.CreateProduct(env.ctx, env.product))
	env.client = &commerce.Client{Name: "Camper", Email: "camper@shop.test", Phone: "5550101234", Active: true}
	require.NoError(t, store.CreateClient(env.ctx, env.client))
	return env
}

func (e *testEnv) admin(email string, active bool) *commerce.Administrator {
	e.t.Helper()
	a := &commerce.Administrator{Name: "Admin " + email, Email: email, PasswordDigest: "x", Role: commerce.RoleAdmin, Active: active}
	require.NoError(e.t, e.store.CreateAdministrator(e.ctx, a))
	return a
}

// buy records a completed purchase without notifying anyone.
func (e *testEnv) buy(at time.Time) commerce.PurchaseID {
	e.t.Helper()
	r, err := commerce.NewPurchaseLedger(e.store).RecordPurchase(e.ctx, commerce.PurchaseRequest{
		ProductID: e.product.ID, ClientID: e.client.ID, Quantity: 2, PurchaseDate: &at,
	})
	require.NoError(e.t, err)
	return r.Purchase.ID
}

func fastConfig() notify.DispatcherConfig {
	cfg := notify.DefaultDispatcherConfig()
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	return cfg
}

func (e *testEnv) newDispatcher(cfg notify.DispatcherConfig) *notify.Dispatcher {
	d := notify.NewDispatcher(
		notify.NewFirstPurchaseHandler(e.store, e.mailer),
		notify.NewDailyReportHandler(e.store, e.mailer),
		cfg,
	)
	e.t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	return d
}

func day(d, hour int) time.Time {
	return time.Date(2024, time.February, d, hour, 0, 0, 0, time.UTC)
}

// =============================================================================
// FIRST PURCHASE HANDLER
// =============================================================================

func TestFirstPurchaseHandler_MailsOwnerWithActiveAdminsOnCC(t *testing.T) {
	// GIVEN: The first completed purchase of a product
	// WHEN: The handler runs twice for it
	// THEN: One mail to the creator, active colleagues on cc, delivery recorded

	env := newTestEnv(t)
	id := env.buy(day(3, 10))
	h := notify.NewFirstPurchaseHandler(env.store, env.mailer)

	require.NoError(t, h.Handle(env.ctx, id))
	require.NoError(t, h.Handle(env.ctx, id))

	sent := env.mailer.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"owner@shop.test"}, sent[0].To)
	assert.Equal(t, []string{"partner@shop.test"}, sent[0].Cc)
	assert.Equal(t, "First purchase: Lantern", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "PRD-LANTERN1")
	assert.Contains(t, sent[0].Body, "Camper <camper@shop.test>")
	assert.Contains(t, sent[0].Body, "25.00")

	recorded, err := env.store.DeliveryRecorded(env.ctx, notify.KindFirstPurchase, id.String())
	require.NoError(t, err)
	assert.True(t, recorded)
}

func TestFirstPurchaseHandler_StaleSignal_Dropped(t *testing.T) {
	// GIVEN: A purchase that was first when committed, then an earlier-dated one
	// WHEN: The handler runs for the original signal
	// THEN: Nothing is sent

	env := newTestEnv(t)
	stale := env.buy(day(10, 10))
	env.buy(day(1, 10))

	require.NoError(t, notify.NewFirstPurchaseHandler(env.store, env.mailer).Handle(env.ctx, stale))

	assert.Empty(t, env.mailer.messages())
}

func TestFirstPurchaseHandler_UnknownPurchase_Permanent(t *testing.T) {
	env := newTestEnv(t)

	err := notify.NewFirstPurchaseHandler(env.store, env.mailer).Handle(env.ctx, 404)

	assert.True(t, notify.IsPermanent(err))
	assert.True(t, commerce.IsNotFound(err))
	assert.Empty(t, env.mailer.messages())
}

func TestFirstPurchaseHandler_MailFailure_NotRecorded(t *testing.T) {
	env := newTestEnv(t)
	id := env.buy(day(3, 10))
	env.mailer.failures = 1

	err := notify.NewFirstPurchaseHandler(env.store, env.mailer).Handle(env.ctx, id)

	require.Error(t, err)
	assert.False(t, notify.IsPermanent(err))
	recorded, err := env.store.DeliveryRecorded(env.ctx, notify.KindFirstPurchase, id.String())
	require.NoError(t, err)
	assert.False(t, recorded)
}

// =============================================================================
// DAILY REPORT HANDLER
// =============================================================================

func TestDailyReportHandler_SummarizesDayForAllActiveAdmins(t *testing.T) {
	env := newTestEnv(t)
	env.buy(day(5, 9))
	env.buy(day(5, 18))
	env.buy(day(6, 1))
	h := notify.NewDailyReportHandler(env.store, env.mailer)

	require.NoError(t, h.Handle(env.ctx, day(5, 23)))
	require.NoError(t, h.Handle(env.ctx, day(5, 0)))

	sent := env.mailer.messages()
	require.Len(t, sent, 1)
	assert.ElementsMatch(t, []string{"owner@shop.test", "partner@shop.test"}, sent[0].To)
	assert.Equal(t, "Daily sales report 2024-02-05", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "Completed purchases: 2")
	assert.Regexp(t, `Revenue:\s+50\.00`, sent[0].Body)
	assert.Contains(t, sent[0].Body, "Lantern: 4")
	assert.Contains(t, sent[0].Body, "Lantern (PRD-LANTERN1): 2")
}

func TestDailyReportHandler_EmptyDay(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, notify.NewDailyReportHandler(env.store, env.mailer).Handle(env.ctx, day(5, 0)))

	sent := env.mailer.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "No purchases were completed.")
}

// =============================================================================
// DISPATCHER
// =============================================================================

func TestDispatcher_LedgerSignal_DeliveredAfterCommit(t *testing.T) {
	// GIVEN: A ledger wired to a running dispatcher
	// WHEN: The first purchase of a product is recorded
	// THEN: The creator gets the mail asynchronously

	env := newTestEnv(t)
	d := env.newDispatcher(fastConfig())
	d.Start()
	ledger := commerce.NewPurchaseLedger(env.store, commerce.WithNotifier(d))

	r, err := ledger.RecordPurchase(env.ctx, commerce.PurchaseRequest{
		ProductID: env.product.ID, ClientID: env.client.ID, Quantity: 1,
	})
	require.NoError(t, err)
	require.True(t, r.FirstPurchase)

	require.Eventually(t, func() bool { return len(env.mailer.messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	env := newTestEnv(t)
	id := env.buy(day(3, 10))
	env.mailer.failures = 2
	d := env.newDispatcher(fastConfig())
	d.Start()

	require.NoError(t, d.NotifyFirstPurchase(env.ctx, id))

	require.Eventually(t, func() bool { return len(env.mailer.messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, env.mailer.attemptCount())
}

func TestDispatcher_ExhaustsRetries(t *testing.T) {
	// GIVEN: A mailer that always fails
	// WHEN: A first-purchase job and a daily report job run
	// THEN: 1 + 3 attempts for the first, 1 + 2 for the second, then give up

	env := newTestEnv(t)
	id := env.buy(day(3, 10))
	env.mailer.failures = 1000
	d := env.newDispatcher(fastConfig())
	d.Start()

	require.NoError(t, d.NotifyFirstPurchase(env.ctx, id))
	require.Eventually(t, func() bool { return env.mailer.attemptCount() == 4 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.EnqueueDailyReport(env.ctx, day(3, 0)))
	require.Eventually(t, func() bool { return env.mailer.attemptCount() == 7 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Stop(ctx)
	assert.Equal(t, 7, env.mailer.attemptCount())
}

func TestDispatcher_NeverBlocks(t *testing.T) {
	env := newTestEnv(t)
	cfg := fastConfig()
	cfg.QueueSize = 1
	d := env.newDispatcher(cfg)

	require.NoError(t, d.NotifyFirstPurchase(env.ctx, 1))
	assert.ErrorIs(t, d.NotifyFirstPurchase(env.ctx, 2), notify.ErrQueueFull)

	d.Stop(env.ctx)
	assert.ErrorIs(t, d.NotifyFirstPurchase(env.ctx, 3), notify.ErrDispatcherStopped)
}

func TestDispatcher_StopDrainsQueue(t *testing.T) {
	env := newTestEnv(t)
	id := env.buy(day(3, 10))
	d := env.newDispatcher(fastConfig())

	require.NoError(t, d.NotifyFirstPurchase(env.ctx, id))
	require.NoError(t, d.EnqueueDailyReport(env.ctx, day(3, 0)))
	d.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.Stop(ctx)

	assert.Len(t, env.mailer.messages(), 2)
}

// =============================================================================
// SCHEDULER
// =============================================================================

type recordingEnqueuer struct {
	mu   sync.Mutex
	days []time.Time
}

func (e *recordingEnqueuer) EnqueueDailyReport(_ context.Context, day time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.days = append(e.days, day)
	return nil
}

func TestDailyReportScheduler_EnqueuesYesterdayUntilDelivered(t *testing.T) {
	// GIVEN: It is 2024-02-06 08:00 UTC and no report was sent
	// WHEN: The scheduler checks, the report is delivered, it checks again
	// THEN: 2024-02-05 is enqueued once

	env := newTestEnv(t)
	enqueuer := &recordingEnqueuer{}
	s := notify.NewDailyReportScheduler(env.store, enqueuer)
	s.Now = func() time.Time { return day(6, 8) }

	assert.True(t, s.RunNow(env.ctx))
	require.NoError(t, env.store.RecordDelivery(env.ctx, notify.KindDailyReport, "2024-02-05"))
	assert.False(t, s.RunNow(env.ctx))

	assert.Equal(t, []time.Time{day(5, 0)}, enqueuer.days)
	assert.Equal(t, day(6, 9), s.NextRunTime())
}

func TestDailyReportScheduler_StartStop(t *testing.T) {
	env := newTestEnv(t)
	enqueuer := &recordingEnqueuer{}
	s := notify.NewDailyReportScheduler(env.store, enqueuer)
	s.CheckInterval = time.Hour

	s.Start()
	require.Eventually(t, func() bool {
		enqueuer.mu.Lock()
		defer enqueuer.mu.Unlock()
		return len(enqueuer.days) == 1
	}, time.Second, 5*time.Millisecond, "checks immediately on start")
	s.Stop()
	s.Stop()
}
