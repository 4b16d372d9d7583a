package jobs_test

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/jobs"
	"github.com/warp/commerce-engine/notify"
	"github.com/warp/commerce-engine/store/sqlite"
	"github.com/warp/commerce-engine/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testEnv struct {
	ctx        context.Context
	store      *sqlstore.Store
	mailer     *recordingMailer
	purchaseID commerce.PurchaseID
	mux        *asynq.ServeMux
}

// newTestEnv seeds one administrator, product, client and first purchase.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	admin := &commerce.Administrator{Name: "Owner", Email: "owner@shop.test", PasswordDigest: "x", Role: commerce.RoleAdmin, Active: true}
	require.NoError(t, store.CreateAdministrator(ctx, admin))
	product := &commerce.Product{
		Name: "Compass", Description: "Points north reliably", Price: commerce.NewMoney(9),
		SKU: "PRD-COMPASS1", Stock: 10, Active: true, AdministratorID: admin.ID,
	}
	require.NoError(t, store.CreateProduct(ctx, product))
	client := &commerce.Client{Name: "Hiker", Email: "hiker@shop.test", Phone: "5550101234", Active: true}
	require.NoError(t, store.CreateClient(ctx, client))

	at := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	r, err := commerce.NewPurchaseLedger(store).RecordPurchase(ctx, commerce.PurchaseRequest{
		ProductID: product.ID, ClientID: client.ID, Quantity: 1, PurchaseDate: &at,
	})
	require.NoError(t, err)

	mailer := &recordingMailer{}
	return &testEnv{
		ctx:        ctx,
		store:      store,
		mailer:     mailer,
		purchaseID: r.Purchase.ID,
		mux: jobs.NewServeMux(
			notify.NewFirstPurchaseHandler(store, mailer),
			notify.NewDailyReportHandler(store, mailer),
		),
	}
}

// =============================================================================
// TASKS
// =============================================================================

func TestNewFirstPurchaseTask_Payload(t *testing.T) {
	task, err := jobs.NewFirstPurchaseTask(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, jobs.TypeFirstPurchase, task.Type())
	var payload jobs.FirstPurchasePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, int64(42), payload.PurchaseID)
}

func TestNewDailyReportTask_UsesUTCDate(t *testing.T) {
	local := time.FixedZone("UTC-5", -5*3600)
	task, err := jobs.NewDailyReportTask(context.Background(), time.Date(2024, 3, 4, 21, 0, 0, 0, local))
	require.NoError(t, err)

	var payload jobs.DailyReportPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "2024-03-05", payload.Date)
}

// =============================================================================
// HANDLERS
// =============================================================================

func TestServeMux_FirstPurchase_SendsOnce(t *testing.T) {
	// GIVEN: A first-purchase task delivered twice
	// WHEN: The worker processes both
	// THEN: One mail is sent

	env := newTestEnv(t)
	task, err := jobs.NewFirstPurchaseTask(env.ctx, env.purchaseID)
	require.NoError(t, err)

	require.NoError(t, env.mux.ProcessTask(env.ctx, task))
	require.NoError(t, env.mux.ProcessTask(env.ctx, task))

	assert.Equal(t, 1, env.mailer.count())
}

func TestServeMux_DailyReport(t *testing.T) {
	env := newTestEnv(t)
	task, err := jobs.NewDailyReportTask(env.ctx, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, env.mux.ProcessTask(env.ctx, task))

	assert.Equal(t, 1, env.mailer.count())
	recorded, err := env.store.DeliveryRecorded(env.ctx, notify.KindDailyReport, "2024-03-04")
	require.NoError(t, err)
	assert.True(t, recorded)
}

func TestServeMux_UnknownPurchase_SkipsRetry(t *testing.T) {
	env := newTestEnv(t)
	task, err := jobs.NewFirstPurchaseTask(env.ctx, 9999)
	require.NoError(t, err)

	err = env.mux.ProcessTask(env.ctx, task)

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, env.mailer.count())
}

func TestServeMux_BadPayload_SkipsRetry(t *testing.T) {
	env := newTestEnv(t)

	err := env.mux.ProcessTask(env.ctx, asynq.NewTask(jobs.TypeDailyReport, []byte(`{"date":"yesterday"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = env.mux.ProcessTask(env.ctx, asynq.NewTask(jobs.TypeFirstPurchase, []byte(`not json`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

// =============================================================================
// CLIENT (requires Redis)
// =============================================================================

func TestClient_DuplicateEnqueue_IsNotAnError(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: addr})
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		t.Skipf("Redis not available at %s: %v", addr, err)
	}

	client := jobs.NewClient(addr)
	defer client.Close()
	ctx := context.Background()
	id := commerce.PurchaseID(time.Now().UnixNano())

	require.NoError(t, client.NotifyFirstPurchase(ctx, id))
	require.NoError(t, client.NotifyFirstPurchase(ctx, id))

	t.Cleanup(func() {
		_ = inspector.DeleteTask(jobs.DefaultQueue, "first_purchase:"+id.String())
	})
}
