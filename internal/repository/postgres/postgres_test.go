package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/repository"
	"github.com/jafarshop/tablepos/pkg/errors"
)

func setupTestDB(t *testing.T) (*repository.Repositories, *sql.DB) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("tablepos"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := Open(fmt.Sprintf(
		"host=%s port=%d user=testuser password=testpass dbname=tablepos sslmode=disable",
		host, port.Int(),
	))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db))
	// second run is a no-op
	require.NoError(t, RunMigrations(db))

	return NewRepositories(db, zap.NewNop()), db
}

func TestOrderLifecycle(t *testing.T) {
	repos, _ := setupTestDB(t)
	ctx := context.Background()

	instructions := "no peanuts"
	order := &domain.Order{
		TableRef:            "T12",
		TotalAmount:         450,
		DiscountAmount:      50,
		SpecialInstructions: &instructions,
	}
	require.NoError(t, repos.Order.Create(ctx, order))
	assert.NotEqual(t, uuid.Nil, order.ID)

	lines := []*domain.OrderLine{
		{OrderID: order.ID, ItemID: "pad-thai", Name: "Pad Thai", Quantity: 2, UnitPrice: 150,
			Options: []domain.OptionSelection{{Group: "spice", Choice: "mild"}}},
		{OrderID: order.ID, ItemID: "thai-tea", Name: "Thai Tea", Quantity: 4, UnitPrice: 50},
	}
	require.NoError(t, repos.OrderLine.CreateBatch(ctx, lines))

	got, err := repos.Order.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "T12", got.TableRef)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.Equal(t, 450.0, got.TotalAmount)
	assert.Equal(t, 50.0, got.DiscountAmount)
	require.NotNil(t, got.SpecialInstructions)
	assert.Equal(t, instructions, *got.SpecialInstructions)
	assert.Nil(t, got.AppliedPromotionID)

	gotLines, err := repos.OrderLine.GetByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, gotLines, 2)

	byItem := map[string]*domain.OrderLine{}
	for _, l := range gotLines {
		byItem[l.ItemID] = l
	}
	assert.Equal(t, []domain.OptionSelection{{Group: "spice", Choice: "mild"}}, byItem["pad-thai"].Options)
	assert.Empty(t, byItem["thai-tea"].Options)

	require.NoError(t, repos.Order.UpdateStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusPaid))
	got, err = repos.Order.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, got.Status)

	listed, err := repos.Order.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestOrderUpdateStatus_StaleStatusIsRejected(t *testing.T) {
	repos, _ := setupTestDB(t)
	ctx := context.Background()

	order := &domain.Order{TableRef: "T9", TotalAmount: 120}
	require.NoError(t, repos.Order.Create(ctx, order))

	// a cancel lands between the payment's read and its write
	require.NoError(t, repos.Order.UpdateStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled))

	err := repos.Order.UpdateStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusPaid)
	var transition *errors.ErrInvalidStateTransition
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, domain.OrderStatusCancelled, transition.From)
	assert.Equal(t, domain.OrderStatusPaid, transition.To)

	got, err := repos.Order.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status)

	err = repos.Order.UpdateStatus(ctx, uuid.New(), domain.OrderStatusPending, domain.OrderStatusPaid)
	var notFound *errors.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestOrderDelete_CascadesLines(t *testing.T) {
	repos, db := setupTestDB(t)
	ctx := context.Background()

	order := &domain.Order{TableRef: "T1", TotalAmount: 100}
	require.NoError(t, repos.Order.Create(ctx, order))
	require.NoError(t, repos.OrderLine.CreateBatch(ctx, []*domain.OrderLine{
		{OrderID: order.ID, ItemID: "som-tam", Name: "Som Tam", Quantity: 1, UnitPrice: 100},
	}))

	require.NoError(t, repos.Order.Delete(ctx, order.ID))

	_, err := repos.Order.GetByID(ctx, order.ID)
	_, notFound := err.(*errors.ErrNotFound)
	assert.True(t, notFound)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_lines WHERE order_id = $1`, order.ID).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestOrderLines_InvalidBatchWritesNothing(t *testing.T) {
	repos, _ := setupTestDB(t)
	ctx := context.Background()

	order := &domain.Order{TableRef: "T2", TotalAmount: 10}
	require.NoError(t, repos.Order.Create(ctx, order))

	err := repos.OrderLine.CreateBatch(ctx, []*domain.OrderLine{
		{OrderID: order.ID, ItemID: "ok", Name: "Ok", Quantity: 1, UnitPrice: 10},
		{OrderID: order.ID, ItemID: "bad", Name: "Bad", Quantity: 0, UnitPrice: 10},
	})
	require.Error(t, err)

	lines, err := repos.OrderLine.GetByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestPromotion_CodeIsCaseInsensitiveAndUsageCapped(t *testing.T) {
	repos, _ := setupTestDB(t)
	ctx := context.Background()

	limit := 1
	promo := &domain.Promotion{
		Code:       "happyhour",
		Kind:       domain.DiscountKindPercentage,
		Value:      15,
		IsActive:   true,
		UsageLimit: &limit,
		Rules: []domain.PromotionRule{
			{Attribute: domain.RuleAttributeCartTotal, Operator: domain.RuleOperatorGte, Value: 300},
			{Attribute: domain.RuleAttributeCategoryID, Operator: domain.RuleOperatorIn, Values: []string{"drinks"}},
		},
	}
	require.NoError(t, repos.Promotion.Create(ctx, promo))
	assert.Equal(t, "HAPPYHOUR", promo.Code)

	got, err := repos.Promotion.GetByCode(ctx, "HAPPYHOUR")
	require.NoError(t, err)
	assert.Equal(t, promo.ID, got.ID)
	assert.Equal(t, promo.Rules, got.Rules)
	require.NotNil(t, got.UsageLimit)
	assert.Equal(t, 1, *got.UsageLimit)

	require.NoError(t, repos.Promotion.IncrementUsage(ctx, promo.ID))
	err = repos.Promotion.IncrementUsage(ctx, promo.ID)
	_, conflict := err.(*errors.ErrConflict)
	assert.True(t, conflict)

	got, err = repos.Promotion.GetByCode(ctx, "happyhour")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)

	_, err = repos.Promotion.GetByCode(ctx, "NOPE")
	_, notFound := err.(*errors.ErrNotFound)
	assert.True(t, notFound)
}

func TestOrderEventsAndIdempotencyKeys(t *testing.T) {
	repos, _ := setupTestDB(t)
	ctx := context.Background()

	order := &domain.Order{TableRef: "T3", TotalAmount: 80}
	require.NoError(t, repos.Order.Create(ctx, order))

	require.NoError(t, repos.OrderEvent.Create(ctx, &domain.OrderEvent{
		OrderID:   order.ID,
		EventType: domain.EventOrderCreated,
		EventData: map[string]interface{}{"table_ref": "T3"},
	}))
	events, err := repos.OrderEvent.GetByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "T3", events[0].EventData["table_ref"])

	missing, err := repos.IdempotencyKey.GetByKey(ctx, "k-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repos.IdempotencyKey.Create(ctx, &domain.IdempotencyKey{Key: "k-1", OrderID: order.ID, RequestHash: "abc"}))
	key, err := repos.IdempotencyKey.GetByKey(ctx, "k-1")
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, order.ID, key.OrderID)

	// same key, same order: no-op
	require.NoError(t, repos.IdempotencyKey.Create(ctx, &domain.IdempotencyKey{Key: "k-1", OrderID: order.ID, RequestHash: "abc"}))

	other := &domain.Order{TableRef: "T4", TotalAmount: 20}
	require.NoError(t, repos.Order.Create(ctx, other))
	err = repos.IdempotencyKey.Create(ctx, &domain.IdempotencyKey{Key: "k-1", OrderID: other.ID, RequestHash: "abc"})
	var conflict *errors.ErrConflict
	assert.ErrorAs(t, err, &conflict)
}
