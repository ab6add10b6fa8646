package offline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/tablepos/internal/config"
	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/service"
	"github.com/jafarshop/tablepos/pkg/errors"
)

func orderRequest(table string) *service.CreateOrderRequest {
	return &service.CreateOrderRequest{
		TableRef: table,
		Items: []domain.CartLine{
			{ItemID: "pad-thai", Name: "Pad Thai", Quantity: 2, UnitPrice: 120},
		},
	}
}

func payloadFor(t *testing.T, table string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(orderRequest(table))
	require.NoError(t, err)
	return data
}

// fakeSubmitter records submitted tables and fails the ones listed in failFor
type fakeSubmitter struct {
	mu      sync.Mutex
	tables  []string
	failFor map[string]error
	started chan struct{}
	release chan struct{}
}

func (f *fakeSubmitter) CreateOrder(_ context.Context, req *service.CreateOrderRequest) (*service.CreateOrderResult, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = append(f.tables, req.TableRef)
	if err := f.failFor[req.TableRef]; err != nil {
		return nil, err
	}
	return &service.CreateOrderResult{OrderID: uuid.New(), TotalAmount: 240}, nil
}

func (f *fakeSubmitter) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tables...)
}

// manualSignal is a SignalSource driven by the test
type manualSignal struct {
	offline []func()
	online  []func()
}

func (m *manualSignal) OnOffline(fn func()) { m.offline = append(m.offline, fn) }
func (m *manualSignal) OnOnline(fn func())  { m.online = append(m.online, fn) }

func (m *manualSignal) goOffline() {
	for _, fn := range m.offline {
		fn()
	}
}

func (m *manualSignal) goOnline() {
	for _, fn := range m.online {
		fn()
	}
}

func tablesOf(t *testing.T, items []domain.QueuedSubmission) []string {
	t.Helper()
	var tables []string
	for _, item := range items {
		var req service.CreateOrderRequest
		require.NoError(t, json.Unmarshal(item.Payload, &req))
		tables = append(tables, req.TableRef)
	}
	return tables
}

func storageBackends() map[string]func(t *testing.T) Storage {
	return map[string]func(t *testing.T) Storage{
		"memory": func(t *testing.T) Storage { return NewMemoryStorage() },
		"sqlite": func(t *testing.T) Storage {
			s, err := OpenSQLiteStorage(filepath.Join(t.TempDir(), "queue.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"redis": func(t *testing.T) Storage {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisStorage(client, "test:queue")
		},
	}
}

func TestQueue_FIFOAcrossBackends(t *testing.T) {
	for name, newStorage := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := NewQueue(newStorage(t), nil)

			first, err := q.Enqueue(ctx, payloadFor(t, "T1"))
			require.NoError(t, err)
			_, err = q.Enqueue(ctx, payloadFor(t, "T2"))
			require.NoError(t, err)
			_, err = q.Enqueue(ctx, payloadFor(t, "T3"))
			require.NoError(t, err)

			items, err := q.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"T1", "T2", "T3"}, tablesOf(t, items))
			assert.Equal(t, first.ID, items[0].ID)

			require.NoError(t, q.Remove(ctx, items[1].ID))
			require.NoError(t, q.Remove(ctx, uuid.New()))

			size, err := q.Size(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, size)

			items, err = q.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"T1", "T3"}, tablesOf(t, items))
		})
	}
}

func TestQueue_RejectsInvalidPayload(t *testing.T) {
	q := NewQueue(NewMemoryStorage(), nil)

	_, err := q.Enqueue(context.Background(), json.RawMessage(`{"table_ref":`))

	var validation *errors.ErrValidation
	assert.ErrorAs(t, err, &validation)
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(NewMemoryStorage(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := q.Enqueue(ctx, payloadFor(t, fmt.Sprintf("T%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, size)
}

func TestSQLiteStorage_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	s, err := OpenSQLiteStorage(path)
	require.NoError(t, err)
	q := NewQueue(s, nil)
	queued, err := q.Enqueue(ctx, payloadFor(t, "T9"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	items, err := NewQueue(reopened, nil).List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, queued.ID, items[0].ID)
	assert.WithinDuration(t, queued.CreatedAt, items[0].CreatedAt, time.Microsecond)
	assert.JSONEq(t, string(queued.Payload), string(items[0].Payload))
}

func newQueueWith(t *testing.T, tables ...string) *Queue {
	t.Helper()
	q := NewQueue(NewMemoryStorage(), nil)
	for _, table := range tables {
		_, err := q.Enqueue(context.Background(), payloadFor(t, table))
		require.NoError(t, err)
	}
	return q
}

func TestDrainAndSync_PartialFailureKeepsFailedItem(t *testing.T) {
	ctx := context.Background()
	q := newQueueWith(t, "T1", "T2", "T3")
	submitter := &fakeSubmitter{failFor: map[string]error{"T2": stderrors.New("constraint violation")}}

	var progress []SyncProgress
	c := NewCoordinator(q, submitter, nil, WithProgress(func(p SyncProgress) {
		progress = append(progress, p)
	}))

	report, err := c.DrainAndSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Succeeded: 2, Failed: 1, Remaining: 1}, report)
	assert.Equal(t, []string{"T1", "T2", "T3"}, submitter.submitted())

	items, err := q.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2"}, tablesOf(t, items))

	require.Len(t, progress, 3)
	assert.Equal(t, 3, progress[2].Total)
	assert.Error(t, progress[1].Err)
	assert.NoError(t, progress[2].Err)
}

func TestDrainAndSync_UndecodablePayloadStaysQueued(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(NewMemoryStorage(), nil)
	_, err := q.Enqueue(ctx, json.RawMessage(`{"items":"not-a-list"}`))
	require.NoError(t, err)

	c := NewCoordinator(q, &fakeSubmitter{}, nil)
	report, err := c.DrainAndSync(ctx)

	require.NoError(t, err)
	assert.Equal(t, SyncReport{Failed: 1, Remaining: 1}, report)
}

func TestDrainAndSync_SinglePassInFlight(t *testing.T) {
	ctx := context.Background()
	q := newQueueWith(t, "T1")
	submitter := &fakeSubmitter{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCoordinator(q, submitter, nil)

	done := make(chan SyncReport)
	go func() {
		report, err := c.DrainAndSync(ctx)
		assert.NoError(t, err)
		done <- report
	}()

	<-submitter.started
	assert.True(t, c.Status().Syncing)

	second, err := c.DrainAndSync(ctx)
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(submitter.release)
	first := <-done
	assert.Equal(t, SyncReport{Succeeded: 1}, first)
	assert.Equal(t, []string{"T1"}, submitter.submitted())
}

func TestDrainAndSync_ItemsQueuedMidPassWaitForNextPass(t *testing.T) {
	ctx := context.Background()
	q := newQueueWith(t, "T1")
	submitter := &fakeSubmitter{started: make(chan struct{}, 2), release: make(chan struct{})}
	c := NewCoordinator(q, submitter, nil)

	done := make(chan SyncReport)
	go func() {
		report, _ := c.DrainAndSync(ctx)
		done <- report
	}()

	<-submitter.started
	_, err := q.Enqueue(ctx, payloadFor(t, "T2"))
	require.NoError(t, err)
	close(submitter.release)

	assert.Equal(t, SyncReport{Succeeded: 1}, <-done)
	items, err := q.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2"}, tablesOf(t, items))

	report, err := c.DrainAndSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Succeeded: 1}, report)
}

func TestDrainAndSync_IgnoresCallerCancellation(t *testing.T) {
	q := newQueueWith(t, "T1", "T2")
	c := NewCoordinator(q, &fakeSubmitter{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := c.DrainAndSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
}

func TestSubmit_OnlineCreatesOrder(t *testing.T) {
	q := NewQueue(NewMemoryStorage(), nil)
	submitter := &fakeSubmitter{}
	c := NewCoordinator(q, submitter, nil)

	result, err := c.Submit(context.Background(), orderRequest("T4"))

	require.NoError(t, err)
	assert.False(t, result.Queued)
	require.NotNil(t, result.Result)
	assert.Equal(t, []string{"T4"}, submitter.submitted())
}

func TestSubmit_OfflineQueues(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(NewMemoryStorage(), nil)
	submitter := &fakeSubmitter{}
	signal := &manualSignal{}
	c := NewCoordinator(q, submitter, nil)
	c.Attach(signal)

	signal.goOffline()
	result, err := c.Submit(ctx, orderRequest("T5"))

	require.NoError(t, err)
	assert.True(t, result.Queued)
	assert.NotEqual(t, uuid.Nil, result.QueueID)
	assert.Empty(t, submitter.submitted())

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

// recordingKeys is an in-memory idempotency key store
type recordingKeys struct {
	mu   sync.Mutex
	keys map[string]*domain.IdempotencyKey
}

func (r *recordingKeys) GetByKey(_ context.Context, key string) (*domain.IdempotencyKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[key], nil
}

func (r *recordingKeys) Create(_ context.Context, key *domain.IdempotencyKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *key
	r.keys[key.Key] = &stored
	return nil
}

func TestSubmit_KeyedRetryWhileOfflineQueuesOnce(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(NewMemoryStorage(), nil)
	c := NewCoordinator(q, &fakeSubmitter{}, nil)
	c.SetOnline(false)

	first, err := c.Submit(ctx, orderRequest("T6"), WithIdempotencyKey("t6-attempt", "hash-a"))
	require.NoError(t, err)
	retry, err := c.Submit(ctx, orderRequest("T6"), WithIdempotencyKey("t6-attempt", "hash-a"))
	require.NoError(t, err)

	assert.True(t, retry.Queued)
	assert.Equal(t, first.QueueID, retry.QueueID)

	_, err = c.Submit(ctx, orderRequest("T7"), WithIdempotencyKey("t6-attempt", "hash-b"))
	var conflict *errors.ErrConflict
	assert.ErrorAs(t, err, &conflict)

	_, err = c.Submit(ctx, orderRequest("T6"))
	require.NoError(t, err)

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestDrainAndSync_RecordsIdempotencyKeyOfReplayedOrder(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(NewMemoryStorage(), nil)
	keys := &recordingKeys{keys: map[string]*domain.IdempotencyKey{}}
	submitter := &fakeSubmitter{}
	c := NewCoordinator(q, submitter, nil, WithIdempotencyKeys(keys))
	c.SetOnline(false)

	queued, err := c.Submit(ctx, orderRequest("T8"), WithIdempotencyKey("t8-attempt", "hash-8"))
	require.NoError(t, err)
	require.True(t, queued.Queued)

	report, err := c.DrainAndSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Succeeded: 1}, report)
	assert.Equal(t, []string{"T8"}, submitter.submitted())

	key, err := keys.GetByKey(ctx, "t8-attempt")
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, "hash-8", key.RequestHash)
	assert.NotEqual(t, uuid.Nil, key.OrderID)
}

func TestDrainAndSync_SkipsSubmissionWhoseKeyAlreadySynced(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(NewMemoryStorage(), nil)
	existing := uuid.New()
	keys := &recordingKeys{keys: map[string]*domain.IdempotencyKey{
		"t9-attempt": {Key: "t9-attempt", OrderID: existing, RequestHash: "hash-9"},
	}}
	submitter := &fakeSubmitter{}
	c := NewCoordinator(q, submitter, nil, WithIdempotencyKeys(keys))
	c.SetOnline(false)

	_, err := c.Submit(ctx, orderRequest("T9"), WithIdempotencyKey("t9-attempt", "hash-9"))
	require.NoError(t, err)

	report, err := c.DrainAndSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Succeeded: 1}, report)
	assert.Empty(t, submitter.submitted())

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestSubmit_NetworkErrorQueues(t *testing.T) {
	q := NewQueue(NewMemoryStorage(), nil)
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: stderrors.New("connection refused")}
	submitter := &fakeSubmitter{failFor: map[string]error{
		"T6": &errors.ErrOrderCreation{Stage: errors.StageHeader, Err: netErr},
	}}
	c := NewCoordinator(q, submitter, nil)

	result, err := c.Submit(context.Background(), orderRequest("T6"))

	require.NoError(t, err)
	assert.True(t, result.Queued)
}

func TestSubmit_OtherErrorsAreReturned(t *testing.T) {
	q := NewQueue(NewMemoryStorage(), nil)
	submitter := &fakeSubmitter{failFor: map[string]error{
		"T7": &errors.ErrValidation{Message: "promotion code is not applicable"},
	}}
	c := NewCoordinator(q, submitter, nil)

	_, err := c.Submit(context.Background(), orderRequest("T7"))

	var validation *errors.ErrValidation
	require.ErrorAs(t, err, &validation)
	size, err := q.Size(context.Background())
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestSubmit_InvalidRequestIsNotQueued(t *testing.T) {
	q := NewQueue(NewMemoryStorage(), nil)
	c := NewCoordinator(q, &fakeSubmitter{}, nil)
	c.SetOnline(false)

	_, err := c.Submit(context.Background(), &service.CreateOrderRequest{TableRef: "T8"})

	var validation *errors.ErrValidation
	require.ErrorAs(t, err, &validation)
	size, err := q.Size(context.Background())
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestCoordinator_OnlineSignalDrainsQueue(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(NewMemoryStorage(), nil)
	submitter := &fakeSubmitter{}
	signal := &manualSignal{}
	c := NewCoordinator(q, submitter, nil)
	c.Attach(signal)

	signal.goOffline()
	for _, table := range []string{"T1", "T2"} {
		_, err := c.Submit(ctx, orderRequest(table))
		require.NoError(t, err)
	}

	signal.goOnline()
	c.Wait()

	assert.True(t, c.Online())
	assert.Equal(t, []string{"T1", "T2"}, submitter.submitted())
	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestCoordinator_RepeatedOnlineSignalDoesNotDrain(t *testing.T) {
	q := newQueueWith(t, "T1")
	submitter := &fakeSubmitter{}
	c := NewCoordinator(q, submitter, nil)

	c.SetOnline(true)
	c.Wait()

	assert.Empty(t, submitter.submitted())
}

func TestRunSizePoller_ObservesWithoutMutating(t *testing.T) {
	q := newQueueWith(t, "T1", "T2")
	submitter := &fakeSubmitter{}
	c := NewCoordinator(q, submitter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		c.RunSizePoller(ctx, 10*time.Millisecond)
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return c.Status().QueueSize == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-stopped

	assert.Empty(t, submitter.submitted())
	size, err := q.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestOpenStorage(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		cfg     config.QueueConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.QueueConfig{Backend: config.QueueBackendMemory}},
		{name: "sqlite", cfg: config.QueueConfig{Backend: config.QueueBackendSQLite, Path: filepath.Join(t.TempDir(), "q.db")}},
		{name: "redis", cfg: config.QueueConfig{Backend: config.QueueBackendRedis, RedisAddr: mr.Addr(), RedisKey: "pos:queue"}},
		{name: "unknown", cfg: config.QueueConfig{Backend: "floppy"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, closer, err := OpenStorage(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer closer.Close()

			q := NewQueue(storage, nil)
			_, err = q.Enqueue(context.Background(), payloadFor(t, "T1"))
			require.NoError(t, err)
			size, err := q.Size(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, size)
		})
	}
}
