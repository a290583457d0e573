package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"postpilot/internal/reconciler"
	"postpilot/internal/store"
)

// Mock transaction
type mockTx struct{}

func (m *mockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (m *mockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (m *mockTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (m *mockTx) Commit() error { return nil }

func (m *mockTx) Rollback() error { return nil }

// Mock Store
type mockStore struct {
	// Post hooks
	beginTxErr      error
	pingErr         error
	createPostErr   error
	updatePostErr   error
	deletePostErr   error
	getPostByIDResp *store.Post
	getPostByIDErr  error

	// Queue hooks
	countsResp        store.JobCounts
	countsErr         error
	findJobByPostResp *store.Job
	listFailedResp    []store.Job
	listFailedErr     error

	// Spies (to verify arguments passed by handlers)
	capturedPost     *store.Post
	deletedPostID    string
	updatedStatusMap map[string]store.PostStatus
}

func newMockStore() *mockStore {
	return &mockStore{updatedStatusMap: make(map[string]store.PostStatus)}
}

func (m *mockStore) BeginTx(ctx context.Context) (store.Tx, error) {
	if m.beginTxErr != nil {
		return nil, m.beginTxErr
	}
	return &mockTx{}, nil
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockStore) CreatePost(ctx context.Context, tx store.DBTransaction, post *store.Post) error {
	m.capturedPost = post
	return m.createPostErr
}

func (m *mockStore) GetPostByID(ctx context.Context, id string) (*store.Post, error) {
	return m.getPostByIDResp, m.getPostByIDErr
}

func (m *mockStore) UpdatePost(ctx context.Context, tx store.DBTransaction, post *store.Post) error {
	m.capturedPost = post
	return m.updatePostErr
}

func (m *mockStore) UpdatePostStatus(ctx context.Context, id string, status store.PostStatus) error {
	m.updatedStatusMap[id] = status
	return nil
}

func (m *mockStore) DeletePost(ctx context.Context, tx store.DBTransaction, id string) error {
	m.deletedPostID = id
	return m.deletePostErr
}

func (m *mockStore) GetLocationByID(ctx context.Context, id string) (*store.Location, error) {
	return nil, nil
}

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return nil, nil
}

func (m *mockStore) FindDefaultActor(ctx context.Context) (*store.User, error) {
	return nil, store.ErrUserNotFound
}

func (m *mockStore) ListOverdueScheduledPosts(ctx context.Context, now time.Time, limit int) ([]store.Post, error) {
	return nil, nil
}

func (m *mockStore) ListRecentlyFailedPosts(ctx context.Context, since time.Time) ([]store.Post, error) {
	return nil, nil
}

func (m *mockStore) Add(ctx context.Context, jobID, postID string, payload json.RawMessage, delay time.Duration) error {
	return nil
}

func (m *mockStore) Get(ctx context.Context, jobID string) (*store.Job, error) {
	return nil, store.ErrJobNotFound
}

func (m *mockStore) Remove(ctx context.Context, jobID string) error { return nil }

func (m *mockStore) Promote(ctx context.Context, jobID string) error { return nil }

func (m *mockStore) FindJobByPost(ctx context.Context, postID string) (*store.Job, error) {
	if m.findJobByPostResp == nil {
		return nil, store.ErrJobNotFound
	}
	return m.findJobByPostResp, nil
}

func (m *mockStore) ClaimBatch(ctx context.Context, limit int) ([]store.ClaimedJob, error) {
	return nil, nil
}

func (m *mockStore) Complete(ctx context.Context, jobID string) error { return nil }

func (m *mockStore) Fail(ctx context.Context, jobID string, errMsg string) error { return nil }

func (m *mockStore) FailPermanently(ctx context.Context, jobID string, errMsg string) error {
	return nil
}

func (m *mockStore) ExtendLease(ctx context.Context, jobID string, until time.Time) error {
	return nil
}

func (m *mockStore) ListFailed(ctx context.Context, limit int) ([]store.Job, error) {
	return m.listFailedResp, m.listFailedErr
}

func (m *mockStore) Retry(ctx context.Context, jobID string) error { return nil }

func (m *mockStore) State(ctx context.Context, jobID string) (store.JobState, error) {
	return "", store.ErrJobNotFound
}

func (m *mockStore) Counts(ctx context.Context) (store.JobCounts, error) {
	return m.countsResp, m.countsErr
}

// Mock scheduler
type mockScheduler struct {
	scheduleErr   error
	unscheduleErr error

	scheduled   []string
	unscheduled []string
	scheduledAt time.Time
}

func (m *mockScheduler) Schedule(ctx context.Context, postID string, scheduledAt time.Time, userEmail string) error {
	if m.scheduleErr != nil {
		return m.scheduleErr
	}
	m.scheduled = append(m.scheduled, postID)
	m.scheduledAt = scheduledAt
	return nil
}

func (m *mockScheduler) Unschedule(ctx context.Context, postID string) error {
	if m.unscheduleErr != nil {
		return m.unscheduleErr
	}
	m.unscheduled = append(m.unscheduled, postID)
	return nil
}

func (m *mockScheduler) Reschedule(ctx context.Context, postID string, newScheduledAt time.Time, userEmail string) error {
	if err := m.Unschedule(ctx, postID); err != nil {
		return err
	}
	return m.Schedule(ctx, postID, newScheduledAt, userEmail)
}

// Mock sweeper
type mockSweeper struct {
	result *reconciler.Result
	err    error
}

func (m *mockSweeper) Sweep(ctx context.Context) (*reconciler.Result, error) {
	return m.result, m.err
}

// Mock ledger pinger
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

func newTestHandlers(s *mockStore, sched *mockScheduler, sweeper *mockSweeper, ledger *mockPinger) *Handlers {
	if s == nil {
		s = newMockStore()
	}
	if sched == nil {
		sched = &mockScheduler{}
	}
	if sweeper == nil {
		sweeper = &mockSweeper{result: &reconciler.Result{}}
	}
	if ledger == nil {
		ledger = &mockPinger{}
	}
	return New(s, sched, sweeper, ledger)
}
