package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"postpilot/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func jobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"job_id", "post_id", "state", "run_at", "lease_until",
		"attempts", "max_attempts", "last_error", "created_at", "updated_at",
	})
}

func TestAdd_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	payload := json.RawMessage(`{"postId":"p1","userEmail":"owner@example.com"}`)

	mock.ExpectExec(`INSERT INTO publish_queue`).
		WithArgs("job:p1", "p1", payload, string(store.JobStateDelayed), int64(300000), MaxAttempts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Add(context.Background(), "job:p1", "p1", payload, 5*time.Minute); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAdd_NegativeDelayClampedToZero(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	payload := json.RawMessage(`{}`)

	mock.ExpectExec(`INSERT INTO publish_queue`).
		WithArgs("job:p1", "p1", payload, string(store.JobStateDelayed), int64(0), MaxAttempts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Add(context.Background(), "job:p1", "p1", payload, -time.Hour); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT .* FROM publish_queue WHERE job_id`).
		WithArgs("job:missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "job:missing")
	if !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestRemove_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`DELETE FROM publish_queue`).
		WithArgs("job:missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Remove(context.Background(), "job:missing")
	if !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestPromote_OnlyDelayedJobs(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	// A job that is already active matches zero rows.
	mock.ExpectExec(`UPDATE publish_queue`).
		WithArgs(string(store.JobStateReady), "job:p1", string(store.JobStateDelayed)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Promote(context.Background(), "job:p1")
	if !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestClaimBatch_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()
	payload := json.RawMessage(`{"postId":"p1","userEmail":"owner@example.com"}`)

	mock.ExpectBegin()

	claimRows := sqlmock.NewRows([]string{
		"job_id", "post_id", "state", "run_at", "lease_until",
		"attempts", "max_attempts", "last_error", "created_at", "updated_at", "payload",
	}).AddRow("job:p1", "p1", string(store.JobStateDelayed), now, nil, 0, 3, nil, now, now, []byte(payload))

	// SELECT ... FOR UPDATE SKIP LOCKED
	mock.ExpectQuery(`SELECT .* FROM publish_queue`).
		WillReturnRows(claimRows)

	// Lease + attempt update for claimed jobs
	mock.ExpectExec(`UPDATE publish_queue`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	claimed, err := s.ClaimBatch(context.Background(), 5)
	if err != nil {
		t.Fatalf("ClaimBatch failed: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed job, got %d", len(claimed))
	}
	if claimed[0].Job.ID != "job:p1" {
		t.Errorf("got job id %q, want %q", claimed[0].Job.ID, "job:p1")
	}
	if claimed[0].Job.State != store.JobStateActive {
		t.Errorf("got state %q, want active", claimed[0].Job.State)
	}
	if claimed[0].Job.Attempts != 1 {
		t.Errorf("got attempts %d, want 1", claimed[0].Job.Attempts)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimBatch_EmptyQueue(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM publish_queue`).
		WillReturnRows(sqlmock.NewRows([]string{
			"job_id", "post_id", "state", "run_at", "lease_until",
			"attempts", "max_attempts", "last_error", "created_at", "updated_at", "payload",
		}))
	mock.ExpectRollback()

	claimed, err := s.ClaimBatch(context.Background(), 5)
	if err != nil {
		t.Fatalf("ClaimBatch failed: %v", err)
	}
	if claimed != nil {
		t.Errorf("expected nil slice for empty queue, got %v", claimed)
	}
}

func TestFail_RedelaysWithBackoff(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	// First attempt failed: attempts=1 < max=3 -> re-delay by 1s.
	mock.ExpectQuery(`SELECT attempts, max_attempts FROM publish_queue`).
		WithArgs("job:p1").
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(1, 3))

	mock.ExpectExec(`UPDATE publish_queue`).
		WithArgs(string(store.JobStateDelayed), int64(1000), "connection refused", "job:p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Fail(context.Background(), "job:p1", "connection refused"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFail_SecondAttemptDoublesBackoff(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT attempts, max_attempts FROM publish_queue`).
		WithArgs("job:p1").
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(2, 3))

	mock.ExpectExec(`UPDATE publish_queue`).
		WithArgs(string(store.JobStateDelayed), int64(2000), "timeout", "job:p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Fail(context.Background(), "job:p1", "timeout"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
}

func TestFail_AttemptsExhausted(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT attempts, max_attempts FROM publish_queue`).
		WithArgs("job:p1").
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(3, 3))

	mock.ExpectExec(`UPDATE publish_queue`).
		WithArgs(string(store.JobStateFailed), "publish returned 500", "job:p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Fail(context.Background(), "job:p1", "publish returned 500"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
}

func TestFail_MissingJob(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT attempts, max_attempts FROM publish_queue`).
		WithArgs("job:gone").
		WillReturnError(sql.ErrNoRows)

	err := s.Fail(context.Background(), "job:gone", "whatever")
	if !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestFailPermanently_ExhaustsAttemptBudget(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	// attempts = max_attempts keeps Retry from resurrecting the job.
	mock.ExpectExec(`UPDATE publish_queue\s+SET state = \$1, lease_until = NULL, last_error = \$2, attempts = max_attempts`).
		WithArgs(string(store.JobStateFailed), "post p1 no longer exists", "job:p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.FailPermanently(context.Background(), "job:p1", "post p1 no longer exists"); err != nil {
		t.Fatalf("FailPermanently failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFailPermanently_MissingJob(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE publish_queue`).
		WithArgs(string(store.JobStateFailed), "whatever", "job:gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.FailPermanently(context.Background(), "job:gone", "whatever")
	if !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestRetry_SkipsExhaustedJobs(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE publish_queue`).
		WithArgs(string(store.JobStateReady), "job:p1", string(store.JobStateFailed)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Retry(context.Background(), "job:p1")
	if !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestListFailed(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()
	errMsg := "publish returned 502"

	mock.ExpectQuery(`SELECT .* FROM publish_queue`).
		WithArgs(string(store.JobStateFailed), 100).
		WillReturnRows(jobRows().
			AddRow("job:p2", "p2", string(store.JobStateFailed), now, nil, 3, 3, errMsg, now, now))

	jobs, err := s.ListFailed(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListFailed failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Attempts != 3 {
		t.Errorf("got attempts %d, want 3", jobs[0].Attempts)
	}
	if jobs[0].LastError == nil || *jobs[0].LastError != errMsg {
		t.Errorf("got last error %v, want %q", jobs[0].LastError, errMsg)
	}
}

func TestState_NotFoundAfterRemove(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT state FROM publish_queue`).
		WithArgs("job:p1").
		WillReturnError(sql.ErrNoRows)

	_, err := s.State(context.Background(), "job:p1")
	if !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestCounts(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT state, COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"state", "count"}).
			AddRow(string(store.JobStateDelayed), 4).
			AddRow(string(store.JobStateActive), 2).
			AddRow(string(store.JobStateFailed), 1))

	counts, err := s.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.Delayed != 4 || counts.Active != 2 || counts.Failed != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
	if counts.Completed != 0 || counts.Ready != 0 {
		t.Errorf("expected zero completed/ready, got %+v", counts)
	}
}
