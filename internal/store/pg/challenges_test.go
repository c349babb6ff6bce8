package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"propdesk.io/internal/challenge"
	"propdesk.io/internal/quota"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func headerRows(id, tenantID string, status challenge.Status) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "challenge_name", "challenge_type", "account_size", "entry_fee",
		"leverage", "currency", "is_refundable", "status", "created_at", "updated_at",
	}).AddRow(id, tenantID, "Phase One", "two_phase", "100000", "499", "1:100", "USD", true, string(status), now, now)
}

func TestCreateRollsBackOnChildFailure(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into challenges").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into challenge_rules_sections").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), "t1", challenge.Draft{
		Name:     "Phase One",
		Sections: []challenge.RuleSection{{Name: "Targets", Order: 1, Rules: map[string]string{"profit": "8%"}}},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishIncrementsUsageInOneTransaction(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from challenges where tenant_id=.* for update").
		WithArgs("t1", "c1").
		WillReturnRows(headerRows("c1", "t1", challenge.StatusDraft))
	mock.ExpectQuery("select p.challenge_limit, t.challenges_used").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"challenge_limit", "challenges_used"}).AddRow(5, 2))
	mock.ExpectExec("update challenges set status").
		WithArgs("t1", "c1", string(challenge.StatusPublished)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update tenants set challenges_used = challenges_used \\+ 1").
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Publish(context.Background(), "t1", "c1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishAtLimitRollsBack(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from challenges where tenant_id=.* for update").
		WithArgs("t1", "c1").
		WillReturnRows(headerRows("c1", "t1", challenge.StatusDraft))
	mock.ExpectQuery("select p.challenge_limit, t.challenges_used").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"challenge_limit", "challenges_used"}).AddRow(2, 2))
	mock.ExpectRollback()

	err := s.Publish(context.Background(), "t1", "c1")
	require.ErrorIs(t, err, quota.ErrExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishRequiresDraft(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from challenges where tenant_id=.* for update").
		WithArgs("t1", "c1").
		WillReturnRows(headerRows("c1", "t1", challenge.StatusArchived))
	mock.ExpectRollback()

	err := s.Publish(context.Background(), "t1", "c1")
	require.ErrorIs(t, err, challenge.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBlockedByOrders(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from challenges where tenant_id=.* for update").
		WithArgs("t1", "c1").
		WillReturnRows(headerRows("c1", "t1", challenge.StatusArchived))
	mock.ExpectQuery("select count\\(\\*\\) from orders").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	err := s.Delete(context.Background(), "t1", "c1")
	require.ErrorIs(t, err, challenge.ErrHasOrders)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRemovesChildrenFirst(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from challenges where tenant_id=.* for update").
		WithArgs("t1", "c1").
		WillReturnRows(headerRows("c1", "t1", challenge.StatusDraft))
	mock.ExpectQuery("select count\\(\\*\\) from orders").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("delete from challenge_rules_sections").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("delete from challenge_restrictions").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from challenge_segments").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from challenges").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), "t1", "c1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReplacesChildren(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from challenges where tenant_id=.* for update").
		WithArgs("t1", "c1").
		WillReturnRows(headerRows("c1", "t1", challenge.StatusPublished))
	mock.ExpectExec("update challenges set").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from challenge_rules_sections").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("delete from challenge_restrictions").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from challenge_segments").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into challenge_rules_sections").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into challenge_restrictions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := s.Update(context.Background(), "t1", "c1", challenge.Update{
		Name:        "Phase One v2",
		AccountSize: decimal.NewFromInt(200000),
		EntryFee:    decimal.NewFromInt(999),
		Sections:    []challenge.RuleSection{{Name: "Targets", Order: 1, Rules: map[string]string{"profit": "10%"}}},
	})
	require.NoError(t, err)
	require.Equal(t, "Phase One v2", got.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAbsentRestrictionsReadAsDefaults(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("from challenges where tenant_id=").
		WithArgs("t1", "c1").
		WillReturnRows(headerRows("c1", "t1", challenge.StatusDraft))
	mock.ExpectQuery("from challenge_rules_sections").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"section_name", "section_order", "rules"}))
	mock.ExpectQuery("from challenge_restrictions").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"news_trading_allowed"}))
	mock.ExpectQuery("select segment from challenge_segments").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"segment"}).AddRow("forex"))

	got, err := s.Get(context.Background(), "t1", "c1")
	require.NoError(t, err)
	require.Equal(t, challenge.DefaultRestrictions(), got.Restrictions)
	require.Equal(t, []string{"forex"}, got.Segments)
	require.NoError(t, mock.ExpectationsWereMet())
}
