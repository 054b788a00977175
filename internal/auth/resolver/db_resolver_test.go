package resolver

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"helpdesk/internal/auth"
	"helpdesk/internal/db"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "0b7d5a4e-1c1f-4bde-9f3a-8a4e2c6d7f10"

func newMockResolver(t *testing.T) (*DBResolver, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewDBResolver(&db.DB{DB: sqlDB}), mock
}

func idRow(id string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id"}).AddRow(id)
}

func TestResolve(t *testing.T) {
	identity := &auth.Identity{
		Provider:       "google",
		ProviderUserID: "sub-1",
		Email:          "ana@example.com",
		EmailVerified:  true,
	}
	byIdentity := regexp.QuoteMeta("FROM auth_identities")
	byEmail := regexp.QuoteMeta("FROM auth_users")
	link := regexp.QuoteMeta("INSERT INTO auth_identities")

	t.Run("known identity", func(t *testing.T) {
		r, mock := newMockResolver(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byIdentity).
			WithArgs("google", "sub-1").
			WillReturnRows(idRow(userID))
		mock.ExpectCommit()

		id, err := r.Resolve(context.Background(), identity)
		require.NoError(t, err)
		assert.Equal(t, userID, id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("links verified email", func(t *testing.T) {
		r, mock := newMockResolver(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byIdentity).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(byEmail).
			WithArgs("ana@example.com").
			WillReturnRows(idRow(userID))
		mock.ExpectQuery(link).
			WithArgs(userID, "google", "sub-1").
			WillReturnRows(idRow(userID))
		mock.ExpectCommit()

		id, err := r.Resolve(context.Background(), identity)
		require.NoError(t, err)
		assert.Equal(t, userID, id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refuses unverified link", func(t *testing.T) {
		r, mock := newMockResolver(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byIdentity).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(byEmail).WillReturnRows(idRow(userID))
		mock.ExpectRollback()

		unverified := *identity
		unverified.EmailVerified = false
		_, err := r.Resolve(context.Background(), &unverified)
		assert.ErrorIs(t, err, ErrUnverifiedEmail)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("creates principal", func(t *testing.T) {
		r, mock := newMockResolver(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byIdentity).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(byEmail).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO auth_users")).
			WithArgs("ana@example.com", true).
			WillReturnRows(idRow(userID))
		mock.ExpectQuery(link).WillReturnRows(idRow(userID))
		mock.ExpectCommit()

		id, err := r.Resolve(context.Background(), identity)
		require.NoError(t, err)
		assert.Equal(t, userID, id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent link wins", func(t *testing.T) {
		const other = "9a1c2b3d-4e5f-4a6b-8c7d-0e1f2a3b4c5d"
		r, mock := newMockResolver(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byIdentity).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(byEmail).WillReturnRows(idRow(userID))
		mock.ExpectQuery(link).WillReturnRows(idRow(other))
		mock.ExpectCommit()

		id, err := r.Resolve(context.Background(), identity)
		require.NoError(t, err)
		assert.Equal(t, other, id)
	})

	t.Run("incomplete identity", func(t *testing.T) {
		r, _ := newMockResolver(t)
		_, err := r.Resolve(context.Background(), nil)
		assert.ErrorIs(t, err, ErrIncompleteIdentity)

		_, err = r.Resolve(context.Background(), &auth.Identity{Provider: "google", Email: "a@b"})
		assert.ErrorIs(t, err, ErrIncompleteIdentity)
	})
}
