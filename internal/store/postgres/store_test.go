package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/torqlist/leadgate/internal/signup"
	"github.com/torqlist/leadgate/internal/store"
)

var testNow = time.Unix(1700000000, 0).UTC()

func testRecord() signup.Record {
	return signup.Record{
		Email:     "a@b.com",
		Role:      "buyer",
		Source:    "landing",
		Focus:     signup.DefaultFocus,
		IPAddress: signup.Unknown,
		UserAgent: signup.Unknown,
		Referrer:  signup.Unknown,
		CreatedAt: testNow,
	}
}

func TestInsertStoresRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, "signups")
	require.NoError(t, err)

	rec := testRecord()
	mock.ExpectExec("INSERT INTO signups").
		WithArgs(
			pgxmock.AnyArg(),
			rec.Email,
			rec.Role,
			rec.Source,
			rec.Focus,
			rec.IPAddress,
			rec.UserAgent,
			rec.Referrer,
			rec.UTMSource,
			rec.UTMMedium,
			rec.UTMCampaign,
			rec.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stored, err := st.Insert(context.Background(), rec)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)
	require.Equal(t, rec.Email, stored.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertClassifiesUniqueViolation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, "signups")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO signups").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "signups_email_key"})

	_, err = st.Insert(context.Background(), testRecord())
	require.Error(t, err)
	require.Equal(t, store.KindDuplicateKey, store.KindOf(err))
}

func TestInsertClassifiesMissingTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, "signups")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO signups").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(&pgconn.PgError{Code: "42P01"})

	_, err = st.Insert(context.Background(), testRecord())
	require.Error(t, err)
	require.Equal(t, store.KindSchemaMissing, store.KindOf(err))
}

func TestInsertClassifiesOtherBackendError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, "signups")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO signups").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(&pgconn.PgError{Code: "53100", Message: "disk full"})

	_, err = st.Insert(context.Background(), testRecord())
	require.Error(t, err)
	require.Equal(t, store.KindOther, store.KindOf(err))
}

func TestInsertClassifiesDeadlineAsConnectionFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, "signups")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO signups").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(context.DeadlineExceeded)

	_, err = st.Insert(context.Background(), testRecord())
	require.Error(t, err)
	require.Equal(t, store.KindConnectionFailure, store.KindOf(err))
}

func TestFindByEmailReturnsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, "signups")
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"id", "email", "role", "source", "focus", "ip_address", "user_agent",
		"referrer", "utm_source", "utm_medium", "utm_campaign", "created_at",
	}).AddRow(
		"id-1", "a@b.com", "buyer", "landing", "general", "unknown", "unknown",
		"unknown", (*string)(nil), (*string)(nil), (*string)(nil), testNow,
	)
	mock.ExpectQuery("SELECT id, email, role, source").
		WithArgs("a@b.com").
		WillReturnRows(rows)

	got, err := st.FindByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "id-1", got.ID)
	require.Equal(t, "a@b.com", got.Email)
}

func TestFindByEmailMissingRowIsNil(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, "signups")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, email, role, source").
		WithArgs("missing@b.com").
		WillReturnError(pgx.ErrNoRows)

	got, err := st.FindByEmail(context.Background(), "missing@b.com")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestProbeClassifiesAvailability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want store.Availability
	}{
		{name: "available", err: nil, want: store.Available},
		{name: "empty table still available", err: pgx.ErrNoRows, want: store.Available},
		{name: "missing relation", err: &pgconn.PgError{Code: "42P01"}, want: store.Unprovisioned},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: store.Unreachable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			st, err := NewWithPool(mock, "signups")
			require.NoError(t, err)

			q := mock.ExpectQuery("SELECT 1 FROM signups")
			if tt.err != nil {
				q.WillReturnError(tt.err)
			} else {
				q.WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
			}

			require.Equal(t, tt.want, st.Probe(context.Background()))
		})
	}
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "signups; DROP TABLE signups")
	require.Error(t, err)
}
