package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
	"github.com/lib/pq"
)

func newRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewUserRepository(db), mock, db
}

var userColumns = []string{"id", "username", "email", "password_hash", "permission", "token_version", "created_at"}

const (
	selectByIDQuery       = `(?s)^\s*SELECT\s+id,\s*username,\s*email,\s*password_hash,\s*permission,\s*token_version,\s*created_at\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s*$`
	selectByUsernameQuery = `(?s)^\s*SELECT\s+id,.*FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s*$`
	insertQuery           = `(?s)^\s*INSERT\s+INTO\s+users\s*\(id,\s*username,\s*email,\s*password_hash,\s*permission,\s*token_version,\s*created_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*$`
	incrementQuery        = `(?s)^\s*UPDATE\s+users\s+SET\s+token_version\s*=\s*token_version\s*\+\s*1\s+WHERE\s+id\s*=\s*\$1\s+RETURNING\s+token_version\s*$`
)

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	rows := sqlmock.NewRows(userColumns).
		AddRow(id.String(), "alice", "a@x.com", "$argon2id$...", "USER", int64(2), int64(1700000000))
	mock.ExpectQuery(selectByIDQuery).WithArgs(id.String()).WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.ID != id || got.Username != "alice" || got.TokenVersion != 2 || got.Permission != types.PermissionUser {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByUsername_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByUsernameQuery).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUsername(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetByUsername_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByUsernameQuery).WithArgs("alice").WillReturnError(errors.New("db down"))

	_, err := repo.GetByUsername(context.Background(), "alice")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	user := types.NewUser("alice", "hash", "a@x.com")
	mock.ExpectExec(insertQuery).
		WithArgs(user.ID.String(), "alice", "a@x.com", "hash", "USER", int64(0), user.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), user); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_UniqueViolations(t *testing.T) {
	cases := []struct {
		constraint string
		want       Constraint
	}{
		{"users_username_key", ConstraintUsername},
		{"users_email_key", ConstraintEmail},
		{"users_pkey", ConstraintOther},
	}

	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectExec(insertQuery).
				WillReturnError(&pq.Error{Code: "23505", Constraint: tc.constraint})

			err := repo.Insert(context.Background(), types.NewUser("alice", "hash", "a@x.com"))
			var cerr *ConstraintError
			if !errors.As(err, &cerr) {
				t.Fatalf("want ConstraintError, got %v", err)
			}
			if cerr.Field != tc.want {
				t.Fatalf("field: got %q want %q", cerr.Field, tc.want)
			}
		})
	}
}

func TestInsert_OtherError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQuery).WillReturnError(&pq.Error{Code: "23502", Message: "null value"})

	err := repo.Insert(context.Background(), types.NewUser("alice", "hash", "a@x.com"))
	var cerr *ConstraintError
	if errors.As(err, &cerr) {
		t.Fatalf("did not expect ConstraintError, got %v", err)
	}
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestUpdateUsername_Conflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+username\s*=\s*\$1\s+WHERE\s+id\s*=\s*\$2$`).
		WithArgs("bob", id.String()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})

	err := repo.UpdateUsername(context.Background(), id, "bob")
	var cerr *ConstraintError
	if !errors.As(err, &cerr) || cerr.Field != ConstraintUsername {
		t.Fatalf("want username ConstraintError, got %v", err)
	}
}

const updatePasswordQuery = `(?s)^\s*UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$1,\s*token_version\s*=\s*token_version\s*\+\s*1\s+WHERE\s+id\s*=\s*\$2\s+RETURNING\s+token_version\s*$`

func TestUpdatePasswordHash_BumpsVersion(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	rows := sqlmock.NewRows([]string{"token_version"}).AddRow(int64(4))
	mock.ExpectQuery(updatePasswordQuery).WithArgs("new-hash", id.String()).WillReturnRows(rows)

	got, err := repo.UpdatePasswordHash(context.Background(), id, "new-hash")
	if err != nil {
		t.Fatalf("UpdatePasswordHash error: %v", err)
	}
	if got != 4 {
		t.Fatalf("unexpected version: %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdatePasswordHash_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery(updatePasswordQuery).
		WithArgs("new-hash", id.String()).
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.UpdatePasswordHash(context.Background(), id, "new-hash"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestIncrementTokenVersion_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	rows := sqlmock.NewRows([]string{"token_version"}).AddRow(int64(7))
	mock.ExpectQuery(incrementQuery).WithArgs(id.String()).WillReturnRows(rows)

	got, err := repo.IncrementTokenVersion(context.Background(), id)
	if err != nil {
		t.Fatalf("IncrementTokenVersion error: %v", err)
	}
	if got != 7 {
		t.Fatalf("unexpected version: %d", got)
	}
}

func TestIncrementTokenVersion_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(incrementQuery).WillReturnError(sql.ErrNoRows)

	if _, err := repo.IncrementTokenVersion(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(id.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := repo.Delete(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound on second delete, got %v", err)
	}
}
