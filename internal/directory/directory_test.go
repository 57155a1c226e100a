package directory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDirectory_Find(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs(id, "DOCTOR").
		WillReturnRows(pgxmock.NewRows([]string{"id", "first_name", "last_name", "email", "role"}).
			AddRow(id, "Ada", "Lovelace", "ada@clinic.test", "DOCTOR"))

	dir := newPostgresDirectoryWithQuerier(mock)
	p, err := dir.Find(context.Background(), id, RoleDoctor)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", p.FullName())
	assert.Equal(t, RoleDoctor, p.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectory_FindNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM users").
		WithArgs(id, "PATIENT").
		WillReturnError(pgx.ErrNoRows)

	_, err = newPostgresDirectoryWithQuerier(mock).Find(context.Background(), id, RolePatient)
	assert.ErrorIs(t, err, ErrPersonNotFound)
}

func TestPostgresDirectory_FindWrapsError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM users").WillReturnError(errors.New("conn reset"))

	_, err = newPostgresDirectoryWithQuerier(mock).Find(context.Background(), uuid.New(), RolePatient)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPersonNotFound)
	assert.Contains(t, err.Error(), "directory: find PATIENT")
}

func TestMemoryDirectory_RoleScoped(t *testing.T) {
	doc := Person{ID: uuid.New(), FirstName: "Gregory", LastName: "House", Role: RoleDoctor}
	dir := NewMemoryDirectory(doc)

	got, err := dir.Find(context.Background(), doc.ID, RoleDoctor)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	_, err = dir.Find(context.Background(), doc.ID, RolePatient)
	assert.ErrorIs(t, err, ErrPersonNotFound)

	patient := Person{ID: uuid.New(), FirstName: "Pat", Role: RolePatient}
	dir.Add(patient)
	got, err = dir.Find(context.Background(), patient.ID, RolePatient)
	require.NoError(t, err)
	assert.Equal(t, "Pat", got.FullName())
}

func TestLoadMemoryDirectory(t *testing.T) {
	id := uuid.New()
	seed := `[{"id":"` + id.String() + `","firstName":"Lisa","lastName":"Cuddy","role":"DOCTOR"}]`

	dir, err := LoadMemoryDirectory(strings.NewReader(seed))
	require.NoError(t, err)
	p, err := dir.Find(context.Background(), id, RoleDoctor)
	require.NoError(t, err)
	assert.Equal(t, "Lisa Cuddy", p.FullName())

	_, err = LoadMemoryDirectory(strings.NewReader(`[{"id":"` + id.String() + `","role":"NURSE"}]`))
	assert.ErrorContains(t, err, "unknown role")

	_, err = LoadMemoryDirectory(strings.NewReader(`{`))
	assert.ErrorContains(t, err, "directory: decode seed")
}

func TestMemoryDirectory_ListByRole(t *testing.T) {
	house := Person{ID: uuid.New(), FirstName: "Gregory", LastName: "House", Role: RoleDoctor}
	cuddy := Person{ID: uuid.New(), FirstName: "Lisa", LastName: "Cuddy", Role: RoleDoctor}
	patient := Person{ID: uuid.New(), FirstName: "Pat", LastName: "Adams", Role: RolePatient}
	dir := NewMemoryDirectory(house, patient, cuddy)

	doctors, err := dir.List(context.Background(), RoleDoctor)
	require.NoError(t, err)
	assert.Equal(t, []Person{cuddy, house}, doctors)

	empty, err := NewMemoryDirectory().List(context.Background(), RoleDoctor)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestPostgresDirectory_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery("FROM users (.+) ORDER BY last_name").
		WithArgs("DOCTOR").
		WillReturnRows(pgxmock.NewRows([]string{"id", "first_name", "last_name", "email", "role"}).
			AddRow(a, "Lisa", "Cuddy", "cuddy@clinic.test", "DOCTOR").
			AddRow(b, "Gregory", "House", "house@clinic.test", "DOCTOR"))

	doctors, err := newPostgresDirectoryWithQuerier(mock).List(context.Background(), RoleDoctor)
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, a, doctors[0].ID)
	assert.Equal(t, "Gregory House", doctors[1].FullName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectory_ListWrapsError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM users").WillReturnError(errors.New("conn reset"))

	_, err = newPostgresDirectoryWithQuerier(mock).List(context.Background(), RoleDoctor)
	assert.ErrorContains(t, err, "directory: list DOCTOR")
}
