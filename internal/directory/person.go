// Package directory resolves doctor and patient identities.
package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Role distinguishes the two kinds of clinic users.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
)

// ErrPersonNotFound is returned when no user with the requested id and role exists.
var ErrPersonNotFound = errors.New("directory: person not found")

// Person is a registered clinic user.
type Person struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
}

// FullName joins the first and last names.
func (p Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Lookup finds people by id and role.
type Lookup interface {
	Find(ctx context.Context, id uuid.UUID, role Role) (*Person, error)
	// List returns everyone holding role, ordered by last then first name.
	List(ctx context.Context, role Role) ([]Person, error)
}

func comparePeople(a, b Person) int {
	if c := strings.Compare(a.LastName, b.LastName); c != 0 {
		return c
	}
	if c := strings.Compare(a.FirstName, b.FirstName); c != 0 {
		return c
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}
