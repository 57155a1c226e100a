package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-process directory used by tests and local runs.
type MemoryDirectory struct {
	mu     sync.RWMutex
	people map[uuid.UUID]Person
}

// NewMemoryDirectory creates a directory holding people.
func NewMemoryDirectory(people ...Person) *MemoryDirectory {
	d := &MemoryDirectory{people: make(map[uuid.UUID]Person, len(people))}
	for _, p := range people {
		d.people[p.ID] = p
	}
	return d
}

// Add registers or replaces a person.
func (d *MemoryDirectory) Add(p Person) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.people[p.ID] = p
}

func (d *MemoryDirectory) Find(_ context.Context, id uuid.UUID, role Role) (*Person, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.people[id]
	if !ok || p.Role != role {
		return nil, ErrPersonNotFound
	}
	return &p, nil
}

func (d *MemoryDirectory) List(_ context.Context, role Role) ([]Person, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []Person{}
	for _, p := range d.people {
		if p.Role == role {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, comparePeople)
	return out, nil
}

// LoadMemoryDirectory builds a directory from a JSON array of people.
func LoadMemoryDirectory(r io.Reader) (*MemoryDirectory, error) {
	var people []Person
	if err := json.NewDecoder(r).Decode(&people); err != nil {
		return nil, fmt.Errorf("directory: decode seed: %w", err)
	}
	for i, p := range people {
		if p.Role != RoleDoctor && p.Role != RolePatient {
			return nil, fmt.Errorf("directory: seed entry %d: unknown role %q", i, p.Role)
		}
	}
	return NewMemoryDirectory(people...), nil
}
