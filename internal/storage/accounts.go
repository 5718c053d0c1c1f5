package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/fleet-tracker/internal/models"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrAccountNotFound = errors.New("account not found")
)

// Account is a user plus its password hash.
type Account struct {
	models.User
	PasswordHash []byte
}

// Accounts is the in-memory user table of the dev backend.
type Accounts struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*Account
	byEmail map[string]int64
}

func NewAccounts() *Accounts {
	return &Accounts{byID: make(map[int64]*Account), byEmail: make(map[string]int64)}
}

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func (a *Accounts) Create(name, email string, hash []byte, role models.Role) (models.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := normEmail(email)
	if _, ok := a.byEmail[key]; ok {
		return models.User{}, ErrEmailTaken
	}
	a.nextID++
	now := time.Now().UTC().Format(time.RFC3339)
	acc := &Account{
		User: models.User{
			ID:        a.nextID,
			Name:      name,
			Email:     email,
			Role:      role,
			Status:    models.StatusAvailable,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: hash,
	}
	a.byID[acc.ID] = acc
	a.byEmail[key] = acc.ID
	return acc.User, nil
}

func (a *Accounts) ByEmail(email string) (Account, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.byEmail[normEmail(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *a.byID[id], nil
}

func (a *Accounts) ByID(id int64) (models.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acc, ok := a.byID[id]
	if !ok {
		return models.User{}, ErrAccountNotFound
	}
	return acc.User, nil
}

func (a *Accounts) update(id int64, fn func(u *models.User)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	fn(&acc.User)
	acc.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

func (a *Accounts) SetStatus(id int64, s models.Status) error {
	return a.update(id, func(u *models.User) { u.Status = s })
}

func (a *Accounts) SetLocation(id int64, lat, lon float64) error {
	return a.update(id, func(u *models.User) {
		u.Latitude = models.NewCoordinate(lat)
		u.Longitude = models.NewCoordinate(lon)
	})
}

// Drivers returns driver accounts accepted by keep, ordered by id.
func (a *Accounts) Drivers(keep func(models.User) bool) []models.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.User, 0, len(a.byID))
	for _, acc := range a.byID {
		if acc.Role != models.RoleDriver {
			continue
		}
		if keep == nil || keep(acc.User) {
			out = append(out, acc.User)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
