package testutil

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"

	"place-registry/internal/domain"
	"place-registry/internal/models"
	errs "place-registry/pkg/errors"
)

// Fault injection points understood by Store.
const (
	FailBegin          = "scope.Begin"
	FailCommit         = "scope.Commit"
	FailPlaceSave      = "place.SaveTx"
	FailPlaceDelete    = "place.DeleteTx"
	FailPlaceUpdate    = "place.Update"
	FailPlaceWithOwner = "place.FindWithOwner"
	FailUserForUpdate  = "user.FindByIDForUpdate"
	FailUserSave       = "user.SaveTx"
)

// Store is an in-memory backing for the place and user repositories.
// Writes made through a scope are staged and only become visible on Commit.
// Scopes are serialized: Begin blocks until the previous scope ends.
type Store struct {
	mu     sync.Mutex
	places map[string]models.Place
	users  map[string]models.User
	faults map[string]error
	hooks  map[string]func()

	writeMu sync.Mutex

	Begins    int
	Commits   int
	Rollbacks int
}

func NewStore() *Store {
	return &Store{
		places: map[string]models.Place{},
		users:  map[string]models.User{},
		faults: map[string]error{},
		hooks:  map[string]func(){},
	}
}

// FailOn makes the named operation return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// OnCall runs fn each time the named operation is entered, before any
// injected fault. A nil fn removes the hook.
func (s *Store) OnCall(op string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.hooks, op)
		return
	}
	s.hooks[op] = fn
}

func (s *Store) fault(op string) error {
	s.mu.Lock()
	hook, err := s.hooks[op], s.faults[op]
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

// PutUser seeds a committed user.
func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Places == nil {
		u.Places = []string{}
	}
	s.users[u.ID] = u.Clone()
}

// PutPlace seeds a committed place. It does not touch the owner's collection.
func (s *Store) PutPlace(p models.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places[p.ID] = p
}

// RemoveCommitted deletes a place and unlinks it from its creator as if
// another writer had committed that change.
func (s *Store) RemoveCommitted(placeID string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.places[placeID]
	if !ok {
		return
	}
	delete(s.places, placeID)
	if u, ok := s.users[p.CreatorID]; ok {
		u = u.Clone()
		u.RemovePlace(placeID)
		s.users[u.ID] = u
	}
}

// User returns the committed user, if any.
func (s *Store) User(id string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u.Clone(), ok
}

// Place returns the committed place, if any.
func (s *Store) Place(id string) (models.Place, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.places[id]
	return p, ok
}

// PlaceCount returns the number of committed places.
func (s *Store) PlaceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.places)
}

// CheckOwnership returns an error describing the first place whose creator
// does not list it, or the first listed id with no matching place.
func (s *Store) CheckOwnership() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.places {
		u, ok := s.users[p.CreatorID]
		if !ok {
			return errors.New("place " + id + " references missing user " + p.CreatorID)
		}
		if !u.OwnsPlace(id) {
			return errors.New("place " + id + " missing from collection of " + u.ID)
		}
	}
	for uid, u := range s.users {
		for _, pid := range u.Places {
			p, ok := s.places[pid]
			if !ok {
				return errors.New("user " + uid + " lists missing place " + pid)
			}
			if p.CreatorID != uid {
				return errors.New("user " + uid + " lists place " + pid + " created by " + p.CreatorID)
			}
		}
	}
	return nil
}

// Scopes returns a ScopeFactory over the store.
func (s *Store) Scopes() domain.ScopeFactory { return storeScopes{s} }

// Places returns a PlaceRepository over the store.
func (s *Store) Places() domain.PlaceRepository { return &memPlaces{s} }

// Users returns a UserRepository over the store.
func (s *Store) Users() domain.UserRepository { return &memUsers{s} }

type storeScopes struct{ s *Store }

func (f storeScopes) Begin(ctx context.Context) (domain.Scope, error) {
	if err := f.s.fault(FailBegin); err != nil {
		return nil, err
	}
	f.s.writeMu.Lock()
	f.s.mu.Lock()
	f.s.Begins++
	f.s.mu.Unlock()
	return &memScope{s: f.s}, nil
}

type memScope struct {
	s      *Store
	staged []func()
	closed bool
}

func (m *memScope) Tx() *sql.Tx { return nil }

func (m *memScope) stage(fn func()) { m.staged = append(m.staged, fn) }

func (m *memScope) Commit() error {
	if m.closed {
		return errors.New("scope: already closed")
	}
	m.closed = true
	defer m.s.writeMu.Unlock()
	if err := m.s.fault(FailCommit); err != nil {
		m.s.mu.Lock()
		m.s.Rollbacks++
		m.s.mu.Unlock()
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, fn := range m.staged {
		fn()
	}
	m.s.Commits++
	return nil
}

func (m *memScope) Rollback() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.staged = nil
	m.s.mu.Lock()
	m.s.Rollbacks++
	m.s.mu.Unlock()
	m.s.writeMu.Unlock()
	return nil
}

func asMem(scope domain.Scope) (*memScope, error) {
	m, ok := scope.(*memScope)
	if !ok || m.closed {
		return nil, errors.New("scope: not an open in-memory scope")
	}
	return m, nil
}

type memPlaces struct{ s *Store }

func (r *memPlaces) FindByID(ctx context.Context, id string) (*models.Place, error) {
	p, ok := r.s.Place(id)
	if !ok {
		return nil, errs.NewNotFound("memory.FindPlaceByID", "place", id)
	}
	return &p, nil
}

func (r *memPlaces) FindByOwner(ctx context.Context, ownerID string) ([]models.Place, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Place, 0)
	for _, p := range r.s.places {
		if p.CreatorID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memPlaces) FindWithOwner(ctx context.Context, id string) (*models.PlaceWithOwner, error) {
	if err := r.s.fault(FailPlaceWithOwner); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.places[id]
	if !ok {
		return nil, errs.NewNotFound("memory.FindPlaceWithOwner", "place", id)
	}
	u, ok := r.s.users[p.CreatorID]
	if !ok {
		return nil, errs.NewNotFound("memory.FindPlaceWithOwner", "place", id)
	}
	return &models.PlaceWithOwner{Place: p, Owner: u.Clone()}, nil
}

func (r *memPlaces) Update(ctx context.Context, p *models.Place) error {
	if err := r.s.fault(FailPlaceUpdate); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.places[p.ID]
	if !ok {
		return errs.NewNotFound("memory.UpdatePlace", "place", p.ID)
	}
	cur.Title, cur.Description, cur.UpdatedAt = p.Title, p.Description, p.UpdatedAt
	r.s.places[p.ID] = cur
	return nil
}

func (r *memPlaces) SaveTx(ctx context.Context, scope domain.Scope, p *models.Place) error {
	m, err := asMem(scope)
	if err != nil {
		return err
	}
	if err := r.s.fault(FailPlaceSave); err != nil {
		return err
	}
	cp := *p
	m.stage(func() { r.s.places[cp.ID] = cp })
	return nil
}

func (r *memPlaces) DeleteTx(ctx context.Context, scope domain.Scope, id string) error {
	m, err := asMem(scope)
	if err != nil {
		return err
	}
	if err := r.s.fault(FailPlaceDelete); err != nil {
		return err
	}
	if _, ok := r.s.Place(id); !ok {
		return errs.NewNotFound("memory.DeletePlaceTx", "place", id)
	}
	m.stage(func() { delete(r.s.places, id) })
	return nil
}

type memUsers struct{ s *Store }

func (r *memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := r.s.User(id)
	if !ok {
		return nil, errs.NewNotFound("memory.FindUserByID", "user", id)
	}
	return &u, nil
}

func (r *memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			c := u.Clone()
			return &c, nil
		}
	}
	return nil, errs.NewNotFound("memory.FindUserByEmail", "user", email)
}

func (r *memUsers) List(ctx context.Context) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memUsers) Create(ctx context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return errs.NewValidation("memory.CreateUser", "user exists already, please login instead", nil)
		}
	}
	c := u.Clone()
	if c.Places == nil {
		c.Places = []string{}
	}
	r.s.users[u.ID] = c
	return nil
}

func (r *memUsers) FindByIDForUpdate(ctx context.Context, scope domain.Scope, id string) (*models.User, error) {
	if _, err := asMem(scope); err != nil {
		return nil, err
	}
	if err := r.s.fault(FailUserForUpdate); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *memUsers) SaveTx(ctx context.Context, scope domain.Scope, u *models.User) error {
	m, err := asMem(scope)
	if err != nil {
		return err
	}
	if err := r.s.fault(FailUserSave); err != nil {
		return err
	}
	c := u.Clone()
	m.stage(func() {
		cur, ok := r.s.users[c.ID]
		if !ok {
			return
		}
		cur.Places = c.Places
		r.s.users[c.ID] = cur
	})
	return nil
}
