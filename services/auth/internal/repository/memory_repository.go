package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
)

// NewMemoryStore returns a process-local store. Each table has its own lock
// and every record crosses the boundary as a copy.
func NewMemoryStore() *Store {
	return &Store{
		Farmers:   NewMemoryFarmerRepository(),
		Admins:    NewMemoryAdminRepository(),
		OTPs:      NewMemoryOTPRepository(),
		Sessions:  NewMemorySessionRepository(),
		Passwords: NewMemoryPasswordRepository(),
	}
}

type memoryFarmerRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Farmer
	byEmail map[string]string
}

func NewMemoryFarmerRepository() FarmerRepository {
	return &memoryFarmerRepository{
		byID:    make(map[string]*domain.Farmer),
		byEmail: make(map[string]string),
	}
}

func (r *memoryFarmerRepository) Create(_ context.Context, f *domain.Farmer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[f.Email]; exists {
		return domain.ErrEmailExists
	}
	r.byID[f.ID] = f.Clone()
	r.byEmail[f.Email] = f.ID
	return nil
}

func (r *memoryFarmerRepository) FindByEmail(_ context.Context, email string) (*domain.Farmer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	return r.byID[id].Clone(), nil
}

func (r *memoryFarmerRepository) FindByID(_ context.Context, id string) (*domain.Farmer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byID[id].Clone(), nil
}

func (r *memoryFarmerRepository) Update(_ context.Context, id string, mutate func(*domain.Farmer) error) (*domain.Farmer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return nil, nil
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	// Identity is fixed once created.
	next.ID = current.ID
	next.Email = current.Email
	next.CreatedAt = current.CreatedAt

	r.byID[id] = next
	return next.Clone(), nil
}

func (r *memoryFarmerRepository) List(_ context.Context, limit, offset int) ([]domain.Farmer, int, error) {
	r.mu.RLock()
	all := make([]*domain.Farmer, 0, len(r.byID))
	for _, f := range r.byID {
		all = append(all, f.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []domain.Farmer{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	out := make([]domain.Farmer, 0, end-offset)
	for _, f := range all[offset:end] {
		out = append(out, *f)
	}
	return out, total, nil
}

type memoryAdminRepository struct {
	mu     sync.RWMutex
	admins map[string]domain.Admin // by email
}

func NewMemoryAdminRepository() AdminRepository {
	return &memoryAdminRepository{admins: make(map[string]domain.Admin)}
}

func (r *memoryAdminRepository) FindByEmail(_ context.Context, email string) (*domain.Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.admins[email]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *memoryAdminRepository) FindByID(_ context.Context, id string) (*domain.Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.admins {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (r *memoryAdminRepository) Ensure(_ context.Context, a *domain.Admin) (*domain.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.admins[a.Email]; ok {
		return &existing, nil
	}
	r.admins[a.Email] = *a
	stored := *a
	return &stored, nil
}

type memoryOTPRepository struct {
	mu    sync.Mutex
	codes map[string]domain.OneTimeCode
}

func NewMemoryOTPRepository() OTPRepository {
	return &memoryOTPRepository{codes: make(map[string]domain.OneTimeCode)}
}

func (r *memoryOTPRepository) Upsert(_ context.Context, code *domain.OneTimeCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.codes[code.Email] = *code
	return nil
}

func (r *memoryOTPRepository) Get(_ context.Context, email string) (*domain.OneTimeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[email]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memoryOTPRepository) Delete(_ context.Context, email, codeHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[email]
	if !ok || c.CodeHash != codeHash {
		return false, nil
	}
	delete(r.codes, email)
	return true, nil
}

func (r *memoryOTPRepository) RecordFailure(_ context.Context, email, codeHash string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[email]
	if !ok || c.CodeHash != codeHash {
		return 0, nil
	}
	c.Attempts++
	r.codes[email] = c
	return c.Attempts, nil
}

type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepository{sessions: make(map[string]domain.Session)}
}

func (r *memorySessionRepository) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = *s
	return nil
}

func (r *memorySessionRepository) Get(_ context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memorySessionRepository) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.Active = false
		r.sessions[id] = s
	}
	return nil
}

type passwordKey struct {
	userType domain.UserType
	userID   string
}

type memoryPasswordRepository struct {
	mu     sync.RWMutex
	hashes map[passwordKey]string
}

func NewMemoryPasswordRepository() PasswordRepository {
	return &memoryPasswordRepository{hashes: make(map[passwordKey]string)}
}

func (r *memoryPasswordRepository) Set(_ context.Context, userType domain.UserType, userID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hashes[passwordKey{userType, userID}] = hash
	return nil
}

func (r *memoryPasswordRepository) Get(_ context.Context, userType domain.UserType, userID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.hashes[passwordKey{userType, userID}], nil
}
