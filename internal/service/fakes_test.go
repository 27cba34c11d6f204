package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[primitive.ObjectID]domain.User{}}
}

func (r *fakeUserRepo) add(name string, role domain.Role) primitive.ObjectID {
	id := primitive.NewObjectID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = domain.User{ID: id, Name: name, Email: id.Hex() + "@example.com", Role: role}
	return id
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	user.ID = primitive.NewObjectID()
	r.users[user.ID] = *user
	return user.ID, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// fakeSessionRepo enforces the same per-party unique start as the real stores.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[primitive.ObjectID]domain.Session
	listErr  error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[primitive.ObjectID]domain.Session{}}
}

func (r *fakeSessionRepo) clashLocked(id, trainerID, clientID primitive.ObjectID, start time.Time) bool {
	for _, s := range r.sessions {
		if s.ID != id && s.Start.Equal(start) && (s.TrainerID == trainerID || s.ClientID == clientID) {
			return true
		}
	}
	return false
}

func (r *fakeSessionRepo) Create(_ context.Context, session *domain.Session) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clashLocked(primitive.NilObjectID, session.TrainerID, session.ClientID, session.Start) {
		return primitive.NilObjectID, repository.ErrDuplicate
	}
	session.ID = primitive.NewObjectID()
	r.sessions[session.ID] = *session
	return session.ID, nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *fakeSessionRepo) UpdateTime(_ context.Context, id primitive.ObjectID, start time.Time, durationMinutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.clashLocked(id, s.TrainerID, s.ClientID, start) {
		return repository.ErrDuplicate
	}
	s.Start = start
	s.DurationMinutes = durationMinutes
	r.sessions[id] = s
	return nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) ListByTrainerStartingBetween(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.Session, error) {
	return r.list(func(s domain.Session) bool { return s.TrainerID == trainerID }, from, to)
}

func (r *fakeSessionRepo) ListByClientStartingBetween(ctx context.Context, clientID primitive.ObjectID, from, to time.Time) ([]domain.Session, error) {
	return r.list(func(s domain.Session) bool { return s.ClientID == clientID }, from, to)
}

func (r *fakeSessionRepo) list(match func(domain.Session) bool, from, to time.Time) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Session
	for _, s := range r.sessions {
		if match(s) && !s.Start.Before(from) && !s.Start.After(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *fakeSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type fakeRequestRepo struct {
	mu        sync.Mutex
	requests  map[primitive.ObjectID]domain.SessionRequest
	updateErr error
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: map[primitive.ObjectID]domain.SessionRequest{}}
}

func (r *fakeRequestRepo) Create(_ context.Context, req *domain.SessionRequest) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.Status == "" {
		req.Status = domain.RequestPending
	}
	req.ID = primitive.NewObjectID()
	req.CreatedAt = time.Now()
	r.requests[req.ID] = *req
	return req.ID, nil
}

func (r *fakeRequestRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.SessionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &req, nil
}

func (r *fakeRequestRepo) ListByTrainer(_ context.Context, trainerID primitive.ObjectID, statuses ...domain.RequestStatus) ([]domain.SessionRequest, error) {
	return r.list(func(q domain.SessionRequest) bool { return q.TrainerID == trainerID }, statuses), nil
}

func (r *fakeRequestRepo) ListByClient(_ context.Context, clientID primitive.ObjectID, statuses ...domain.RequestStatus) ([]domain.SessionRequest, error) {
	return r.list(func(q domain.SessionRequest) bool { return q.ClientID == clientID }, statuses), nil
}

func (r *fakeRequestRepo) list(match func(domain.SessionRequest) bool, statuses []domain.RequestStatus) []domain.SessionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SessionRequest
	for _, q := range r.requests {
		if !match(q) {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, q.Status) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func containsStatus(list []domain.RequestStatus, s domain.RequestStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *fakeRequestRepo) UpdateIfStatus(_ context.Context, req *domain.SessionRequest, expected domain.RequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.requests[req.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrStaleState
	}
	r.requests[req.ID] = *req
	return nil
}

func (r *fakeRequestRepo) SetAttachmentKey(_ context.Context, id primitive.ObjectID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	req.AttachmentKey = &key
	r.requests[id] = req
	return nil
}

func (r *fakeRequestRepo) put(req domain.SessionRequest) primitive.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID.IsZero() {
		req.ID = primitive.NewObjectID()
	}
	r.requests[req.ID] = req
	return req.ID
}

type fakePlanRepo struct {
	mu    sync.Mutex
	plans map[primitive.ObjectID]domain.TrainingPlan
	reads int
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{plans: map[primitive.ObjectID]domain.TrainingPlan{}}
}

func (r *fakePlanRepo) Create(_ context.Context, plan *domain.TrainingPlan) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan.ID = primitive.NewObjectID()
	r.plans[plan.ID] = *plan
	return plan.ID, nil
}

func (r *fakePlanRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.TrainingPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	p, ok := r.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *fakePlanRepo) UpdateTrainer(_ context.Context, id, trainerID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.TrainerID = trainerID
	r.plans[id] = p
	return nil
}

func (r *fakePlanRepo) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

type fakeStorage struct {
	mu      sync.Mutex
	deleted []string
}

func (s *fakeStorage) GeneratePresignedUploadURL(_ context.Context, objectKey, contentType string, _ time.Duration) (string, error) {
	return "https://storage.test/put/" + objectKey + "?type=" + contentType, nil
}

func (s *fakeStorage) GeneratePresignedDownloadURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://storage.test/get/" + objectKey, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectKey)
	return nil
}
