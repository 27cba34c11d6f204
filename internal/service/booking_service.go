package service

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/logging"
	"alcyxob/session-booking/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultGraceWindow is how far in the past a start may be and still count as upcoming.
const DefaultGraceWindow = 5 * time.Minute

// DeclinePolicy decides what happens to the Session when a client turns down a
// reschedule proposal.
type DeclinePolicy string

const (
	// DeclineKeepSession leaves the Session where it is.
	DeclineKeepSession DeclinePolicy = "keep_session"
	// DeclineRestoreRequested moves the Session back to the originally requested time.
	DeclineRestoreRequested DeclinePolicy = "restore_requested"
)

// ParseDeclinePolicy accepts the configured names. Empty means keep_session.
func ParseDeclinePolicy(s string) (DeclinePolicy, error) {
	switch DeclinePolicy(s) {
	case "", DeclineKeepSession:
		return DeclineKeepSession, nil
	case DeclineRestoreRequested:
		return DeclineRestoreRequested, nil
	default:
		return "", fmt.Errorf("unknown reschedule decline policy %q", s)
	}
}

// BookingOptions tunes the booking rules.
type BookingOptions struct {
	GraceWindow   time.Duration
	DeclinePolicy DeclinePolicy
	Now           func() time.Time // Defaults to time.Now
}

// RequestDetails is a request plus the display names of both parties.
type RequestDetails struct {
	domain.SessionRequest
	TrainerName string `json:"trainerName,omitempty"`
	ClientName  string `json:"clientName,omitempty"`
}

// CreateRequestInput is a client's ask for a session. Either TrainerID or PlanID must
// be set; with a plan, the plan's current owner is the trainer.
type CreateRequestInput struct {
	TrainerID *primitive.ObjectID
	PlanID    *primitive.ObjectID
	Start     time.Time
	End       time.Time
	Message   *string
}

// BookingService drives session requests through their lifecycle.
type BookingService interface {
	CreateRequest(ctx context.Context, actor domain.Actor, in CreateRequestInput) (*RequestDetails, error)
	GetRequest(ctx context.Context, actor domain.Actor, requestID primitive.ObjectID) (*RequestDetails, error)
	ListRequests(ctx context.Context, actor domain.Actor, statuses []domain.RequestStatus) ([]domain.SessionRequest, error)
	// Apply performs one transition. Nothing is written unless every guard passes.
	Apply(ctx context.Context, actor domain.Actor, requestID primitive.ObjectID, action domain.Action) (*RequestDetails, error)
	ListSessions(ctx context.Context, actor domain.Actor, from, to time.Time) ([]domain.Session, error)
	PreviewConflicts(ctx context.Context, actor domain.Actor, q ConflictQuery) (ConflictReport, error)
}

type bookingService struct {
	requestRepo  repository.SessionRequestRepository
	sessionRepo  repository.SessionRepository
	userRepo     repository.UserRepository
	locker       repository.BookingLocker
	detector     ConflictDetector
	materializer *SessionMaterializer
	owners       *PlanOwnerCache
	grace        time.Duration
	policy       DeclinePolicy
	now          func() time.Time
}

// NewBookingService creates a new instance of bookingService.
func NewBookingService(
	requestRepo repository.SessionRequestRepository,
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	locker repository.BookingLocker,
	detector ConflictDetector,
	materializer *SessionMaterializer,
	owners *PlanOwnerCache,
	opts BookingOptions,
) BookingService {
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = DefaultGraceWindow
	}
	if opts.DeclinePolicy == "" {
		opts.DeclinePolicy = DeclineKeepSession
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &bookingService{
		requestRepo:  requestRepo,
		sessionRepo:  sessionRepo,
		userRepo:     userRepo,
		locker:       locker,
		detector:     detector,
		materializer: materializer,
		owners:       owners,
		grace:        opts.GraceWindow,
		policy:       opts.DeclinePolicy,
		now:          opts.Now,
	}
}

// CreateRequest records a client's pending ask. Pending asks do not reserve the slot,
// so no conflict check happens here.
func (s *bookingService) CreateRequest(ctx context.Context, actor domain.Actor, in CreateRequestInput) (*RequestDetails, error) {
	// 1. Only clients ask for sessions
	if actor.Role != domain.RoleClient {
		return nil, ErrForbidden
	}

	// 2. Work out which trainer the ask goes to
	trainerID, err := s.resolveTrainer(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	trainer, err := s.userRepo.GetByID(ctx, trainerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTrainerNotFound
		}
		return nil, err
	}
	if !trainer.IsTrainer() {
		return nil, ErrNotRole
	}

	// 3. Validate the time
	interval, err := domain.NewInterval(in.Start, in.End)
	if err != nil {
		return nil, err
	}
	if err := s.ensureFuture(interval.Start); err != nil {
		return nil, err
	}

	// 4. Persist
	req := &domain.SessionRequest{
		TrainerID:      trainerID,
		ClientID:       actor.UserID,
		PlanID:         in.PlanID,
		RequestedStart: interval.Start,
		RequestedEnd:   interval.End,
		Status:         domain.RequestPending,
		Message:        in.Message,
	}
	if _, err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info().
		Str("session_request_id", req.ID.Hex()).
		Str("trainer_id", trainerID.Hex()).
		Str("slot", describeInterval(interval)).
		Msg("session requested")

	return s.details(ctx, req), nil
}

func (s *bookingService) resolveTrainer(ctx context.Context, actor domain.Actor, in CreateRequestInput) (primitive.ObjectID, error) {
	if in.PlanID == nil {
		if in.TrainerID == nil || in.TrainerID.IsZero() {
			return primitive.NilObjectID, fmt.Errorf("%w: trainerId or planId is required", ErrInvalidRequest)
		}
		return *in.TrainerID, nil
	}

	owner, err := s.owners.Lookup(ctx, *in.PlanID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if owner.ClientID != actor.UserID {
		return primitive.NilObjectID, ErrForbidden
	}
	if in.TrainerID != nil && *in.TrainerID != owner.TrainerID {
		return primitive.NilObjectID, fmt.Errorf("%w: trainer does not own the plan", ErrInvalidRequest)
	}
	return owner.TrainerID, nil
}

// GetRequest returns a request to either of its parties or an admin.
func (s *bookingService) GetRequest(ctx context.Context, actor domain.Actor, requestID primitive.ObjectID) (*RequestDetails, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != req.TrainerID && actor.UserID != req.ClientID {
		return nil, ErrForbidden
	}
	return s.details(ctx, req), nil
}

// ListRequests returns the caller's own requests, newest first.
func (s *bookingService) ListRequests(ctx context.Context, actor domain.Actor, statuses []domain.RequestStatus) ([]domain.SessionRequest, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, st)
		}
	}
	switch actor.Role {
	case domain.RoleTrainer:
		return s.requestRepo.ListByTrainer(ctx, actor.UserID, statuses...)
	case domain.RoleClient:
		return s.requestRepo.ListByClient(ctx, actor.UserID, statuses...)
	default:
		return nil, ErrForbidden
	}
}

// ListSessions returns the caller's confirmed sessions starting in [from, to].
func (s *bookingService) ListSessions(ctx context.Context, actor domain.Actor, from, to time.Time) ([]domain.Session, error) {
	if _, err := domain.NewInterval(from, to); err != nil {
		return nil, err
	}
	switch actor.Role {
	case domain.RoleTrainer:
		return s.sessionRepo.ListByTrainerStartingBetween(ctx, actor.UserID, from, to)
	case domain.RoleClient:
		return s.sessionRepo.ListByClientStartingBetween(ctx, actor.UserID, from, to)
	default:
		return nil, ErrForbidden
	}
}

// PreviewConflicts runs the detector without committing anything. Trainers may only
// preview their own calendar.
func (s *bookingService) PreviewConflicts(ctx context.Context, actor domain.Actor, q ConflictQuery) (ConflictReport, error) {
	if !actor.IsAdmin() && (actor.Role != domain.RoleTrainer || actor.UserID != q.TrainerID) {
		return ConflictReport{}, ErrForbidden
	}
	if q.TrainerID.IsZero() || q.ClientID.IsZero() {
		return ConflictReport{}, fmt.Errorf("%w: trainerId and clientId are required", ErrInvalidRequest)
	}
	return s.detector.Detect(ctx, q)
}

// transition carries what every action handler needs.
type transition struct {
	actor primitive.ObjectID
	from  domain.RequestStatus
	to    domain.RequestStatus
	at    time.Time
}

func (s *bookingService) Apply(ctx context.Context, actor domain.Actor, requestID primitive.ObjectID, action domain.Action) (*RequestDetails, error) {
	if action == nil {
		return nil, fmt.Errorf("%w: missing action", ErrInvalidRequest)
	}
	kind := action.Kind()

	// 1. Load, authorize and check the state before taking any lock
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, req, kind); err != nil {
		return nil, err
	}
	if _, ok := domain.NextStatus(req.Status, kind); !ok {
		return nil, invalidState(req.Status, kind)
	}

	// 2. Serialize with every other booking for either party
	release, err := s.locker.Acquire(ctx, trainerLockKey(req.TrainerID), clientLockKey(req.ClientID))
	if err != nil {
		return nil, err
	}
	defer release()

	// 3. Re-read under the lock, a concurrent transition may have won
	req, err = s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	next, ok := domain.NextStatus(req.Status, kind)
	if !ok {
		return nil, invalidState(req.Status, kind)
	}
	t := transition{actor: actor.UserID, from: req.Status, to: next, at: s.now().UTC()}

	// 4. Apply
	switch a := action.(type) {
	case domain.Accept:
		err = s.accept(ctx, req, t)
	case domain.Decline:
		err = s.decline(ctx, req, t, a)
	case domain.ProposeReschedule:
		err = s.proposeReschedule(ctx, req, t, a)
	case domain.AcceptReschedule:
		err = s.acceptReschedule(ctx, req, t)
	case domain.DeclineReschedule:
		err = s.declineReschedule(ctx, req, t, a)
	case domain.Cancel:
		err = s.cancel(ctx, req, t)
	default:
		err = fmt.Errorf("%w: unsupported action %q", ErrInvalidRequest, kind)
	}
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info().
		Str("session_request_id", req.ID.Hex()).
		Str("action", string(kind)).
		Str("from", string(t.from)).
		Str("to", string(t.to)).
		Str("actor_id", actor.UserID.Hex()).
		Msg("session request transitioned")

	return s.details(ctx, req), nil
}

func (s *bookingService) accept(ctx context.Context, req *domain.SessionRequest, t transition) error {
	if _, err := req.RequestedInterval(); err != nil {
		return fmt.Errorf("%w: requested time is missing or invalid", ErrInvalidRequest)
	}
	// Check the slot the Session will actually hold, not the raw request bounds.
	if err := s.checkConflicts(ctx, req, s.materializer.Interval(req), nil); err != nil {
		return err
	}

	session, err := s.materializer.Materialize(ctx, req)
	if err != nil {
		return err
	}

	req.Status = t.to
	req.SessionID = &session.ID
	req.RespondedAt = &t.at
	req.RespondedBy = &t.actor
	if err := s.save(ctx, req, t.from); err != nil {
		if undoErr := s.materializer.Undo(context.WithoutCancel(ctx), session); undoErr != nil {
			logging.FromContext(ctx).Error().Err(undoErr).
				Str("session_id", session.ID.Hex()).
				Msg("failed to remove session after request update failed")
		}
		return err
	}
	return nil
}

func (s *bookingService) decline(ctx context.Context, req *domain.SessionRequest, t transition, a domain.Decline) error {
	if a.Note != nil {
		req.TrainerNote = a.Note
	}
	req.Status = t.to
	req.RespondedAt = &t.at
	req.RespondedBy = &t.actor
	return s.save(ctx, req, t.from)
}

func (s *bookingService) proposeReschedule(ctx context.Context, req *domain.SessionRequest, t transition, a domain.ProposeReschedule) error {
	if req.SessionID == nil {
		return ErrSessionNotLinked
	}
	proposal, err := domain.NewInterval(a.Start, a.End)
	if err != nil {
		return err
	}
	if err := s.ensureFuture(proposal.Start); err != nil {
		return err
	}
	if _, err := s.loadSession(ctx, *req.SessionID); err != nil {
		return err
	}
	if err := s.checkConflicts(ctx, req, proposal.WholeMinutes(), req.SessionID); err != nil {
		return err
	}

	req.Status = t.to
	req.ProposedStart = &proposal.Start
	req.ProposedEnd = &proposal.End
	req.RescheduleNote = a.Note
	req.ProposedAt = &t.at
	req.ProposedBy = &t.actor
	return s.save(ctx, req, t.from)
}

func (s *bookingService) acceptReschedule(ctx context.Context, req *domain.SessionRequest, t transition) error {
	if req.SessionID == nil {
		return ErrSessionNotLinked
	}
	proposal, err := req.ProposedInterval()
	if err != nil {
		return fmt.Errorf("%w: proposed time is missing or invalid", ErrInvalidRequest)
	}
	if err := s.ensureFuture(proposal.Start); err != nil {
		return err
	}

	req.Status = t.to
	req.RespondedAt = &t.at
	req.RespondedBy = &t.actor
	return s.moveSessionAndSave(ctx, req, t, proposal)
}

func (s *bookingService) declineReschedule(ctx context.Context, req *domain.SessionRequest, t transition, a domain.DeclineReschedule) error {
	if a.Note != nil {
		req.RescheduleNote = a.Note
	}
	req.Status = t.to
	req.ProposedStart = nil
	req.ProposedEnd = nil
	req.RespondedAt = &t.at
	req.RespondedBy = &t.actor

	if s.policy != DeclineRestoreRequested {
		return s.save(ctx, req, t.from)
	}

	if req.SessionID == nil {
		return ErrSessionNotLinked
	}
	requested, err := req.RequestedInterval()
	if err != nil {
		return fmt.Errorf("%w: requested time is missing or invalid", ErrInvalidRequest)
	}
	if err := s.ensureFuture(requested.Start); err != nil {
		return err
	}
	return s.moveSessionAndSave(ctx, req, t, requested)
}

func (s *bookingService) cancel(ctx context.Context, req *domain.SessionRequest, t transition) error {
	req.Status = t.to
	req.RespondedAt = &t.at
	req.RespondedBy = &t.actor
	return s.save(ctx, req, t.from)
}

// moveSessionAndSave re-times the request's Session to target and then writes req. If
// the request write fails the Session is put back where it was.
func (s *bookingService) moveSessionAndSave(ctx context.Context, req *domain.SessionRequest, t transition, target domain.Interval) error {
	session, err := s.loadSession(ctx, *req.SessionID)
	if err != nil {
		return err
	}
	target = target.WholeMinutes()
	if err := s.checkConflicts(ctx, req, target, req.SessionID); err != nil {
		return err
	}

	if err := s.moveSession(ctx, session.ID, target); err != nil {
		return err
	}
	if err := s.save(ctx, req, t.from); err != nil {
		undoCtx := context.WithoutCancel(ctx)
		if undoErr := s.sessionRepo.UpdateTime(undoCtx, session.ID, session.Start, session.DurationMinutes); undoErr != nil {
			logging.FromContext(ctx).Error().Err(undoErr).
				Str("session_id", session.ID.Hex()).
				Msg("failed to restore session time after request update failed")
		}
		return err
	}
	return nil
}

func (s *bookingService) moveSession(ctx context.Context, sessionID primitive.ObjectID, target domain.Interval) error {
	err := s.sessionRepo.UpdateTime(ctx, sessionID, target.Start, target.Minutes())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicate):
		return &ConflictError{}
	case errors.Is(err, repository.ErrNotFound):
		return ErrSessionNotFound
	default:
		return err
	}
}

func (s *bookingService) checkConflicts(ctx context.Context, req *domain.SessionRequest, interval domain.Interval, sessionID *primitive.ObjectID) error {
	report, err := s.detector.Detect(ctx, ConflictQuery{
		TrainerID:        req.TrainerID,
		ClientID:         req.ClientID,
		Interval:         interval,
		ExcludeSessionID: sessionID,
		ExcludeRequestID: &req.ID,
	})
	if err != nil {
		return err
	}
	return requireNoBlocking(report)
}

// ensureFuture rejects starts further in the past than the grace window.
func (s *bookingService) ensureFuture(start time.Time) error {
	if start.Before(s.now().Add(-s.grace)) {
		return fmt.Errorf("%w: %s", ErrPastRange, start.UTC().Format(time.RFC3339))
	}
	return nil
}

// save writes req only if its stored status is still from.
func (s *bookingService) save(ctx context.Context, req *domain.SessionRequest, from domain.RequestStatus) error {
	err := s.requestRepo.UpdateIfStatus(ctx, req, from)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrStaleState):
		return fmt.Errorf("%w: request changed concurrently", ErrInvalidState)
	case errors.Is(err, repository.ErrNotFound):
		return ErrRequestNotFound
	default:
		return err
	}
}

func (s *bookingService) loadRequest(ctx context.Context, id primitive.ObjectID) (*domain.SessionRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

func (s *bookingService) loadSession(ctx context.Context, id primitive.ObjectID) (*domain.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// details adds display names. A missing user leaves the name empty.
func (s *bookingService) details(ctx context.Context, req *domain.SessionRequest) *RequestDetails {
	out := &RequestDetails{SessionRequest: *req}
	if trainer, err := s.userRepo.GetByID(ctx, req.TrainerID); err == nil {
		out.TrainerName = trainer.Name
	} else {
		logging.FromContext(ctx).Debug().Err(err).Str("user_id", req.TrainerID.Hex()).Msg("trainer name unavailable")
	}
	if client, err := s.userRepo.GetByID(ctx, req.ClientID); err == nil {
		out.ClientName = client.Name
	} else {
		logging.FromContext(ctx).Debug().Err(err).Str("user_id", req.ClientID.Hex()).Msg("client name unavailable")
	}
	return out
}

// authorize checks the actor is the party the action belongs to. Admins act for either.
func authorize(actor domain.Actor, req *domain.SessionRequest, kind domain.ActionKind) error {
	party, ok := domain.ActingParty(kind)
	if !ok {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, kind)
	}
	if actor.IsAdmin() {
		return nil
	}
	switch party {
	case domain.PartyTrainer:
		if actor.Role == domain.RoleTrainer && actor.UserID == req.TrainerID {
			return nil
		}
	case domain.PartyClient:
		if actor.Role == domain.RoleClient && actor.UserID == req.ClientID {
			return nil
		}
	}
	return ErrForbidden
}

func invalidState(from domain.RequestStatus, kind domain.ActionKind) error {
	return fmt.Errorf("%w: cannot %s a %s request", ErrInvalidState, kind, from)
}

func trainerLockKey(id primitive.ObjectID) string { return "trainer:" + id.Hex() }
func clientLockKey(id primitive.ObjectID) string  { return "client:" + id.Hex() }
