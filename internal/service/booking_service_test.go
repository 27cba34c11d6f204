package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testNow = time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 5, day, hour, minute, 0, 0, time.UTC)
}

type fixture struct {
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	requests *fakeRequestRepo
	plans    *fakePlanRepo
	clock    *clock
	owners   *PlanOwnerCache
	svc      BookingService

	trainer domain.Actor
	client  domain.Actor
	client2 domain.Actor
	admin   domain.Actor
}

func newFixture(t *testing.T, policy DeclinePolicy) *fixture {
	t.Helper()
	f := &fixture{
		users:    newFakeUserRepo(),
		sessions: newFakeSessionRepo(),
		requests: newFakeRequestRepo(),
		plans:    newFakePlanRepo(),
		clock:    newClock(testNow),
	}
	f.trainer = domain.Actor{UserID: f.users.add("Tara Trainer", domain.RoleTrainer), Role: domain.RoleTrainer}
	f.client = domain.Actor{UserID: f.users.add("Cam Client", domain.RoleClient), Role: domain.RoleClient}
	f.client2 = domain.Actor{UserID: f.users.add("Cleo Client", domain.RoleClient), Role: domain.RoleClient}
	f.admin = domain.Actor{UserID: f.users.add("Ada Admin", domain.RoleAdmin), Role: domain.RoleAdmin}

	f.owners = NewPlanOwnerCache(f.plans, 16, time.Minute)
	f.svc = NewBookingService(
		f.requests,
		f.sessions,
		f.users,
		memory.NewBookingLocker(),
		NewConflictDetector(f.sessions, f.requests),
		NewSessionMaterializer(f.sessions, 0),
		f.owners,
		BookingOptions{DeclinePolicy: policy, Now: f.clock.Now},
	)
	return f
}

func (f *fixture) addSession(t *testing.T, trainerID, clientID primitive.ObjectID, start time.Time, minutes int) primitive.ObjectID {
	t.Helper()
	id, err := f.sessions.Create(context.Background(), &domain.Session{TrainerID: trainerID, ClientID: clientID, Start: start, DurationMinutes: minutes})
	require.NoError(t, err)
	return id
}

func (f *fixture) addPending(trainerID, clientID primitive.ObjectID, start, end time.Time) primitive.ObjectID {
	return f.requests.put(domain.SessionRequest{
		TrainerID:      trainerID,
		ClientID:       clientID,
		RequestedStart: start,
		RequestedEnd:   end,
		Status:         domain.RequestPending,
	})
}

// addAccepted stores an accepted request together with its linked session.
func (f *fixture) addAccepted(t *testing.T, start, end time.Time) (requestID, sessionID primitive.ObjectID) {
	t.Helper()
	sessionID = f.addSession(t, f.trainer.UserID, f.client.UserID, start, int(end.Sub(start).Minutes()))
	requestID = f.requests.put(domain.SessionRequest{
		TrainerID:      f.trainer.UserID,
		ClientID:       f.client.UserID,
		RequestedStart: start,
		RequestedEnd:   end,
		Status:         domain.RequestAccepted,
		SessionID:      &sessionID,
	})
	return requestID, sessionID
}

func (f *fixture) storedRequest(t *testing.T, id primitive.ObjectID) *domain.SessionRequest {
	t.Helper()
	req, err := f.requests.GetByID(context.Background(), id)
	require.NoError(t, err)
	return req
}

func (f *fixture) storedSession(t *testing.T, id primitive.ObjectID) *domain.Session {
	t.Helper()
	s, err := f.sessions.GetByID(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestAccept_ConflictWithTrainerSession(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	existing := f.addSession(t, f.trainer.UserID, f.client.UserID, at(1, 9, 0), 60)
	reqID := f.addPending(f.trainer.UserID, f.client2.UserID, at(1, 9, 30), at(1, 10, 15))

	_, err := f.svc.Apply(ctx, f.trainer, reqID, domain.Accept{})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, CodeConflict, ErrorCode(err))

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	c := conflictErr.Conflicts[0]
	assert.Equal(t, existing, c.ID)
	assert.Equal(t, domain.SourceSession, c.Source)
	assert.Equal(t, domain.OwnerTrainer, c.Owner)

	assert.Equal(t, domain.RequestPending, f.storedRequest(t, reqID).Status)
	assert.Equal(t, 1, f.sessions.count())
}

func TestAccept_BackToBackCreatesSession(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	f.addSession(t, f.trainer.UserID, f.client.UserID, at(1, 9, 0), 60)
	reqID := f.addPending(f.trainer.UserID, f.client2.UserID, at(1, 10, 0), at(1, 11, 0))

	got, err := f.svc.Apply(context.Background(), f.trainer, reqID, domain.Accept{})
	require.NoError(t, err)

	assert.Equal(t, domain.RequestAccepted, got.Status)
	require.NotNil(t, got.SessionID)
	require.NotNil(t, got.RespondedBy)
	assert.Equal(t, f.trainer.UserID, *got.RespondedBy)
	require.NotNil(t, got.RespondedAt)
	assert.True(t, got.RespondedAt.Equal(testNow))
	assert.Equal(t, "Tara Trainer", got.TrainerName)
	assert.Equal(t, "Cleo Client", got.ClientName)

	session := f.storedSession(t, *got.SessionID)
	assert.Equal(t, 60, session.DurationMinutes)
	assert.True(t, session.Start.Equal(at(1, 10, 0)))
	assert.Equal(t, f.client2.UserID, session.ClientID)
	assert.Equal(t, 2, f.sessions.count())
}

func TestAccept_CarriesMessageAndPlan(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	msg := "knee is better now"
	planID := primitive.NewObjectID()
	reqID := f.requests.put(domain.SessionRequest{
		TrainerID:      f.trainer.UserID,
		ClientID:       f.client.UserID,
		PlanID:         &planID,
		RequestedStart: at(3, 8, 0),
		RequestedEnd:   at(3, 8, 45),
		Status:         domain.RequestPending,
		Message:        &msg,
	})

	got, err := f.svc.Apply(context.Background(), f.trainer, reqID, domain.Accept{})
	require.NoError(t, err)

	session := f.storedSession(t, *got.SessionID)
	assert.Equal(t, 45, session.DurationMinutes)
	require.NotNil(t, session.Notes)
	assert.Equal(t, msg, *session.Notes)
	require.NotNil(t, session.PlanID)
	assert.Equal(t, planID, *session.PlanID)
}

func TestProposeReschedule_IdenticalSlotExcludesOwnSession(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	reqID, _ := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))
	note := "same time works"

	got, err := f.svc.Apply(context.Background(), f.trainer, reqID, domain.ProposeReschedule{Start: at(2, 14, 0), End: at(2, 15, 0), Note: &note})
	require.NoError(t, err)

	assert.Equal(t, domain.RequestReschedulePending, got.Status)
	require.NotNil(t, got.ProposedStart)
	assert.True(t, got.ProposedStart.Equal(at(2, 14, 0)))
	require.NotNil(t, got.ProposedBy)
	assert.Equal(t, f.trainer.UserID, *got.ProposedBy)
	require.NotNil(t, got.RescheduleNote)
	assert.Equal(t, note, *got.RescheduleNote)
}

func TestProposeReschedule_Rejections(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	acceptedID, _ := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))
	pendingID := f.addPending(f.trainer.UserID, f.client.UserID, at(4, 9, 0), at(4, 10, 0))
	unlinkedID := f.requests.put(domain.SessionRequest{
		TrainerID:      f.trainer.UserID,
		ClientID:       f.client.UserID,
		RequestedStart: at(5, 9, 0),
		RequestedEnd:   at(5, 10, 0),
		Status:         domain.RequestAccepted,
	})

	tests := []struct {
		name     string
		id       primitive.ObjectID
		action   domain.Action
		wantErr  error
		wantCode Code
	}{
		{"end before start", acceptedID, domain.ProposeReschedule{Start: at(2, 16, 0), End: at(2, 15, 0)}, domain.ErrInvalidRange, CodeInvalidRange},
		{"still pending", pendingID, domain.ProposeReschedule{Start: at(4, 11, 0), End: at(4, 12, 0)}, ErrInvalidState, CodeInvalidState},
		{"no linked session", unlinkedID, domain.ProposeReschedule{Start: at(5, 11, 0), End: at(5, 12, 0)}, ErrSessionNotLinked, CodeSessionNotLinked},
		{"ten minutes ago", acceptedID, domain.ProposeReschedule{Start: testNow.Add(-10 * time.Minute), End: testNow.Add(50 * time.Minute)}, ErrPastRange, CodePastRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := *f.storedRequest(t, tt.id)
			_, err := f.svc.Apply(ctx, f.trainer, tt.id, tt.action)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCode, ErrorCode(err))
			assert.Equal(t, before, *f.storedRequest(t, tt.id), "request must not change")
		})
	}
}

func TestProposeReschedule_GraceWindow(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	reqID, _ := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))

	_, err := f.svc.Apply(context.Background(), f.trainer, reqID, domain.ProposeReschedule{
		Start: testNow.Add(-3 * time.Minute),
		End:   testNow.Add(57 * time.Minute),
	})
	require.NoError(t, err)
}

func TestAccept_ConcurrentOverlappingRequests(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	first := f.addPending(f.trainer.UserID, f.client.UserID, at(1, 9, 0), at(1, 10, 0))
	second := f.addPending(f.trainer.UserID, f.client2.UserID, at(1, 9, 30), at(1, 10, 30))

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i, id := range []primitive.ObjectID{first, second} {
		wg.Add(1)
		go func(i int, id primitive.ObjectID) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Apply(context.Background(), f.trainer, id, domain.Accept{})
		}(i, id)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.sessions.count())
}

func TestAccept_SameRequestTwice(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	reqID := f.addPending(f.trainer.UserID, f.client.UserID, at(1, 9, 0), at(1, 10, 0))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Apply(context.Background(), f.trainer, reqID, domain.Accept{})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, ErrInvalidState)
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, f.sessions.count())

	_, err := f.svc.Apply(context.Background(), f.trainer, reqID, domain.Accept{})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAccept_PendingRequestsDoNotBlockButProposalsDo(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()

	// A competing ask for the same slot is reported but not blocking.
	f.addPending(f.trainer.UserID, f.client2.UserID, at(1, 9, 0), at(1, 10, 0))
	reqID := f.addPending(f.trainer.UserID, f.client.UserID, at(1, 9, 0), at(1, 10, 0))
	_, err := f.svc.Apply(ctx, f.trainer, reqID, domain.Accept{})
	require.NoError(t, err)

	// A trainer's outstanding proposal holds its slot.
	proposedStart, proposedEnd := at(6, 9, 0), at(6, 10, 0)
	otherSession := f.addSession(t, f.trainer.UserID, f.client2.UserID, at(6, 15, 0), 60)
	f.requests.put(domain.SessionRequest{
		TrainerID:      f.trainer.UserID,
		ClientID:       f.client2.UserID,
		RequestedStart: at(6, 15, 0),
		RequestedEnd:   at(6, 16, 0),
		ProposedStart:  &proposedStart,
		ProposedEnd:    &proposedEnd,
		Status:         domain.RequestReschedulePending,
		SessionID:      &otherSession,
	})
	blocked := f.addPending(f.trainer.UserID, f.client.UserID, at(6, 9, 30), at(6, 10, 30))
	_, err = f.svc.Apply(ctx, f.trainer, blocked, domain.Accept{})
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, domain.SourceRequest, conflictErr.Conflicts[0].Source)
	assert.True(t, conflictErr.Conflicts[0].Start.Equal(proposedStart))
}

func TestAccept_UndoesSessionWhenRequestWriteFails(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	reqID := f.addPending(f.trainer.UserID, f.client.UserID, at(1, 9, 0), at(1, 10, 0))
	f.requests.updateErr = errors.New("write concern timeout")

	_, err := f.svc.Apply(context.Background(), f.trainer, reqID, domain.Accept{})
	require.Error(t, err)
	assert.Equal(t, CodeInternal, ErrorCode(err))
	assert.Equal(t, 0, f.sessions.count())
}

func TestAccept_SubMinuteRequestChecksStoredSlot(t *testing.T) {
	t.Run("stored as one minute", func(t *testing.T) {
		f := newFixture(t, DeclineKeepSession)
		f.addSession(t, f.trainer.UserID, f.client2.UserID, at(1, 9, 30), 60)
		reqID := f.addPending(f.trainer.UserID, f.client.UserID, at(1, 9, 0), at(1, 9, 0).Add(30*time.Second))

		got, err := f.svc.Apply(context.Background(), f.trainer, reqID, domain.Accept{})
		require.NoError(t, err)
		require.NotNil(t, got.SessionID)

		session := f.storedSession(t, *got.SessionID)
		assert.Equal(t, 1, session.DurationMinutes)
		assert.True(t, session.End().Equal(at(1, 9, 1)))
	})

	t.Run("rounded slot overlaps a neighbour", func(t *testing.T) {
		f := newFixture(t, DeclineKeepSession)
		// Starts after the requested 30 seconds but inside the stored minute.
		neighbour := f.addSession(t, f.trainer.UserID, f.client2.UserID, at(1, 9, 0).Add(45*time.Second), 30)
		reqID := f.addPending(f.trainer.UserID, f.client.UserID, at(1, 9, 0), at(1, 9, 0).Add(30*time.Second))

		_, err := f.svc.Apply(context.Background(), f.trainer, reqID, domain.Accept{})
		var conflictErr *ConflictError
		require.ErrorAs(t, err, &conflictErr)
		require.Len(t, conflictErr.Conflicts, 1)
		assert.Equal(t, neighbour, conflictErr.Conflicts[0].ID)
		assert.Equal(t, 1, f.sessions.count())
	})
}

func TestApply_Authorization(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	otherTrainer := domain.Actor{UserID: f.users.add("Other Trainer", domain.RoleTrainer), Role: domain.RoleTrainer}
	reqID := f.addPending(f.trainer.UserID, f.client.UserID, at(1, 9, 0), at(1, 10, 0))

	_, err := f.svc.Apply(ctx, otherTrainer, reqID, domain.Accept{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Apply(ctx, f.client, reqID, domain.Accept{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Apply(ctx, f.trainer, reqID, domain.Cancel{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Apply(ctx, f.client2, reqID, domain.Cancel{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Apply(ctx, f.trainer, primitive.NewObjectID(), domain.Accept{})
	assert.ErrorIs(t, err, ErrRequestNotFound)

	got, err := f.svc.Apply(ctx, f.admin, reqID, domain.Accept{})
	require.NoError(t, err)
	assert.Equal(t, f.admin.UserID, *got.RespondedBy)
}

func TestDeclineAndCancel(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	declineID := f.addPending(f.trainer.UserID, f.client.UserID, at(1, 9, 0), at(1, 10, 0))
	cancelID := f.addPending(f.trainer.UserID, f.client.UserID, at(1, 11, 0), at(1, 12, 0))
	note := "fully booked that week"

	got, err := f.svc.Apply(ctx, f.trainer, declineID, domain.Decline{Note: &note})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestDeclined, got.Status)
	require.NotNil(t, got.TrainerNote)
	assert.Equal(t, note, *got.TrainerNote)

	got, err = f.svc.Apply(ctx, f.client, cancelID, domain.Cancel{})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCancelled, got.Status)
	assert.Equal(t, f.client.UserID, *got.RespondedBy)

	_, err = f.svc.Apply(ctx, f.trainer, declineID, domain.Accept{})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 0, f.sessions.count())
}

func TestAcceptReschedule_MovesSession(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	reqID, sessionID := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))

	_, err := f.svc.Apply(ctx, f.trainer, reqID, domain.ProposeReschedule{Start: at(2, 16, 0), End: at(2, 17, 30)})
	require.NoError(t, err)

	// Only the client may answer a proposal.
	_, err = f.svc.Apply(ctx, f.trainer, reqID, domain.AcceptReschedule{})
	require.ErrorIs(t, err, ErrForbidden)

	got, err := f.svc.Apply(ctx, f.client, reqID, domain.AcceptReschedule{})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestAccepted, got.Status)

	session := f.storedSession(t, sessionID)
	assert.True(t, session.Start.Equal(at(2, 16, 0)))
	assert.Equal(t, 90, session.DurationMinutes)
}

func TestAcceptReschedule_ConflictAppearedMeanwhile(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	reqID, sessionID := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))

	_, err := f.svc.Apply(ctx, f.trainer, reqID, domain.ProposeReschedule{Start: at(2, 16, 0), End: at(2, 17, 0)})
	require.NoError(t, err)

	// The client books another trainer into the proposed slot.
	otherTrainer := f.users.add("Other Trainer", domain.RoleTrainer)
	f.addSession(t, otherTrainer, f.client.UserID, at(2, 16, 30), 60)

	_, err = f.svc.Apply(ctx, f.client, reqID, domain.AcceptReschedule{})
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, domain.OwnerClient, conflictErr.Conflicts[0].Owner)

	assert.Equal(t, domain.RequestReschedulePending, f.storedRequest(t, reqID).Status)
	assert.True(t, f.storedSession(t, sessionID).Start.Equal(at(2, 14, 0)))
}

func TestAcceptReschedule_SubMinuteProposal(t *testing.T) {
	proposedStart := at(2, 16, 0)
	proposedEnd := proposedStart.Add(30 * time.Second)

	t.Run("session keeps a positive length", func(t *testing.T) {
		f := newFixture(t, DeclineKeepSession)
		ctx := context.Background()
		reqID, sessionID := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))
		f.addSession(t, f.trainer.UserID, f.client2.UserID, at(2, 16, 30), 60)

		_, err := f.svc.Apply(ctx, f.trainer, reqID, domain.ProposeReschedule{Start: proposedStart, End: proposedEnd})
		require.NoError(t, err)
		_, err = f.svc.Apply(ctx, f.client, reqID, domain.AcceptReschedule{})
		require.NoError(t, err)

		session := f.storedSession(t, sessionID)
		assert.True(t, session.Start.Equal(proposedStart))
		assert.Equal(t, 1, session.DurationMinutes)

		report, err := NewConflictDetector(f.sessions, f.requests).Detect(ctx, ConflictQuery{
			TrainerID:        f.trainer.UserID,
			ClientID:         f.client.UserID,
			Interval:         session.Interval(),
			ExcludeSessionID: &sessionID,
			ExcludeRequestID: &reqID,
		})
		require.NoError(t, err)
		assert.Empty(t, report.Conflicts)
	})

	t.Run("propose rejects a clash inside the rounded minute", func(t *testing.T) {
		f := newFixture(t, DeclineKeepSession)
		reqID, _ := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))
		f.addSession(t, f.trainer.UserID, f.client2.UserID, proposedStart.Add(45*time.Second), 30)

		_, err := f.svc.Apply(context.Background(), f.trainer, reqID, domain.ProposeReschedule{Start: proposedStart, End: proposedEnd})
		require.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, domain.RequestAccepted, f.storedRequest(t, reqID).Status)
	})

	t.Run("accept rejects a clash that appeared inside the rounded minute", func(t *testing.T) {
		f := newFixture(t, DeclineKeepSession)
		ctx := context.Background()
		reqID, sessionID := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))

		_, err := f.svc.Apply(ctx, f.trainer, reqID, domain.ProposeReschedule{Start: proposedStart, End: proposedEnd})
		require.NoError(t, err)
		otherTrainer := f.users.add("Other Trainer", domain.RoleTrainer)
		f.addSession(t, otherTrainer, f.client.UserID, proposedStart.Add(45*time.Second), 30)

		_, err = f.svc.Apply(ctx, f.client, reqID, domain.AcceptReschedule{})
		require.ErrorIs(t, err, ErrConflict)
		session := f.storedSession(t, sessionID)
		assert.True(t, session.Start.Equal(at(2, 14, 0)))
		assert.Equal(t, 60, session.DurationMinutes)
	})
}

func TestAcceptReschedule_RestoresSessionWhenRequestWriteFails(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	reqID, sessionID := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))
	_, err := f.svc.Apply(ctx, f.trainer, reqID, domain.ProposeReschedule{Start: at(2, 16, 0), End: at(2, 17, 0)})
	require.NoError(t, err)

	f.requests.updateErr = errors.New("primary stepped down")
	_, err = f.svc.Apply(ctx, f.client, reqID, domain.AcceptReschedule{})
	require.Error(t, err)

	session := f.storedSession(t, sessionID)
	assert.True(t, session.Start.Equal(at(2, 14, 0)))
	assert.Equal(t, 60, session.DurationMinutes)
}

func TestDeclineReschedule_KeepSession(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	reqID, sessionID := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))

	_, err := f.svc.Apply(ctx, f.trainer, reqID, domain.ProposeReschedule{Start: at(2, 16, 0), End: at(2, 17, 0)})
	require.NoError(t, err)

	got, err := f.svc.Apply(ctx, f.client, reqID, domain.DeclineReschedule{})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRescheduleDeclined, got.Status)
	assert.Nil(t, got.ProposedStart)
	assert.Nil(t, got.ProposedEnd)
	assert.True(t, f.storedSession(t, sessionID).Start.Equal(at(2, 14, 0)))

	// The trainer may try again.
	got, err = f.svc.Apply(ctx, f.trainer, reqID, domain.ProposeReschedule{Start: at(2, 18, 0), End: at(2, 19, 0)})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestReschedulePending, got.Status)
}

func TestDeclineReschedule_RestoreRequested(t *testing.T) {
	f := newFixture(t, DeclineRestoreRequested)
	ctx := context.Background()
	reqID, sessionID := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))

	// Move the session once, then propose again and decline.
	_, err := f.svc.Apply(ctx, f.trainer, reqID, domain.ProposeReschedule{Start: at(2, 16, 0), End: at(2, 16, 30)})
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, f.client, reqID, domain.AcceptReschedule{})
	require.NoError(t, err)
	require.True(t, f.storedSession(t, sessionID).Start.Equal(at(2, 16, 0)))

	_, err = f.svc.Apply(ctx, f.trainer, reqID, domain.ProposeReschedule{Start: at(2, 18, 0), End: at(2, 19, 0)})
	require.NoError(t, err)
	got, err := f.svc.Apply(ctx, f.client, reqID, domain.DeclineReschedule{})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRescheduleDeclined, got.Status)

	session := f.storedSession(t, sessionID)
	assert.True(t, session.Start.Equal(at(2, 14, 0)))
	assert.Equal(t, 60, session.DurationMinutes)
}

func TestDeclineReschedule_RestoreRequestedInThePast(t *testing.T) {
	f := newFixture(t, DeclineRestoreRequested)
	ctx := context.Background()
	reqID, sessionID := f.addAccepted(t, at(2, 14, 0), at(2, 15, 0))
	_, err := f.svc.Apply(ctx, f.trainer, reqID, domain.ProposeReschedule{Start: at(3, 14, 0), End: at(3, 15, 0)})
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, f.client, reqID, domain.AcceptReschedule{})
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, f.trainer, reqID, domain.ProposeReschedule{Start: at(3, 16, 0), End: at(3, 17, 0)})
	require.NoError(t, err)

	// The originally requested slot has passed by the time the client declines.
	f.clock.Set(at(2, 20, 0))
	_, err = f.svc.Apply(ctx, f.client, reqID, domain.DeclineReschedule{})
	require.ErrorIs(t, err, ErrPastRange)
	assert.Equal(t, domain.RequestReschedulePending, f.storedRequest(t, reqID).Status)
	assert.True(t, f.storedSession(t, sessionID).Start.Equal(at(3, 14, 0)))
}

func TestCreateRequest(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	msg := "first session"

	got, err := f.svc.CreateRequest(ctx, f.client, CreateRequestInput{
		TrainerID: &f.trainer.UserID,
		Start:     at(1, 9, 0),
		End:       at(1, 10, 0),
		Message:   &msg,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, got.Status)
	assert.Equal(t, f.client.UserID, got.ClientID)
	assert.Equal(t, "Tara Trainer", got.TrainerName)

	_, err = f.svc.CreateRequest(ctx, f.trainer, CreateRequestInput{TrainerID: &f.trainer.UserID, Start: at(1, 9, 0), End: at(1, 10, 0)})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateRequest(ctx, f.client, CreateRequestInput{TrainerID: &f.client2.UserID, Start: at(1, 9, 0), End: at(1, 10, 0)})
	assert.ErrorIs(t, err, ErrNotRole)

	_, err = f.svc.CreateRequest(ctx, f.client, CreateRequestInput{Start: at(1, 9, 0), End: at(1, 10, 0)})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.CreateRequest(ctx, f.client, CreateRequestInput{TrainerID: &f.trainer.UserID, Start: at(1, 10, 0), End: at(1, 9, 0)})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = f.svc.CreateRequest(ctx, f.client, CreateRequestInput{TrainerID: &f.trainer.UserID, Start: testNow.Add(-time.Hour), End: testNow})
	assert.ErrorIs(t, err, ErrPastRange)
}

func TestCreateRequest_PlanOwnerFollowsTransfer(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	plans := NewPlanService(f.plans, f.users, f.owners)

	plan, err := plans.CreatePlan(ctx, f.trainer, f.client.UserID, "Strength block", "")
	require.NoError(t, err)

	first, err := f.svc.CreateRequest(ctx, f.client, CreateRequestInput{PlanID: &plan.ID, Start: at(1, 9, 0), End: at(1, 10, 0)})
	require.NoError(t, err)
	assert.Equal(t, f.trainer.UserID, first.TrainerID)

	// A client outside the plan may not book against it.
	_, err = f.svc.CreateRequest(ctx, f.client2, CreateRequestInput{PlanID: &plan.ID, Start: at(1, 9, 0), End: at(1, 10, 0)})
	assert.ErrorIs(t, err, ErrForbidden)

	newTrainer := domain.Actor{UserID: f.users.add("New Trainer", domain.RoleTrainer), Role: domain.RoleTrainer}
	_, err = plans.TransferOwner(ctx, f.trainer, plan.ID, newTrainer.UserID)
	require.NoError(t, err)

	second, err := f.svc.CreateRequest(ctx, f.client, CreateRequestInput{PlanID: &plan.ID, Start: at(1, 11, 0), End: at(1, 12, 0)})
	require.NoError(t, err)
	assert.Equal(t, newTrainer.UserID, second.TrainerID)
}

func TestGetAndListRequests(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	reqID := f.addPending(f.trainer.UserID, f.client.UserID, at(1, 9, 0), at(1, 10, 0))
	f.addAccepted(t, at(2, 9, 0), at(2, 10, 0))

	_, err := f.svc.GetRequest(ctx, f.client, reqID)
	require.NoError(t, err)
	_, err = f.svc.GetRequest(ctx, f.client2, reqID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.GetRequest(ctx, f.admin, reqID)
	require.NoError(t, err)

	all, err := f.svc.ListRequests(ctx, f.trainer, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := f.svc.ListRequests(ctx, f.client, []domain.RequestStatus{domain.RequestPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.svc.ListRequests(ctx, f.client, []domain.RequestStatus{"maybe"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestListSessionsAndPreview(t *testing.T) {
	f := newFixture(t, DeclineKeepSession)
	ctx := context.Background()
	f.addSession(t, f.trainer.UserID, f.client.UserID, at(1, 9, 0), 60)
	f.addSession(t, f.trainer.UserID, f.client2.UserID, at(8, 9, 0), 60)

	sessions, err := f.svc.ListSessions(ctx, f.trainer, at(1, 0, 0), at(2, 0, 0))
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	sessions, err = f.svc.ListSessions(ctx, f.client2, at(1, 0, 0), at(9, 0, 0))
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	_, err = f.svc.ListSessions(ctx, f.client, at(2, 0, 0), at(1, 0, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	q := ConflictQuery{TrainerID: f.trainer.UserID, ClientID: f.client2.UserID, Interval: domain.Interval{Start: at(1, 9, 30), End: at(1, 10, 30)}}
	report, err := f.svc.PreviewConflicts(ctx, f.trainer, q)
	require.NoError(t, err)
	assert.True(t, report.HasConflict)

	_, err = f.svc.PreviewConflicts(ctx, f.client, q)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestParseDeclinePolicy(t *testing.T) {
	p, err := ParseDeclinePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DeclineKeepSession, p)

	p, err = ParseDeclinePolicy("restore_requested")
	require.NoError(t, err)
	assert.Equal(t, DeclineRestoreRequested, p)

	_, err = ParseDeclinePolicy("restore")
	assert.Error(t, err)
}
