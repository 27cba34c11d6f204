package service

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/repository"
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// ConflictQuery describes a candidate booking for one trainer-client pair.
type ConflictQuery struct {
	TrainerID primitive.ObjectID
	ClientID  primitive.ObjectID
	Interval  domain.Interval
	// Records to ignore, typically the ones being moved.
	ExcludeSessionID *primitive.ObjectID
	ExcludeRequestID *primitive.ObjectID
}

// ConflictReport lists every overlapping session or open request.
type ConflictReport struct {
	HasConflict bool                  `json:"hasConflict"`
	Conflicts   []domain.ConflictInfo `json:"conflicts"`
}

// Blocking returns the conflicts that prevent a commitment.
func (r ConflictReport) Blocking() []domain.ConflictInfo {
	var out []domain.ConflictInfo
	for _, c := range r.Conflicts {
		if c.Blocking() {
			out = append(out, c)
		}
	}
	return out
}

// ConflictDetector finds bookings that overlap a candidate interval.
type ConflictDetector interface {
	Detect(ctx context.Context, q ConflictQuery) (ConflictReport, error)
}

type conflictDetector struct {
	sessionRepo repository.SessionRepository
	requestRepo repository.SessionRequestRepository
}

// NewConflictDetector creates a detector over the given stores.
func NewConflictDetector(sessionRepo repository.SessionRepository, requestRepo repository.SessionRequestRepository) ConflictDetector {
	return &conflictDetector{sessionRepo: sessionRepo, requestRepo: requestRepo}
}

type conflictKey struct {
	source domain.ConflictSource
	owner  domain.ConflictOwner
	id     primitive.ObjectID
}

// Detect runs the four party lookups concurrently. The first failing lookup cancels
// the others and its error is returned unchanged.
func (d *conflictDetector) Detect(ctx context.Context, q ConflictQuery) (ConflictReport, error) {
	candidate, err := domain.NewInterval(q.Interval.Start, q.Interval.End)
	if err != nil {
		return ConflictReport{}, err
	}
	from, to := domain.DayWindow(candidate)

	var (
		trainerSessions, clientSessions []domain.Session
		trainerRequests, clientRequests []domain.SessionRequest
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		trainerSessions, err = d.sessionRepo.ListByTrainerStartingBetween(gctx, q.TrainerID, from, to)
		return err
	})
	g.Go(func() (err error) {
		clientSessions, err = d.sessionRepo.ListByClientStartingBetween(gctx, q.ClientID, from, to)
		return err
	})
	g.Go(func() (err error) {
		trainerRequests, err = d.requestRepo.ListByTrainer(gctx, q.TrainerID, domain.OpenStatuses...)
		return err
	})
	g.Go(func() (err error) {
		clientRequests, err = d.requestRepo.ListByClient(gctx, q.ClientID, domain.OpenStatuses...)
		return err
	})
	if err := g.Wait(); err != nil {
		return ConflictReport{}, err
	}

	seen := make(map[conflictKey]struct{})
	conflicts := []domain.ConflictInfo{}
	add := func(info domain.ConflictInfo) {
		key := conflictKey{source: info.Source, owner: info.Owner, id: info.ID}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		conflicts = append(conflicts, info)
	}

	collectSessions := func(sessions []domain.Session, side domain.ConflictOwner) {
		for i := range sessions {
			s := &sessions[i]
			if q.ExcludeSessionID != nil && s.ID == *q.ExcludeSessionID {
				continue
			}
			interval := s.Interval()
			if !domain.Overlaps(candidate, interval) {
				continue
			}
			add(domain.ConflictInfo{
				ID:     s.ID,
				Source: domain.SourceSession,
				Owner:  ownerOf(s.BelongsTo(q.TrainerID, q.ClientID), side),
				Start:  interval.Start,
				End:    interval.End,
			})
		}
	}
	collectRequests := func(requests []domain.SessionRequest, side domain.ConflictOwner) {
		for i := range requests {
			r := &requests[i]
			if q.ExcludeRequestID != nil && r.ID == *q.ExcludeRequestID {
				continue
			}
			interval, err := r.ActiveInterval()
			if err != nil {
				continue
			}
			if !domain.Overlaps(candidate, interval) {
				continue
			}
			status := r.Status
			add(domain.ConflictInfo{
				ID:     r.ID,
				Source: domain.SourceRequest,
				Owner:  ownerOf(r.BelongsTo(q.TrainerID, q.ClientID), side),
				Status: &status,
				Start:  interval.Start,
				End:    interval.End,
			})
		}
	}

	collectSessions(trainerSessions, domain.OwnerTrainer)
	collectSessions(clientSessions, domain.OwnerClient)
	collectRequests(trainerRequests, domain.OwnerTrainer)
	collectRequests(clientRequests, domain.OwnerClient)

	sort.SliceStable(conflicts, func(i, j int) bool {
		if !conflicts[i].Start.Equal(conflicts[j].Start) {
			return conflicts[i].Start.Before(conflicts[j].Start)
		}
		return conflicts[i].ID.Hex() < conflicts[j].ID.Hex()
	})

	return ConflictReport{HasConflict: len(conflicts) > 0, Conflicts: conflicts}, nil
}

func ownerOf(samePair bool, side domain.ConflictOwner) domain.ConflictOwner {
	if samePair {
		return domain.OwnerBoth
	}
	return side
}

// requireNoBlocking turns a report into a *ConflictError when anything in it blocks.
func requireNoBlocking(report ConflictReport) error {
	if blocking := report.Blocking(); len(blocking) > 0 {
		return &ConflictError{Conflicts: blocking}
	}
	return nil
}

func describeInterval(i domain.Interval) string {
	return fmt.Sprintf("%s-%s", i.Start.Format("2006-01-02T15:04"), i.End.Format("15:04"))
}
