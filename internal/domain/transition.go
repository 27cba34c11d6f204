package domain

import "time"

// ActionKind names a request transition as it appears on the wire.
type ActionKind string

const (
	ActionAccept            ActionKind = "accept"
	ActionDecline           ActionKind = "decline"
	ActionProposeReschedule ActionKind = "propose_reschedule"
	ActionAcceptReschedule  ActionKind = "accept_reschedule"
	ActionDeclineReschedule ActionKind = "decline_reschedule"
	ActionCancel            ActionKind = "cancel"
)

// Party is the side of the negotiation allowed to apply an action.
type Party string

const (
	PartyTrainer Party = "trainer"
	PartyClient  Party = "client"
)

// Action is one of the closed set of request transitions below.
type Action interface {
	Kind() ActionKind
	isAction()
}

// Accept confirms a pending request and materializes its Session.
type Accept struct{}

// Decline rejects a pending request.
type Decline struct {
	Note *string
}

// ProposeReschedule offers a new time for an already confirmed Session.
type ProposeReschedule struct {
	Start time.Time
	End   time.Time
	Note  *string
}

// AcceptReschedule moves the Session to the proposed time.
type AcceptReschedule struct{}

// DeclineReschedule discards the proposed time.
type DeclineReschedule struct {
	Note *string
}

// Cancel withdraws a pending request before the trainer responds.
type Cancel struct{}

func (Accept) Kind() ActionKind            { return ActionAccept }
func (Decline) Kind() ActionKind           { return ActionDecline }
func (ProposeReschedule) Kind() ActionKind { return ActionProposeReschedule }
func (AcceptReschedule) Kind() ActionKind  { return ActionAcceptReschedule }
func (DeclineReschedule) Kind() ActionKind { return ActionDeclineReschedule }
func (Cancel) Kind() ActionKind            { return ActionCancel }

func (Accept) isAction()            {}
func (Decline) isAction()           {}
func (ProposeReschedule) isAction() {}
func (AcceptReschedule) isAction()  {}
func (DeclineReschedule) isAction() {}
func (Cancel) isAction()            {}

type transition struct {
	from []RequestStatus
	to   RequestStatus
	by   Party
}

var transitions = map[ActionKind]transition{
	ActionAccept:            {from: []RequestStatus{RequestPending}, to: RequestAccepted, by: PartyTrainer},
	ActionDecline:           {from: []RequestStatus{RequestPending}, to: RequestDeclined, by: PartyTrainer},
	ActionProposeReschedule: {from: []RequestStatus{RequestAccepted, RequestRescheduleDeclined}, to: RequestReschedulePending, by: PartyTrainer},
	ActionAcceptReschedule:  {from: []RequestStatus{RequestReschedulePending}, to: RequestAccepted, by: PartyClient},
	ActionDeclineReschedule: {from: []RequestStatus{RequestReschedulePending}, to: RequestRescheduleDeclined, by: PartyClient},
	ActionCancel:            {from: []RequestStatus{RequestPending}, to: RequestCancelled, by: PartyClient},
}

// NextStatus returns the status an action leads to from the given one.
// ok is false when the action is not legal from that status.
func NextStatus(from RequestStatus, kind ActionKind) (to RequestStatus, ok bool) {
	t, known := transitions[kind]
	if !known {
		return "", false
	}
	for _, s := range t.from {
		if s == from {
			return t.to, true
		}
	}
	return "", false
}

// ActingParty returns which side of the request may apply the action.
func ActingParty(kind ActionKind) (Party, bool) {
	t, ok := transitions[kind]
	return t.by, ok
}
