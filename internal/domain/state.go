package domain

import "fmt"

// ChallengeEvent drives challenge status transitions.
type ChallengeEvent string

const (
	EventActivate   ChallengeEvent = "activate"
	EventDeactivate ChallengeEvent = "deactivate"
	EventExpire     ChallengeEvent = "expire"
	EventCancel     ChallengeEvent = "cancel"
)

type challengeEdge struct {
	from  ChallengeStatus
	event ChallengeEvent
}

// Date and participant-count guards for these edges live in the registry;
// the table only decides which edges exist.
var challengeTransitions = map[challengeEdge]ChallengeStatus{
	{ChallengeDraft, EventActivate}:    ChallengeActive,
	{ChallengeActive, EventDeactivate}: ChallengeDraft,
	{ChallengeActive, EventExpire}:     ChallengeCompleted,
	{ChallengeDraft, EventCancel}:      ChallengeCancelled,
	{ChallengeActive, EventCancel}:     ChallengeCancelled,
}

// NextChallengeStatus returns the status reached by applying event to from.
func NextChallengeStatus(from ChallengeStatus, event ChallengeEvent) (ChallengeStatus, error) {
	to, ok := challengeTransitions[challengeEdge{from, event}]
	if !ok {
		return from, NewError(ErrStateConflict, "challenge."+string(event),
			fmt.Sprintf("cannot %s a %s challenge", event, from))
	}
	return to, nil
}

// ParticipantEvent drives participant status transitions.
type ParticipantEvent string

const (
	EventStart    ParticipantEvent = "start"
	EventComplete ParticipantEvent = "complete"
	EventAbandon  ParticipantEvent = "abandon"
	EventFail     ParticipantEvent = "fail"
)

type participantEdge struct {
	from  ParticipantStatus
	event ParticipantEvent
}

// Restarting an in-progress attempt is an edge onto itself; it resets the response log.
var participantTransitions = map[participantEdge]ParticipantStatus{
	{ParticipantRegistered, EventStart}:    ParticipantInProgress,
	{ParticipantInProgress, EventStart}:    ParticipantInProgress,
	{ParticipantAbandoned, EventStart}:     ParticipantInProgress,
	{ParticipantFailed, EventStart}:        ParticipantInProgress,
	{ParticipantInProgress, EventComplete}: ParticipantCompleted,
	{ParticipantRegistered, EventAbandon}:  ParticipantAbandoned,
	{ParticipantInProgress, EventAbandon}:  ParticipantAbandoned,
	{ParticipantInProgress, EventFail}:     ParticipantFailed,
}

// NextParticipantStatus returns the status reached by applying event to from.
func NextParticipantStatus(from ParticipantStatus, event ParticipantEvent) (ParticipantStatus, error) {
	if from == ParticipantCompleted {
		return from, ErrAlreadyCompleted
	}
	to, ok := participantTransitions[participantEdge{from, event}]
	if !ok {
		return from, NewError(ErrStateConflict, "participant."+string(event),
			fmt.Sprintf("cannot %s from %s", event, from))
	}
	return to, nil
}
