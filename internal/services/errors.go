package services

import (
	"errors"
	"fmt"

	"github.com/otcheredev/emergency-dispatch/internal/metrics"
)

// ErrorKind classifies a rejected operation
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindForbidden  ErrorKind = "forbidden"
	KindNotFound   ErrorKind = "not_found"
)

// Rules reported back to callers
const (
	RuleRoleNotPermitted      = "role_not_permitted"
	RuleNotRequestOwner       = "not_request_owner"
	RuleNotAParty             = "not_a_party"
	RuleInvalidPriority       = "invalid_priority"
	RuleInvalidCoordinates    = "invalid_coordinates"
	RuleConditionRequired     = "condition_required"
	RuleUnknownHospital       = "unknown_hospital"
	RuleInvalidTransition     = "invalid_transition"
	RuleInvalidTarget         = "invalid_target_status"
	RuleTerminalState         = "terminal_state"
	RuleNotTerminal           = "not_terminal"
	RuleAlreadyClaimed        = "already_claimed"
	RuleAmbulanceUnavailable  = "ambulance_not_available"
	RuleAmbulanceInactive     = "ambulance_inactive"
	RuleNoAmbulance           = "no_ambulance_for_operator"
	RuleNoHospital            = "no_hospital_for_owner"
	RuleETARequired           = "eta_required_before_dispatch"
	RuleInvalidETA            = "invalid_eta"
	RuleETANotApplicable      = "eta_not_applicable"
	RuleStaleStatus           = "stale_status"
	RuleBedOnlyOnCompletion   = "bed_only_on_completion"
	RuleHospitalRequired      = "hospital_required_for_bed"
	RuleInvalidBedType        = "invalid_bed_type"
	RuleNoBedAvailable        = "no_bed_available"
	RuleBedNotOccupied        = "bed_not_occupied"
	RuleInvalidAmbulanceState = "invalid_ambulance_status"
	RuleActiveRequest         = "active_request_in_progress"
	RuleInvalidHospitalState  = "invalid_hospital_status"
	RuleInvalidRadius         = "invalid_radius"
	RuleEmptyMessage          = "empty_message"
	RuleMessageTooLong        = "message_too_long"
	RuleInvalidReceiver       = "invalid_receiver"
	RuleInvalidBedSeed        = "invalid_bed_seed"
	RuleNotFound              = "not_found"
)

// RuleError is a rejection that names the rule it violated. Rejected
// operations never mutate state or emit events.
type RuleError struct {
	Kind    ErrorKind
	Rule    string
	Message string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

// AsRuleError unwraps err into a RuleError
func AsRuleError(err error) (*RuleError, bool) {
	var re *RuleError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func reject(kind ErrorKind, rule, format string, args ...interface{}) *RuleError {
	metrics.Rejection(string(kind), rule)
	return &RuleError{Kind: kind, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

func invalid(rule, format string, args ...interface{}) *RuleError {
	return reject(KindValidation, rule, format, args...)
}

func conflict(rule, format string, args ...interface{}) *RuleError {
	return reject(KindConflict, rule, format, args...)
}

func forbidden(rule, format string, args ...interface{}) *RuleError {
	return reject(KindForbidden, rule, format, args...)
}

func notFound(format string, args ...interface{}) *RuleError {
	return reject(KindNotFound, RuleNotFound, format, args...)
}
