package appointment

import (
	"github.com/medicore/opd-api/internal/model"
)

// transitionMap lists the source statuses each transition accepts.
// BOOKED is allowed into IN_PROGRESS for walk-ins that skip the check-in
// step.
var transitionMap = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusConfirmed: {
		model.AppointmentStatusBooked,
	},
	model.AppointmentStatusCheckedIn: {
		model.AppointmentStatusBooked,
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusRescheduled,
	},
	model.AppointmentStatusInProgress: {
		model.AppointmentStatusCheckedIn,
		model.AppointmentStatusBooked,
	},
	model.AppointmentStatusCompleted: {
		model.AppointmentStatusInProgress,
	},
	model.AppointmentStatusNoShow: {
		model.AppointmentStatusBooked,
		model.AppointmentStatusConfirmed,
	},
}

// ValidTransition reports whether an appointment may move from one status
// to another. CANCELLED is reachable from any non-terminal status.
func ValidTransition(from, to model.AppointmentStatus) bool {
	if to == model.AppointmentStatusCancelled || to == model.AppointmentStatusRescheduled {
		return !from.Terminal()
	}
	for _, allowed := range transitionMap[to] {
		if allowed == from {
			return true
		}
	}
	return false
}
