package monitor

import "ivsentinel/internal/models"

// trackerResetDrop is how far, in percentage points, the cycle's max IV must
// fall below the initial alert level before an expiry's tracking resets.
// The gap keeps small oscillations around the threshold from re-alerting.
const trackerResetDrop = 2.0

type trackerAction int

const (
	trackerHold trackerAction = iota
	trackerReset
	trackerFirstAlert
	trackerRisingAlert
)

// advanceTracker applies one qualifying observation to an expiry's
// hysteresis state. maxIV is the highest qualifying mark IV of the cycle, in
// percent. The returned state replaces the old one wholesale.
func advanceTracker(st models.TrackerState, maxIV, increaseThreshold float64) (trackerAction, models.TrackerState) {
	if st.InitialAlertIV > 0 && maxIV < st.InitialAlertIV-trackerResetDrop {
		return trackerReset, models.TrackerState{}
	}
	if st.LastAlertIV == 0 {
		return trackerFirstAlert, models.TrackerState{LastAlertIV: maxIV, InitialAlertIV: maxIV}
	}
	if maxIV >= st.LastAlertIV+increaseThreshold {
		return trackerRisingAlert, models.TrackerState{LastAlertIV: maxIV, InitialAlertIV: st.InitialAlertIV}
	}
	return trackerHold, st
}
