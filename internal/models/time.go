package models

import "time"

// ControllerEpoch is the zero point of every seconds counter sent by field controllers.
var ControllerEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// ControllerTime converts a controller seconds counter to wall time.
func ControllerTime(seconds uint32) time.Time {
	return ControllerEpoch.Add(time.Duration(seconds) * time.Second)
}
