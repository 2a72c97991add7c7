package models

import "time"

// RobotState is the operator-visible state of a robot.
type RobotState string

const (
	StateReady    RobotState = "READY"
	StateIdle     RobotState = "IDLE"
	StateActive   RobotState = "ACTIVE"
	StateBlocked  RobotState = "BLOCKED"
	StateCharging RobotState = "CHARGING"
	StateError    RobotState = "ERROR"
	StateOffline  RobotState = "OFFLINE"
)

// Location is a geographic position with an optional floor height.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Z   float64 `json:"z,omitempty"`
}

type RobotEnvironment struct {
	Temp     *float64 `json:"temp,omitempty"`
	Humidity *float64 `json:"humidity,omitempty"`
}

type RobotSeverity struct {
	Battery     Severity `json:"battery"`
	Temperature Severity `json:"temperature"`
}

// RobotStatus is the status block of a robot including collision bookkeeping.
type RobotStatus struct {
	Battery       *float64      `json:"battery,omitempty"`
	Load          *float64      `json:"load,omitempty"`
	State         RobotState    `json:"state"`
	Severity      RobotSeverity `json:"severity"`
	BlockedBy     []string      `json:"blocked_by,omitempty"`
	BlockedSince  *time.Time    `json:"blocked_since,omitempty"`
	PreBlockState RobotState    `json:"-"`
}

// Robot is owned by exactly one device.
type Robot struct {
	ID          string           `json:"id"`
	DeviceID    string           `json:"device_id"`
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Zone        string           `json:"zone,omitempty"`
	Location    *Location        `json:"location,omitempty"`
	Heading     *float64         `json:"heading,omitempty"`
	Environment RobotEnvironment `json:"environment"`
	Status      RobotStatus      `json:"status"`
	Task        *Task            `json:"task"`
	TaskQueue   []Task           `json:"task_queue"`
	LastUpdate  time.Time        `json:"last_update"`
}

// Clone returns a deep copy of r so callers can mutate it freely.
func (r Robot) Clone() Robot {
	out := r
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	out.Heading = cloneFloat(r.Heading)
	out.Environment.Temp = cloneFloat(r.Environment.Temp)
	out.Environment.Humidity = cloneFloat(r.Environment.Humidity)
	out.Status.Battery = cloneFloat(r.Status.Battery)
	out.Status.Load = cloneFloat(r.Status.Load)
	out.Status.BlockedBy = append([]string(nil), r.Status.BlockedBy...)
	if r.Status.BlockedSince != nil {
		ts := *r.Status.BlockedSince
		out.Status.BlockedSince = &ts
	}
	if r.Task != nil {
		t := r.Task.Clone()
		out.Task = &t
	}
	out.TaskQueue = make([]Task, len(r.TaskQueue))
	for i, t := range r.TaskQueue {
		out.TaskQueue[i] = t.Clone()
	}
	return out
}
