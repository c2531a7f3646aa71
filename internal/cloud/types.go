package cloud

import "time"

type InstanceStatus string

const (
	StatusRunning    InstanceStatus = "RUNNING"
	StatusTerminated InstanceStatus = "TERMINATED"
	StatusStopping   InstanceStatus = "STOPPING"
	StatusStaging    InstanceStatus = "STAGING"
	StatusUnknown    InstanceStatus = ""
)

type Instance struct {
	Name        string         `json:"name"`
	Zone        string         `json:"zone"`
	Status      InstanceStatus `json:"status"`
	MachineType string         `json:"machineType"`
	InternalIP  string         `json:"internalIP"`
	ExternalIP  string         `json:"externalIP"`
}

type WaitOptions struct {
	Target   InstanceStatus
	Interval time.Duration
	Timeout  time.Duration
}
