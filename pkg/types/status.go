package types

// Phase is the reconciliation state machine position of a node
type Phase string

const (
	PhaseInit              Phase = "init"
	PhaseWaitingForCluster Phase = "waiting-for-cluster"
	PhaseConfiguring       Phase = "configuring"
	PhaseActive            Phase = "active"
	PhaseRestarting        Phase = "restarting"
	PhaseFailed            Phase = "failed"
)

// FailureReason is the machine-checkable cause of a failed phase
type FailureReason string

const (
	ReasonNone              FailureReason = ""
	ReasonConfigInvalid     FailureReason = "config-invalid"
	ReasonConfigWriteFailed FailureReason = "config-write-failed"
	ReasonCommandError      FailureReason = "command-error"
)

// StatusCode is the operator-facing status of a node
type StatusCode string

const (
	StatusProvisioning    StatusCode = "provisioning"
	StatusWaitingForPeers StatusCode = "waiting-for-peers"
	StatusActive          StatusCode = "active"
	StatusRestarting      StatusCode = "restarting"
	StatusDegraded        StatusCode = "degraded"
	StatusFailed          StatusCode = "failed"
)

// LogLevel is the severity attached to a status when it is logged
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Status is the externally observed state of a node. It is held in memory
// only and never replicated.
type Status struct {
	Code    StatusCode    `json:"code"`
	Reason  FailureReason `json:"reason,omitempty"`
	Message string        `json:"message"`
}

// String renders the status as "code" or "failed:<reason>"
func (s Status) String() string {
	if s.Code == StatusFailed && s.Reason != ReasonNone {
		return string(s.Code) + ":" + string(s.Reason)
	}
	return string(s.Code)
}

// Level returns the log severity for the status
func (s Status) Level() LogLevel {
	switch s.Code {
	case StatusFailed:
		return LevelError
	case StatusDegraded:
		return LevelWarn
	case StatusRestarting:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// NodeReport is the operator view of one node, served by the API
type NodeReport struct {
	Node      string    `json:"node"`
	Leader    bool      `json:"leader"`
	Phase     Phase     `json:"phase"`
	Status    Status    `json:"status"`
	Readiness Readiness `json:"readiness"`
	Lock      LockState `json:"lock"`
	Holder    string    `json:"holder,omitempty"`
	Nodes     []Node    `json:"nodes"`
	Deferred  []string  `json:"deferred,omitempty"`
}
