package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Agent subsystems reported through the process health endpoints
const (
	ComponentStorage     = "storage"
	ComponentReplication = "replication"
	ComponentEvents      = "events"
	ComponentAPI         = "api"
)

// criticalComponents must be registered and healthy before the agent
// reports itself ready
var criticalComponents = []string{ComponentStorage, ComponentEvents}

// ProcessHealth is the JSON body of the /health and /ready endpoints. It
// describes the agent process, not the node health verdict.
type ProcessHealth struct {
	Status     string            `json:"status"` // "healthy", "unhealthy", "ready", "not_ready"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

type componentState struct {
	healthy bool
	message string
	updated time.Time
}

type componentRegistry struct {
	mu         sync.RWMutex
	components map[string]componentState
	startTime  time.Time
	version    string
}

var registry = newComponentRegistry()

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		components: make(map[string]componentState),
		startTime:  time.Now(),
	}
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.version = version
}

// UpdateComponent records the current state of an agent subsystem
func UpdateComponent(name string, healthy bool, message string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.components[name] = componentState{
		healthy: healthy,
		message: message,
		updated: time.Now(),
	}
}

// GetHealth returns the overall process health
func GetHealth() ProcessHealth {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string, len(registry.components))
	for name, comp := range registry.components {
		if comp.healthy {
			components[name] = "healthy"
			continue
		}
		status = "unhealthy"
		components[name] = "unhealthy: " + comp.message
	}

	return ProcessHealth{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    registry.version,
		Uptime:     time.Since(registry.startTime).String(),
	}
}

// GetReadiness reports whether every critical subsystem is up
func GetReadiness() ProcessHealth {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	status := "ready"
	var waiting []string
	components := make(map[string]string)

	for _, name := range criticalComponents {
		comp, ok := registry.components[name]
		switch {
		case !ok:
			components[name] = "not registered"
			waiting = append(waiting, name)
		case !comp.healthy:
			components[name] = "not ready: " + comp.message
			waiting = append(waiting, name)
		default:
			components[name] = "ready"
		}
	}

	message := ""
	if len(waiting) > 0 {
		status = "not_ready"
		sort.Strings(waiting)
		message = "waiting for " + waiting[0]
	}

	return ProcessHealth{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    registry.version,
		Uptime:     time.Since(registry.startTime).String(),
	}
}

// HealthHandler serves GetHealth, answering 503 when any subsystem is down
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()
		code := http.StatusOK
		if health.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	}
}

// ReadyHandler serves GetReadiness, answering 503 until critical subsystems are up
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()
		code := http.StatusOK
		if readiness.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, readiness)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
