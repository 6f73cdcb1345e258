package reconciler

import (
	"errors"
	"fmt"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/cuemby/shepherd/pkg/workload"
	"github.com/rs/zerolog"
)

var (
	// ErrConfigInvalid marks a user payload that cannot be applied
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrConfigWriteFailed marks an I/O failure materializing configuration
	ErrConfigWriteFailed = errors.New("failed to write configuration")
)

const (
	DefaultScriptPath      = "/opt/user-install-script"
	DefaultEnvironmentPath = "/etc/environment"
)

// Result reports what one Apply changed on disk
type Result struct {
	ScriptChanged bool
	EnvChanged    bool
}

// RestartRequired reports whether the workload must be restarted to pick
// up the change
func (r Result) RestartRequired() bool {
	return r.ScriptChanged
}

// Changed reports whether anything was written
func (r Result) Changed() bool {
	return r.ScriptChanged || r.EnvChanged
}

// Reconciler compares the declared configuration with what is materialized
// on the local filesystem and converges the two. It is the only writer of
// the script and environment files.
type Reconciler struct {
	source  Source
	script  string
	envPath string

	// ValidateScript vets the script body before it is accepted
	ValidateScript func(body string) error

	logger zerolog.Logger
}

// NewReconciler creates a reconciler writing to the given paths
func NewReconciler(source Source, scriptPath, envPath string) *Reconciler {
	if scriptPath == "" {
		scriptPath = DefaultScriptPath
	}
	if envPath == "" {
		envPath = DefaultEnvironmentPath
	}
	return &Reconciler{
		source:         source,
		script:         scriptPath,
		envPath:        envPath,
		ValidateScript: func(string) error { return nil },
		logger:         log.WithComponent("reconciler"),
	}
}

// ScriptPath returns where the setup script is materialized
func (r *Reconciler) ScriptPath() string { return r.script }

// Desired loads and validates the declared configuration
func (r *Reconciler) Desired() (types.DesiredConfig, error) {
	d, err := r.source.Load()
	if err != nil {
		return types.DesiredConfig{}, err
	}

	if d.SetupScript != "" && r.ValidateScript != nil {
		if err := r.ValidateScript(d.SetupScript); err != nil {
			return types.DesiredConfig{}, fmt.Errorf("%w: setup script rejected: %v", ErrConfigInvalid, err)
		}
	}

	env, err := ParseAssignments(d.EnvironmentVariables)
	if err != nil {
		return types.DesiredConfig{}, err
	}

	return types.DesiredConfig{
		SetupScript: d.SetupScript,
		Environment: env,
	}, nil
}

// Applied reads the current materialization. Missing files are the normal
// pre-install state and yield an empty value.
func (r *Reconciler) Applied() (types.AppliedConfig, error) {
	var applied types.AppliedConfig

	script, ok, err := workload.ReadFile(r.script)
	if err != nil {
		return applied, err
	}
	applied.SetupScript = string(script)
	applied.ScriptExists = ok

	env, ok, err := workload.ReadFile(r.envPath)
	if err != nil {
		return applied, err
	}
	if ok {
		applied.Environment = ParseEnvironmentFile(env)
	}
	return applied, nil
}

// Drift reports whether Apply would write anything
func (r *Reconciler) Drift() (bool, error) {
	desired, err := r.Desired()
	if err != nil {
		return false, err
	}
	applied, err := r.Applied()
	if err != nil {
		return false, err
	}

	drift := scriptDrift(desired, applied) || len(missing(desired.Environment, applied.Environment)) > 0
	metrics.ConfigDrift.Set(metrics.BoolGauge(drift))
	return drift, nil
}

func scriptDrift(desired types.DesiredConfig, applied types.AppliedConfig) bool {
	if desired.SetupScript == "" {
		return false
	}
	return !applied.ScriptExists || applied.SetupScript != desired.SetupScript
}

// Apply writes whatever drifted. Calling it again without a config change
// writes nothing.
func (r *Reconciler) Apply() (Result, error) {
	var res Result

	desired, err := r.Desired()
	if err != nil {
		return res, err
	}
	script, exists, err := workload.ReadFile(r.script)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrConfigWriteFailed, err)
	}
	applied := types.AppliedConfig{SetupScript: string(script), ScriptExists: exists}

	if scriptDrift(desired, applied) {
		if err := workload.WriteFileAtomic(r.script, []byte(desired.SetupScript), 0755); err != nil {
			return res, fmt.Errorf("%w: %v", ErrConfigWriteFailed, err)
		}
		res.ScriptChanged = true
		metrics.ConfigWritesTotal.WithLabelValues("script").Inc()
		r.logger.Info().Str("path", r.script).Msg("Setup script updated")
	}

	// an empty declaration never touches the environment file
	if !desired.HasEnvironment() {
		metrics.ConfigDrift.Set(0)
		return res, nil
	}

	data, ok, err := workload.ReadFile(r.envPath)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrConfigWriteFailed, err)
	}
	var current map[string]string
	if ok {
		current = ParseEnvironmentFile(data)
	}
	if len(missing(desired.Environment, current)) > 0 {
		if err := r.writeEnvironment(data, desired.Environment); err != nil {
			return res, err
		}
		res.EnvChanged = true
	}

	metrics.ConfigDrift.Set(0)
	return res, nil
}

func (r *Reconciler) writeEnvironment(existing []byte, updates map[string]string) error {
	content := UpdateEnvironment(existing, updates)
	if err := workload.WriteFileAtomic(r.envPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWriteFailed, err)
	}
	metrics.ConfigWritesTotal.WithLabelValues("environment").Inc()
	r.logger.Info().
		Str("path", r.envPath).
		Int("updated", len(updates)).
		Msg("Environment updated")
	return nil
}
