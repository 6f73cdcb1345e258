package health

import (
	"time"

	"github.com/cuemby/shepherd/pkg/workload"
)

// BatteryConfig selects and tunes the local checks
type BatteryConfig struct {
	MeminfoPath  string
	MinAvailable uint64

	ProcSys       string
	MaxSwappiness int64
	// MinMaxMapCount of 0 disables the vm.max_map_count check
	MinMaxMapCount int64

	// Liveness spec, see ParseLiveness; empty disables it
	Liveness     string
	RetryAttempt int
	RetryWait    time.Duration
}

// DefaultBatteryConfig returns the stock thresholds
func DefaultBatteryConfig() BatteryConfig {
	return BatteryConfig{
		MeminfoPath:   DefaultMeminfoPath,
		ProcSys:       DefaultProcSys,
		MaxSwappiness: 1,
		RetryAttempt:  5,
		RetryWait:     time.Second,
	}
}

// NewBattery builds the probe described by cfg
func NewBattery(cfg BatteryConfig, exec workload.Executor) *Probe {
	checks := []Checker{
		NewMemoryChecker(cfg.MeminfoPath, cfg.MinAvailable),
		NewSysctlMax(cfg.ProcSys, "vm.swappiness", cfg.MaxSwappiness),
	}
	if cfg.MinMaxMapCount > 0 {
		checks = append(checks, NewSysctlMin(cfg.ProcSys, "vm.max_map_count", cfg.MinMaxMapCount))
	}
	if live := ParseLiveness(cfg.Liveness, exec); live != nil {
		checks = append(checks, NewRetry(live, cfg.RetryAttempt, cfg.RetryWait))
	}
	return NewProbe(checks...)
}
