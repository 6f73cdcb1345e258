package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultProcSys is where kernel tunables are exposed
const DefaultProcSys = "/proc/sys"

// SysctlChecker compares a kernel tunable against a bound
type SysctlChecker struct {
	// Key in dotted form, e.g. "vm.swappiness"
	Key string

	// Root is the procfs sysctl directory
	Root string

	// Limit is the bound; Max selects whether it is an upper or lower bound
	Limit int64
	Max   bool
}

// NewSysctlMax fails when the tunable exceeds max
func NewSysctlMax(root, key string, max int64) *SysctlChecker {
	return &SysctlChecker{Key: key, Root: orDefault(root), Limit: max, Max: true}
}

// NewSysctlMin fails when the tunable is below min
func NewSysctlMin(root, key string, min int64) *SysctlChecker {
	return &SysctlChecker{Key: key, Root: orDefault(root), Limit: min}
}

func orDefault(root string) string {
	if root == "" {
		return DefaultProcSys
	}
	return root
}

// Read returns the current value of the tunable
func (s *SysctlChecker) Read() (int64, error) {
	path := filepath.Join(s.Root, filepath.FromSlash(strings.ReplaceAll(s.Key, ".", "/")))
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", s.Key, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", s.Key, err)
	}
	return v, nil
}

func (s *SysctlChecker) Check(ctx context.Context) Result {
	start := time.Now()

	v, err := s.Read()
	if err != nil {
		return result(s.Key, start, false, err.Error())
	}

	if s.Max && v > s.Limit {
		return result(s.Key, start, false, fmt.Sprintf("%s is %d, must be at most %d", s.Key, v, s.Limit))
	}
	if !s.Max && v < s.Limit {
		return result(s.Key, start, false, fmt.Sprintf("%s is %d, must be at least %d", s.Key, v, s.Limit))
	}
	return result(s.Key, start, true, fmt.Sprintf("%s is %d", s.Key, v))
}

func (s *SysctlChecker) Type() CheckType {
	return CheckTypeSysctl
}
