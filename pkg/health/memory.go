package health

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultMeminfoPath is the kernel memory report
const DefaultMeminfoPath = "/proc/meminfo"

// MemoryChecker verifies the kernel memory report is readable and that
// MemAvailable meets a minimum
type MemoryChecker struct {
	Path string

	// MinAvailable in bytes; 0 only checks the report is present
	MinAvailable uint64
}

// NewMemoryChecker creates a memory checker
func NewMemoryChecker(path string, minAvailable uint64) *MemoryChecker {
	if path == "" {
		path = DefaultMeminfoPath
	}
	return &MemoryChecker{Path: path, MinAvailable: minAvailable}
}

func (m *MemoryChecker) Check(ctx context.Context) Result {
	start := time.Now()

	data, err := os.ReadFile(m.Path)
	if err != nil {
		return result("memory", start, false, fmt.Sprintf("memory report unavailable: %v", err))
	}

	if m.MinAvailable == 0 {
		return result("memory", start, true, "memory report present")
	}

	avail, err := memAvailable(data)
	if err != nil {
		return result("memory", start, false, err.Error())
	}
	if avail < m.MinAvailable {
		return result("memory", start, false,
			fmt.Sprintf("available memory %d bytes below minimum %d", avail, m.MinAvailable))
	}
	return result("memory", start, true, fmt.Sprintf("available memory %d bytes", avail))
}

func (m *MemoryChecker) Type() CheckType {
	return CheckTypeMemory
}

// memAvailable parses the MemAvailable line, reported in kB
func memAvailable(meminfo []byte) (uint64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(meminfo))
	for scanner.Scan() {
		name, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok || name != "MemAvailable" {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			break
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid MemAvailable value %q: %w", fields[0], err)
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemAvailable not reported")
}
