package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker considers the workload alive when its port accepts connections
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

// NewTCPChecker creates a TCP liveness checker
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return result("liveness", start, false, fmt.Sprintf("connection to %s failed: %v", t.Address, err))
	}
	defer conn.Close()

	return result("liveness", start, true, fmt.Sprintf("connected to %s", t.Address))
}

func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// WithTimeout sets the connection timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
