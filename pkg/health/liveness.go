package health

import (
	"strings"

	"github.com/cuemby/shepherd/pkg/workload"
)

// ParseLiveness builds a liveness checker from its configured form:
//
//	http://host:port/path   HTTP GET
//	tcp://host:port         TCP connect
//	anything else           shell command
//
// An empty spec returns nil (no liveness check).
func ParseLiveness(spec string, exec workload.Executor) Checker {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "":
		return nil
	case strings.HasPrefix(spec, "http://"), strings.HasPrefix(spec, "https://"):
		return NewHTTPChecker(spec)
	case strings.HasPrefix(spec, "tcp://"):
		return NewTCPChecker(strings.TrimPrefix(spec, "tcp://"))
	default:
		return NewExecChecker(exec, spec)
	}
}
