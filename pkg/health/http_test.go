package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPChecker_HealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).Check(context.Background())

	if !result.Healthy {
		t.Errorf("Expected healthy, got unhealthy: %s", result.Message)
	}
	if result.Duration <= 0 {
		t.Error("Expected positive duration")
	}
}

func TestHTTPChecker_UnhealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy, got healthy: %s", result.Message)
	}
}

func TestHTTPChecker_CustomStatusRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).WithStatusRange(200, 200).Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy for 201 with range 200-200, got: %s", result.Message)
	}
}

func TestHTTPChecker_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := NewHTTPChecker(server.URL).Check(ctx)

	if result.Healthy {
		t.Error("Expected unhealthy after context cancellation")
	}
}

func TestTCPChecker(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := lis.Addr().String()

	if result := NewTCPChecker(addr).Check(context.Background()); !result.Healthy {
		t.Errorf("Expected healthy, got: %s", result.Message)
	}

	lis.Close()

	if result := NewTCPChecker(addr).WithTimeout(time.Second).Check(context.Background()); result.Healthy {
		t.Error("Expected unhealthy after listener closed")
	}
}
