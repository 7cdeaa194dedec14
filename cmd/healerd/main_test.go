package main

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// Isolate HOME so no developer config file leaks in, and use a test port.
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SERVER_HTTP_PORT", "18844")
	t.Setenv("REASONER_API_KEY", "test-key")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "")
	}()

	// Wait for the server to start
	time.Sleep(200 * time.Millisecond)

	resp, err := http.Get("http://localhost:18844/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not shut down in time")
	}
}
