//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	pconfig "github.com/solestride/api/internal/platform/config"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

func TestInventoryRepositoryIntegration(t *testing.T) {
	endpoint := startEmulator(t)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "inventory-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewInventoryRepository(provider)
	if err != nil {
		t.Fatalf("new inventory repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	seed := map[string]any{
		"classificationId": "cls_001",
		"euSize":           42,
		"quantity":         5,
		"updatedAt":        now,
	}
	if _, err := client.Collection(sizeCollection).Doc("size_001").Set(ctx, seed); err != nil {
		t.Fatalf("seed size: %v", err)
	}

	lines := []repositories.StockLine{{SizeID: "size_001", Quantity: 3}}

	if err := repo.DecrementStock(ctx, lines, now); err != nil {
		t.Fatalf("decrement stock: %v", err)
	}

	size, err := repo.AdjustStock(ctx, "size_001", 0, now.Add(time.Second))
	if err != nil {
		t.Fatalf("adjust stock read-back: %v", err)
	}
	if size.Quantity != 2 {
		t.Fatalf("expected quantity 2 after decrement, got %d", size.Quantity)
	}

	var invErr *repositories.InventoryError

	// The remaining two pairs cannot cover another three-pair order.
	err = repo.DecrementStock(ctx, lines, now.Add(2*time.Second))
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock code, got %v", err)
	}

	err = repo.DecrementStock(ctx, []repositories.StockLine{{SizeID: "size_missing", Quantity: 1}}, now)
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorSizeNotFound {
		t.Fatalf("expected size not found code, got %v", err)
	}

	// Cancelling the order puts the three pairs back.
	if err := repo.RestoreStock(ctx, lines, now.Add(3*time.Second)); err != nil {
		t.Fatalf("restore stock: %v", err)
	}

	size, err = repo.AdjustStock(ctx, "size_001", 2, now.Add(4*time.Second))
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if size.Quantity != 7 {
		t.Fatalf("expected quantity 7 after restore and adjustment, got %d", size.Quantity)
	}

	_, err = repo.AdjustStock(ctx, "size_001", -20, now.Add(5*time.Second))
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock code for negative adjustment, got %v", err)
	}
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

// startEmulator boots a throwaway Firestore emulator container, registers its
// teardown, and blocks until the endpoint accepts connections. Tests that
// cannot reach a docker daemon are skipped rather than failed.
func startEmulator(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)

	out, err := exec.Command("docker",
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	containerID := strings.TrimSpace(string(out))
	if containerID == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(containerID) > 12 {
		containerID = containerID[:12]
	}
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)
	return endpoint
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
