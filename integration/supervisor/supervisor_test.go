//go:build integration

package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSupervisorScenario(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(t)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	h.Start(runCtx)

	t.Run("A_ReportsReady", func(t *testing.T) {
		url := h.WaitReady()
		t.Logf("ready: %s", url)
		if !strings.Contains(url, "http://localhost:3000") {
			t.Errorf("ready URL = %q, want the announced address", url)
		}
	})

	t.Run("B_RestartsOnManifestChange", func(t *testing.T) {
		// Install a new dependency; the next streamed line makes the
		// supervisor notice and restart the child tree.
		h.WriteManifest(map[string]string{"react": "19.0.0", "lodash": "4.17.21"})
		t.Log("manifest bumped, waiting for the transparent restart")
		h.WaitUpdating()
	})

	t.Run("C_StopsOnCancel", func(t *testing.T) {
		stop()
		if err := h.WaitDone(); !errors.Is(err, context.Canceled) {
			t.Errorf("engine returned %v, want context.Canceled", err)
		}
	})

	// The ready flag survives restarts: one ready, every further
	// announcement counts as an update.
	ready, updating := h.Counts()
	if ready != 1 {
		t.Errorf("ready announced %d times, want exactly 1", ready)
	}
	if updating < 1 {
		t.Errorf("updating announced %d times, want at least 1", updating)
	}
}
