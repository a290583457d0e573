package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"postpilot/pkg/api"
)

func TestSweep_Success(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/internal/sweep") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-secret" {
			t.Errorf("unexpected authorization header: %s", auth)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(api.SweepResponse{
			Success:        true,
			ProcessedCount: 2,
			RetriedCount:   1,
			Processed: []api.SweepPostRef{
				{ID: "P1", Action: "enqueued"},
				{ID: "P2", Action: "promoted"},
			},
			Retried: []api.SweepPostRef{{ID: "P3", Action: "retried"}},
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("secret", "test-secret")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"sweep"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	for _, s := range []string{"2 processed", "1 retried", "enqueued", "P1", "promoted", "P2"} {
		if !strings.Contains(output, s) {
			t.Errorf("expected output to contain %q, got:\n%s", s, output)
		}
	}
}

func TestSweep_MissingSecret(t *testing.T) {
	resetViper()

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"sweep"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Internal secret not found") {
		t.Errorf("expected missing secret message, got: %s", stdout.String())
	}
}
