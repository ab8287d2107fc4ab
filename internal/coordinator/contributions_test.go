package coordinator

import (
	"context"
	"errors"
	"testing"
)

func TestCoordinator_CollectContributions_OrderAndFailureDiscard(t *testing.T) {
	c := newTestCoordinator()

	c.RegisterContributor("system_prompt", "alpha", func(ctx context.Context) (string, error) {
		return "A", nil
	})
	c.RegisterContributor("system_prompt", "beta", func(ctx context.Context) (string, error) {
		return "", errors.New("beta failed")
	})
	c.RegisterContributor("system_prompt", "gamma", func(ctx context.Context) (string, error) {
		return "C", nil
	})

	got := c.CollectContributions(context.Background(), "system_prompt")
	if got != "AC" {
		t.Fatalf("CollectContributions() = %q, want %q", got, "AC")
	}
}

func TestCoordinator_CollectContributions_EmptyChannel(t *testing.T) {
	c := newTestCoordinator()
	got := c.CollectContributions(context.Background(), "nonexistent")
	if got != "" {
		t.Fatalf("CollectContributions() on empty channel = %q, want empty", got)
	}
}
