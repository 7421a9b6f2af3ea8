package repo_test

import (
	"testing"

	"github.com/hamed0406/netvigil/internal/repo"
	"github.com/hamed0406/netvigil/internal/repo/memory"
	pg "github.com/hamed0406/netvigil/internal/repo/postgres"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.Store = memory.New()

	// Postgres store types compile against the interfaces, too.
	var _ repo.Store = (*pg.Store)(nil)
}

func TestPruneCounts_Total(t *testing.T) {
	c := repo.PruneCounts{Pings: 3, Traces: 2, Outages: 1}
	if c.Total() != 6 {
		t.Fatalf("want 6, got %d", c.Total())
	}
}
