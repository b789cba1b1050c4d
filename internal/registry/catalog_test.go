// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"net/http"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/i11/cosh/internal/cache"
)

// hubFixture serves two Hub namespaces that both publish "build".
func hubFixture(t *testing.T, listings *atomic.Int32) *http.Client {
	t.Helper()

	repos := map[string][]string{
		"hubA": {"build", "fmt"},
		"hubB": {"build", "docker", "deploy"},
	}
	tags := map[string][]string{
		"hubA/build":  {"1.1", "1.2"},
		"hubA/fmt":    {"latest"},
		"hubB/build":  {"9.9"},
		"hubB/docker": {"18.06"},
		"hubB/deploy": {"0.1"},
	}

	mux := http.NewServeMux()
	for ns, names := range repos {
		mux.HandleFunc("/v2/repositories/"+ns+"/", func(w http.ResponseWriter, r *http.Request) {
			if listings != nil {
				listings.Add(1)
			}
			results := make([]map[string]string, 0, len(names))
			for _, n := range names {
				results = append(results, map[string]string{"name": n})
			}
			writeJSON(t, w, map[string]any{"results": results})
		})
	}
	for path, ts := range tags {
		mux.HandleFunc("/v2/repositories/"+path+"/tags/", func(w http.ResponseWriter, r *http.Request) {
			results := make([]map[string]string, 0, len(ts))
			for _, tag := range ts {
				results = append(results, map[string]string{"name": tag})
			}
			writeJSON(t, w, map[string]any{"results": results})
		})
	}
	return newRegistryServer(t, mux)
}

func newResolvers(t *testing.T, client *http.Client, raws ...string) []*Resolver {
	t.Helper()

	resolvers := make([]*Resolver, 0, len(raws))
	for _, raw := range raws {
		r, err := NewResolver(raw, WithHTTPClient(client))
		if err != nil {
			t.Fatalf("NewResolver(%q): %v", raw, err)
		}
		resolvers = append(resolvers, r)
	}
	return resolvers
}

func TestCatalog_EarliestRepositoryWins(t *testing.T) {
	t.Parallel()

	client := hubFixture(t, nil)
	cat := NewCatalog(newResolvers(t, client, "hubA/", "hubB/"), cache.NoCache{})

	records, err := cat.Commands(context.Background())
	if err != nil {
		t.Fatalf("Commands() unexpected error: %v", err)
	}
	if got := recordNames(records); !slices.Equal(got, []string{"build", "fmt", "docker", "deploy"}) {
		t.Errorf("Commands() names = %v", got)
	}
	if records[0].Namespace != "hubA" {
		t.Errorf("build resolved from %q, want hubA", records[0].Namespace)
	}
}

func TestCatalog_ExcludedNames(t *testing.T) {
	t.Parallel()

	client := hubFixture(t, nil)
	cat := NewCatalog(newResolvers(t, client, "hubB"), cache.NoCache{}, WithExcluded("docker"))

	records, err := cat.Commands(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if slices.Contains(recordNames(records), "docker") {
		t.Errorf("excluded command listed: %v", recordNames(records))
	}
}

func TestCatalog_DefaultVersionResolution(t *testing.T) {
	t.Parallel()

	client := hubFixture(t, nil)
	cat := NewCatalog(newResolvers(t, client, "hubA/", "hubB/"), cache.NoCache{})

	rec, ok, err := cat.Lookup(context.Background(), "build")
	if err != nil || !ok {
		t.Fatalf("Lookup(build) = %v, %v", ok, err)
	}
	tag, _ := rec.DefaultTag()
	ref, err := rec.Reference(tag)
	if err != nil {
		t.Fatal(err)
	}
	if ref != "hubA/build:1.2" {
		t.Errorf("build resolves to %q, want hubA/build:1.2", ref)
	}

	if _, ok, err := cat.Lookup(context.Background(), "missing"); err != nil || ok {
		t.Errorf("Lookup(missing) = %v, %v", ok, err)
	}
}

func TestCatalog_ListingsAreCached(t *testing.T) {
	t.Parallel()

	var listings atomic.Int32
	client := hubFixture(t, &listings)
	store := cache.NewFileCache(t.TempDir())

	for range 2 {
		cat := NewCatalog(newResolvers(t, client, "hubA"), store)
		if _, err := cat.Commands(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if n := listings.Load(); n != 1 {
		t.Errorf("namespace listed %d times, want 1", n)
	}
}
