// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestValues_CoversEveryId(t *testing.T) {
	t.Parallel()

	values := Values()
	if len(values) != int(InvalidEnvId) {
		t.Fatalf("len(Values()) = %d, want %d", len(values), InvalidEnvId)
	}
	for i, iss := range values {
		if want := Id(i + 1); iss.Id() != want {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, iss.Id(), want)
		}
		if Get(iss.Id()) != iss {
			t.Errorf("Get(%d) does not return the catalog entry", iss.Id())
		}
		if strings.TrimSpace(string(iss.MarkdownMsg())) == "" {
			t.Errorf("issue %d has no message", iss.Id())
		}
	}
}

func TestGet_Unknown(t *testing.T) {
	t.Parallel()

	if got := Get(Id(0)); got != nil {
		t.Errorf("Get(0) = %v, want nil", got)
	}
	if got := Get(InvalidEnvId + 1); got != nil {
		t.Errorf("Get(max+1) = %v, want nil", got)
	}
}

func TestIssue_Render(t *testing.T) {
	t.Parallel()

	for _, iss := range Values() {
		out, err := iss.Render("notty")
		if err != nil {
			t.Errorf("Render(%d) error = %v", iss.Id(), err)
			continue
		}
		if strings.TrimSpace(out) == "" {
			t.Errorf("Render(%d) produced no output", iss.Id())
		}
	}
}

func TestIssue_RenderIncludesLinks(t *testing.T) {
	t.Parallel()

	iss := Get(ContainerEngineNotFoundId)
	links := iss.ExtLinks()
	if len(links) == 0 {
		t.Fatal("expected external links")
	}

	out, err := iss.Render("notty")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "See also") || !strings.Contains(out, "docs.docker.com") {
		t.Errorf("Render() output lacks links:\n%s", out)
	}

	links[0] = "mutated"
	if iss.ExtLinks()[0] == "mutated" {
		t.Error("ExtLinks() exposes internal slice")
	}
}
