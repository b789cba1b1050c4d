// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"slices"
	"testing"
)

func TestSortTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"numeric runs compare by value", []string{"v2", "v10", "v1"}, []string{"v10", "v2", "v1"}},
		{"release candidates compare by value", []string{"v1.0.0-rc2", "v1.0.0-rc10"}, []string{"v1.0.0-rc10", "v1.0.0-rc2"}},
		{"suffixed tags follow their base", []string{"v1.0.0-rc.1", "v1.0.0", "v0.9.12"}, []string{"v1.0.0-rc.1", "v1.0.0", "v0.9.12"}},
		{"dotted versions without prefix", []string{"1.1", "1.10", "1.2"}, []string{"1.10", "1.2", "1.1"}},
		{"empty", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := SortTags(tt.tags)
			if !slices.Equal(got, tt.want) {
				t.Errorf("SortTags(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestSortTags_IndependentOfInputOrder(t *testing.T) {
	t.Parallel()

	sets := [][]string{
		{"v1.0.0-rc", "v1.0.0", "v1.0.0+"},
		{"1.0", "1.00", "1.0-alpine", "1.10"},
		{"latest", "v2", "v10", "2", "v1.0.0-rc10"},
	}

	for _, set := range sets {
		want := SortTags(set)
		perm := slices.Clone(set)
		for range len(set) * 2 {
			// rotate, then swap the first two, to walk through orderings
			perm = append(perm[1:], perm[0])
			got := SortTags(perm)
			if !slices.Equal(got, want) {
				t.Errorf("SortTags(%v) = %v, want %v", perm, got, want)
			}
			perm[0], perm[1] = perm[1], perm[0]
			got = SortTags(perm)
			if !slices.Equal(got, want) {
				t.Errorf("SortTags(%v) = %v, want %v", perm, got, want)
			}
		}
	}
}

func TestSortTags_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []string{"1", "3", "2"}
	_ = SortTags(in)
	if !slices.Equal(in, []string{"1", "3", "2"}) {
		t.Errorf("input mutated: %v", in)
	}
}

func TestCommandRecord_DefaultTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		tags   []string
		want   string
		wantOK bool
	}{
		{"latest preferred", []string{"2.0", "latest", "1.0"}, "latest", true},
		{"newest otherwise", []string{"1.2", "1.1"}, "1.2", true},
		{"newest release candidate", []string{"v1.0.0-rc2", "v1.0.0-rc10"}, "v1.0.0-rc10", true},
		{"no tags", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := CommandRecord{Name: "build", Namespace: "hubA", Tags: SortTags(tt.tags)}.DefaultTag()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("DefaultTag() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCommandRecord_Reference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		record  CommandRecord
		tag     string
		want    string
		wantErr bool
	}{
		{"default registry", CommandRecord{Name: "vim", Namespace: "actions"}, "8.1", "actions/vim:8.1", false},
		{"custom host", CommandRecord{Name: "vim", RepositoryHost: "gcr.io", Namespace: "proj"}, "latest", "gcr.io/proj/vim:latest", false},
		{"invalid tag", CommandRecord{Name: "vim", Namespace: "actions"}, "bad tag!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.record.Reference(tt.tag)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Reference() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Reference() = %q, want %q", got, tt.want)
			}
		})
	}
}
