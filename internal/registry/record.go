// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"fmt"
	"slices"

	"github.com/google/go-containerregistry/pkg/name"
)

// LatestTag is preferred as the default version when a record publishes it.
const LatestTag = "latest"

// CommandRecord is one discoverable command: an image repository and its tags.
// Records are equal when their names are equal.
type CommandRecord struct {
	Name string `json:"name"`
	// RepositoryHost is empty for the default public registry.
	RepositoryHost string   `json:"repository_host,omitempty"`
	Namespace      string   `json:"namespace"`
	Tags           []string `json:"tags"`
}

// ImageReference returns "{host/}{namespace}/{name}".
func (r CommandRecord) ImageReference() string {
	if r.RepositoryHost == "" {
		return r.Namespace + "/" + r.Name
	}
	return r.RepositoryHost + "/" + r.Namespace + "/" + r.Name
}

// Reference returns the image reference pinned to tag, validated as a pullable tag reference.
func (r CommandRecord) Reference(tag string) (string, error) {
	ref := r.ImageReference() + ":" + tag
	if _, err := name.NewTag(ref); err != nil {
		return "", fmt.Errorf("image reference %q: %w", ref, err)
	}
	return ref, nil
}

// DefaultTag returns "latest" when published, otherwise the newest tag.
// The second result is false when the record has no tags.
func (r CommandRecord) DefaultTag() (string, bool) {
	if len(r.Tags) == 0 {
		return "", false
	}
	if slices.Contains(r.Tags, LatestTag) {
		return LatestTag, true
	}
	return r.Tags[0], true
}

// HasTag reports whether tag is published for the record.
func (r CommandRecord) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}
