// SPDX-License-Identifier: MPL-2.0

// Package registry discovers commands published as container images.
//
// A configured repository string ("namespace", "host/namespace" or
// "gcr.io/project") is resolved once into one of three backends that speak
// different wire protocols:
//
//   - LegacyBackend: the v1 search API, paginated by page count.
//   - HubBackend: the Hub v2 repositories API, paginated by "next" links.
//   - GCRBackend: the token-authenticated v2 tags/list API with child repositories.
//
// Every backend produces CommandRecords whose tags are ordered newest first.
package registry
