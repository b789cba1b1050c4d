// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and the catalog of user-facing
// problem explanations rendered as Markdown in the terminal.
package issue
