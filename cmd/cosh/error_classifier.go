// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/i11/cosh/internal/container"
	"github.com/i11/cosh/internal/dispatch"
	"github.com/i11/cosh/internal/hostenv"
	"github.com/i11/cosh/internal/issue"
	"github.com/i11/cosh/internal/lock"
	"github.com/i11/cosh/internal/provision"
	"github.com/i11/cosh/internal/registry"

	"golang.org/x/term"
)

// errConfigLoad marks failures while loading the configuration file.
var errConfigLoad = errors.New("configuration not loaded")

// classifyError maps a failure to its issue catalog entry. ok is false for
// errors the catalog does not explain.
func classifyError(err error) (id issue.Id, ok bool) {
	switch {
	case errors.Is(err, errConfigLoad):
		return issue.ConfigLoadFailedId, true
	case errors.Is(err, registry.ErrMalformedRepository):
		return issue.MalformedRepositoryId, true
	case errors.Is(err, dispatch.ErrCommandNotFound):
		return issue.CommandNotFoundId, true
	case errors.Is(err, dispatch.ErrNoVersion):
		return issue.NoVersionId, true
	case errors.Is(err, registry.ErrCredentials):
		return issue.CredentialsId, true
	case errors.Is(err, registry.ErrRegistryRequest):
		return issue.RegistryUnreachableId, true
	case errors.Is(err, provision.ErrChecksumMismatch):
		return issue.ChecksumMismatchId, true
	case errors.Is(err, provision.ErrDownload), errors.Is(err, provision.ErrMemberNotFound):
		return issue.RuntimeDownloadFailedId, true
	case errors.Is(err, lock.ErrBusy):
		return issue.MutexBusyId, true
	case errors.Is(err, lock.ErrCorrupt):
		return issue.MutexCorruptId, true
	case errors.Is(err, container.ErrNoEngineAvailable):
		return issue.ContainerEngineNotFoundId, true
	case errors.Is(err, hostenv.ErrInvalidVolume), errors.Is(err, container.ErrInvalidMount):
		return issue.InvalidVolumeId, true
	case errors.Is(err, hostenv.ErrInvalidEnv):
		return issue.InvalidEnvId, true
	default:
		return 0, false
	}
}

// renderError writes the error with its suggestions. Verbose output adds the
// cause chain and the catalog explanation.
func renderError(w io.Writer, err error, verbose bool) {
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))

	id, ok := classifyError(err)
	if !ok || !verbose {
		return
	}
	rendered, renderErr := issue.Get(id).Render(glamourStyle(w))
	if renderErr != nil {
		return
	}
	fmt.Fprint(w, rendered)
}

func glamourStyle(w io.Writer) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "dark"
	}
	return "notty"
}
