// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Id identifies a catalog entry.
//
//nolint:revive // Id matches the exported constant names
type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	MalformedRepositoryId
	CommandNotFoundId
	NoVersionId
	RegistryUnreachableId
	CredentialsId
	ChecksumMismatchId
	RuntimeDownloadFailedId
	MutexBusyId
	MutexCorruptId
	ContainerEngineNotFoundId
	InvalidVolumeId
	InvalidEnvId
)

type (
	MarkdownMsg string

	HttpLink string //nolint:revive // kept for symmetry with MarkdownMsg

	// Issue is a catalog entry explaining a failure class and its fixes.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		extLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render formats the issue for the terminal with the given glamour style
// ("dark", "light", "notty" or a JSON style path).
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.extLinks) > 0 {
		var sb strings.Builder
		sb.WriteString(md)
		sb.WriteString("\n\n## See also\n")
		for _, link := range i.extLinks {
			sb.WriteString("- <" + string(link) + ">\n")
		}
		md = sb.String()
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# The configuration could not be loaded

cosh reads ` + "`config.cue`" + ` from its XDG config directory, or the file given with ` + "`--config`" + `.

## Things you can try
- Print the effective configuration with its defaults:
~~~
$ cosh self config show
~~~
- Write a fresh default file and edit from there:
~~~
$ cosh self config init
~~~
- Unset ` + "`COSH_*`" + ` environment variables that may hold invalid values.`,
	}

	malformedRepositoryIssue = &Issue{
		id: MalformedRepositoryId,
		mdMsg: `
# A repository setting is malformed

Repositories look like ` + "`namespace`" + `, ` + "`host/namespace`" + ` or ` + "`host:port/namespace`" + `.

## Things you can try
- Check every ` + "`--repository`" + ` flag and the ` + "`repositories`" + ` list in your config.
- Remove leading or trailing slashes.`,
	}

	commandNotFoundIssue = &Issue{
		id: CommandNotFoundId,
		mdMsg: `
# Command not found

No configured repository publishes an image with that name.

## Things you can try
- List every command cosh can run:
~~~
$ cosh self list
~~~
- Clear cached listings if the image was published recently:
~~~
$ cosh self cache clear
~~~
- Add the repository that publishes it with ` + "`--repository`" + `.`,
	}

	noVersionIssue = &Issue{
		id: NoVersionId,
		mdMsg: `
# No version to run

The image has no tags, so no default version could be picked.

## Things you can try
- Ask for a version explicitly: ` + "`cosh name:1.2.3`" + `.`,
	}

	registryUnreachableIssue = &Issue{
		id: RegistryUnreachableId,
		mdMsg: `
# The registry did not answer

Listing images or tags failed on the network.

## Things you can try
- Check connectivity and proxy settings.
- Retry later; results are cached once a request succeeds.
- Run with ` + "`--debug`" + ` to see the failing URL.`,
	}

	credentialsIssue = &Issue{
		id: CredentialsId,
		mdMsg: `
# Registry credentials are missing or invalid

Token-authenticated registries need a service account key or ambient Google credentials.

## Things you can try
- Pass a key file with ` + "`--gcr-key-file`" + ` or set ` + "`gcr_key_file`" + ` in the config.
- Log in with application default credentials:
~~~
$ gcloud auth application-default login
~~~`,
		extLinks: []HttpLink{"https://cloud.google.com/docs/authentication/application-default-credentials"},
	}

	checksumMismatchIssue = &Issue{
		id: ChecksumMismatchId,
		mdMsg: `
# The runtime download failed verification

The downloaded archive does not match the pinned SHA-256 and was discarded.

## Things you can try
- Retry; the download may have been truncated.
- If you changed ` + "`runtime.url`" + `, update ` + "`runtime.sha256`" + ` to match.`,
	}

	runtimeDownloadFailedIssue = &Issue{
		id: RuntimeDownloadFailedId,
		mdMsg: `
# The container runtime binary could not be provisioned

cosh mounts a static runtime binary into every container and downloads it on first use.

## Things you can try
- Check network access to the configured ` + "`runtime.url`" + `.
- Check that ` + "`runtime.member`" + ` names a file inside the archive.`,
		extLinks: []HttpLink{"https://docs.docker.com/engine/install/binaries/"},
	}

	mutexBusyIssue = &Issue{
		id: MutexBusyId,
		mdMsg: `
# Another cosh invocation is provisioning

Only one invocation at a time may write wrappers and the runtime binary.

## Things you can try
- Retry in a moment.
- If no other cosh process is running, release the lock:
~~~
$ cosh self unlock
~~~`,
	}

	mutexCorruptIssue = &Issue{
		id: MutexCorruptId,
		mdMsg: `
# The execution lock is in an impossible state

Both lock sentinels exist in the scratch directory.

## Things you can try
- Make sure no cosh process is running, then remove the ` + "`locked`" + ` sentinel
  from the scratch directory (` + "`$TMPDIR/cosh/locked`" + ` by default).`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# The container engine is not reachable

cosh runs every command through the engine CLI (` + "`docker`" + ` or ` + "`podman`" + `).

## Things you can try
- Check that the engine is installed and its daemon is running:
~~~
$ docker version
~~~
- Select another engine with ` + "`--engine podman`" + `.`,
		extLinks: []HttpLink{"https://docs.docker.com/engine/install/", "https://podman.io/docs/installation"},
	}

	invalidVolumeIssue = &Issue{
		id: InvalidVolumeId,
		mdMsg: `
# A volume is malformed

Volumes use ` + "`source:destination[:ro]`" + ` with absolute container paths.`,
	}

	invalidEnvIssue = &Issue{
		id: InvalidEnvId,
		mdMsg: `
# An environment override is malformed

Use ` + "`KEY=VALUE`" + ` to set a variable or ` + "`KEY`" + ` to pass the host value through.`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		malformedRepositoryIssue.Id():     malformedRepositoryIssue,
		commandNotFoundIssue.Id():         commandNotFoundIssue,
		noVersionIssue.Id():               noVersionIssue,
		registryUnreachableIssue.Id():     registryUnreachableIssue,
		credentialsIssue.Id():             credentialsIssue,
		checksumMismatchIssue.Id():        checksumMismatchIssue,
		runtimeDownloadFailedIssue.Id():   runtimeDownloadFailedIssue,
		mutexBusyIssue.Id():               mutexBusyIssue,
		mutexCorruptIssue.Id():            mutexCorruptIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		invalidVolumeIssue.Id():           invalidVolumeIssue,
		invalidEnvIssue.Id():              invalidEnvIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return int(a.id) - int(b.id)
	})
}

// Get returns the entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
