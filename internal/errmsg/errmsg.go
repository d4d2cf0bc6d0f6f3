// Package errmsg turns a *ferr.Error into a user-facing message with
// possible-cause and suggestion text. Used only by cmd/flint; every other
// package returns the raw *ferr.Error for callers to branch on.
package errmsg

import (
	"fmt"
	"strings"

	"github.com/timelessos/flint/internal/ferr"
)

// Context supplies operation-specific detail (package id, repo alias) for
// the suggestion lines.
type Context struct {
	PackageID string
	RepoAlias string
}

// Format returns a formatted error message with possible causes and
// suggestions. ctx may be nil for generic formatting.
func Format(err error, ctx *Context) string {
	if err == nil {
		return ""
	}

	kind, ok := ferr.KindOf(err)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	switch kind {
	case ferr.Io:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Insufficient permissions on $FLINT_HOME\n")
		sb.WriteString("  - Disk full or read-only filesystem\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Check permissions on ~/.flint: ls -la ~/.flint\n")
		sb.WriteString("  - Check available disk space: df -h\n")

	case ferr.Codec:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Manifest file is truncated or corrupted\n")
		sb.WriteString("  - Manifest was written by an incompatible version\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Re-fetch the manifest from its source repository\n")

	case ferr.InvalidSignature:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The manifest was tampered with in transit\n")
		sb.WriteString("  - The repository's signing key was rotated without re-trusting it\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Re-fetch the manifest from a trusted mirror\n")
		sb.WriteString("  - Verify the repository's public key out of band before retrying\n")

	case ferr.NotFound:
		sb.WriteString("\nPossible causes:\n")
		if ctx != nil && ctx.RepoAlias != "" {
			sb.WriteString(fmt.Sprintf("  - %q has no entry in repository %q\n", idOrPlaceholder(ctx), ctx.RepoAlias))
		} else {
			sb.WriteString("  - The package id or version directory does not exist\n")
		}
		sb.WriteString("  - Typo in the package id or alias\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Run 'flint repo list' to see configured repositories\n")
		if ctx != nil && ctx.PackageID != "" {
			sb.WriteString(fmt.Sprintf("  - Run 'flint build %s' to build it locally\n", ctx.PackageID))
		}

	case ferr.AliasCollision:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Another package already registered this id or alias\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Run 'flint repo remove' on the existing entry first\n")
		sb.WriteString("  - Choose a different alias for the new package\n")

	case ferr.DependencyNotBuilt:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - A build or include/sdks dependency has not been built yet\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Build the dependency first, then retry this build\n")

	case ferr.BuildScriptFailed:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The build script itself failed (see its output above)\n")
		sb.WriteString("  - A required tool is missing from include/sdks\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Re-run with a shell to inspect the build directory before it is cleaned up\n")

	case ferr.Network:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Network connectivity issue\n")
		sb.WriteString("  - Mirror is temporarily unavailable\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Check your internet connection\n")
		sb.WriteString("  - Try again in a few minutes\n")

	case ferr.ChunkCorrupt:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The chunk was damaged on disk or truncated mid-download\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Re-fetch the chunk from its mirror\n")
		sb.WriteString("  - Run 'flint store verify' to find other affected chunks\n")

	case ferr.UnsupportedHashKind:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The repository manifest declares a hash kind this build does not implement\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Use a repository signed with the blake3 hash kind\n")

	case ferr.PathEscape:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - A tar source entry or repository name resolves outside its intended root\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Treat the source manifest as untrusted and do not install it\n")

	default:
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Try again in a few minutes\n")
	}

	return sb.String()
}

func idOrPlaceholder(ctx *Context) string {
	if ctx.PackageID != "" {
		return ctx.PackageID
	}
	return "<id>"
}
