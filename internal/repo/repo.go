// Package repo queries an upstream HTTP repository for available server
// artifacts. The only implemented family is PaperMC; other server kinds
// have no repository-backed install/update pipeline.
package repo

import (
	"context"
	"fmt"

	"github.com/mcfleet/mcfleet/internal/version"
)

// RepositoryError wraps a repository-layer failure (HTTP or parse) with an
// optional cause, per the error taxonomy.
type RepositoryError struct {
	Message string
	Cause   error
}

func (e *RepositoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RepositoryError) Unwrap() error {
	return e.Cause
}

func wrapErr(message string, cause error) error {
	return &RepositoryError{Message: message, Cause: cause}
}

// Artifact is a downloadable server binary pinned to a specific version
// and build.
type Artifact interface {
	Version() version.Version
	DownloadTo(ctx context.Context, destPath string) error
}

// Repository is the set of queries the install/update pipelines need
// against an upstream server-artifact index.
type Repository interface {
	ListVersions(ctx context.Context) ([]version.Version, error)
	ListBuilds(ctx context.Context, v version.Version) ([]version.Version, error)
	GetArtifact(ctx context.Context, v version.Version) (Artifact, error)
	GetLatestArtifact(ctx context.Context, v version.Version) (Artifact, error)
	LatestVersion(ctx context.Context) (version.Version, error)
}
