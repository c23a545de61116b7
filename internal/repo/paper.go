package repo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-resty/resty/v2"

	"github.com/mcfleet/mcfleet/internal/version"
)

const paperBaseURL = "https://api.papermc.io/v2/projects/paper"

// paperProjectResponse is the GET /v2/projects/paper shape.
type paperProjectResponse struct {
	Versions []string `json:"versions"`
}

// paperBuildList is the GET .../versions/{v}/builds shape.
type paperBuildList struct {
	Builds []paperBuild `json:"builds"`
}

type paperBuild struct {
	Build     int    `json:"build"`
	Channel   string `json:"channel"`
	Downloads struct {
		Application struct {
			Name string `json:"name"`
		} `json:"application"`
	} `json:"downloads"`
}

// PaperRepository implements Repository against the PaperMC v2 API.
type PaperRepository struct {
	client *resty.Client
}

// NewPaperRepository builds a client pointed at the public PaperMC API.
func NewPaperRepository() *PaperRepository {
	return &PaperRepository{client: resty.New().SetBaseURL(paperBaseURL)}
}

func (r *PaperRepository) ListVersions(ctx context.Context) ([]version.Version, error) {
	var body paperProjectResponse
	resp, err := r.client.R().SetContext(ctx).SetResult(&body).Get("")
	if err != nil {
		return nil, wrapErr("list versions", err)
	}
	if resp.IsError() {
		return nil, wrapErr(fmt.Sprintf("list versions: HTTP %d", resp.StatusCode()), nil)
	}

	versions := make([]version.Version, 0, len(body.Versions))
	for _, raw := range body.Versions {
		v, err := version.Parse(raw)
		if err != nil {
			// Lenient: skip entries the repository advertises that don't
			// parse as semver (e.g. pre-1.0 snapshot labels).
			continue
		}
		versions = append(versions, v)
	}
	return versions, nil
}

func (r *PaperRepository) ListBuilds(ctx context.Context, v version.Version) ([]version.Version, error) {
	var body paperBuildList
	resp, err := r.client.R().SetContext(ctx).SetResult(&body).
		Get(fmt.Sprintf("/versions/%s/builds", v.Core()))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list builds for %s", v.Core()), err)
	}
	if resp.IsError() {
		return nil, wrapErr(fmt.Sprintf("list builds for %s: HTTP %d", v.Core(), resp.StatusCode()), nil)
	}

	builds := make([]version.Version, 0, len(body.Builds))
	for _, b := range body.Builds {
		builds = append(builds, v.WithBuild(uint64(b.Build)))
	}
	return builds, nil
}

func (r *PaperRepository) GetArtifact(ctx context.Context, v version.Version) (Artifact, error) {
	if !v.HasBuild() {
		return r.GetLatestArtifact(ctx, v)
	}
	return r.buildArtifact(ctx, v)
}

func (r *PaperRepository) GetLatestArtifact(ctx context.Context, v version.Version) (Artifact, error) {
	builds, err := r.ListBuilds(ctx, v)
	if err != nil {
		return nil, err
	}
	best, ok := version.Max(builds)
	if !ok {
		return nil, wrapErr(fmt.Sprintf("no builds available for %s", v.Core()), nil)
	}
	return r.buildArtifact(ctx, best)
}

func (r *PaperRepository) buildArtifact(ctx context.Context, v version.Version) (Artifact, error) {
	var body paperBuild
	resp, err := r.client.R().SetContext(ctx).SetResult(&body).
		Get(fmt.Sprintf("/versions/%s/builds/%d", v.Core(), *v.Build))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get build %s", v), err)
	}
	if resp.IsError() {
		return nil, wrapErr(fmt.Sprintf("get build %s: HTTP %d", v, resp.StatusCode()), nil)
	}
	if body.Downloads.Application.Name == "" {
		return nil, wrapErr(fmt.Sprintf("build %s has no application download", v), nil)
	}

	return &paperArtifact{
		client:   r.client,
		version:  v,
		fileName: body.Downloads.Application.Name,
	}, nil
}

func (r *PaperRepository) LatestVersion(ctx context.Context) (version.Version, error) {
	versions, err := r.ListVersions(ctx)
	if err != nil {
		return version.Version{}, err
	}
	best, ok := version.Max(versions)
	if !ok {
		return version.Version{}, wrapErr("no versions available", nil)
	}
	return best, nil
}

// paperArtifact is a download pinned to one version+build and its
// resolved download filename.
type paperArtifact struct {
	client   *resty.Client
	version  version.Version
	fileName string
}

func (a *paperArtifact) Version() version.Version {
	return a.version
}

func (a *paperArtifact) DownloadTo(ctx context.Context, destPath string) error {
	url := fmt.Sprintf("/versions/%s/builds/%d/downloads/%s", a.version.Core(), *a.version.Build, a.fileName)

	out, err := os.Create(destPath)
	if err != nil {
		return wrapErr("create download destination", err)
	}
	defer out.Close()

	resp, err := a.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return wrapErr("download artifact", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return wrapErr(fmt.Sprintf("download artifact: HTTP %d", resp.StatusCode()), nil)
	}

	if _, err := io.Copy(out, body); err != nil {
		return wrapErr("write downloaded artifact", err)
	}
	return nil
}
