package cnst

// Remote API paths, relative to the server base URL.
const (
	// PathAPIBase is the unversioned endpoint listing supported API versions.
	PathAPIBase = "/api/"
	// PathLogin is the token-issuing login endpoint.
	PathLogin = "/api/v0/login"
	// PathLogout invalidates the current session token.
	PathLogout = "/api/v0/logout"
	// PathProjects lists top-level projects.
	PathProjects = "/api/v0/m/projects/"
	// PathProjectDatasets lists the datasets of one project (fmt: project id).
	PathProjectDatasets = "/api/v0/m/projects/%d/datasets/"
	// PathDatasetImages lists the images of one dataset (fmt: dataset id).
	PathDatasetImages = "/api/v0/m/datasets/%d/images/"
	// PathOrphanedImages lists images that belong to no dataset.
	PathOrphanedImages = "/api/v0/m/images/orphaned/"
	// PathImage returns the metadata of one image (fmt: image id).
	PathImage = "/api/v0/m/images/%d"
	// PathRenderTile serves one lossy-compressed tile
	// (fmt: image id, level, x, y).
	PathRenderTile = "/webclient/render_tile/%d/%d/%d/%d"
)

// SupportedAPIVersion is the remote API version this client speaks.
const SupportedAPIVersion = "v0"
