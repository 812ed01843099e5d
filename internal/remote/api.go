// Package remote speaks the image repository's JSON API: version probing,
// login, entity listings and image metadata. It is deliberately tolerant of
// schema drift between server releases, which is why responses are picked
// apart with gjson instead of rigid struct decoding.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/axonlab/mirador/internal/common/cnst"
	"github.com/axonlab/mirador/internal/common/errorx"
	"github.com/axonlab/mirador/internal/transport"
)

// TokenFunc supplies the current session token for request authorization.
// It returns the empty string while the session is unauthenticated.
type TokenFunc func() string

// API is a client for one server's HTTP API.
type API struct {
	logger *zap.Logger
	http   transport.Client
	base   *url.URL
	token  TokenFunc
}

// NewAPI creates an API client rooted at baseURL.
func NewAPI(logger *zap.Logger, client transport.Client, baseURL string, token TokenFunc) (*API, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q has no scheme or host", baseURL)
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &API{
		logger: logger.Named("remote.api"),
		http:   client,
		base:   u,
		token:  token,
	}, nil
}

// BaseURL returns the normalized server base URL.
func (a *API) BaseURL() string {
	return a.base.String()
}

func (a *API) endpoint(path string, args ...any) string {
	if len(args) > 0 {
		path = fmt.Sprintf(path, args...)
	}
	return a.base.String() + path
}

// CheckCompatibility probes the version listing endpoint and verifies the
// server speaks the API version this client supports.
func (a *API) CheckCompatibility(ctx context.Context) error {
	body, err := a.http.Get(ctx, a.endpoint(cnst.PathAPIBase), nil, "")
	if err != nil {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) {
			return fmt.Errorf("%w: version endpoint returned status %d",
				errorx.ErrIncompatibleServer, statusErr.Code)
		}
		if errors.Is(err, errorx.ErrUnreachableServer) {
			return err
		}
		return errors.Join(errorx.ErrUnreachableServer, err)
	}

	versions := gjson.GetBytes(body, "data.#.version")
	for _, v := range versions.Array() {
		if v.String() == cnst.SupportedAPIVersion {
			return nil
		}
	}
	return fmt.Errorf("%w: server does not expose API %s",
		errorx.ErrIncompatibleServer, cnst.SupportedAPIVersion)
}

// Login exchanges credentials for a session token. A response missing any of
// the expected fields is reported as an authentication failure, not a crash.
func (a *API) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	body, err := a.http.PostForm(ctx, a.endpoint(cnst.PathLogin), form, "")
	if err != nil {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) || errors.Is(err, errorx.ErrSessionTokenInvalid) {
			return nil, fmt.Errorf("%w: server rejected credentials", errorx.ErrAuthenticationFailed)
		}
		return nil, err
	}

	res := &LoginResult{
		UserID:   gjson.GetBytes(body, "userId").Int(),
		Username: gjson.GetBytes(body, "userName").String(),
		GroupID:  gjson.GetBytes(body, "groupId").Int(),
		Token:    gjson.GetBytes(body, "token").String(),
	}
	if res.Token == "" || res.Username == "" {
		a.logger.Warn("malformed login response", zap.Int("bytes", len(body)))
		return nil, fmt.Errorf("%w: malformed login response", errorx.ErrAuthenticationFailed)
	}
	return res, nil
}

// Logout invalidates the current session token server-side. A token the
// server no longer recognizes is not an error here.
func (a *API) Logout(ctx context.Context) error {
	_, err := a.http.PostForm(ctx, a.endpoint(cnst.PathLogout), nil, a.token())
	if err != nil && !errors.Is(err, errorx.ErrSessionTokenInvalid) {
		return err
	}
	return nil
}

// Projects lists the server's top-level projects.
func (a *API) Projects(ctx context.Context) ([]Record, error) {
	return a.listRecords(ctx, a.endpoint(cnst.PathProjects))
}

// Datasets lists the datasets of one project.
func (a *API) Datasets(ctx context.Context, projectID int64) ([]Record, error) {
	return a.listRecords(ctx, a.endpoint(cnst.PathProjectDatasets, projectID))
}

// Images lists the images of one dataset.
func (a *API) Images(ctx context.Context, datasetID int64) ([]ImageRecord, error) {
	return a.listImages(ctx, a.endpoint(cnst.PathDatasetImages, datasetID))
}

// OrphanedImages lists every image that belongs to no dataset.
func (a *API) OrphanedImages(ctx context.Context) ([]ImageRecord, error) {
	return a.listImages(ctx, a.endpoint(cnst.PathOrphanedImages))
}

// Image fetches the metadata of a single image.
func (a *API) Image(ctx context.Context, id int64) (*ImageRecord, error) {
	body, err := a.http.Get(ctx, a.endpoint(cnst.PathImage, id), nil, a.token())
	if err != nil {
		return nil, fmt.Errorf("%w: image %d: %w", errorx.ErrListingFetchFailed, id, err)
	}
	rec := parseImage(gjson.GetBytes(body, "data"))
	return &rec, nil
}

// RenderTile fetches one lossy-compressed tile from the web rendering
// endpoint. quality must already be validated by the caller.
func (a *API) RenderTile(ctx context.Context, imageID int64, level, x, y int, quality float64) ([]byte, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("%.2f", quality))
	return a.http.Get(ctx, a.endpoint(cnst.PathRenderTile, imageID, level, x, y), params, a.token())
}

func (a *API) listRecords(ctx context.Context, endpoint string) ([]Record, error) {
	body, err := a.http.Get(ctx, endpoint, nil, a.token())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errorx.ErrListingFetchFailed, err)
	}

	var out []Record
	for _, item := range gjson.GetBytes(body, "data").Array() {
		out = append(out, parseRecord(item))
	}
	return out, nil
}

func (a *API) listImages(ctx context.Context, endpoint string) ([]ImageRecord, error) {
	body, err := a.http.Get(ctx, endpoint, nil, a.token())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errorx.ErrListingFetchFailed, err)
	}

	var out []ImageRecord
	for _, item := range gjson.GetBytes(body, "data").Array() {
		out = append(out, parseImage(item))
	}
	return out, nil
}

func parseRecord(item gjson.Result) Record {
	return Record{
		ID:         item.Get("id").Int(),
		Name:       item.Get("name").String(),
		OwnerID:    item.Get("ownerId").Int(),
		GroupID:    item.Get("groupId").Int(),
		ChildCount: int(item.Get("childCount").Int()),
	}
}

func parseImage(item gjson.Result) ImageRecord {
	rec := ImageRecord{
		Record:          parseRecord(item),
		DatasetID:       item.Get("datasetId").Int(),
		PixelType:       cnst.PixelType(item.Get("pixelType").String()),
		Channels:        int(item.Get("channels").Int()),
		Width:           int(item.Get("width").Int()),
		Height:          int(item.Get("height").Int()),
		TileWidth:       int(item.Get("tileWidth").Int()),
		TileHeight:      int(item.Get("tileHeight").Int()),
		ResolutionCount: int(item.Get("levels").Int()),
		ZSize:           int(item.Get("zSize").Int()),
		TSize:           int(item.Get("tSize").Int()),
	}
	if rec.TileWidth == 0 {
		rec.TileWidth = cnst.DefaultTileWidth
	}
	if rec.TileHeight == 0 {
		rec.TileHeight = cnst.DefaultTileHeight
	}
	if rec.ResolutionCount == 0 {
		rec.ResolutionCount = 1
	}
	if rec.ZSize == 0 {
		rec.ZSize = 1
	}
	if rec.TSize == 0 {
		rec.TSize = 1
	}
	return rec
}
