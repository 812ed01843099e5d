package backend

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Options configures the mock image repository server.
type Options struct {
	// Secret signs session tokens. A default is used when empty.
	Secret []byte
	// Users maps usernames to passwords accepted by the login endpoint.
	Users map[string]string
	// Fixture is the repository content. DefaultFixture is used when nil.
	Fixture *Fixture
	// TokenTTL bounds session token validity.
	TokenTTL time.Duration
}

// Server is an in-memory image repository speaking the JSON API, the
// webclient tile endpoint, the raw gateway endpoint and the buffer
// service endpoints, so every client backend can be exercised against
// a single process.
type Server struct {
	logger  *zap.Logger
	engine  *gin.Engine
	secret  []byte
	users   map[string]string
	fixture *Fixture
	ttl     time.Duration
}

type tokenClaims struct {
	UserID  int64 `json:"uid"`
	GroupID int64 `json:"gid"`
	jwt.RegisteredClaims
}

// NewServer builds the server and registers all routes.
func NewServer(logger *zap.Logger, opts Options) *Server {
	if len(opts.Secret) == 0 {
		opts.Secret = []byte("mock-imgserver-secret")
	}
	if opts.Users == nil {
		opts.Users = map[string]string{"root": "password"}
	}
	if opts.Fixture == nil {
		opts.Fixture = DefaultFixture()
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = time.Hour
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		logger:  logger,
		engine:  gin.New(),
		secret:  opts.Secret,
		users:   opts.Users,
		fixture: opts.Fixture,
		ttl:     opts.TokenTTL,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.engine
	r.Use(gin.Recovery())

	r.GET("/api/", s.handleVersions)
	r.POST("/api/v0/login", s.handleLogin)
	r.POST("/api/v0/logout", s.requireToken, s.handleLogout)

	m := r.Group("/api/v0/m", s.checkToken)
	m.GET("/projects/", s.handleProjects)
	m.GET("/projects/:id/datasets/", s.handleDatasets)
	m.GET("/datasets/:id/images/", s.handleImages)
	m.GET("/images/orphaned/", s.handleOrphaned)
	m.GET("/images/:id", s.handleImage)

	r.GET("/webclient/render_tile/:id/:level/:x/:y", s.handleRenderTile)

	r.GET("/gateway/raw/:id/:level/:x/:y", s.requireToken, s.handleRawTile)

	r.GET("/status", s.handleStatus)
	r.GET("/tile/:id/:level/:x/:y", s.handleRawTile)
}

// Handler exposes the router, mostly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving on addr.
func (s *Server) Start(addr string) error {
	s.logger.Info("mock image server listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

func (s *Server) signToken(username string, userID, groupID int64) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID:  userID,
		GroupID: groupID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseToken(c *gin.Context) (*tokenClaims, bool) {
	auth := c.GetHeader("Authorization")
	if len(auth) <= len("Bearer ") || auth[:len("Bearer ")] != "Bearer " {
		return nil, false
	}
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(auth[len("Bearer "):], claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, false
	}
	return claims, true
}

// checkToken rejects requests carrying a token that fails validation.
// Anonymous requests pass through, matching a public-read repository.
func (s *Server) checkToken(c *gin.Context) {
	if c.GetHeader("Authorization") == "" {
		return
	}
	if _, ok := s.parseToken(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
	}
}

func (s *Server) requireToken(c *gin.Context) {
	if _, ok := s.parseToken(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleVersions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": []gin.H{{"version": "v0"}}})
}

func (s *Server) handleLogin(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	want, ok := s.users[username]
	if !ok || want != password {
		s.logger.Warn("login rejected", zap.String("username", username))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	userID, groupID := userIdentity(username)
	token, err := s.signToken(username, userID, groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":   userID,
		"userName": username,
		"groupId":  groupID,
		"token":    token,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

// userIdentity derives a stable user and group id from a username.
func userIdentity(username string) (int64, int64) {
	var h int64
	for _, r := range username {
		h = h*31 + int64(r)
	}
	if h < 0 {
		h = -h
	}
	return h%1000 + 1, 3
}

func recordJSON(id int64, name string, owner, group int64, childCount int) gin.H {
	return gin.H{
		"id":         id,
		"name":       name,
		"ownerId":    owner,
		"groupId":    group,
		"childCount": childCount,
	}
}

func imageJSON(img Image) gin.H {
	return gin.H{
		"id":         img.ID,
		"name":       img.Name,
		"ownerId":    img.OwnerID,
		"groupId":    img.GroupID,
		"datasetId":  img.DatasetID,
		"pixelType":  img.PixelType,
		"channels":   img.Channels,
		"width":      img.Width,
		"height":     img.Height,
		"tileWidth":  img.TileWidth,
		"tileHeight": img.TileHeight,
		"levels":     img.Levels,
		"zSize":      img.ZSize,
		"tSize":      img.TSize,
	}
}

func (s *Server) handleProjects(c *gin.Context) {
	out := make([]gin.H, 0, len(s.fixture.Projects))
	for _, p := range s.fixture.Projects {
		out = append(out, recordJSON(p.ID, p.Name, p.OwnerID, p.GroupID, len(p.Datasets)))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) handleDatasets(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad project id"})
		return
	}
	for _, p := range s.fixture.Projects {
		if p.ID != id {
			continue
		}
		out := make([]gin.H, 0, len(p.Datasets))
		for _, d := range p.Datasets {
			out = append(out, recordJSON(d.ID, d.Name, d.OwnerID, d.GroupID, len(d.Images)))
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
}

func (s *Server) handleImages(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad dataset id"})
		return
	}
	for _, p := range s.fixture.Projects {
		for _, d := range p.Datasets {
			if d.ID != id {
				continue
			}
			out := make([]gin.H, 0, len(d.Images))
			for _, img := range d.Images {
				out = append(out, imageJSON(img))
			}
			c.JSON(http.StatusOK, gin.H{"data": out})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
}

func (s *Server) handleOrphaned(c *gin.Context) {
	out := make([]gin.H, 0, len(s.fixture.Orphaned))
	for _, img := range s.fixture.Orphaned {
		out = append(out, imageJSON(img))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) handleImage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad image id"})
		return
	}
	img, ok := s.fixture.FindImage(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": imageJSON(img)})
}

type tileCoords struct {
	img   Image
	level int
	x, y  int
	z, t  int
	ch    int
}

func (s *Server) parseTileCoords(c *gin.Context) (tileCoords, bool) {
	var tc tileCoords
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad image id"})
		return tc, false
	}
	img, ok := s.fixture.FindImage(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return tc, false
	}
	tc.img = img
	tc.level, _ = strconv.Atoi(c.Param("level"))
	tc.x, _ = strconv.Atoi(c.Param("x"))
	tc.y, _ = strconv.Atoi(c.Param("y"))
	tc.z, _ = strconv.Atoi(c.DefaultQuery("z", "0"))
	tc.t, _ = strconv.Atoi(c.DefaultQuery("t", "0"))
	tc.ch, _ = strconv.Atoi(c.DefaultQuery("c", "0"))
	if tc.level < 0 || tc.level >= img.Levels || tc.x < 0 || tc.y < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile out of range"})
		return tc, false
	}
	return tc, true
}

// tileSize clamps the tile extent at the right and bottom image edges.
func tileSize(img Image, level, x, y int) (int, int) {
	w, h := img.Width>>level, img.Height>>level
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	tw := img.TileWidth
	if rem := w - x*img.TileWidth; rem < tw {
		tw = rem
	}
	th := img.TileHeight
	if rem := h - y*img.TileHeight; rem < th {
		th = rem
	}
	return tw, th
}

func (s *Server) handleRenderTile(c *gin.Context) {
	tc, ok := s.parseTileCoords(c)
	if !ok {
		return
	}
	tw, th := tileSize(tc.img, tc.level, tc.x, tc.y)
	if tw <= 0 || th <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile out of range"})
		return
	}
	quality := 90
	if q, err := strconv.ParseFloat(c.Query("q"), 64); err == nil && q > 0 && q <= 1 {
		quality = int(q * 100)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, tw, th))
	for py := 0; py < th; py++ {
		for px := 0; px < tw; px++ {
			rgba.Set(px, py, color.RGBA{
				R: sampleValue(tc.img.ID, tc.level, tc.x, tc.y, px, py, 0),
				G: sampleValue(tc.img.ID, tc.level, tc.x, tc.y, px, py, 1),
				B: sampleValue(tc.img.ID, tc.level, tc.x, tc.y, px, py, 2),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: quality}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

func (s *Server) handleRawTile(c *gin.Context) {
	tc, ok := s.parseTileCoords(c)
	if !ok {
		return
	}
	tw, th := tileSize(tc.img, tc.level, tc.x, tc.y)
	if tw <= 0 || th <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile out of range"})
		return
	}
	bps := bytesPerSample(tc.img.PixelType)
	data := make([]byte, tw*th*bps)
	for i := range data {
		data[i] = sampleValue(tc.img.ID, tc.level, tc.x, tc.y, i%tw, i/(tw*bps), tc.ch)
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func bytesPerSample(pixelType string) int {
	switch pixelType {
	case "uint16", "int16":
		return 2
	case "uint32", "int32", "float":
		return 4
	case "double":
		return 8
	default:
		return 1
	}
}

// sampleValue is a deterministic pattern so tests can predict tile content.
func sampleValue(id int64, level, tx, ty, px, py, ch int) uint8 {
	return uint8(int(id) + level*7 + tx*13 + ty*17 + px + py + ch*29)
}
