package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/axonlab/mirador/internal/catalog"
	"github.com/axonlab/mirador/internal/common/cnst"
	"github.com/axonlab/mirador/internal/common/config"
	"github.com/axonlab/mirador/internal/pixel"
	"github.com/axonlab/mirador/internal/prefs"
	"github.com/axonlab/mirador/internal/session"
	"github.com/axonlab/mirador/pkg/logger"
	"github.com/axonlab/mirador/pkg/version"
	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
	username   string
	password   string

	tileLevel   int
	tileX       int
	tileY       int
	tileZ       int
	tileT       int
	tileC       int
	tileBackend string
	tileOut     string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Image server URL")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "Username for login")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "Password for login")

	tileCmd.Flags().IntVar(&tileLevel, "level", 0, "Resolution level, 0 is full resolution")
	tileCmd.Flags().IntVar(&tileX, "x", 0, "Tile column")
	tileCmd.Flags().IntVar(&tileY, "y", 0, "Tile row")
	tileCmd.Flags().IntVar(&tileZ, "z", 0, "Z plane")
	tileCmd.Flags().IntVar(&tileT, "t", 0, "Time point")
	tileCmd.Flags().IntVar(&tileC, "ch", 0, "Channel")
	tileCmd.Flags().StringVar(&tileBackend, "backend", string(pixel.KindWebTile), "Pixel backend: web, gateway or buffer")
	tileCmd.Flags().StringVarP(&tileOut, "out", "o", "tile.png", "Output file")

	rootCmd.AddCommand(versionCmd, treeCmd, tileCmd)
}

var (
	rootCmd = &cobra.Command{
		Use:   "mirador",
		Short: "Image Repository Client",
		Long:  `Mirador browses remote image repositories and fetches tiles through pluggable pixel backends`,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mirador",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mirador version %s\n", version.Get())
		},
	}

	treeCmd = &cobra.Command{
		Use:   "tree",
		Short: "Print the project hierarchy of a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), runTree)
		},
	}

	tileCmd = &cobra.Command{
		Use:   "tile <image-id>",
		Short: "Fetch one tile of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var imageID int64
			if _, err := fmt.Sscanf(args[0], "%d", &imageID); err != nil {
				return fmt.Errorf("bad image id %q: %w", args[0], err)
			}
			return withSession(cmd.Context(), func(ctx context.Context, sess *session.Session) error {
				return runTile(ctx, sess, imageID)
			})
		},
	}
)

// withSession loads configuration, resolves the target server, opens a
// session and hands it to fn, tearing everything down afterwards.
func withSession(ctx context.Context, fn func(context.Context, *session.Session) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	zl, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	store, err := prefs.NewSQLiteStore(zl, cfg.Prefs.Path)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer store.Close()

	target := serverURL
	if target == "" {
		if target, err = store.LastServer(ctx); err != nil || target == "" {
			return fmt.Errorf("no server given and no previous server remembered")
		}
	}
	user := username
	if user == "" {
		user, _ = store.LastUsername(ctx, target)
	}

	registry := session.NewRegistry(zl, cfg)
	defer registry.Close()

	var creds *session.Credentials
	if user != "" && password != "" {
		creds = &session.Credentials{Username: user, Password: password}
	}
	sess, err := registry.GetOrCreate(ctx, target, creds)
	if err != nil {
		return err
	}
	if err := store.Remember(ctx, sess.ServerURL(), sess.Username()); err != nil {
		zl.Warn("remember server failed", zap.Error(err))
	}
	return fn(ctx, sess)
}

func runTree(ctx context.Context, sess *session.Session) error {
	fmt.Println(sess.ServerURL())
	return printChildren(ctx, sess.Root(), "  ")
}

func printChildren(ctx context.Context, e *catalog.Entity, indent string) error {
	children, err := e.GetChildren().Await(ctx)
	if err != nil {
		return err
	}
	for _, child := range children {
		fmt.Printf("%s%s %q (id=%d)\n", indent, child.Kind, child.Name, child.ID)
		if child.Kind == catalog.KindImage {
			continue
		}
		if err := printChildren(ctx, child, indent+"  "); err != nil {
			return err
		}
	}
	return nil
}

func runTile(ctx context.Context, sess *session.Session, imageID int64) error {
	meta, err := sess.Metadata().ImageMeta(ctx, imageID)
	if err != nil {
		return fmt.Errorf("image metadata: %w", err)
	}
	api := sess.PixelAPI(pixel.Kind(tileBackend))
	if api == nil {
		return fmt.Errorf("unknown pixel backend %q", tileBackend)
	}
	reader, err := sess.NewReader(ctx, api, meta, pixel.ReaderOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	tile, err := reader.ReadTile(ctx, pixel.TileRequest{
		Level: tileLevel, X: tileX, Y: tileY, Z: tileZ, T: tileT, C: tileC,
	})
	if err != nil {
		return err
	}
	sess.AddOpenedImage(imageID)
	return writeTile(tile)
}

// writeTile encodes 8-bit RGB tiles as PNG and dumps anything else raw.
func writeTile(tile *pixel.Tile) error {
	f, err := os.Create(tileOut)
	if err != nil {
		return err
	}
	defer f.Close()

	if tile.PixelType != cnst.PixelTypeUint8 || tile.Channels != 3 {
		_, err = f.Write(tile.Data)
		return err
	}
	rgba := image.NewRGBA(image.Rect(0, 0, tile.Width, tile.Height))
	for y := 0; y < tile.Height; y++ {
		for x := 0; x < tile.Width; x++ {
			off := (y*tile.Width + x) * 3
			rgba.Set(x, y, color.RGBA{
				R: tile.Data[off], G: tile.Data[off+1], B: tile.Data[off+2], A: 255,
			})
		}
	}
	return png.Encode(f, rgba)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
