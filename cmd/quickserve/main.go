// Command quickserve serves a directory over HTTP: browsing, archive
// download, upload, mkdir, delete and an optional WebDAV overlay, all from
// a single static binary.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quickserve/quickserve/internal/apperror"
	"github.com/quickserve/quickserve/internal/config"
	"github.com/quickserve/quickserve/internal/dirsize"
	"github.com/quickserve/quickserve/internal/render"
	"github.com/quickserve/quickserve/internal/sse"
	"github.com/quickserve/quickserve/internal/webdavfs"
	"github.com/quickserve/quickserve/internal/webserver"
)

var (
	flagInterfaces   []string
	flagPort         uint16
	flagIndex        string
	flagSPA          bool
	flagPrettyURLs   bool
	flagRoutePrefix  string
	flagRandomRoute  bool
	flagDisableIndex bool
	flagHidden       bool
	flagNoSymlinks   bool
	flagTar          bool
	flagTarGz        bool
	flagZip          bool
	flagUpload       bool
	flagUploadDirs   []string
	flagMkdir        bool
	flagOverwrite    bool
	flagDelete       bool
	flagDeleteDirs   []string
	flagWebDAV       bool
	flagCompress     bool
	flagDirsFirst    bool
	flagSort         string
	flagOrder        string
	flagTheme        string
	flagTLSCert      string
	flagTLSKey       string
	flagAuth         []string
	flagAuthFile     string
	flagTitle        string
	flagMediaType    string
	flagMediaTypeRaw bool
	flagNoFooter     bool
	flagWgetFooter   bool
	flagReadme       bool
	flagQRCode       bool
	flagExactSize    bool
	flagVerbose      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "quickserve [path]",
	Short: "A simple, self-contained static file server",
	Args:  cobra.MaximumNArgs(1),
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringSliceVarP(&flagInterfaces, "interfaces", "i", []string{"127.0.0.1", "::1"}, "Interface(s) to listen on")
	flags.Uint16VarP(&flagPort, "port", "p", 8080, "Port to listen on")
	flags.StringVar(&flagIndex, "index", "", "Serve this file instead of a listing on directory access")
	flags.BoolVar(&flagSPA, "spa", false, "Fall back to index for any unresolved path, single-page-app style")
	flags.BoolVar(&flagPrettyURLs, "pretty-urls", false, "Resolve /foo to /foo.html when present")
	flags.StringVar(&flagRoutePrefix, "route-prefix", "", "Mount all routes under this path prefix")
	flags.BoolVar(&flagRandomRoute, "random-route", false, "Mount routes under a random, unguessable prefix")
	flags.BoolVar(&flagDisableIndex, "disable-indexing", false, "Serve individual files but refuse directory listings and archive downloads (404)")
	flags.BoolVarP(&flagHidden, "hidden", "H", false, "Show hidden files and directories")
	flags.BoolVar(&flagNoSymlinks, "no-symlinks", false, "Do not follow symlinks")
	flags.BoolVar(&flagTar, "enable-tar", false, "Enable .tar archive download")
	flags.BoolVar(&flagTarGz, "enable-tar-gz", false, "Enable .tar.gz archive download")
	flags.BoolVar(&flagZip, "enable-zip", false, "Enable .zip archive download")
	flags.BoolVarP(&flagUpload, "upload-files", "u", false, "Enable file upload")
	flags.StringSliceVar(&flagUploadDirs, "allowed-upload-dir", nil, "Restrict uploads to these directories")
	flags.BoolVar(&flagMkdir, "mkdir", false, "Enable directory creation via upload")
	flags.BoolVar(&flagOverwrite, "overwrite-files", false, "Allow uploads to overwrite existing files")
	flags.BoolVarP(&flagDelete, "allow-delete", "d", false, "Enable file and directory deletion")
	flags.StringSliceVar(&flagDeleteDirs, "allowed-delete-dir", nil, "Restrict deletion to these directories")
	flags.BoolVar(&flagWebDAV, "webdav", false, "Mount a WebDAV endpoint alongside the HTTP listing")
	flags.BoolVar(&flagCompress, "compress-responses", false, "gzip listing and file responses")
	flags.BoolVar(&flagDirsFirst, "dirs-first", true, "Sort directories before files")
	flags.StringVar(&flagSort, "default-sort", "name", "Default sort key: name, size or date")
	flags.StringVar(&flagOrder, "default-order", "asc", "Default sort order: asc or desc")
	flags.StringVar(&flagTheme, "theme", "squindo", "Color theme")
	flags.StringVar(&flagTLSCert, "tls-cert", "", "Path to a PEM TLS certificate (enables HTTPS together with --tls-key)")
	flags.StringVar(&flagTLSKey, "tls-key", "", "Path to the PEM private key matching --tls-cert")
	flags.StringSliceVar(&flagAuth, "auth", nil, "user:password (or user:sha256:HEX / user:sha512:HEX), repeatable")
	flags.StringVar(&flagAuthFile, "auth-file", "", "Load additional accounts from this file, one per line")
	flags.StringVar(&flagTitle, "title", "", "Page title override")
	flags.StringVar(&flagMediaType, "media-type", "", "Restrict the upload file picker to this MIME type")
	flags.BoolVar(&flagMediaTypeRaw, "media-type-raw", false, "No effect: the value is stored in the config but no handler reads it")
	flags.BoolVar(&flagNoFooter, "no-footer", false, "Hide the page footer")
	flags.BoolVar(&flagWgetFooter, "show-wget-footer", false, "Show a wget recursive-download hint on the listing page")
	flags.BoolVar(&flagReadme, "readme", false, "Render a README found in the listed directory")
	flags.BoolVar(&flagQRCode, "qrcode", false, "Request a QR-code block on listing pages (the built-in encoder produces none, so nothing is shown)")
	flags.BoolVar(&flagExactSize, "exact-size", false, "Broadcast directory sizes as exact byte counts")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(completionsCmd)
}

var completionsCmd = &cobra.Command{
	Use:    "print-completions [bash|zsh|fish|powershell]",
	Hidden: false,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletion(os.Stdout)
		default:
			return fmt.Errorf("unknown shell %q", args[0])
		}
	},
}

func run(cmd *cobra.Command, args []string) error {
	explicitPath := len(args) == 1
	if !explicitPath && !term.IsTerminal(int(os.Stdout.Fd())) {
		// Refuse to silently default to the current directory when invoked
		// non-interactively (e.g. as a service with a forgotten path arg),
		// since that could end up serving something unintended like / or
		// $HOME. Interactive invocations still get the "." default.
		return apperror.New(apperror.NoExplicitPathAndNoTerminal, "")
	}

	servedPath := "."
	if explicitPath {
		servedPath = args[0]
	}
	absPath, err := filepath.Abs(servedPath)
	if err != nil {
		return fmt.Errorf("resolving served path: %w", err)
	}

	cfg, err := buildConfig(absPath)
	if err != nil {
		return err
	}

	logger := logrus.New()
	if flagVerbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Applies regardless of which protocol is mounted: a symlinked served
	// root is rejected up front whenever --no-symlinks is set.
	if err := webdavfs.ValidateServePath(cfg); err != nil {
		return fmt.Errorf("cannot serve %s: %w", cfg.ServedRoot, err)
	}

	renderer, err := render.New()
	if err != nil {
		return err
	}
	renderer.Logger = logger

	broadcaster := sse.New(logger)
	defer broadcaster.Stop()
	dirSizeMgr := dirsize.New(broadcaster, logger, cfg.ExactSizeFormat)
	defer dirSizeMgr.Stop()

	srv := &webserver.Server{
		Config:      cfg,
		Renderer:    renderer,
		Broadcaster: broadcaster,
		DirSize:     dirSizeMgr,
		Logger:      logger,
	}
	handler := srv.New()

	tlsConfig, err := webserver.LoadTLSConfig(cfg)
	if err != nil {
		return fmt.Errorf("loading TLS assets: %w", err)
	}

	listeners, err := webserver.Listen(cfg)
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}

	logger.WithField("root", cfg.ServedRoot).WithField("port", cfg.Port).Info("quickserve starting")
	return webserver.Serve(listeners, handler, tlsConfig, logger)
}

func buildConfig(servedRoot string) (*config.Config, error) {
	cfg := config.Default()
	cfg.ServedRoot = servedRoot
	cfg.Interfaces = flagInterfaces
	cfg.Port = flagPort
	cfg.IndexName = flagIndex
	cfg.SPA = flagSPA
	cfg.PrettyURLs = flagPrettyURLs
	cfg.DisableIndexing = flagDisableIndex
	cfg.TLSCertFile = flagTLSCert
	cfg.TLSKeyFile = flagTLSKey
	cfg.HiddenVisible = flagHidden
	cfg.NoSymlinks = flagNoSymlinks
	cfg.TarEnabled = flagTar
	cfg.TarGzEnabled = flagTarGz
	cfg.ZipEnabled = flagZip
	cfg.UploadEnabled = flagUpload
	cfg.AllowedUploadDirs = flagUploadDirs
	cfg.MkdirEnabled = flagMkdir
	cfg.Overwrite = flagOverwrite
	cfg.DeleteEnabled = flagDelete
	cfg.AllowedDeleteDirs = flagDeleteDirs
	cfg.WebDAVEnabled = flagWebDAV
	cfg.CompressResponses = flagCompress
	cfg.DirsFirst = flagDirsFirst
	cfg.DefaultSort = config.SortMethod(flagSort)
	cfg.DefaultOrder = config.SortOrder(flagOrder)
	cfg.Theme = flagTheme
	cfg.Title = flagTitle
	cfg.MediaType = flagMediaType
	cfg.MediaTypeRaw = flagMediaTypeRaw
	cfg.ShowFooter = !flagNoFooter
	cfg.ShowWgetFooter = flagWgetFooter
	cfg.ShowReadme = flagReadme
	cfg.ShowQRCode = flagQRCode
	cfg.ExactSizeFormat = flagExactSize

	if flagRandomRoute {
		cfg.RoutePrefix = config.RandomRoutePrefix()
	} else {
		cfg.RoutePrefix = config.NormalizeRoutePrefix(flagRoutePrefix)
	}

	accounts, err := parseAccounts()
	if err != nil {
		return nil, err
	}
	cfg.Accounts = accounts

	return cfg, nil
}

func parseAccounts() ([]config.Account, error) {
	var accounts []config.Account
	for _, raw := range flagAuth {
		acct, err := config.ParseAuthString(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing --auth %q: %w", raw, err)
		}
		accounts = append(accounts, acct)
	}
	if flagAuthFile != "" {
		fileAccounts, err := config.LoadAuthFile(flagAuthFile)
		if err != nil {
			return nil, fmt.Errorf("loading --auth-file: %w", err)
		}
		accounts = append(accounts, fileAccounts...)
	}
	return accounts, nil
}
