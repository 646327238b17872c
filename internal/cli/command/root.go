package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/metastore-go/internal/cli/config"
	"github.com/yndnr/metastore-go/internal/cli/connection"
	"github.com/yndnr/metastore-go/internal/cli/output"
	"github.com/yndnr/metastore-go/internal/infra/buildinfo"
	"github.com/yndnr/metastore-go/pkg/crypto/adaptive"
)

const settingsKey = "settings"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "metastore-cli",
		Usage:   "metastore command-line management tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			RowCommand(),
			IndexCommand(),
			WALCommand(),
			CheckpointCommand(),
			StatusCommand(),
			HealthCommand(),
			VersionCommand(),
		},
		Before:   loadSettings,
		Metadata: map[string]any{},
	}
}

// globalFlags returns the global CLI flags. Unset flags fall back to
// the CLI config file and METASTORE_CLI_* environment variables.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "CLI config file (default ~/.metastore/cli.yaml)",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "metastore-server address (e.g., 127.0.0.1:5080)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
		},
		&cli.StringFlag{
			Name:  "ca-cert",
			Usage: "CA certificate file or directory for HTTPS servers",
		},
		&cli.StringFlag{
			Name:  "client-cert",
			Usage: "Client certificate for mutual TLS",
		},
		&cli.StringFlag{
			Name:  "client-key",
			Usage: "Client private key for mutual TLS",
		},
	}
}

// Settings is the resolved CLI configuration of one invocation.
type Settings struct {
	Config *config.CLIConfig
	Format output.Format
	Wide   bool
}

// loadSettings merges the config file, environment and flags.
func loadSettings(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	if c.IsSet("server") {
		cfg.Server = c.String("server")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if c.IsSet("ca-cert") {
		cfg.CACertFile = c.String("ca-cert")
	}
	if c.IsSet("client-cert") {
		cfg.ClientCertFile = c.String("client-cert")
	}
	if c.IsSet("client-key") {
		cfg.ClientKeyFile = c.String("client-key")
	}

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}

	c.App.Metadata[settingsKey] = &Settings{
		Config: cfg,
		Format: format,
		Wide:   c.Bool("wide"),
	}
	return nil
}

// GetSettings retrieves the resolved settings from context.
func GetSettings(c *cli.Context) *Settings {
	if s, ok := c.App.Metadata[settingsKey].(*Settings); ok {
		return s
	}
	return &Settings{Config: config.Default(), Format: output.FormatTable}
}

// newClient creates the HTTP client for remote commands.
func newClient(c *cli.Context) (*connection.HTTPClient, error) {
	cfg := GetSettings(c).Config
	if cfg.Server == "" {
		return nil, errors.New("no server configured (use --server)")
	}
	return connection.NewHTTPClient(cfg.Server, connection.Options{
		Timeout:        cfg.Timeout,
		CACertFile:     cfg.CACertFile,
		ClientCertFile: cfg.ClientCertFile,
		ClientKeyFile:  cfg.ClientKeyFile,
	})
}

// requestContext bounds a remote call by the configured timeout.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	timeout := GetSettings(c).Config.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	return context.WithTimeout(c.Context, timeout)
}

// fetch performs a request and decodes the response data into target.
func fetch(c *cli.Context, method, path string, body, target any) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Do(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return connection.ParseResponse(resp, target)
}

// printResult writes data in the selected output format.
func printResult(c *cli.Context, data any) error {
	s := GetSettings(c)
	return output.NewFormatter(s.Format, s.Wide).Format(stdout(c), data)
}

// encryptionCipher builds the WAL cipher for offline commands from the
// --encryption-key flag or the config file. A nil cipher means the WAL
// is stored in plaintext.
func encryptionCipher(c *cli.Context) (adaptive.Cipher, error) {
	key := GetSettings(c).Config.EncryptionKey
	if c.IsSet("encryption-key") {
		key = c.String("encryption-key")
	}
	if key == "" {
		return nil, nil
	}
	raw, err := adaptive.ParseKey(key)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	return adaptive.New(raw)
}

func encryptionKeyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "encryption-key",
		Usage: "WAL encryption key (hex or base64)",
	}
}

func stdout(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func stderr(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
