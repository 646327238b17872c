package command

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/metastore-go/internal/cli/output"
	"github.com/yndnr/metastore-go/internal/infra/buildinfo"
	"github.com/yndnr/metastore-go/internal/server/httpserver/handler"
	"github.com/yndnr/metastore-go/internal/storage/walindex"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show server status summary",
		Action: systemStatus,
	}
}

// HealthCommand returns the health command.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ready", Usage: "Check readiness instead of liveness"},
		},
		Action: systemHealth,
	}
}

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show client and server versions",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "client", Usage: "Only show the client version"},
		},
		Action: systemVersion,
	}
}

// CheckpointCommand returns the checkpoint command.
func CheckpointCommand() *cli.Command {
	return &cli.Command{
		Name:   "checkpoint",
		Usage:  "Dump live rows to a fresh WAL segment and rebuild the index",
		Action: systemCheckpoint,
	}
}

type statusView handler.StatusResponse

func (v statusView) Table(wide bool) *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("Status", v.Status)
	t.AddRow("Version", v.Version)
	t.AddRow("Uptime", v.Uptime)
	t.AddRow("Tables", strconv.Itoa(v.Tables))
	t.AddRow("Rows", strconv.Itoa(v.Rows))
	t.AddRow("WAL Version", strconv.FormatUint(v.WALVersion, 10))
	if wide {
		t.AddRow("WAL Size", output.FormatBytes(v.WALBytes))
		t.AddRow("WAL Segments", strconv.Itoa(v.WALSegments))
	}
	return t
}

func systemStatus(c *cli.Context) error {
	var st handler.StatusResponse
	if err := fetch(c, http.MethodGet, "/admin/v1/status/summary", nil, &st); err != nil {
		return err
	}
	return printResult(c, statusView(st))
}

func systemHealth(c *cli.Context) error {
	path := "/health"
	if c.Bool("ready") {
		path = "/ready"
	}

	var result struct {
		Status string `json:"status"`
		Time   string `json:"time"`
	}
	if err := fetch(c, http.MethodGet, path, nil, &result); err != nil {
		return fmt.Errorf("server unhealthy: %w", err)
	}

	if GetSettings(c).Format == output.FormatTable {
		fmt.Fprintf(stdout(c), "Server is %s\n", result.Status)
		return nil
	}
	return printResult(c, result)
}

type versionView struct {
	Client buildinfo.Info  `json:"client"`
	Server *buildinfo.Info `json:"server,omitempty"`
}

func (v versionView) Table(bool) *output.Table {
	t := output.NewTable("COMPONENT", "VERSION", "COMMIT", "BUILT", "GO")
	add := func(name string, i buildinfo.Info) {
		t.AddRow(name, i.Version, i.Commit, i.BuildTime, i.GoVersion)
	}
	add("client", v.Client)
	if v.Server != nil {
		add("server", *v.Server)
	}
	return t
}

func systemVersion(c *cli.Context) error {
	view := versionView{Client: buildinfo.Get()}
	if !c.Bool("client") {
		var server buildinfo.Info
		if err := fetch(c, http.MethodGet, "/admin/v1/version", nil, &server); err != nil {
			return err
		}
		view.Server = &server
	}
	return printResult(c, view)
}

// checkpointResult is the checkpoint response data.
type checkpointResult struct {
	Index       *walindex.BuildResult `json:"index"`
	ElapsedMS   int64                 `json:"elapsed_ms"`
	TriggeredAt string                `json:"triggered_at"`
}

func (r *checkpointResult) Table(bool) *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("Triggered", r.TriggeredAt)
	t.AddRow("Elapsed", fmt.Sprintf("%dms", r.ElapsedMS))
	if r.Index == nil {
		t.AddRow("Index", "disabled")
		return t
	}
	t.AddRow("Index", r.Index.ID)
	t.AddRow("Segment", r.Index.Segment)
	t.AddRow("Entries", strconv.Itoa(r.Index.Entries))
	t.AddRow("Bytes", output.FormatBytes(int64(r.Index.Bytes)))
	t.AddRow("Max Version", strconv.FormatUint(r.Index.MaxVersion, 10))
	return t
}

func systemCheckpoint(c *cli.Context) error {
	var res checkpointResult
	if err := fetch(c, http.MethodPost, "/admin/v1/index/checkpoint", nil, &res); err != nil {
		return err
	}
	return printResult(c, &res)
}
