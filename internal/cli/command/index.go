package command

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/metastore-go/internal/cli/connection"
	"github.com/yndnr/metastore-go/internal/cli/output"
	"github.com/yndnr/metastore-go/internal/core/domain"
	"github.com/yndnr/metastore-go/internal/storage"
	"github.com/yndnr/metastore-go/internal/storage/walindex"
)

// IndexCommand returns the index subcommand group.
func IndexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "WAL index management",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show the server's index state",
				Action: indexStatus,
			},
			{
				Name:  "download",
				Usage: "Download the server's index file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "Destination file", Value: walindex.FileName},
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
					&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Hide the progress bar"},
				},
				Action: indexDownload,
			},
			{
				Name:      "inspect",
				Usage:     "Decode a local index file",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "entries", Usage: "List every entry"},
					&cli.IntFlag{Name: "table", Usage: "Only show this table", Value: -1},
				},
				Action: indexInspect,
			},
			{
				Name:      "verify",
				Usage:     "Check every index entry against its WAL segment",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "tables", Usage: "Expected table count", Value: domain.MaxTables},
					encryptionKeyFlag(),
				},
				Action: indexVerify,
			},
			{
				Name:  "build",
				Usage: "Build an index over a WAL segment",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "wal-dir", Usage: "WAL segment directory", Required: true},
					&cli.StringFlag{Name: "segment", Usage: "Segment file name (default: newest)"},
					&cli.IntFlag{Name: "tables", Usage: "Table count", Value: domain.DefaultTableCount},
					&cli.StringFlag{Name: "out", Usage: "Index file (default: <wal-dir>/index)"},
					encryptionKeyFlag(),
				},
				Action: indexBuild,
			},
		},
	}
}

// indexStatusView renders storage.IndexStatus.
type indexStatusView storage.IndexStatus

func (v indexStatusView) Table(wide bool) *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("Enabled", strconv.FormatBool(v.Enabled))
	t.AddRow("Path", v.Path)
	t.AddRow("Present", strconv.FormatBool(v.Present))
	if v.Present {
		t.AddRow("Size", output.FormatBytes(v.SizeBytes))
	}
	if b := v.LastBuild; b != nil {
		t.AddRow("Last Build", b.ID)
		t.AddRow("Segment", b.Segment)
		t.AddRow("Entries", strconv.Itoa(b.Entries))
		t.AddRow("Max Version", strconv.FormatUint(b.MaxVersion, 10))
		if wide {
			t.AddRow("Max Offset", strconv.FormatInt(b.MaxOffset, 10))
			t.AddRow("Build Time", b.Duration.String())
		}
	}
	if v.LastError != "" {
		t.AddRow("Last Error", v.LastError)
	}
	if r := v.Recovery; r != nil {
		t.AddRow("Recovery", r.Mode)
		if r.Fallback != "" {
			t.AddRow("Fallback", r.Fallback)
		}
		t.AddRow("Restored", strconv.Itoa(r.FromIndex))
		t.AddRow("Replayed", strconv.Itoa(r.Replayed))
		if wide {
			t.AddRow("Skipped", strconv.Itoa(r.Skipped))
			t.AddRow("Recovery Time", r.Elapsed.String())
		}
	}
	return t
}

func indexStatus(c *cli.Context) error {
	var st storage.IndexStatus
	if err := fetch(c, http.MethodGet, "/admin/v1/index", nil, &st); err != nil {
		return err
	}
	return printResult(c, indexStatusView(st))
}

// downloadResult summarizes a downloaded index.
type downloadResult struct {
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Sections int    `json:"sections"`
	Entries  int    `json:"entries"`
}

func indexDownload(c *cli.Context) error {
	out := c.String("out")
	if _, err := os.Stat(out); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", out)
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/admin/v1/index/file")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return connection.ParseResponse(resp, nil)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(out), filepath.Base(out)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	var dst io.Writer = tmp
	var progress *output.ProgressWriter
	if !c.Bool("quiet") {
		progress = output.NewProgressWriter(tmp, stderr(c), "Downloading", resp.ContentLength)
		dst = progress
	}
	n, err := io.Copy(dst, resp.Body)
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("download: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return err
	}
	idx, err := walindex.Decode(data)
	if err != nil {
		return fmt.Errorf("downloaded index is invalid: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return err
	}

	return printResult(c, &downloadResult{
		Path:     out,
		Bytes:    n,
		Sections: len(idx.Sections),
		Entries:  idx.Entries(),
	})
}

// inspectView is the decoded form of an index file.
type inspectView struct {
	Path     string        `json:"path"`
	Bytes    int           `json:"bytes"`
	Entries  int           `json:"entries"`
	Sections []sectionView `json:"sections"`

	listEntries bool
}

type sectionView struct {
	Segment    string      `json:"segment"`
	TotalSize  int64       `json:"total_size"`
	MaxVersion uint64      `json:"max_version"`
	MaxOffset  int64       `json:"max_offset"`
	Tables     []tableView `json:"tables"`
}

type tableView struct {
	ID      int32       `json:"id"`
	Size    int64       `json:"size"`
	Count   int         `json:"count"`
	Entries []entryView `json:"entries,omitempty"`
}

type entryView struct {
	Key    string `json:"key"`
	Offset int64  `json:"offset"`
	Length int32  `json:"length"`
}

func (v *inspectView) Table(wide bool) *output.Table {
	if v.listEntries {
		t := output.NewTable("TABLE", "KEY", "OFFSET", "LENGTH")
		if wide {
			t.Headers = append(t.Headers, "SEGMENT")
		}
		for _, s := range v.Sections {
			for _, tb := range s.Tables {
				for _, e := range tb.Entries {
					cells := []string{
						strconv.Itoa(int(tb.ID)),
						e.Key,
						strconv.FormatInt(e.Offset, 10),
						strconv.Itoa(int(e.Length)),
					}
					if wide {
						cells = append(cells, s.Segment)
					}
					t.AddRow(cells...)
				}
			}
		}
		return t
	}

	t := output.NewTable("SECTION", "SEGMENT", "TABLE", "ENTRIES", "BYTES")
	if wide {
		t.Headers = append(t.Headers, "MAX_VERSION", "MAX_OFFSET")
	}
	for i, s := range v.Sections {
		for _, tb := range s.Tables {
			cells := []string{
				strconv.Itoa(i),
				s.Segment,
				strconv.Itoa(int(tb.ID)),
				strconv.Itoa(tb.Count),
				strconv.FormatInt(tb.Size, 10),
			}
			if wide {
				cells = append(cells, strconv.FormatUint(s.MaxVersion, 10), strconv.FormatInt(s.MaxOffset, 10))
			}
			t.AddRow(cells...)
		}
	}
	return t
}

func indexInspect(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("index file is required")
	}
	path := c.Args().First()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	idx, err := walindex.Decode(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	view := &inspectView{
		Path:        path,
		Bytes:       len(data),
		listEntries: c.Bool("entries"),
	}
	only := c.Int("table")
	for _, s := range idx.Sections {
		sv := sectionView{
			Segment:    s.Header.Segment,
			TotalSize:  s.Header.TotalSize,
			MaxVersion: s.Header.MaxVersion,
			MaxOffset:  s.Header.MaxOffset,
		}
		for _, tb := range s.Tables {
			if only >= 0 && int(tb.ID) != only {
				continue
			}
			tv := tableView{ID: int32(tb.ID), Size: tb.Size, Count: len(tb.Entries)}
			if view.listEntries {
				for _, e := range tb.Entries {
					tv.Entries = append(tv.Entries, entryView{Key: displayKey(e.Key), Offset: e.Offset, Length: e.Length})
				}
			}
			view.Entries += tv.Count
			sv.Tables = append(sv.Tables, tv)
		}
		view.Sections = append(view.Sections, sv)
	}
	return printResult(c, view)
}

// verifyResult summarizes a successful verification.
type verifyResult struct {
	Path       string         `json:"path"`
	Segment    string         `json:"segment"`
	Sections   int            `json:"sections"`
	Entries    int            `json:"entries"`
	MaxVersion uint64         `json:"max_version"`
	MaxOffset  int64          `json:"max_offset"`
	PerTable   map[string]int `json:"per_table"`
	Elapsed    string         `json:"elapsed"`
}

func indexVerify(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("index file is required")
	}
	path := c.Args().First()

	cipher, err := encryptionCipher(c)
	if err != nil {
		return err
	}
	tableCount := c.Int("tables")

	start := time.Now()
	perTable := make(map[string]int)
	res, err := walindex.Restore(path, func(seg io.ReaderAt, segment string, table domain.TableID, _ uint64, e walindex.Entry) error {
		if !table.Valid(tableCount) {
			return fmt.Errorf("table %s outside [0,%d)", table, tableCount)
		}
		if _, err := storage.ReadIndexed(seg, segment, table, e, cipher); err != nil {
			return err
		}
		perTable[table.String()]++
		return nil
	})
	if err != nil {
		return fmt.Errorf("index %s is invalid: %w", path, err)
	}

	return printResult(c, &verifyResult{
		Path:       path,
		Segment:    res.Segment,
		Sections:   res.Sections,
		Entries:    res.Entries,
		MaxVersion: res.MaxVersion,
		MaxOffset:  res.MaxOffset,
		PerTable:   perTable,
		Elapsed:    time.Since(start).String(),
	})
}

func indexBuild(c *cli.Context) error {
	walDir := c.String("wal-dir")
	segment := c.String("segment")
	if segment == "" {
		latest, err := latestSegment(walDir)
		if err != nil {
			return err
		}
		segment = latest
	}
	segPath := filepath.Join(walDir, segment)

	out := c.String("out")
	if out == "" {
		out = filepath.Join(walDir, walindex.FileName)
	}
	if filepath.Clean(filepath.Dir(out)) != filepath.Clean(walDir) {
		fmt.Fprintf(stderr(c), "warning: %s is not in %s; restore resolves segment names next to the index file\n", out, walDir)
	}

	cipher, err := encryptionCipher(c)
	if err != nil {
		return err
	}

	acc, err := storage.AccumulateSegment(c.Context, segPath, c.Int("tables"), cipher)
	if err != nil {
		return fmt.Errorf("replay %s: %w", segPath, err)
	}
	res, err := walindex.Build(acc, out)
	if err != nil {
		return err
	}
	return printResult(c, res)
}

// displayKey renders printable keys as-is and anything else as hex.
func displayKey(key []byte) string {
	if utf8.Valid(key) {
		printable := true
		for _, r := range string(key) {
			if !unicode.IsPrint(r) {
				printable = false
				break
			}
		}
		if printable {
			return string(key)
		}
	}
	return fmt.Sprintf("0x%x", key)
}
