package command

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/metastore-go/internal/cli/output"
	"github.com/yndnr/metastore-go/internal/server/httpserver/handler"
)

// RowCommand returns the row subcommand group.
func RowCommand() *cli.Command {
	return &cli.Command{
		Name:  "row",
		Usage: "Read and write metadata rows",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Show one row",
				ArgsUsage: "<table> <key>",
				Action:    rowGet,
			},
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "List rows of a table",
				ArgsUsage: "<table>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prefix", Usage: "Only keys with this prefix"},
					&cli.StringFlag{Name: "sort", Usage: "Key order: asc or desc", Value: "asc"},
					&cli.IntFlag{Name: "page", Usage: "Page number", Value: 1},
					&cli.IntFlag{Name: "page-size", Usage: "Rows per page", Value: 50},
				},
				Action: rowList,
			},
			{
				Name:      "insert",
				Usage:     "Insert a new row",
				ArgsUsage: "<table> <key> [value]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "value-file", Usage: "Read the value from a file"},
				},
				Action: rowInsert,
			},
			{
				Name:      "put",
				Usage:     "Update an existing row",
				ArgsUsage: "<table> <key> [value]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "value-file", Usage: "Read the value from a file"},
					&cli.Uint64Flag{Name: "expected-version", Usage: "Fail unless the row has this version"},
				},
				Action: rowPut,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a row",
				ArgsUsage: "<table> <key>",
				Action:    rowDelete,
			},
		},
	}
}

// rowView renders one row.
type rowView struct {
	handler.RowResponse
}

func (r rowView) Table(wide bool) *output.Table {
	return rowsView{Items: []handler.RowResponse{r.RowResponse}}.Table(wide)
}

// rowsView renders a page of rows.
type rowsView handler.ListRowsResponse

func (v rowsView) Table(wide bool) *output.Table {
	t := output.NewTable("TABLE", "KEY", "VERSION", "VALUE")
	if wide {
		t.Headers = append(t.Headers, "UPDATED")
	}
	for _, r := range v.Items {
		cells := []string{
			strconv.Itoa(int(r.Table)),
			r.Key,
			strconv.FormatUint(r.Version, 10),
			truncate(r.Value, wide),
		}
		if wide {
			cells = append(cells, r.UpdatedAt.UTC().Format(time.RFC3339))
		}
		t.AddRow(cells...)
	}
	return t
}

const maxValueWidth = 48

func truncate(s string, wide bool) string {
	if wide || len(s) <= maxValueWidth {
		return s
	}
	return s[:maxValueWidth-3] + "..."
}

// rowArgs parses <table> <key> and returns the row path.
func rowArgs(c *cli.Context) (string, error) {
	if c.NArg() < 2 {
		return "", errors.New("table and key are required")
	}
	table, err := parseTableArg(c.Args().Get(0))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/v1/tables/%d/rows/%s", table, url.PathEscape(c.Args().Get(1))), nil
}

func parseTableArg(s string) (int, error) {
	table, err := strconv.Atoi(s)
	if err != nil || table < 0 {
		return 0, fmt.Errorf("invalid table %q", s)
	}
	return table, nil
}

// rowValue takes the value from --value-file or the third argument.
func rowValue(c *cli.Context) (string, error) {
	if path := c.String("value-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read value file: %w", err)
		}
		return string(data), nil
	}
	if c.NArg() < 3 {
		return "", errors.New("value is required (argument or --value-file)")
	}
	return c.Args().Get(2), nil
}

func rowGet(c *cli.Context) error {
	path, err := rowArgs(c)
	if err != nil {
		return err
	}
	var row handler.RowResponse
	if err := fetch(c, http.MethodGet, path, nil, &row); err != nil {
		return err
	}
	return printResult(c, rowView{row})
}

func rowList(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("table is required")
	}
	table, err := parseTableArg(c.Args().Get(0))
	if err != nil {
		return err
	}

	q := url.Values{}
	if p := c.String("prefix"); p != "" {
		q.Set("prefix", p)
	}
	q.Set("sort", c.String("sort"))
	q.Set("page", strconv.Itoa(c.Int("page")))
	q.Set("page_size", strconv.Itoa(c.Int("page-size")))

	var page handler.ListRowsResponse
	if err := fetch(c, http.MethodGet, fmt.Sprintf("/v1/tables/%d/rows?%s", table, q.Encode()), nil, &page); err != nil {
		return err
	}
	if err := printResult(c, rowsView(page)); err != nil {
		return err
	}
	if GetSettings(c).Format == output.FormatTable {
		fmt.Fprintf(stdout(c), "\nShowing %d of %d rows (page %d)\n", len(page.Items), page.Total, page.Page)
	}
	return nil
}

func rowInsert(c *cli.Context) error {
	return rowWrite(c, http.MethodPost)
}

func rowPut(c *cli.Context) error {
	return rowWrite(c, http.MethodPut)
}

func rowWrite(c *cli.Context, method string) error {
	path, err := rowArgs(c)
	if err != nil {
		return err
	}
	value, err := rowValue(c)
	if err != nil {
		return err
	}

	req := handler.PutRowRequest{Value: value}
	if method == http.MethodPut {
		req.ExpectedVersion = c.Uint64("expected-version")
	}

	var row handler.RowResponse
	if err := fetch(c, method, path, req, &row); err != nil {
		return err
	}
	return printResult(c, rowView{row})
}

func rowDelete(c *cli.Context) error {
	path, err := rowArgs(c)
	if err != nil {
		return err
	}
	var row handler.RowResponse
	if err := fetch(c, http.MethodDelete, path, nil, &row); err != nil {
		return err
	}
	if GetSettings(c).Format == output.FormatTable {
		fmt.Fprintf(stdout(c), "Row %q deleted (version %d)\n", row.Key, row.Version)
		return nil
	}
	return printResult(c, rowView{row})
}
