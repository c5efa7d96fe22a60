package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ethanyzhang/tsodbc"
	"github.com/ethanyzhang/tsodbc/appbuf"
)

func (a *app) queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a statement and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStatement(cmd.Context(), func(st *tsodbc.Statement) error {
				status, err := st.ExecDirect(cmd.Context(), args[0])
				var qe *tsodbc.QueryError
				if errors.As(err, &qe) {
					return fmt.Errorf("[%s] %w", qe.SQLState(), err)
				}
				if err != nil {
					return err
				}
				if status == tsodbc.StatusSuccessWithInfo {
					for _, w := range st.Warnings() {
						log.Warn().Str("warning", w.String()).Msg("query returned a warning")
					}
				}
				return printResult(cmd.OutOrStdout(), st, nil)
			})
		},
	}
}

func (a *app) tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables [pattern]",
		Short: "List tables whose name matches a LIKE pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "%"
			if len(args) == 1 {
				pattern = args[0]
			}
			return a.withStatement(cmd.Context(), func(st *tsodbc.Statement) error {
				if _, err := st.Tables(cmd.Context(), "", "%", pattern, ""); err != nil {
					return err
				}
				// TABLE_SCHEM, TABLE_NAME, TABLE_TYPE
				return printResult(cmd.OutOrStdout(), st, []int{2, 3, 4})
			})
		},
	}
}

func (a *app) columnsCmd() *cobra.Command {
	var database string
	cmd := &cobra.Command{
		Use:   "columns <table-pattern> [column-pattern]",
		Short: "Describe the columns of matching tables",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			column := "%"
			if len(args) == 2 {
				column = args[1]
			}
			return a.withStatement(cmd.Context(), func(st *tsodbc.Statement) error {
				if _, err := st.Columns(cmd.Context(), database, args[0], column); err != nil {
					return err
				}
				// TABLE_SCHEM, TABLE_NAME, COLUMN_NAME, TYPE_NAME, ORDINAL_POSITION
				return printResult(cmd.OutOrStdout(), st, []int{2, 3, 4, 6, 17})
			})
		},
	}
	cmd.Flags().StringVar(&database, "database", "%", "database pattern")
	return cmd
}

// printResult writes the selected columns of every remaining row as a
// tab-aligned table. A nil selection prints all columns.
func printResult(out io.Writer, st *tsodbc.Statement, cols []int) error {
	if cols == nil {
		n, err := st.NumResultCols()
		if err != nil {
			return err
		}
		for i := 1; i <= n; i++ {
			cols = append(cols, i)
		}
	}
	if len(cols) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	header := make([]string, len(cols))
	for i, idx := range cols {
		meta, err := st.DescribeColumn(idx)
		if err != nil {
			return err
		}
		header[i] = meta.Name
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	buf := appbuf.New(appbuf.CChar, textChunk)
	cells := make([]string, len(cols))
	rows := 0
	for {
		status, err := st.FetchNextRow()
		if err != nil {
			return err
		}
		if status == tsodbc.StatusNoData {
			break
		}
		for i, idx := range cols {
			if cells[i], err = readText(st, idx, buf); err != nil {
				return err
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
		rows++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.Debug().Int("rows", rows).Msg("result printed")
	return nil
}

// textChunk is the character buffer size used by readText.
const textChunk = 64

// readText reads column idx as text, in as many chunks as it takes.
func readText(st *tsodbc.Statement, idx int, buf *appbuf.Buffer) (string, error) {
	var sb strings.Builder
	for {
		res, err := st.GetColumn(idx, buf)
		if err != nil {
			return "", err
		}
		if res == appbuf.ConvNoData {
			break
		}
		if buf.IsNull() {
			return "NULL", nil
		}
		part, err := buf.GetString()
		if err != nil {
			return "", err
		}
		sb.WriteString(part)
		if res != appbuf.ConvVarLenDataTruncated {
			break
		}
	}
	return sb.String(), nil
}
