package tableutil

import (
	"fmt"
	"io"
	"strings"

	"github.com/liggitt/tabwriter"
)

// New creates a tabwriter with labmirror's default spacing settings.
// stripEscape drops the escape markers that bracket ANSI color runs.
func New(out io.Writer, stripEscape bool) *tabwriter.Writer {
	var flags uint
	if stripEscape {
		flags = tabwriter.StripEscape
	}
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', flags)
}

// PrintHeaders writes the column names as one header row unless disabled.
func PrintHeaders(w io.Writer, noHeaders bool, columns ...string) error {
	if noHeaders {
		return nil
	}
	_, err := fmt.Fprintln(w, strings.Join(columns, "\t"))
	return err
}
