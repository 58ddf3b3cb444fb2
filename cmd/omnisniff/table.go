package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/grokify/omnisniff/pkg/magic"
	"github.com/grokify/omnisniff/pkg/sparse"
)

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print the magic number tables and their coverage",
		Long: `Print every signature of the plain and masked tables together with the
byte ranges they read. The "computed" coverage is derived from the tables;
"declared" is the list sources are sized by.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTables(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check that the declared coverage matches the tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateTables(cmd.OutOrStdout())
		},
	})

	return cmd
}

func printTables(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)

	fmt.Fprintln(w, "PLAIN SIGNATURES")
	fmt.Fprintln(w, "MEDIA TYPE\tRUNS")
	for _, e := range magic.Signatures() {
		fmt.Fprintf(w, "%s\t%s\n", e.Key, formatPattern(e.Pattern))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "MASKED SIGNATURES")
	fmt.Fprintf(w, "mask\t%s\n", formatPattern(magic.Masks()))
	for _, e := range magic.MaskedSignatures() {
		fmt.Fprintf(w, "%s\t%s\n", e.Key, formatPattern(e.Pattern))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "COVERAGE\tDECLARED\tCOMPUTED")
	fmt.Fprintf(w, "plain\t%s\t%s\n", formatRanges(magic.Coverage()), formatRanges(sparse.CoverageOf(magic.Signatures())))
	fmt.Fprintf(w, "masked\t%s\t%s\n", formatRanges(magic.MaskedCoverage()), formatRanges(sparse.CoverageOf(magic.MaskedSignatures())))

	head, tail := magic.RequiredSpan()
	fmt.Fprintf(w, "span\thead %d\ttail %d\n", head, tail)

	return w.Flush()
}

// validateTables reports every table that fails validation.
func validateTables(out io.Writer) error {
	var errs []error
	check := func(name string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			fmt.Fprintf(out, "%s: FAIL %v\n", name, err)
			return
		}
		fmt.Fprintf(out, "%s: ok\n", name)
	}

	check("plain patterns", magic.Signatures().Validate())
	check("masked patterns", magic.MaskedSignatures().Validate())
	check("mask", sparse.Validate(magic.Masks()))
	check("plain coverage", sparse.ValidateCoverage(magic.Coverage(), magic.Signatures()))
	check("masked coverage", sparse.ValidateCoverage(magic.MaskedCoverage(), magic.MaskedSignatures()))

	return errors.Join(errs...)
}

// formatPattern renders p as runs like "@0 25 50 44 46".
func formatPattern(p sparse.Pattern) string {
	var runs []string
	for i := 0; i+1 < len(p); {
		start, n := p[i], p[i+1]
		i += 2
		if n < 0 || n > len(p)-i {
			runs = append(runs, fmt.Sprintf("@%d <malformed>", start))
			break
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "@%d", start)
		for _, v := range p[i : i+n] {
			fmt.Fprintf(&sb, " %02x", v)
		}
		runs = append(runs, sb.String())
		i += n
	}
	return strings.Join(runs, "  ")
}

func formatRanges(ranges []sparse.Range) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, " ")
}
