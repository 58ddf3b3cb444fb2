package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/grokify/omnisniff/pkg/extension"
	"github.com/grokify/omnisniff/pkg/magic"
	"github.com/grokify/omnisniff/pkg/mediatype"
)

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List supported media types",
		Long:  `List every media type OmniSniff can suggest, its extensions, and whether it has a magic number.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			withMagic := mediatype.New(magic.Signatures().Keys()...).
				Union(mediatype.New(magic.MaskedSignatures().Keys()...))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "MEDIA TYPE\tMAGIC\tEXTENSIONS")
			for _, mt := range mediatype.Supported() {
				hasMagic := "-"
				if withMagic.Has(mt) {
					hasMagic = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", mt, hasMagic, strings.Join(extension.Extensions(mt), " "))
			}
			return w.Flush()
		},
	}
}
