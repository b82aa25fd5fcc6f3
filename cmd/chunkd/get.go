package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/chunkd/download"
	"github.com/bitfsorg/chunkd/storage"
)

func newGetCmd(g *globalFlags) *cobra.Command {
	var (
		encoding string
		out      string
		dir      bool
	)
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Download a file, or list a directory with --dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, done, err := g.openNode(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer done()

			if dir {
				d, err := n.GetDir(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, e := range d.Files {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.Type, e.Name, e.Size, e.ID)
				}
				return tw.Flush()
			}

			data, err := n.GetFile(cmd.Context(), args[0], download.Encoding(encoding))
			if err != nil {
				return err
			}
			if out != "" {
				return storage.WriteFileAtomic(out, data)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&encoding, "encoding", "e", string(download.EncodingRaw), "output encoding: raw, utf8, hex or base64")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&dir, "dir", false, "treat id as a directory and list its entries")
	return cmd
}
