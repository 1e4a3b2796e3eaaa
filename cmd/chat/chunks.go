package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"transcript-chat-service/internal/service/media"
)

func newChunksCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chunks",
		Short: "Print the timestamped chunks of the recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, conv, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Shutdown()

			out := cmd.OutOrStdout()
			for _, c := range conv.Cache().Chunks() {
				fmt.Fprintf(out, "%s %s\n", labelStyle.Render("["+c.SourceLabel+"]"), c.Text)
			}
			return nil
		},
	}
}

// mediaRef passes --file as an absolute path so it resolves against the
// upload dir set in load, whatever the working directory.
func mediaRef(opts *options) media.Ref {
	path := opts.file
	if abs, err := filepath.Abs(path); path != "" && err == nil {
		path = abs
	}
	return media.Ref{Path: path, URL: opts.url}
}
