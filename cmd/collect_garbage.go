package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dandi-api/locker"
	"dandi-api/services"
)

func newCollectGarbageCmd() *cobra.Command {
	var assets, yes bool

	cmd := &cobra.Command{
		Use:   "collect-garbage",
		Short: "Report stale data and optionally delete stale assets",
		Long: `Print how many assets belong to no version, how many blobs are only
referenced by such assets and how many version metadata rows no version uses.
With --assets the stale assets are deleted after confirmation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()

			garbage := services.NewContainer(rt.db, rt.cfg, locker.NewLocal(), time.Now, rt.log).Garbage
			out := cmd.OutOrStdout()

			report, err := garbage.Report(cmd.Context())
			if err != nil {
				return err
			}
			printReport(out, report)

			if !assets || report.Assets == 0 {
				return nil
			}
			if !yes && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Delete %d stale assets?", report.Assets)) {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}

			deleted, err := garbage.CollectAssets(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Deleted %d assets.\n", deleted)

			report, err = garbage.Report(cmd.Context())
			if err != nil {
				return err
			}
			printReport(out, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&assets, "assets", false, "delete stale assets")
	cmd.Flags().BoolVar(&yes, "yes", false, "do not ask for confirmation")
	return cmd
}

func printReport(out io.Writer, r services.GarbageReport) {
	fmt.Fprintf(out, "Stale assets: %d\n", r.Assets)
	fmt.Fprintf(out, "Stale asset blobs: %d (%d bytes)\n", r.AssetBlobs, r.AssetBlobBytes)
	fmt.Fprintf(out, "Unreferenced version metadata: %d\n", r.UnreferencedMetadata)
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
