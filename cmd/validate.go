package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dandi-api/locker"
	"dandi-api/services"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate every pending asset and draft version",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()

			validation := services.NewContainer(rt.db, rt.cfg, locker.NewLocal(), time.Now, rt.log).Validation
			result, err := validation.ValidatePending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Validated %d assets and %d versions, %d invalid.\n",
				result.Assets, result.Versions, result.Invalid)
			return nil
		},
	}
}
