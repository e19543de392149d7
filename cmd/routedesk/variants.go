package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seantiz/routedesk/internal/model"
)

func newVariantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List the routing problem variants",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, v := range model.Variants() {
				fmt.Fprintln(cmd.OutOrStdout(), v.String())
			}
		},
	}
}
