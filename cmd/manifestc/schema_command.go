package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the production manifest JSON Schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := manifest.JSONSchemaBytes()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
