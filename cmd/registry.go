package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dashfold/dashfold/api"
)

func init() {
	rootCmd.AddCommand(registerCmd, removeCmd, listCmd)
}

var registerCmd = &cobra.Command{
	Use:   "register <file.dset>",
	Short: "Register a data set definition from a JSON document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		def, err := api.UnmarshalDef(data)
		if err != nil {
			return err
		}
		if err := a.storage.RegisterDataSetDef(def, author, message); err != nil {
			return err
		}
		fmt.Printf("Registered %s at %s\n", def.UUID, def.StorePath)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <uuid>",
	Short: "Remove a registered data set definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		def, err := a.storage.RemoveDataSetDef(args[0], author, message)
		if err != nil {
			return err
		}
		if def == nil {
			fmt.Printf("No data set registered as %s\n", args[0])
			return nil
		}
		fmt.Printf("Removed %s\n", def.UUID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the data set definitions in the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		defs, err := a.storage.ListDataSetDefs()
		if err != nil {
			return err
		}
		for _, def := range defs {
			fmt.Printf("%-40s %-15s %s\n", def.UUID, def.Provider, def.Name)
		}
		fmt.Printf("%d data set(s)\n", len(defs))
		return nil
	},
}
