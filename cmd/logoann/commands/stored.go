package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/logoann/config"
	"github.com/hupe1980/logoann/store"
)

var storedCount bool

func init() {
	storedCmd.Flags().BoolVar(&storedCount, "count", false, "print only the number of stored embeddings")
	rootCmd.AddCommand(storedCmd)
}

var storedCmd = &cobra.Command{
	Use:   "stored",
	Short: "List the identifiers in the embedding store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.StoreFile())
		if err != nil {
			return fmt.Errorf("open embedding store: %w", err)
		}
		defer st.Close()

		if storedCount {
			fmt.Fprintln(cmd.OutOrStdout(), st.Len())

			return nil
		}

		for _, id := range st.StoredIDs() {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}

		return nil
	},
}
