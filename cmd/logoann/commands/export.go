package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/logoann/config"
	"github.com/hupe1980/logoann/store"
)

var exportOut string

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "embeddings.zst", "output file")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the embedding store to a compressed archive",
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

		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}

		if err := st.Export(f); err != nil {
			f.Close()
			os.Remove(exportOut)

			return fmt.Errorf("export: %w", err)
		}

		if err := f.Close(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "exported %d embeddings to %s\n", st.Len(), exportOut)

		return nil
	},
}
