package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Setlist/internal/adapters/storage"
	"github.com/dkeye/Setlist/internal/config"
)

func importCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Load setlists from YAML files into the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			total := 0
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				n, err := db.Import(cmd.Context(), f)
				f.Close()
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				log.Info().Str("file", path).Int("setlists", n).Msg("imported")
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d setlists into %s\n", total, db.Path())
			return nil
		},
	}
}
