package commands

import (
	"context"
	"fmt"

	"bookhaven/pkg/config"
	"bookhaven/pkg/database"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the admin user and sample books into an empty database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.Driver == config.DriverMemory {
		return fmt.Errorf("seeding the memory store has no lasting effect; use serve --seed")
	}

	s, err := database.OpenStore(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	return database.Seed(context.Background(), s, log, bcrypt.DefaultCost)
}
