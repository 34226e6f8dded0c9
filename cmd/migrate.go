package cmd

import (
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/HillviewCap/ferrocodex-sub002/config"
	"github.com/HillviewCap/ferrocodex-sub002/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration management",
	Long:  `Manage database migrations - run them or check their status.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run all pending migrations",
	Long:  `Apply all pending database migrations to bring the schema up to date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		database, err := db.NewDatabase(cfg.Database.Driver, cfg.Database.GetDSN())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		log.Println("Running database migrations...")
		if err := database.RunMigrations(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		log.Println("All migrations completed successfully!")
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long:  `Display the current status of all migrations - which are applied and which are pending.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		database, err := db.NewDatabase(cfg.Database.Driver, cfg.Database.GetDSN())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		migrations, err := database.GetMigrationStatus()
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}

		// Print status table
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "Version\tDescription\tStatus")
		fmt.Fprintln(w, "-------\t-----------\t------")

		for _, migration := range migrations {
			status := "Pending"
			if migration.Applied {
				status = "Applied"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", migration.Version, migration.Description, status)
		}

		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
