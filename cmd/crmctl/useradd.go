package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matheus3301/wppcrm/internal/auth"
	"github.com/matheus3301/wppcrm/internal/instance"
	"github.com/matheus3301/wppcrm/internal/prompt"
	"github.com/matheus3301/wppcrm/internal/store"
)

var (
	useraddName string
	useraddRole string
)

var useraddCmd = &cobra.Command{
	Use:   "useradd <email>",
	Short: "Create an operator account directly in the instance store",
	Long: `Create an operator account directly in the instance store.

This opens the SQLite file on this machine, so it works before any account exists
and while the daemon is stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, name, err := loadConfig()
		if err != nil {
			return err
		}
		if err := instance.EnsureDir(name); err != nil {
			return err
		}
		path := cfg.Store.Path
		if path == "" {
			path = instance.DBPath(name)
		}
		db, err := store.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if _, err := db.Migrate(); err != nil {
			return err
		}

		password, err := prompt.New().NewPassword("Password", 8)
		if err != nil {
			return err
		}
		u, err := auth.NewService(db, cfg.Auth.TokenTTL.Duration).CreateUser(args[0], useraddName, useraddRole, password)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s %s (id %d)\n", u.Role, u.Email, u.ID)
		return nil
	},
}

func init() {
	useraddCmd.Flags().StringVar(&useraddName, "name", "", "display name")
	useraddCmd.Flags().StringVar(&useraddRole, "role", auth.RoleAgent, "role: admin or agent")
	rootCmd.AddCommand(useraddCmd)
}
