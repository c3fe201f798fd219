package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matheus3301/wppcrm/internal/config"
	"github.com/matheus3301/wppcrm/internal/instance"
	"github.com/matheus3301/wppcrm/internal/prompt"
	"github.com/matheus3301/wppcrm/internal/tui/client"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the session for crmctl and crmtui",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		sess, err := session(cfg)
		if err != nil {
			return err
		}

		p := prompt.New()
		email := loginEmail
		if email == "" {
			if email, err = p.Line("Email", ""); err != nil {
				return err
			}
		}
		password, err := p.Password("Password")
		if err != nil {
			return err
		}

		c := client.New(&config.Session{BaseURL: sess.BaseURL}, 0)
		resp, err := c.Login(commandContext(cmd), email, password)
		if err != nil {
			return err
		}
		if err := config.SaveSession(instance.SessionPath(), c.Session()); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (%s) until %s\n", resp.User.Name, resp.User.Role, resp.ExpiresAt.Local().Format("2006-01-02 15:04"))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the saved session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, _, err := authedClient()
		if err != nil {
			return err
		}
		if err := c.Logout(commandContext(cmd)); err != nil {
			fmt.Printf("warning: server logout failed: %v\n", err)
		}
		if err := config.ClearSession(instance.SessionPath()); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "operator email (prompted when empty)")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
