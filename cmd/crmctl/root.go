package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matheus3301/wppcrm/internal/config"
	"github.com/matheus3301/wppcrm/internal/instance"
	"github.com/matheus3301/wppcrm/internal/tui/client"
)

var (
	instanceFlag string
	configFlag   string
	urlFlag      string
	jsonOut      bool
)

var rootCmd = &cobra.Command{
	Use:           "crmctl",
	Short:         "Operate a wppcrm daemon from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&instanceFlag, "instance", "", "instance name (overrides config default)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ~/.wppcrm/config.toml)")
	rootCmd.PersistentFlags().StringVar(&urlFlag, "url", "", "daemon base URL (overrides the session and client.base_url)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
}

func loadConfig() (*config.Config, string, error) {
	path := configFlag
	if path == "" {
		path = instance.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	name, err := instance.Resolve(instanceFlag, cfg.DefaultInstance)
	if err != nil {
		return nil, "", err
	}
	return cfg, name, nil
}

// session loads the saved session with the base URL resolved.
func session(cfg *config.Config) (*config.Session, error) {
	sess, err := config.LoadSession(instance.SessionPath())
	if err != nil {
		return nil, err
	}
	switch {
	case urlFlag != "":
		sess.BaseURL = urlFlag
	case sess.BaseURL == "":
		sess.BaseURL = cfg.Client.BaseURL
	}
	return sess, nil
}

var errNotLoggedIn = errors.New("not logged in; run crmctl login")

// authedClient returns a client for the saved session and fails when there is none.
func authedClient() (*client.Client, *config.Config, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	sess, err := session(cfg)
	if err != nil {
		return nil, nil, err
	}
	if !sess.LoggedIn() {
		return nil, nil, errNotLoggedIn
	}
	return client.New(sess, cfg.Gateway.Timeout.Duration+client.DefaultTimeout), cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
