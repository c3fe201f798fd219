package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matheus3301/wppcrm/internal/api"
	"github.com/matheus3301/wppcrm/internal/instance"
	"github.com/matheus3301/wppcrm/internal/lock"
)

type statusOutput struct {
	Instance  string              `json:"instance"`
	LocalPID  int                 `json:"localPid,omitempty"`
	LocalFrom *time.Time          `json:"localSince,omitempty"`
	Daemon    *api.StatusResponse `json:"daemon,omitempty"`
	Error     string              `json:"error,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local daemon lock and the gateway status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, name, err := loadConfig()
		if err != nil {
			return err
		}
		out := statusOutput{Instance: name}
		if h, err := lock.ReadHolder(instance.Dir(name)); err == nil {
			out.LocalPID = h.PID
			if !h.Since.IsZero() {
				since := h.Since
				out.LocalFrom = &since
			}
		}

		c, _, err := authedClient()
		if err == nil {
			out.Daemon, err = c.Status(commandContext(cmd))
		}
		if err != nil {
			out.Error = err.Error()
		}

		if jsonOut {
			return outputJSON(out)
		}
		fmt.Printf("Instance: %s\n", out.Instance)
		if out.LocalPID != 0 {
			since := ""
			if out.LocalFrom != nil {
				since = ", started " + humanize.Time(*out.LocalFrom)
			}
			fmt.Printf("Local:    crmd PID %d%s\n", out.LocalPID, since)
		} else {
			fmt.Println("Local:    no crmd holds this instance")
		}
		if d := out.Daemon; d != nil {
			fmt.Printf("Gateway:  %s (%s) since %s\n", d.State, d.Driver, humanize.Time(d.StateSince))
			if d.Phone != "" {
				fmt.Printf("Phone:    %s\n", d.Phone)
			}
			fmt.Printf("Messages: %s\n", humanize.Comma(d.Messages))
			fmt.Printf("Realtime: %d client(s)\n", d.RealtimeClients)
			fmt.Printf("Uptime:   %s\n", (time.Duration(d.UptimeMs) * time.Millisecond).Round(time.Second))
		}
		if out.Error != "" {
			fmt.Printf("Daemon:   %s\n", out.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
