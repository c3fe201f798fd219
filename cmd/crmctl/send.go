package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/normalize"
	"github.com/matheus3301/wppcrm/internal/reconcile"
	"github.com/matheus3301/wppcrm/internal/send"
)

var sendCmd = &cobra.Command{
	Use:   "send <phone> <text...>",
	Short: "Send a text through the gateway and record it in the store",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cfg, err := authedClient()
		if err != nil {
			return err
		}
		norm := normalize.New(cfg.Location())
		var notices []send.Notice
		s := send.NewSender(c, c, reconcile.New(norm), send.Options{
			Timeout:    cfg.Gateway.Timeout.Duration,
			Source:     ingest.SourceCLI,
			Normalizer: norm,
			Notify:     func(n send.Notice) { notices = append(notices, n) },
		})

		out, ran := s.Send(commandContext(cmd), send.Request{
			ContactKey: args[0],
			Text:       strings.Join(args[1:], " "),
			AuthorName: c.Session().User,
		})
		if !ran {
			return fmt.Errorf("nothing to send")
		}
		if jsonOut {
			return outputJSON(map[string]any{
				"state":           out.State,
				"clientMessageId": out.ClientMessageID,
				"gateway":         out.Gateway,
			})
		}
		for _, n := range notices {
			fmt.Println(n.Text)
		}
		switch out.State {
		case send.Delivered:
			fmt.Printf("sent (%s)\n", out.ClientMessageID)
		case send.GatewayFailedButPersisted:
			fmt.Println("recorded in the store but not delivered")
		default:
			return fmt.Errorf("send failed: %v", out.Err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
