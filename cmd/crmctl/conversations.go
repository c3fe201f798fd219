package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var searchLimit int

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convs"},
	Short:   "List conversations with their CRM state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, _, err := authedClient()
		if err != nil {
			return err
		}
		convs, err := c.Conversations(commandContext(cmd))
		if err != nil {
			return err
		}
		if jsonOut {
			return outputJSON(convs)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PHONE\tNAME\tSTATUS\tBOT\tASSIGNED\tTAGS")
		for _, cv := range convs {
			bot := "off"
			if cv.BotEnabled {
				bot = "on"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", cv.Phone, dash(cv.Name), cv.Status, bot, dash(cv.AssignedTo), dash(strings.Join(cv.Tags, ",")))
		}
		return w.Flush()
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over stored messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := authedClient()
		if err != nil {
			return err
		}
		results, err := c.Search(commandContext(cmd), strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		if jsonOut {
			return outputJSON(results)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PHONE\tTIME\tSNIPPET")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Message.Phone, r.Message.CreatedAt.Local().Format("2006-01-02 15:04"), r.Snippet)
		}
		return w.Flush()
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results")
	rootCmd.AddCommand(conversationsCmd, searchCmd)
}
