package main

import (
	"errors"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/matheus3301/wppcrm/internal/crmerr"
)

var pairTimeout time.Duration

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair the daemon's WhatsApp device by QR code (admin only)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, _, err := authedClient()
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		if err := c.Pair(ctx); err != nil {
			return err
		}

		deadline := time.Now().Add(pairTimeout)
		last := ""
		for time.Now().Before(deadline) {
			qr, err := c.LastQR(ctx)
			switch {
			case crmerr.IsKind(err, crmerr.NotFound):
			case err != nil:
				return err
			case qr.Type == "qr_code" && qr.QRCode != last:
				last = qr.QRCode
				code, err := qrcode.New(qr.QRCode, qrcode.Low)
				if err != nil {
					return err
				}
				fmt.Println("Scan this QR code with WhatsApp (Linked devices):")
				fmt.Println(code.ToSmallString(false))
			case qr.Type == "authenticated":
				fmt.Println("Paired.")
				return nil
			case qr.Type != "qr_code":
				if qr.Message != "" {
					return errors.New(qr.Message)
				}
				return fmt.Errorf("pairing ended: %s", qr.Type)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
		return errors.New("pairing timed out")
	},
}

func init() {
	pairCmd.Flags().DurationVar(&pairTimeout, "timeout", 3*time.Minute, "how long to wait for the scan")
	rootCmd.AddCommand(pairCmd)
}
