package main

import (
	"fmt"

	"LinkHub/service/kafka"
	"LinkHub/tools/errs"

	"github.com/spf13/cobra"
)

var (
	eventsGroup   string
	eventsSession string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail the fan-out events mirrored to kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Kafka.Brokers) == 0 {
			return errs.ErrArgs.WrapMsg("kafka.brokers is required")
		}
		ctx, stop := signalContext()
		defer stop()

		out := cmd.OutOrStdout()
		return kafka.ConsumeEvents(ctx, cfg.Kafka, eventsGroup, eventsSession, func(r kafka.Record) error {
			_, err := fmt.Fprintf(out, "%s\t%s\t%s\n", r.SessionID, r.Event, r.Frame)
			return err
		})
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsGroup, "group", "linkhub-events-tail", "consumer group id")
	eventsCmd.Flags().StringVar(&eventsSession, "session", "", "only print events of this session")
}
