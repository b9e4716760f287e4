package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/engine"
	"github.com/xkilldash9x/tifda/internal/observability"
	"github.com/xkilldash9x/tifda/internal/transport"
)

var (
	processInput  string
	processSensor string
	processDryRun bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one sensor batch from a JSON file through the pipeline and print the summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		cfg := loadedConfig
		ctx := cmd.Context()

		data, err := os.ReadFile(processInput)
		if err != nil {
			return fmt.Errorf("reading input file: %w", err)
		}
		var reports []schemas.EntityCOP
		if err := json.Unmarshal(data, &reports); err != nil {
			return fmt.Errorf("parsing input file %s: %w", processInput, err)
		}

		var publisher engine.Publisher
		if !processDryRun {
			mqttClient, err := transport.NewMQTTPublisher(cfg.MQTT, logger)
			if err != nil {
				return err
			}
			defer mqttClient.Close()
			publisher = transport.NewReporter(mqttClient, cfg.Recipients, cfg.MQTT.DefaultQoS, logger)
		}

		eng, cleanup, err := buildEngine(ctx, cfg, publisher, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		summary, err := eng.ProcessBatch(ctx, processSensor, reports)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	processCmd.Flags().StringVarP(&processInput, "input", "i", "", "JSON file holding a parsed-entity list (required)")
	processCmd.Flags().StringVarP(&processSensor, "sensor", "s", "manual", "sensor id to stamp on the batch")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "route without publishing to the broker")
	_ = processCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(processCmd)
}
