package cmd

import (
	"os/signal"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/observability"
	"github.com/xkilldash9x/tifda/internal/transport"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sensorTopicPrefix is where sensor adapters publish parsed entity batches.
const sensorTopicPrefix = "tifda/input/"

// snapshotInterval paces COP archive snapshots while running.
const snapshotInterval = time.Minute

// sensorBatch is one inbound message: a parsed-entity list from one sensor.
type sensorBatch struct {
	sensorID string
	reports  []schemas.EntityCOP
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fusion engine against the configured broker until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		cfg := loadedConfig

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mqttClient, err := transport.NewMQTTPublisher(cfg.MQTT, logger)
		if err != nil {
			return err
		}
		defer mqttClient.Close()

		eng, cleanup, err := buildEngine(ctx, cfg, transport.NewReporter(mqttClient, cfg.Recipients, cfg.MQTT.DefaultQoS, logger), logger)
		if err != nil {
			return err
		}
		defer cleanup()

		batches := make(chan sensorBatch, 64)
		for sensor, qos := range cfg.MQTT.SensorQoS {
			if sensor == "output" {
				continue
			}
			topic := sensorTopicPrefix + sensor
			if err := mqttClient.Subscribe(topic, qos, func(topic string, payload []byte) {
				var reports []schemas.EntityCOP
				if err := json.Unmarshal(payload, &reports); err != nil {
					logger.Warn("Discarding malformed sensor batch",
						zap.String("topic", topic),
						zap.Error(err),
					)
					return
				}
				sensorID := topic[strings.LastIndex(topic, "/")+1:]
				select {
				case batches <- sensorBatch{sensorID: sensorID, reports: reports}:
				default:
					logger.Warn("Inbound queue full; dropping sensor batch",
						zap.String("sensor_id", sensorID),
						zap.Int("reports", len(reports)),
					)
				}
			}); err != nil {
				return err
			}
		}

		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()

		logger.Info("Engine running", zap.String("broker", cfg.MQTT.BrokerURL))
		for {
			select {
			case <-ctx.Done():
				logger.Info("Shutting down")
				return nil
			case batch := <-batches:
				summary, err := eng.ProcessBatch(ctx, batch.sensorID, batch.reports)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logger.Error("Batch processing failed",
						zap.String("sensor_id", batch.sensorID),
						zap.Error(err),
					)
					continue
				}
				logger.Info("Batch processed",
					zap.String("sensor_id", batch.sensorID),
					zap.Int("accepted", summary.Accepted),
					zap.Int("rejected", summary.Rejected),
					zap.Int("assessments", len(summary.Assessments)),
					zap.Int("published", summary.Published),
					zap.Int("blocked_clearance", summary.Routing.BlockedClearance),
					zap.Int("security_violations", summary.Routing.SecurityViolations),
				)
			case <-ticker.C:
				if err := eng.ArchiveSnapshot(ctx); err != nil {
					logger.Warn("COP snapshot archive failed", zap.Error(err))
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
