// Command chooser-demo assembles a runnable task loop around the
// chooser selector stack: chooserconfig.Load -> streamadmin.SaramaAdmin
// -> chooser.Compose -> streammsg.SaramaConsumer -> taskloop.Loop,
// mirroring the teacher's cmd/main.go -> internal/app.New -> Run
// composition shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/streamrt/chooser/internal/chooserconfig"
	"github.com/streamrt/chooser/internal/chooserreload"
	"github.com/streamrt/chooser/internal/metrics"
	"github.com/streamrt/chooser/internal/streamadmin"
	"github.com/streamrt/chooser/internal/streammsg"
	"github.com/streamrt/chooser/internal/taskloop"
	"github.com/streamrt/chooser/pkg/chooser"
)

func main() {
	var (
		configFile string
		brokerList string
	)
	flag.StringVar(&configFile, "config", "", "Path to the chooser configuration file")
	flag.StringVar(&brokerList, "brokers", "", "Comma-separated Kafka broker list")
	flag.Parse()

	if configFile == "" {
		configFile = os.Getenv("CHOOSER_CONFIG_FILE")
	}
	if brokerList == "" {
		brokerList = os.Getenv("CHOOSER_BROKERS")
	}
	if brokerList == "" {
		fmt.Fprintln(os.Stderr, "chooser-demo: -brokers or CHOOSER_BROKERS is required")
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := chooserconfig.Load(configFile)
	if err != nil {
		logger.WithError(err).Fatal("failed to load chooser configuration")
	}

	brokers := strings.Split(brokerList, ",")

	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(brokers, saramaCfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Kafka")
	}
	defer client.Close()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		logger.WithError(err).Fatal("failed to build Kafka consumer")
	}

	admin := streamadmin.New(client, logger)
	streamConsumer := streammsg.New(consumer, logger)

	registry := prometheus.NewRegistry()
	chooserMetrics := metrics.New(registry)
	metricsServer := metrics.NewServer(metricsAddr(), registry, logger)
	metricsServer.Start()
	defer metricsServer.Stop()

	ctx := context.Background()
	inputs := inputsFromEnv(cfg)

	selector, err := chooser.Compose(ctx, cfg, inputs, admin)
	if err != nil {
		logger.WithError(err).Fatal("failed to compose chooser selector stack")
	}

	loopMetrics := taskloop.Metrics{
		EnvelopesChosen: func(ssp chooser.SSP) {
			chooserMetrics.EnvelopesChosen.WithLabelValues(ssp.System, ssp.Stream, fmt.Sprint(ssp.Partition)).Inc()
		},
		ChooseEmpty: func() { chooserMetrics.ChooseEmpty.Inc() },
		ProtocolDrop: func(ssp chooser.SSP) {
			chooserMetrics.ProtocolDrops.WithLabelValues(ssp.System, ssp.Stream).Inc()
		},
		TierQueueDepth: func(tier int, depth int) {
			chooserMetrics.TierQueueDepth.WithLabelValues(fmt.Sprint(tier)).Set(float64(depth))
		},
		LaggingBootstrap: func(count int) {
			chooserMetrics.LaggingBootstrap.Set(float64(count))
		},
	}

	loop := taskloop.New(selector, streamConsumer, noopProcessor{}, logger, taskloop.WithMetrics(loopMetrics))
	for _, in := range inputs {
		if err := loop.Register(in.SSP, in.LastReadOffset); err != nil {
			logger.WithError(err).Fatal("failed to register input SSP")
		}
	}

	if configFile != "" {
		watcher, err := chooserreload.New(configFile, 0, logger, func(old, newCfg chooser.Config) {
			recomposed, err := chooser.Compose(ctx, newCfg, inputs, admin)
			if err != nil {
				logger.WithError(err).Error("failed to recompose chooser selector stack on reload, keeping previous stack")
				return
			}
			loop.SwapSelector(recomposed, inputs)
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to build chooser config watcher")
		}
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Fatal("failed to start chooser config watcher")
		}
		defer watcher.Stop()
	}

	if err := loop.Run(ctx); err != nil {
		logger.WithError(err).Fatal("task loop exited with error")
	}
}

// metricsAddr resolves the /metrics bind address, defaulting to a
// fixed local port so the demo is runnable without extra flags.
func metricsAddr() string {
	if addr := os.Getenv("CHOOSER_METRICS_ADDR"); addr != "" {
		return addr
	}
	return ":9308"
}

// inputsFromEnv is a placeholder for real partition discovery, which in
// a production deployment comes from the cluster manager's task-to-SSP
// assignment (explicitly out of scope per spec.md §1). The demo reads a
// single CHOOSER_DEMO_SSPS env var of "system.stream.partition" entries
// so the binary is runnable without a cluster manager.
func inputsFromEnv(_ chooser.Config) []chooser.Input {
	raw := os.Getenv("CHOOSER_DEMO_SSPS")
	if raw == "" {
		return nil
	}

	var inputs []chooser.Input
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(entry, ".")
		if len(parts) != 3 {
			continue
		}
		var partition int
		fmt.Sscanf(parts[2], "%d", &partition)
		inputs = append(inputs, chooser.Input{
			SSP: chooser.SSP{
				System:    parts[0],
				Stream:    parts[1],
				Partition: int32(partition),
			},
			LastReadOffset: chooser.OffsetNone,
		})
	}
	return inputs
}

// noopProcessor is the demo's stand-in for real envelope processing,
// which belongs to whatever task this chooser stack is embedded in
// (explicitly out of scope per spec.md §1's "scheduling across tasks").
type noopProcessor struct{}

func (noopProcessor) Process(_ context.Context, e chooser.Envelope) error {
	return nil
}
