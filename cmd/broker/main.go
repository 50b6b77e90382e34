package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/catalog"
	"github.com/cuemby/pulsar-rust-broker/pkg/config"
	"github.com/cuemby/pulsar-rust-broker/pkg/httpapi"
	"github.com/cuemby/pulsar-rust-broker/pkg/log"
	"github.com/cuemby/pulsar-rust-broker/pkg/metrics"
	"github.com/cuemby/pulsar-rust-broker/pkg/partition"
	"github.com/cuemby/pulsar-rust-broker/pkg/txlog"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	"github.com/cuemby/pulsar-rust-broker/pkg/wakeup"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Exit codes per spec §6.
const (
	exitOK                 = 0
	exitConfigError        = 1
	exitStorageFailure     = 2
	exitCatalogUnreachable = 64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfigError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "broker",
	Short: "A message broker with at-least-once delivery",
	Long: `broker serves topics partitioned across nodes, each partition a
durable write-ahead log fanning out to Shared, Multicast, and Key-shared
subscriptions.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"broker version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	config.RegisterFlags(rootCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(applyCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker, serving every partition this node owns",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromFlags(cmd)
	if err != nil {
		os.Exit(exitConfigError)
	}
	log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	metrics.SetVersion(Version)

	store, err := catalog.NewBoltStore(cfg.DataDir)
	if err != nil {
		log.Errorf("open catalog store", err)
		os.Exit(exitCatalogUnreachable)
	}
	cat, err := catalog.Load(store)
	if err != nil {
		log.Errorf("load catalog", err)
		os.Exit(exitCatalogUnreachable)
	}
	metrics.RegisterComponent("catalog", true, "loaded")

	ctx := context.Background()
	core := partition.NewCore(cfg.NodeID, cat)
	if err := bootstrapOwnedPartitions(ctx, core, cat, cfg); err != nil {
		log.Errorf("bootstrap owned partitions", err)
		os.Exit(exitStorageFailure)
	}
	metrics.RegisterComponent("txlog", true, "bootstrapped")

	collector := metrics.NewCollector(core)
	collector.Start(time.Second)
	defer collector.Stop()

	maintDone := make(chan struct{})
	go runMaintenanceLoop(ctx, core, cfg.TimeoutScanInterval, maintDone)
	defer close(maintDone)

	server := httpapi.NewServer(core)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()
	metrics.RegisterComponent("httpapi", true, "ready")
	log.Logger.Info().Str("addr", cfg.HTTPAddr).Msg("broker listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case err := <-serverErrCh:
		log.Errorf("http server error", err)
		os.Exit(exitStorageFailure)
	}

	if err := cat.Close(); err != nil {
		log.Errorf("close catalog", err)
		os.Exit(exitStorageFailure)
	}
	log.Info("shutdown complete")
	return nil
}

// bootstrapOwnedPartitions opens each owned partition's transaction log
// and replays it into a fresh Engine, per spec §9's "no loss on restart"
// property.
func bootstrapOwnedPartitions(ctx context.Context, core *partition.Core, cat *catalog.Catalog, cfg config.Config) error {
	for _, topic := range cat.Topics() {
		subs := cat.SubscriptionsByTopic(topic.ID)
		// One registry per topic, shared by every partition engine of that
		// topic, so a consumer waiting on one partition wakes on a publish
		// landing on any of the node's other partitions for the same topic.
		wakeups := wakeup.NewRegistry[types.SubscriptionID]()
		for _, part := range cat.PartitionsByTopic(topic.ID) {
			if part.OwnerNode != cfg.NodeID {
				continue
			}
			logDir := filepath.Join(cfg.DataDir, "log", fmt.Sprintf("topic-%d", topic.ID), fmt.Sprintf("partition-%d", part.ID))
			if err := os.MkdirAll(logDir, 0o755); err != nil {
				return err
			}
			txLog, err := txlog.Open(logDir, cfg.SegmentSizeBytes)
			if err != nil {
				return err
			}
			e := partition.NewEngine(part.ID, topic.ID, cfg.NodeID, subs, txLog, wakeups)
			if err := e.Bootstrap(ctx); err != nil {
				return err
			}
			if err := core.AddEngine(topic.ID, part.ID, e); err != nil {
				return err
			}
			log.WithPartitionID(uint64(part.ID)).Info().Uint64("topic_id", uint64(topic.ID)).Msg("partition bootstrapped")
		}
	}
	return nil
}

// runMaintenanceLoop drives scan_timeouts and the idle-consumer sweep on
// a ticker at interval, until done is closed.
func runMaintenanceLoop(ctx context.Context, core *partition.Core, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if err := core.RunMaintenance(ctx, now); err != nil {
				log.Errorf("run maintenance", err)
			}
		case <-done:
			return
		}
	}
}
