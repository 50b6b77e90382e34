// Package config holds the broker process's startup configuration,
// populated directly from cobra persistent flags the way cmd/warren's
// main.go does it (rootCmd.PersistentFlags().GetString/GetBool) rather
// than through a separate env-loading library: environment-based
// configuration loading is explicitly out of scope, and the teacher
// itself never reaches for viper.
package config

import (
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/log"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	"github.com/spf13/cobra"
)

// Config is everything a single broker process needs to come up: its own
// node identity, where it listens, where it persists state, and the
// maintenance cadences spec §4.3/§5 name.
type Config struct {
	NodeID   types.NodeID
	HTTPAddr string
	DataDir  string

	LogLevel  log.Level
	LogJSON   bool

	// SegmentSizeBytes bounds each transaction-log segment file, spec §6's
	// persisted state layout (default 64 MiB).
	SegmentSizeBytes int64

	TimeoutScanInterval time.Duration
	ConsumerGrace       time.Duration
}

// Default mirrors the defaults cmd/warren/main.go's flag registrations
// use, generalized to the broker's own knobs.
func Default() Config {
	return Config{
		NodeID:              1,
		HTTPAddr:            "127.0.0.1:8080",
		DataDir:             "./broker-data",
		LogLevel:            log.InfoLevel,
		LogJSON:             false,
		SegmentSizeBytes:    64 * 1024 * 1024,
		TimeoutScanInterval: types.DefaultTimeoutScanInterval,
		ConsumerGrace:       types.DefaultConsumerGrace,
	}
}

// RegisterFlags attaches every Config flag to cmd's persistent flag set,
// one HandleFunc-style registration per flag, matching the
// rootCmd.PersistentFlags().String(...)/Bool(...)/Int(...) calls
// cmd/warren/main.go's init() makes.
func RegisterFlags(cmd *cobra.Command) {
	d := Default()
	cmd.PersistentFlags().Uint64("node-id", uint64(d.NodeID), "This broker's node id")
	cmd.PersistentFlags().String("http-addr", d.HTTPAddr, "Address the /v1 and /stats HTTP API listens on")
	cmd.PersistentFlags().String("data-dir", d.DataDir, "Directory for the transaction log segments and catalog snapshot")
	cmd.PersistentFlags().String("log-level", string(d.LogLevel), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", d.LogJSON, "Output logs in JSON format")
	cmd.PersistentFlags().Int64("segment-size-bytes", d.SegmentSizeBytes, "Transaction log segment size before rolling over")
	cmd.PersistentFlags().Duration("timeout-scan-interval", d.TimeoutScanInterval, "Cadence of the ack-timeout redelivery scan")
	cmd.PersistentFlags().Duration("consumer-grace", d.ConsumerGrace, "Grace period before an idle consumer's leases are released")
}

// FromFlags reads every registered flag back into a Config, the same
// cmd.Flags().GetString(...)-per-field pattern cmd/warren/main.go's
// command bodies use.
func FromFlags(cmd *cobra.Command) (Config, error) {
	cfg := Default()

	nodeID, err := cmd.Flags().GetUint64("node-id")
	if err != nil {
		return Config{}, err
	}
	cfg.NodeID = types.NodeID(nodeID)

	if cfg.HTTPAddr, err = cmd.Flags().GetString("http-addr"); err != nil {
		return Config{}, err
	}
	if cfg.DataDir, err = cmd.Flags().GetString("data-dir"); err != nil {
		return Config{}, err
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = log.Level(logLevel)
	if cfg.LogJSON, err = cmd.Flags().GetBool("log-json"); err != nil {
		return Config{}, err
	}
	if cfg.SegmentSizeBytes, err = cmd.Flags().GetInt64("segment-size-bytes"); err != nil {
		return Config{}, err
	}
	if cfg.TimeoutScanInterval, err = cmd.Flags().GetDuration("timeout-scan-interval"); err != nil {
		return Config{}, err
	}
	if cfg.ConsumerGrace, err = cmd.Flags().GetDuration("consumer-grace"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
