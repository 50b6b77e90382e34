/*
Package log provides structured logging for the broker using zerolog.

A single global Logger is configured once via Init and then narrowed with
component- and entity-scoped child loggers:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("partition").With().
		Uint64("partition_id", uint64(p.ID)).Logger()
	logger.Info().Msg("ledger opened")

Component loggers exist for the broker's own entities (topic, partition,
subscription) in place of the orchestration-flavored node/service/task
fields a different domain would use.
*/
package log
