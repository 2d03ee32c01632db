// Package logx is a thin structured logging layer over zerolog.
//
// It exposes a value-type Logger with functional Field helpers so call
// sites read like:
//
//	log.Info("rebuilt schedule", logx.Int("triggers", n))
//
// A Logger created from a Service stays "live" across Service.Apply()
// calls, which lets the config watcher retune level and sinks at runtime
// without handing out new logger instances.
package logx
