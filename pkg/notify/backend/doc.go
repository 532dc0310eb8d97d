// Package backend turns a Config, usually loaded from NOTIFY_* environment
// variables, into connected notify storage plus the optional Redis sequencer
// and fan-out.
//
//	var cfg backend.Config
//	config.MustLoad(&cfg)
//	b, err := backend.Open(ctx, cfg, log)
//	if err != nil { ... }
//	defer b.Close()
package backend
