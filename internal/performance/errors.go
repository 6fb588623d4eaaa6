// Package performance runs virtual users against an inference endpoint.
//
// A VUScheduler owns the pool of virtual users; executors in the executor
// subpackage drive it along a stage timeline.
package performance

import "fmt"

// ConfigError reports a configuration problem detected before any virtual
// user is spawned. It is always fatal to the run.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}
