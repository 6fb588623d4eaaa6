package executor

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// constructors maps each supported executor type to its constructor.
var constructors = map[Type]func() Executor{
	TypeRampingVUs:  func() Executor { return NewRampingVUs() },
	TypeConstantVUs: func() Executor { return NewConstantVUs() },
}

// Types lists the supported executor types in sorted order.
func Types() []Type {
	types := make([]Type, 0, len(constructors))
	for t := range constructors {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// NewExecutor returns an uninitialized executor of the given type. Call
// Init before Run.
func NewExecutor(executorType Type) (Executor, error) {
	newFn, ok := constructors[executorType]
	if !ok {
		names := make([]string, 0, len(constructors))
		for _, t := range Types() {
			names = append(names, string(t))
		}
		return nil, fmt.Errorf("unknown executor type %q (supported: %s)", executorType, strings.Join(names, ", "))
	}
	return newFn(), nil
}

// CreateAndInitExecutor creates and initializes an executor for cfg.
func CreateAndInitExecutor(ctx context.Context, cfg *Config) (Executor, error) {
	exec, err := NewExecutor(cfg.Type)
	if err != nil {
		return nil, err
	}
	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}
	return exec, nil
}
