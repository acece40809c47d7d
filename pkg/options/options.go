// Package options implements functional options shared by configurable types.
package options

type Option func(cfg interface{})

// Apply applies option funcs to a configuration struct pointer.
func Apply(optionsStructPtr interface{}, opts ...Option) {
	for _, opt := range opts {
		opt(optionsStructPtr)
	}
}
