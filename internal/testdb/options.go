package testdb

type options struct {
	bindPort int
	debug    bool
}

type OptionsFunc func(o *options)

// WithBindPort binds the container port to a fixed host port instead of a random one.
func WithBindPort(n int) OptionsFunc {
	return func(o *options) { o.bindPort = n }
}

// WithDebug keeps the container around after cleanup.
func WithDebug(b bool) OptionsFunc {
	return func(o *options) { o.debug = b }
}
