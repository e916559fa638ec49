package conn

import "github.com/imdario/mergo"

// connConfig is the resolved configuration produced by applying every
// Option over the package defaults.
type connConfig struct {
	trace *ClientTrace

	writeBufSize   int
	eventQueueHint int

	// bigRequestsOpcode and xcMiscOpcode are the major opcodes the server has
	// assigned the BigRequests and XC-MISC extensions, respectively. Resolving
	// an extension's opcode is an extension-registry lookup, out of scope for
	// this core (spec.md §1): callers that have already done a
	// QueryExtension round trip supply the result here. Zero disables the
	// corresponding negotiation (MaximumRequestBytes falls back to the setup
	// value; GenerateID treats range exhaustion as fatal).
	bigRequestsOpcode uint8
	xcMiscOpcode      uint8
}

// Option configures a Conn at construction time.
type Option func(*connConfig)

// WithConfig overrides the buffer-sizing defaults in DefaultConfig. Zero
// fields in c are filled in from DefaultConfig.
func WithConfig(c *Config) Option {
	return func(cc *connConfig) {
		merged := *c
		_ = mergo.Merge(&merged, *DefaultConfig)
		cc.writeBufSize = merged.WriteBufSize
		cc.eventQueueHint = merged.EventQueueHint
	}
}

// WithTrace installs hooks fired around reads, writes, and request
// execution. Unset hooks fall back to no-ops.
func WithTrace(trace *ClientTrace) Option {
	return func(cc *connConfig) { cc.trace = trace }
}

// WithBigRequestsOpcode supplies the major opcode the server has assigned
// the BigRequests extension, enabling MaximumRequestBytes to negotiate an
// extended request size via BigRequests.Enable.
func WithBigRequestsOpcode(opcode uint8) Option {
	return func(cc *connConfig) { cc.bigRequestsOpcode = opcode }
}

// WithXCMiscOpcode supplies the major opcode the server has assigned the
// XC-MISC extension, enabling GenerateID to refill its range via
// GetXIDRange once the initial server-granted range is exhausted.
func WithXCMiscOpcode(opcode uint8) Option {
	return func(cc *connConfig) { cc.xcMiscOpcode = opcode }
}

func resolveConfig(opts []Option) *connConfig {
	cfg := &connConfig{
		writeBufSize:   DefaultConfig.WriteBufSize,
		eventQueueHint: DefaultConfig.EventQueueHint,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.trace == nil {
		cfg.trace = NoOpLoggingHooks
	} else {
		merged := *cfg.trace
		_ = mergo.Merge(&merged, NoOpLoggingHooks)
		cfg.trace = &merged
	}
	return cfg
}
