package conn

// Config defines properties that configure connection behaviour.
type Config struct {
	// WriteBufSize is the size, in bytes, of the buffered writer sitting in
	// front of the transport. Requests accumulate here until Flush is called.
	WriteBufSize int
	// EventQueueHint is the initial capacity reserved for the event queue.
	EventQueueHint int
}

// DefaultConfig is merged into any caller-supplied Config to fill in zero values.
var DefaultConfig = &Config{
	WriteBufSize:   16 * 1024,
	EventQueueHint: 16,
}
