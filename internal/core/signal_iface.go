package core

// Frame is a raw encoded message for a watcher.
type Frame []byte

// SignalConnection abstracts a push transport to one watching client.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
