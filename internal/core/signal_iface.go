package core

// Frame is a raw payload written to a channel member.
type Frame []byte

// SignalConnection abstracts the messaging transport of one member.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
