package toxnet

import "github.com/opd-ai/toxnet/wire"

// Option configures a Channeled at construction.
type Option func(*Channeled)

// WithChannelTypes sets the delivery class of every channel. Channel types are
// fixed for the lifetime of the service.
func WithChannelTypes(types [wire.MaxChannels]wire.ChannelType) Option {
	return func(c *Channeled) {
		c.channelTypes = types
	}
}

// WithResetFragmentsOnClear makes ClearPackets also discard open fragment
// buffers.
func WithResetFragmentsOnClear(reset bool) Option {
	return func(c *Channeled) {
		c.resetFragmentsOnClear = reset
	}
}
