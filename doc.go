// Package toxnet multiplexes independent logical channels over Tox custom
// packets.
//
// Tox lets applications send raw lossy packets (first byte 192-254) and
// lossless packets (first byte 160-191) to friends. Channeled turns those two
// byte ranges into ten logical channels, each configured once as lossy or
// lossless, splits lossless payloads that do not fit a single packet into
// fragments, and buffers completed packets per peer and channel until a
// consumer drains them.
//
// # Getting Started
//
//	transport := factory.NewTransportFactory().CreateSimulationForTesting()
//
//	var types [wire.MaxChannels]wire.ChannelType
//	types[3] = wire.ChannelLossy // position updates
//
//	net, err := toxnet.NewChanneled(transport, toxnet.WithChannelTypes(types))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	e := engine.New()
//	e.AddService(net)
//	if err := e.Enable(); err != nil {
//	    log.Fatal(err)
//	}
//
//	_ = net.SendPacketLarge(friendID, 0, snapshot)
//
//	for {
//	    e.Tick() // pulls fresh packets
//	    net.ForEachPacket(func(peer uint32, ch wire.ChannelID, data []byte) bool {
//	        handle(peer, ch, data)
//	        return true // remove
//	    })
//	}
//
// # Wire Format
//
// Every packet starts with two bytes: the channel byte (161+channel for
// lossless, 192+channel for lossy) and a fragment marker (0 standalone, 1
// fragment, 2 final fragment; always 0 for lossy). See package wire.
//
// # Delivery Guarantees
//
// Lossless channels inherit the per-friend ordering of Tox lossless packets,
// which is what makes fragment reassembly possible without sequence numbers.
// Lossy channels may drop or reorder packets and are never fragmented.
//
// # Malformed Input
//
// Received packets that are too short, use the reserved control byte 160, map
// to a channel outside the channel space or carry an unknown fragment marker
// are dropped silently. They only show up in GetTypedStats.
//
// # Thread Safety
//
// Channeled is safe for concurrent use. Sends on one (peer, channel) are
// serialized, so the fragments of concurrent SendPacketLarge calls never
// interleave on the wire. Visit functions passed to the ForEachPacket family
// run with the inbox locked. They may call the send methods, BroadcastPacket,
// SendValue, AddPeer, Peers, GetTypedStats and the channel queries. They must
// not call ForEachPacket*, PullFreshPackets, ClearPackets, ResetChannel,
// ResetFragments or RemovePeer of the same Channeled.
package toxnet
