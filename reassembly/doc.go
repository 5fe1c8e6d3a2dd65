// Package reassembly splits large lossless payloads into channel fragments and
// joins them back together on the receiving side.
//
// Tox delivers lossless custom packets reliably and in order per friend, so the
// receiver never reorders: each fragment is appended to the tail of the buffer
// kept for its (peer, channel) pair until the final fragment arrives.
//
// Each (peer, channel) pair moves between two states:
//
//	IDLE         --marker 1--> ACCUMULATING
//	ACCUMULATING --marker 1--> ACCUMULATING
//	ACCUMULATING --marker 2--> IDLE (payload emitted)
//
// There is no timeout. A sender that fails halfway leaves the receiving buffer
// ACCUMULATING until Reset, ResetPeer or ResetAll is called.
//
// A Reassembler is not safe for concurrent use; it is owned by the channel
// multiplexer, which serializes access.
package reassembly
