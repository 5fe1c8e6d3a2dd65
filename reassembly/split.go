package reassembly

import (
	"errors"

	"github.com/opd-ai/toxnet/wire"
)

// ErrInvalidChunkSize is returned by Split for chunk sizes below one byte.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Fragment is one piece of an outgoing payload.
type Fragment struct {
	Marker  wire.FragmentMarker
	Payload []byte
}

// Split cuts data into fragments of at most chunkSize bytes. A payload that
// fits into one chunk yields a single standalone fragment; otherwise every
// fragment but the last carries MarkerFragment and the last carries
// MarkerFinal. Fragment payloads alias data.
func Split(data []byte, chunkSize int) ([]Fragment, error) {
	if chunkSize < 1 {
		return nil, ErrInvalidChunkSize
	}
	if len(data) == 0 {
		return nil, wire.ErrEmptyPayload
	}

	if len(data) <= chunkSize {
		return []Fragment{{Marker: wire.MarkerStandalone, Payload: data}}, nil
	}

	frags := make([]Fragment, 0, (len(data)+chunkSize-1)/chunkSize)
	for remaining := data; len(remaining) > 0; {
		n := min(len(remaining), chunkSize)
		marker := wire.MarkerFragment
		if len(remaining) <= chunkSize {
			marker = wire.MarkerFinal
		}
		frags = append(frags, Fragment{Marker: marker, Payload: remaining[:n]})
		remaining = remaining[n:]
	}
	return frags, nil
}
