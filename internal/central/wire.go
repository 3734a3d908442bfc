package central

// MaxWriteChunk is the ATT payload of the minimum MTU (23 - 3 header bytes).
const MaxWriteChunk = 20

// SplitPayload splits data into pieces of at most size bytes. Empty data yields one
// empty piece so that an empty write still reaches the peer.
func SplitPayload(data []byte, size int) [][]byte {
	if size <= 0 || len(data) <= size {
		return [][]byte{data}
	}
	parts := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > size {
		parts = append(parts, data[:size])
		data = data[size:]
	}
	return append(parts, data)
}
