package protocol

import "fmt"

const (
	// ChunkSize is the maximum size of a single chunk message.
	ChunkSize = 100 * 1024

	// EndOfStream is the text message terminating a chunked transfer.
	EndOfStream = "Done"
)

// Sink is the write side of a DataChannel as seen by SendChunked.
type Sink interface {
	Send(data []byte) error
	SendText(text string) error
}

// SendChunked writes buf as consecutive ChunkSize slices in offset order,
// then the EndOfStream sentinel. A buffer no larger than ChunkSize (including
// an empty one) goes out as exactly one chunk. There are no per-chunk
// acknowledgements; the receiver concatenates messages until the sentinel.
//
// A failed send aborts the transfer before the sentinel, so the receiver
// never sees a truncated body marked complete.
func SendChunked(sink Sink, buf []byte) error {
	offset := 0
	for {
		end := min(offset+ChunkSize, len(buf))
		if err := sink.Send(buf[offset:end]); err != nil {
			return fmt.Errorf("send chunk at offset %d: %w", offset, err)
		}
		offset = end
		if offset >= len(buf) {
			break
		}
	}

	if err := sink.SendText(EndOfStream); err != nil {
		return fmt.Errorf("send end-of-stream: %w", err)
	}
	return nil
}

// ChunkCount returns the number of chunk messages SendChunked emits for a
// body of n bytes, sentinel excluded.
func ChunkCount(n int) int {
	if n <= ChunkSize {
		return 1
	}
	return (n + ChunkSize - 1) / ChunkSize
}
