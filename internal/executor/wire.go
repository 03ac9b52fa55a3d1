package executor

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// request/response are the length-prefixed JSON frames exchanged with
// a process-pool worker subprocess over its stdin/stdout pipes.
type request struct {
	ID      uint64          `json:"id"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

type response struct {
	ID    uint64 `json:"id"`
	Value any    `json:"value,omitempty"`
	Err   string `json:"err,omitempty"`
}

const maxFrameBytes = 64 << 20 // 64 MiB, generous for a mail message payload

func writeFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("executor: encode frame: %w", err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("executor: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("executor: write frame body: %w", err)
	}
	return nil
}

func marshalPayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("executor: marshal job payload: %w", err)
	}
	return json.RawMessage(b), nil
}

func readFrame(r *bufio.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return fmt.Errorf("executor: frame of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("executor: read frame body: %w", err)
	}
	return json.Unmarshal(body, v)
}
