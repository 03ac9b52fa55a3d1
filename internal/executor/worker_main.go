package executor

import (
	"bufio"
	"context"
	"io"
	"os"
)

// RunWorkerMain is the re-exec'd subprocess's entire body: read one
// request frame from stdin, dispatch it through registry, write one
// response frame to stdout, repeat until stdin closes. Call this from
// main when WorkerEnvVar is set, with a Registry built the same way
// as the parent process's.
//
// RunWorkerMain never returns an error for a clean stdin close; it
// returns the underlying read error otherwise.
func RunWorkerMain(registry *Registry) error {
	in := bufio.NewReader(os.Stdin)
	out := os.Stdout

	for {
		var req request
		if err := readFrame(in, &req); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		val, err := registry.Dispatch(context.Background(), Job{Op: req.Op, Payload: req.Payload})
		resp := response{ID: req.ID, Value: val}
		if err != nil {
			resp.Err = err.Error()
		}
		if werr := writeFrame(out, resp); werr != nil {
			return werr
		}
	}
}
