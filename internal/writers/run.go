package writers

import (
	"encoding/json"
	"io"

	"bci/internal/jsonlutil"
	"bci/internal/output"
	"bci/internal/runner"
)

func init() {
	RegisterRun("text", output.WriteText)
	RegisterRun("json", func(w io.Writer, list []runner.Result, _ bool) error {
		return output.WriteJSON(w, list)
	})
	RegisterRun("jsonl", func(w io.Writer, list []runner.Result, _ bool) error {
		in, done := StartRunJSONLWriter(w, len(list))
		for _, r := range list {
			in <- r
		}
		close(in)
		return <-done
	})
}

// StartRunJSONLWriter streams each run result as one JSON line (v1).
func StartRunJSONLWriter(out io.Writer, bufSize int) (chan<- runner.Result, <-chan error) {
	return jsonlutil.Start[runner.Result](out, bufSize,
		func(enc *json.Encoder, r runner.Result) error {
			return enc.Encode(output.ToAPIRun(r))
		},
		IsBrokenPipe,
	)
}
