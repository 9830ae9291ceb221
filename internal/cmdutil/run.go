package cmdutil

import "context"

// RunStream runs each job in order and streams every result it yields via
// send. It stops at the first job or send error, or when ctx is cancelled,
// and returns the number of results sent.
func RunStream[J, T any](
	ctx context.Context,
	jobs []J,
	run func(context.Context, J) ([]T, error),
	send func(T) error,
) (int, error) {
	total := 0
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		outs, err := run(ctx, j)
		for _, o := range outs {
			if sErr := send(o); sErr != nil {
				return total, sErr
			}
			total++
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
