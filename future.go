package dictload

import "context"

// Callback receives the outcome of LoadWithCallback: (nil, data) on success
// or (err, nil) on failure.
type Callback func(err error, data []byte)

// LoadWithCallback loads id in a new goroutine and invokes cb exactly once.
func LoadWithCallback(ctx context.Context, l Loader, id string, cb Callback) {
	f := Go(ctx, l, id)
	go func() {
		<-f.done
		cb(f.err, f.data)
	}()
}

// Future is the pending result of an asynchronous load.
type Future struct {
	done chan struct{}
	data []byte
	err  error
}

// Go starts loading id in a new goroutine.
func Go(ctx context.Context, l Loader, id string) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		data, err := l.Load(ctx, id)
		if err != nil {
			f.err = err
			return
		}
		f.data = data
	}()
	return f
}

// Done is closed when the load finishes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the load finishes or ctx ends. Ending ctx abandons the
// wait only; the load itself runs under the context passed to Go.
func (f *Future) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
