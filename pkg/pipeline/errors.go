package pipeline

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrPipelineMustBeSet = errors.New("pipeline must be set")
	ErrInputMustBeSet    = errors.New("input must be set")
	ErrSplitterTotal     = errors.New("total must be greater than 0")
)

type errorChans struct {
	mu   sync.Mutex
	list []*errorChan
}

func (ec *errorChans) add(errChan *errorChan) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.list = append(ec.list, errChan)
}

func (ec *errorChans) all() []*errorChan {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	return append([]*errorChan(nil), ec.list...)
}

// errorChan carries at most one error of a named step and is closed when the
// step returns.
type errorChan struct {
	c    <-chan error
	name string
}

func newErrorChan(name string, c <-chan error) *errorChan {
	return &errorChan{
		c:    c,
		name: name,
	}
}

// mergeErrors fans every step error channel into one channel, prefixing each
// error with the step name. The returned channel is closed once every input
// channel is closed.
func mergeErrors(cs ...*errorChan) <-chan error {
	var wg sync.WaitGroup
	// one slot per step so that forwarding never blocks when the reader
	// stopped at the first error
	out := make(chan error, len(cs))

	forward := func(c *errorChan) {
		defer wg.Done()
		if c.c == nil {
			return
		}
		for err := range c.c {
			out <- errors.Wrap(err, c.name)
		}
	}

	wg.Add(len(cs))
	for _, c := range cs {
		go forward(c)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
