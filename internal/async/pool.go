package async

import (
	"hash/fnv"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// stripes is the number of per-key submission locks. A client's
// subscribe/unsubscribe calls hash to the same stripe and are therefore
// serialised in submission order, even though the underlying ants pool
// runs many goroutines concurrently across different clients.
const stripes = 256

// Pool wraps an ants goroutine pool and adds per-key FIFO submission,
// so that two calls submitted for the same key (typically a clientId)
// can never be reordered by the pool's scheduler, per the ordering
// guarantee a subscription service must uphold for a single client's
// request stream.
type Pool struct {
	inner *ants.Pool
	locks [stripes]sync.Mutex
	tails [stripes]chan struct{} // last task submitted per stripe, closed when it finishes
}

// New returns a Pool backed by an ants goroutine pool of the given size.
// size <= 0 uses ants' default.
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = ants.DefaultAntsPoolSize
	}
	inner, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &Pool{inner: inner}, nil
}

// Release shuts the pool down. It does not wait for in-flight tasks to
// finish.
func (p *Pool) Release() {
	p.inner.Release()
}

// Submit runs fn on the pool and resolves the returned Future with
// whatever fn returns. key is used only to pick a submission stripe:
// tasks on the same stripe run one at a time, each waiting for the task
// submitted before it, so they execute in Submit call order. Unrelated
// keys that hash to the same stripe are serialised as well.
func (p *Pool) Submit(key string, fn func() error) *Future {
	fut := NewFuture()
	s := stripeOf(key)
	p.locks[s].Lock()
	defer p.locks[s].Unlock()

	prev, done := p.tails[s], make(chan struct{})
	err := p.inner.Submit(func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		fut.Resolve(fn())
	})
	if err != nil {
		fut.Resolve(err)
		return fut
	}
	p.tails[s] = done
	return fut
}

func stripeOf(key string) uint32 {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % stripes
}
