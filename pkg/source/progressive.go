// ABOUTME: Background-decoded PCM buffer shared by compressed sources
// ABOUTME: Reads block until the decoder has produced the requested range
package source

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// progressive accumulates PCM produced by a decode goroutine
type progressive struct {
	readAhead int

	mu   sync.Mutex
	cond *sync.Cond
	data []byte
	done bool
	err  error
	mark int // end of the most recent read

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newProgressive(readAhead int) *progressive {
	p := &progressive{readAhead: readAhead}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// start runs decode until it returns; decode feeds PCM through emit
func (p *progressive) start(decode func(ctx context.Context, emit func([]byte)) error) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := decode(ctx, p.append)
		if err == io.EOF || ctx.Err() != nil {
			err = nil
		}
		p.finish(err)
	}()
}

func (p *progressive) append(b []byte) {
	p.mu.Lock()
	p.data = append(p.data, b...)
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *progressive) finish(err error) {
	p.mu.Lock()
	p.done = true
	p.err = err
	p.mu.Unlock()
	p.cond.Broadcast()
}

// ready reports whether the decoder is a read-ahead window past the last read
func (p *progressive) ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done || len(p.data) >= p.mark+p.readAhead
}

// decoded returns the bytes produced so far and whether decoding finished
func (p *progressive) decoded() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.data), p.done
}

func (p *progressive) readAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %d", off)
	}
	want := int(off) + len(b)

	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.done && len(p.data) < want {
		p.cond.Wait()
	}
	if p.err != nil && len(p.data) < want {
		return 0, fmt.Errorf("decode failed: %w", p.err)
	}
	p.mark = min(want, len(p.data))
	return readAt(p.data, b, off)
}

// close stops the decoder and releases waiting readers
func (p *progressive) close() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}
