package testutils

import (
	"io"
	"strings"
	"sync"
)

// BlockingInput is an io.Reader standing in for a terminal nobody types into.
// Read blocks until Release, then serves the released text.
type BlockingInput struct {
	entered     chan struct{}
	released    chan struct{}
	enterOnce   sync.Once
	releaseOnce sync.Once

	mu   sync.Mutex
	text *strings.Reader
}

// NewBlockingInput creates a BlockingInput with nothing typed yet
func NewBlockingInput() *BlockingInput {
	return &BlockingInput{
		entered:  make(chan struct{}),
		released: make(chan struct{}),
		text:     strings.NewReader(""),
	}
}

// Entered is closed once a reader is waiting for input
func (b *BlockingInput) Entered() <-chan struct{} {
	return b.entered
}

// Release unblocks readers with text followed by EOF. Only the first call has effect.
func (b *BlockingInput) Release(text string) {
	b.releaseOnce.Do(func() {
		b.mu.Lock()
		b.text = strings.NewReader(text)
		b.mu.Unlock()
		close(b.released)
	})
}

func (b *BlockingInput) Read(p []byte) (int, error) {
	b.enterOnce.Do(func() { close(b.entered) })
	<-b.released

	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.text.Read(p)
	if err != nil {
		return n, io.EOF
	}
	return n, nil
}
