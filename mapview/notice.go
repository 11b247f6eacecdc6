package mapview

import (
	"sync"
	"time"
)

const (
	NoticeDuration = 2 * time.Second

	NoticeCopied     = "Coordinates copied"
	NoticeCopyFailed = "Failed to copy coordinates"
)

// Notice is a transient message. Showing a new one cancels the pending
// timer of the previous one.
type Notice struct {
	duration time.Duration
	onChange func()

	mu    sync.Mutex
	text  string
	timer *time.Timer
	gen   uint64
}

func NewNotice(duration time.Duration, onChange func()) *Notice {
	if duration <= 0 {
		duration = NoticeDuration
	}
	return &Notice{duration: duration, onChange: onChange}
}

func (n *Notice) Show(text string) {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
	}
	n.gen++
	gen := n.gen
	n.text = text
	n.timer = time.AfterFunc(n.duration, func() { n.expire(gen) })
	n.mu.Unlock()
	n.changed()
}

func (n *Notice) expire(gen uint64) {
	n.mu.Lock()
	if n.gen != gen {
		n.mu.Unlock()
		return
	}
	n.text = ""
	n.timer = nil
	n.mu.Unlock()
	n.changed()
}

// Text is the visible message, empty when none.
func (n *Notice) Text() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.text
}

// Stop hides the message and cancels its timer.
func (n *Notice) Stop() {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.gen++
	n.text = ""
	n.mu.Unlock()
}

func (n *Notice) changed() {
	if n.onChange != nil {
		n.onChange()
	}
}
