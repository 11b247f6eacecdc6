package mapview

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"gioui.org/io/clipboard"
	"gioui.org/io/input"
	"gioui.org/layout"
	"gioui.org/widget"
	"github.com/sirupsen/logrus"
	sysclip "golang.design/x/clipboard"
)

// ClipboardError reports that neither clipboard path took the text.
type ClipboardError struct {
	Direct   error
	Fallback error
}

func (e *ClipboardError) Error() string {
	return fmt.Sprintf("copy to clipboard: direct: %v; fallback: %v", e.Direct, e.Fallback)
}

func (e *ClipboardError) Unwrap() []error {
	return []error{e.Direct, e.Fallback}
}

var (
	ErrNoDirectClipboard = errors.New("direct clipboard disabled")
	ErrClipboardRefused  = errors.New("clipboard write refused")
)

// TextWriter writes text straight to the system clipboard.
type TextWriter interface {
	WriteText(text string) error
}

// SystemClipboard is the OS clipboard. It is initialised on first use; when
// the platform has no clipboard every write fails.
type SystemClipboard struct {
	once sync.Once
	err  error
}

func (c *SystemClipboard) WriteText(text string) error {
	c.once.Do(func() { c.err = sysclip.Init() })
	if c.err != nil {
		return c.err
	}
	if sysclip.Write(sysclip.FmtText, []byte(text)) == nil {
		return ErrClipboardRefused
	}
	return nil
}

// Copier places text on the clipboard. The direct path is tried first. When
// it fails the text goes to an off-screen editor buffer whose content becomes
// a gio clipboard command on the next frame; the buffer is then emptied.
type Copier struct {
	direct TextWriter
	log    logrus.FieldLogger

	mu      sync.Mutex
	buffer  widget.Editor
	pending bool
	want    string
	direr   error

	// execute runs a command against the frame; replaced in tests.
	execute func(gtx layout.Context, cmd input.Command)
	// observe sees the buffer content right before it is emptied.
	observe func(text string)
}

// NewCopier returns a Copier using direct, which may be nil to use only the
// fallback path.
func NewCopier(direct TextWriter, log logrus.FieldLogger) *Copier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Copier{
		direct:  direct,
		log:     log,
		execute: func(gtx layout.Context, cmd input.Command) { gtx.Execute(cmd) },
	}
	c.buffer.SingleLine = true
	return c
}

// Copy writes text. done is true when the text is already on the clipboard;
// otherwise the write completes on the next Flush.
func (c *Copier) Copy(text string) (done bool) {
	var err error = ErrNoDirectClipboard
	if c.direct != nil {
		if err = c.direct.WriteText(text); err == nil {
			return true
		}
		c.log.WithError(err).Debug("mapview: direct clipboard failed, using fallback")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer.SetText(text)
	c.pending = true
	c.want = text
	c.direr = err
	return false
}

// Pending reports whether a fallback write waits for the next frame.
func (c *Copier) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Flush completes a pending fallback write. ok is false when nothing was
// pending; err is a *ClipboardError when the buffer lost the text.
func (c *Copier) Flush(gtx layout.Context) (ok bool, err error) {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return false, nil
	}
	c.pending = false
	text := c.buffer.Text()
	if c.observe != nil {
		c.observe(text)
	}
	c.buffer.SetText("")
	want, direr := c.want, c.direr
	c.want = ""
	c.mu.Unlock()

	if text == "" || text != want {
		return true, &ClipboardError{Direct: direr, Fallback: fmt.Errorf("buffer holds %q", text)}
	}
	c.execute(gtx, clipboard.WriteCmd{
		Type: "application/text",
		Data: io.NopCloser(strings.NewReader(text)),
	})
	return true, nil
}
