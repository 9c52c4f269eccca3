package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/adamavenir/chatbus/internal/bus"
)

// execMsg carries a bus callback into the bubbletea event loop.
type execMsg func()

// ProgramExecutor runs bus callbacks inside a bubbletea program's Update.
// Program.Send blocks until the event loop takes the message, so sends are
// forwarded from a FIFO goroutine and Post never blocks the poller.
type ProgramExecutor struct {
	program *tea.Program
	queue   *bus.UIQueue
}

// NewProgramExecutor forwards posted closures to program.
func NewProgramExecutor(program *tea.Program) *ProgramExecutor {
	return &ProgramExecutor{program: program, queue: bus.NewUIQueue()}
}

// Post enqueues fn for the event loop.
func (e *ProgramExecutor) Post(fn func()) {
	e.queue.Post(func() { e.program.Send(execMsg(fn)) })
}

// Close stops forwarding. Call it after the program has exited.
func (e *ProgramExecutor) Close() {
	e.queue.Close()
}
