// interface.go - Terminal interface: board drawing, mouse and keyboard input
package main

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mattn/go-runewidth"
	"github.com/nsf/termbox-go"

	"damas/shared"
)

// Screen layout. Each square is cellWidth columns wide and one row tall.
const (
	boardTop  = 2
	boardLeft = 4
	cellWidth = 3
)

// cellAt maps a screen coordinate to the square under it.
func cellAt(x, y, n int) (shared.Position, bool) {
	if x < boardLeft || y < boardTop {
		return shared.Position{}, false
	}
	p := shared.Position{Row: y - boardTop, Col: (x - boardLeft) / cellWidth}
	if !p.Within(n) {
		return shared.Position{}, false
	}
	return p, true
}

// cellOrigin is the screen coordinate of the leftmost column of p.
func cellOrigin(p shared.Position) (x, y int) {
	return boardLeft + p.Col*cellWidth, boardTop + p.Row
}

type action int

const (
	actNone action = iota
	actQuit
	actUp
	actDown
	actLeft
	actRight
	actActivate
	actClick
	actKey
	actRedraw
)

// actionFor classifies a raw terminal event.
func actionFor(ev termbox.Event) action {
	switch ev.Type {
	case termbox.EventResize:
		return actRedraw
	case termbox.EventMouse:
		if ev.Key == termbox.MouseLeft {
			return actClick
		}
		return actNone
	case termbox.EventKey:
	default:
		return actNone
	}
	switch ev.Key {
	case termbox.KeyEsc, termbox.KeyCtrlC:
		return actQuit
	case termbox.KeyArrowUp:
		return actUp
	case termbox.KeyArrowDown:
		return actDown
	case termbox.KeyArrowLeft:
		return actLeft
	case termbox.KeyArrowRight:
		return actRight
	case termbox.KeyEnter, termbox.KeySpace:
		return actActivate
	}
	switch ev.Ch {
	case 'q', 'Q':
		return actQuit
	case 0:
		return actNone
	}
	return actKey
}

// moveCursor steps the cursor one square, staying on the board.
func moveCursor(p shared.Position, a action, n int) shared.Position {
	next := p
	switch a {
	case actUp:
		next.Row--
	case actDown:
		next.Row++
	case actLeft:
		next.Col--
	case actRight:
		next.Col++
	}
	if !next.Within(n) {
		return p
	}
	return next
}

// UI draws frames with termbox and turns terminal events into Dispatcher
// events. Drawing happens under mu, from the orchestrator and from the
// event pump.
type UI struct {
	mu     sync.Mutex
	input  *Dispatcher
	quit   context.CancelFunc
	frame  Frame
	cursor shared.Position
	prompt string
	anyKey bool // WaitKey is showing; every key or click dismisses it
	done   chan struct{}
}

// NewUI takes over the terminal. quit is called on Esc, Ctrl-C or q.
func NewUI(input *Dispatcher, quit context.CancelFunc) (*UI, error) {
	if err := termbox.Init(); err != nil {
		return nil, fmt.Errorf("termbox: %w", err)
	}
	termbox.SetInputMode(termbox.InputEsc | termbox.InputMouse)
	termbox.SetOutputMode(termbox.OutputNormal)

	ui := &UI{
		input:  input,
		quit:   quit,
		frame:  Frame{Snapshot: shared.StartingSnapshot(shared.DefaultSize)},
		cursor: shared.Position{Row: shared.DefaultSize - 1},
		done:   make(chan struct{}),
	}
	go ui.pump()
	return ui, nil
}

// Close stops the event pump and restores the terminal.
func (ui *UI) Close() {
	termbox.Interrupt()
	<-ui.done
	termbox.Close()
}

func (ui *UI) pump() {
	defer close(ui.done)
	for {
		ev := termbox.PollEvent()
		switch ev.Type {
		case termbox.EventInterrupt:
			return
		case termbox.EventError:
			log.Printf("[input] terminal error: %v", ev.Err)
			ui.quit()
			return
		}
		ui.handle(ev)
	}
}

func (ui *UI) handle(ev termbox.Event) {
	ui.mu.Lock()
	waiting := ui.anyKey
	ui.mu.Unlock()
	if waiting && dismisses(ev) {
		ui.input.Dispatch(KeyEvent(ev.Ch))
		return
	}

	a := actionFor(ev)
	switch a {
	case actNone:
	case actQuit:
		log.Printf("[input] quit requested")
		ui.quit()
	case actRedraw:
		ui.redraw()
	case actUp, actDown, actLeft, actRight:
		ui.mu.Lock()
		ui.cursor = moveCursor(ui.cursor, a, ui.frame.Snapshot.Board.Size())
		ui.draw()
		ui.mu.Unlock()
	case actActivate:
		ui.mu.Lock()
		p := ui.cursor
		ui.mu.Unlock()
		ui.input.Dispatch(CellEvent(p))
	case actClick:
		ui.mu.Lock()
		p, ok := cellAt(ev.MouseX, ev.MouseY, ui.frame.Snapshot.Board.Size())
		if ok {
			ui.cursor = p
			ui.draw()
		}
		ui.mu.Unlock()
		if ok {
			ui.input.Dispatch(CellEvent(p))
		}
	case actKey:
		ui.input.Dispatch(KeyEvent(ev.Ch))
	}
}

// dismisses reports whether ev ends a WaitKey prompt: any key except the
// quit keys, or a left click anywhere.
func dismisses(ev termbox.Event) bool {
	switch actionFor(ev) {
	case actQuit, actRedraw:
		return false
	case actClick:
		return true
	}
	return ev.Type == termbox.EventKey
}

// Render implements View.
func (ui *UI) Render(f Frame) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.frame = f
	ui.draw()
}

// PromptRetry implements RetryPrompter: r or y retries, n gives up.
func (ui *UI) PromptRetry(ctx context.Context, err error) bool {
	l, lerr := ui.input.Listen()
	if lerr != nil {
		log.Printf("[input] cannot prompt: %v", lerr)
		return false
	}
	defer l.Close()

	ui.setPrompt(fmt.Sprintf("%v. Retry? [r/y] retry, [n] give up, [q] quit", err))
	defer ui.setPrompt("")
	for {
		select {
		case <-ctx.Done():
			return false
		case ev := <-l.Events():
			if ev.Kind != EventKey {
				continue
			}
			switch ev.Ch {
			case 'r', 'R', 'y', 'Y':
				return true
			case 'n', 'N':
				return false
			}
		}
	}
}

// WaitKey shows msg and blocks until any key or click, or until ctx ends.
// Arrows and Enter count as keys here; quit keys end ctx.
func (ui *UI) WaitKey(ctx context.Context, msg string) {
	l, err := ui.input.Listen()
	if err != nil {
		return
	}
	defer l.Close()
	ui.mu.Lock()
	ui.anyKey = true
	ui.mu.Unlock()
	defer func() {
		ui.mu.Lock()
		ui.anyKey = false
		ui.mu.Unlock()
	}()
	ui.setPrompt(msg)
	select {
	case <-ctx.Done():
	case <-l.Events():
	}
}

func (ui *UI) setPrompt(s string) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.prompt = s
	ui.draw()
}

func (ui *UI) redraw() {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.draw()
}

// draw repaints everything. Callers hold mu.
func (ui *UI) draw() {
	const bg = termbox.ColorDefault
	termbox.Clear(termbox.ColorDefault, bg)

	f := ui.frame
	board := f.Snapshot.Board
	n := board.Size()
	width, _ := termbox.Size()

	drawText(0, 0, width, "Damas", termbox.ColorDefault|termbox.AttrBold, bg)

	for c := 0; c < n; c++ {
		x, _ := cellOrigin(shared.Position{Col: c})
		drawText(x+1, boardTop-1, width, string(rune('0'+c%10)), termbox.ColorYellow, bg)
	}

	targets := make(map[shared.Position]bool, len(f.Targets))
	for _, t := range f.Targets {
		targets[t] = true
	}

	for r := 0; r < n; r++ {
		drawText(boardLeft-2, boardTop+r, width, fmt.Sprint(r%10), termbox.ColorYellow, bg)
		for c := 0; c < n; c++ {
			p := shared.Position{Row: r, Col: c}
			fg, cellBg := squareStyle(p, board.At(p))
			switch {
			case f.Selection != nil && *f.Selection == p:
				cellBg = termbox.ColorYellow
			case targets[p]:
				cellBg = termbox.ColorCyan
			}
			if p == ui.cursor {
				fg |= termbox.AttrReverse
			}
			x, y := cellOrigin(p)
			ch := ' '
			if piece := board.At(p); !piece.IsEmpty() {
				ch = rune(piece)
			}
			termbox.SetCell(x, y, ' ', fg, cellBg)
			termbox.SetCell(x+1, y, ch, fg, cellBg)
			termbox.SetCell(x+2, y, ' ', fg, cellBg)
		}
	}

	line := boardTop + n + 1
	counts := fmt.Sprintf("red (you) %d   black (engine) %d   turn: %s",
		f.Snapshot.NumRed, f.Snapshot.NumBlack, f.Phase.Side())
	drawText(0, line, width, counts, termbox.ColorDefault, bg)

	status := f.Status
	if f.Outcome != nil {
		status = "Game over: " + f.Outcome.String()
	}
	drawText(0, line+1, width, status, termbox.ColorGreen, bg)
	drawText(0, line+2, width, ui.prompt, termbox.ColorRed, bg)
	drawText(0, line+4, width, "mouse or arrows+Enter to move, q or Esc to quit", termbox.ColorDefault, bg)

	if err := termbox.Flush(); err != nil {
		log.Printf("[input] flush: %v", err)
	}
}

func squareStyle(p shared.Position, piece shared.Piece) (fg, bg termbox.Attribute) {
	bg = termbox.ColorWhite
	if (p.Row+p.Col)%2 == 1 {
		bg = termbox.ColorGreen
	}
	switch piece.Color() {
	case shared.Red:
		fg = termbox.ColorRed
	case shared.Black:
		fg = termbox.ColorBlack
	default:
		fg = termbox.ColorDefault
	}
	if piece.IsKing() {
		fg |= termbox.AttrBold
	}
	return fg, bg
}

// drawText writes s at (x,y), cut to fit the screen width.
func drawText(x, y, width int, s string, fg, bg termbox.Attribute) {
	if room := width - x; room > 0 && runewidth.StringWidth(s) > room {
		s = runewidth.Truncate(s, room, "…")
	}
	for _, r := range s {
		termbox.SetCell(x, y, r, fg, bg)
		x += runewidth.RuneWidth(r)
	}
}
