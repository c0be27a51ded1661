// Package diskview draws the partition layout of a disk as a full-screen
// sector map, one glyph per run of sectors.
package diskview

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// UI is a terminal screen showing a title, summary and legend lines, a
// sector map, a partition list and status lines, top to bottom.
type UI struct {
	s            tcell.Screen
	ownsTerminal bool

	stopChan  chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once

	// nav receives +1/-1 for every down/up key press
	nav chan int

	title          string
	summaryLines   []string
	legendLines    []string
	mapLines       []string
	partitionLines []string
	statusLines    []string
}

// NewUI takes over the terminal.
func NewUI() (*UI, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	u, err := NewUIWithScreen(s)
	if err != nil {
		return nil, err
	}
	u.ownsTerminal = true
	return u, nil
}

// NewUIWithScreen runs the UI on s, which is initialized here.
func NewUIWithScreen(s tcell.Screen) (*UI, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	u := &UI{
		s:        s,
		stopChan: make(chan struct{}),
		nav:      make(chan int, 64),
	}
	go u.eventLoop()
	return u, nil
}

// Close stops the event loop and restores the terminal.
func (u *UI) Close() {
	u.closeOnce.Do(func() {
		u.RequestStop()
		u.s.Fini()
		if u.ownsTerminal {
			fmt.Print("\033[?1049l\033[?25h")
		}
	})
}

// RequestStop signals that the user wants to leave. It can be called
// multiple times safely.
func (u *UI) RequestStop() {
	u.stopOnce.Do(func() {
		close(u.stopChan)
		_ = u.s.PostEvent(tcell.NewEventInterrupt(nil))
	})
}

// Stopped is closed once a stop was requested.
func (u *UI) Stopped() <-chan struct{} {
	return u.stopChan
}

// IsStopped returns true if the user has requested to stop.
func (u *UI) IsStopped() bool {
	select {
	case <-u.stopChan:
		return true
	default:
		return false
	}
}

// Size returns the current screen width and height.
func (u *UI) Size() (width, height int) {
	return u.s.Size()
}

func putStr(s tcell.Screen, x, y int, str string, style tcell.Style) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		pos := x + i
		if pos >= w {
			break
		}
		s.SetContent(pos, y, r, nil, style)
	}
}

func rule(s tcell.Screen, y int, ch, label string) {
	w, _ := s.Size()
	putStr(s, 0, y, strings.Repeat(ch, w), tcell.StyleDefault)
	if label != "" {
		putStr(s, 2, y, " "+label+" ", tcell.StyleDefault)
	}
}

// FixedRows is the number of rows LayoutAndDraw uses for everything but the
// sector map.
func (u *UI) FixedRows() int {
	n := len(u.summaryLines) + len(u.legendLines)
	if u.title != "" {
		n++
	}
	if len(u.partitionLines) > 0 {
		n += 1 + len(u.partitionLines)
	}
	if len(u.statusLines) > 0 {
		n += 1 + len(u.statusLines)
	}
	return n
}

// LayoutAndDraw redraws the entire screen with the current state.
func (u *UI) LayoutAndDraw() {
	u.s.Clear()
	w, h := u.s.Size()

	y := 0
	line := func(str string, style tcell.Style) {
		if y < h {
			putStr(u.s, 0, y, str, style)
			y++
		}
	}

	if u.title != "" && y < h {
		rule(u.s, y, "═", "")
		putStr(u.s, max(0, (w-len([]rune(u.title)))/2), y, u.title, tcell.StyleDefault.Bold(true))
		y++
	}
	for _, l := range u.summaryLines {
		line(l, tcell.StyleDefault)
	}
	for _, l := range u.legendLines {
		line(l, tcell.StyleDefault)
	}

	avail := max(1, h-u.FixedRows())
	for i := 0; i < len(u.mapLines) && i < avail; i++ {
		line(u.mapLines[i], tcell.StyleDefault)
	}

	if len(u.partitionLines) > 0 && y < h {
		rule(u.s, y, "─", "Partitions")
		y++
		for _, l := range u.partitionLines {
			style := tcell.StyleDefault
			if strings.HasPrefix(l, ">") {
				style = style.Reverse(true)
			}
			line(l, style)
		}
	}

	if len(u.statusLines) > 0 && y < h {
		rule(u.s, y, "─", "Status")
		y++
		for _, l := range u.statusLines {
			line(l, tcell.StyleDefault)
		}
	}

	u.s.Show()
}

// SetTitle sets the title displayed at the top of the UI.
func (u *UI) SetTitle(t string) {
	u.title = t
}

// SetSummaryLines sets the lines displayed below the title.
func (u *UI) SetSummaryLines(lines []string) {
	u.summaryLines = append([]string(nil), lines...)
}

// SetLegend sets the lines displayed below the summary.
func (u *UI) SetLegend(lines []string) {
	u.legendLines = append([]string(nil), lines...)
}

// SetMap sets the sector map rows. The UI renders what it is given.
func (u *UI) SetMap(lines []string) {
	u.mapLines = append([]string(nil), lines...)
}

// SetPartitionLines sets the partition list. A line starting with '>' is
// drawn highlighted.
func (u *UI) SetPartitionLines(lines []string) {
	u.partitionLines = append([]string(nil), lines...)
}

// SetStatusLines sets the status lines displayed at the bottom of the UI.
func (u *UI) SetStatusLines(lines []string) {
	u.statusLines = append([]string(nil), lines...)
}

// Nav delivers +1 for every down key and -1 for every up key.
func (u *UI) Nav() <-chan int {
	return u.nav
}

func (u *UI) sendNav(d int) {
	select {
	case u.nav <- d:
	default:
	}
}

func (u *UI) eventLoop() {
	for {
		select {
		case <-u.stopChan:
			return
		default:
		}
		switch ev := u.s.PollEvent().(type) {
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyCtrlC, ev.Key() == tcell.KeyEscape:
				u.RequestStop()
			case ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q'):
				u.RequestStop()
			case ev.Key() == tcell.KeyDown, ev.Key() == tcell.KeyRune && ev.Rune() == 'j':
				u.sendNav(1)
			case ev.Key() == tcell.KeyUp, ev.Key() == tcell.KeyRune && ev.Rune() == 'k':
				u.sendNav(-1)
			}
		case *tcell.EventResize:
			u.s.Sync()
			u.sendNav(0)
		case *tcell.EventInterrupt:
			return
		case nil:
			return
		}
	}
}
