package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"superscribe/audio"
	"superscribe/history"
	"superscribe/log"
	"superscribe/pipeline"
	"superscribe/session"
)

// TUI message types
type stateMsg struct{ State session.State }
type sessionStartedMsg struct{ ID int64 }
type sessionCompletedMsg struct{ Summary pipeline.Summary }
type historyChangedMsg struct{}
type historyMsg struct {
	Entries []history.Entry
	Err     error
}
type deletedMsg struct{ Err error }
type tickMsg time.Time

// tuiEvents forwards pipeline events to the program in order without
// blocking the pipeline loop.
type tuiEvents struct {
	queue chan tea.Msg
}

func newTUIEvents() *tuiEvents {
	return &tuiEvents{queue: make(chan tea.Msg, 64)}
}

func (e *tuiEvents) attach(prog *tea.Program) {
	go func() {
		for msg := range e.queue {
			prog.Send(msg)
		}
	}()
}

func (e *tuiEvents) post(msg tea.Msg) {
	select {
	case e.queue <- msg:
	default:
		log.Warnf("tui: dropped %T", msg)
	}
}

func (e *tuiEvents) SessionStarted(id int64)             { e.post(sessionStartedMsg{ID: id}) }
func (e *tuiEvents) SessionCompleted(s pipeline.Summary) { e.post(sessionCompletedMsg{Summary: s}) }
func (e *tuiEvents) HistoryChanged()                     { e.post(historyChangedMsg{}) }
func (e *tuiEvents) StateChanged(s session.State)        { e.post(stateMsg{State: s}) }

// tuiInfo is the static part of the status panel.
type tuiInfo struct {
	chord    string
	provider string
	format   string
	language string
	device   string
}

type tuiView int

const (
	viewMain tuiView = iota
	viewHistory
)

type tuiModel struct {
	p    *pipeline.Pipeline
	info tuiInfo

	frame         int
	width, height int

	state     session.State
	sessionID int64
	started   time.Time
	elapsed   time.Duration
	level     float64
	peak      float64 // peak level during the current recording

	last      *pipeline.Summary
	rateLimit string

	view      tuiView
	filter    string
	filtering bool
	entries   []history.Entry
	cursor    int
	status    string
}

type palette struct {
	fg [16]lipgloss.Style
	bg [16][16]lipgloss.Style
}

func newPalette(colors []string) *palette {
	p := &palette{}
	for i, c := range colors {
		if c != "" {
			p.fg[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
		}
	}
	for i, fg := range colors {
		for j, bg := range colors {
			if fg != "" && bg != "" {
				p.bg[i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Background(lipgloss.Color(bg))
			}
		}
	}
	return p
}

// Pre-computed pixel styles to avoid allocations in render loop
var (
	paletteRec  = newPalette([]string{"", "226", "220", "214", "208", "196", "160", "124", "88", "52", "236", "236", "236", "236", "255", "249"})
	paletteIdle = newPalette([]string{"", "231", "224", "217", "210", "160", "124", "88", "52", "236", "236", "236", "236", "236", "255", "249"})
	paletteBusy = newPalette([]string{"", "195", "159", "123", "87", "45", "39", "33", "27", "17", "236", "236", "236", "236", "255", "249"})
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	faintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true)
)

func newTUIModel(p *pipeline.Pipeline, info tuiInfo) tuiModel {
	return tuiModel{p: p, info: info, state: session.StateIdle}
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func loadHistory(p *pipeline.Pipeline, filter string) tea.Cmd {
	return func() tea.Msg {
		entries, err := p.ShowHistory(filter)
		return historyMsg{Entries: entries, Err: err}
	}
}

func deleteEntry(p *pipeline.Pipeline, id int64) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg{Err: p.DeleteEntry(id)}
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.frame++
		if m.state == session.StateRecording {
			m.elapsed = time.Since(m.started)
			lvl := m.p.Level()
			m.level = m.level*0.6 + lvl*0.4
			m.peak = math.Max(m.peak, lvl)
		}
		return m, tuiTick()

	case stateMsg:
		m.state = msg.State
		if m.state != session.StateRecording {
			m.level = 0
		}

	case sessionStartedMsg:
		m.sessionID = msg.ID
		m.started = time.Now()
		m.elapsed = 0
		m.level, m.peak = 0, 0

	case sessionCompletedMsg:
		s := msg.Summary
		if s.RateLimit != "" {
			m.rateLimit = s.RateLimit
		}
		if !s.Skipped {
			m.last = &s
		}

	case historyChangedMsg:
		if m.view == viewHistory {
			return m, loadHistory(m.p, m.filter)
		}

	case historyMsg:
		if msg.Err != nil {
			m.status = "history: " + msg.Err.Error()
			break
		}
		m.entries = msg.Entries
		m.cursor = min(m.cursor, max(len(m.entries)-1, 0))

	case deletedMsg:
		if msg.Err != nil {
			m.status = "delete: " + msg.Err.Error()
		} else {
			m.status = "deleted"
		}
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.view == viewMain {
		switch key {
		case "q":
			return m, tea.Quit
		case "h":
			m.view = viewHistory
			m.cursor = 0
			m.status = ""
			return m, loadHistory(m.p, m.filter)
		}
		return m, nil
	}

	if m.filtering {
		switch msg.Type {
		case tea.KeyEnter, tea.KeyEsc:
			m.filtering = false
			return m, nil
		case tea.KeyBackspace:
			if r := []rune(m.filter); len(r) > 0 {
				m.filter = string(r[:len(r)-1])
			}
		case tea.KeyRunes, tea.KeySpace:
			m.filter += string(msg.Runes)
		default:
			return m, nil
		}
		m.cursor = 0
		return m, loadHistory(m.p, m.filter)
	}

	switch key {
	case "esc", "h", "q":
		m.view = viewMain
	case "/":
		m.filtering = true
	case "j", "down":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "d":
		if m.cursor < len(m.entries) {
			return m, deleteEntry(m.p, m.entries[m.cursor].ID)
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.view == viewHistory {
		return m.historyView()
	}

	const eyeWidth = 45
	recording := m.state == session.StateRecording

	eye := renderHALEye(m.frame, m.level, m.state)

	var infoLines []string
	infoLines = append(infoLines, m.statusLine())
	if recording && m.elapsed > time.Second && m.peak < 0.02 {
		infoLines = append(infoLines, warnStyle.Render("  ⚠ no voice detected"))
	}

	mode := m.info.provider
	if m.info.language != "" {
		mode += " (" + m.info.language + ")"
	}
	infoLines = append(infoLines, lipgloss.NewStyle().Foreground(lipgloss.Color("245")).
		Render(fmt.Sprintf("[%s | %s]", m.info.format, mode)))

	dev := "mic: " + m.info.device
	if audio.IsBluetooth(m.info.device) {
		dev += " (BT!)"
	}
	infoLines = append(infoLines, dimStyle.Render(dev))
	if m.rateLimit != "" {
		infoLines = append(infoLines, dimStyle.Render(m.rateLimit))
	}
	infoLines = append(infoLines, "")

	bold := faintStyle.Bold(true)
	infoLines = append(infoLines,
		bold.Render(m.info.chord)+faintStyle.Render(" to record"),
		bold.Render("h")+faintStyle.Render(" history  ")+bold.Render("q")+faintStyle.Render(" quit"),
		faintStyle.Render("superscribe "+version),
	)

	for _, line := range infoLines {
		eye += line + "\n"
	}
	eyeLines := strings.Split(eye, "\n")

	logWidth := max(m.width-eyeWidth-1, 20)
	wrapWidth := max(logWidth-2, 10)

	var panel strings.Builder
	if s := m.last; s != nil {
		panel.WriteString(headerStyle.Render(fmt.Sprintf("Last session (#%d, %.1fs)", s.ID, s.Duration.Seconds())) + "\n\n")
		switch {
		case !s.Success:
			for _, line := range wrapText(s.Message, wrapWidth) {
				panel.WriteString(warnStyle.Render(line) + "\n")
			}
			if s.Transcript != "" {
				panel.WriteString("\n")
				for _, line := range wrapText(s.Transcript, wrapWidth) {
					panel.WriteString(textStyle.Render(line) + "\n")
				}
			}
		case s.Transcript == "":
			panel.WriteString(warnStyle.Render("(no speech detected)") + "\n")
		default:
			lines := wrapText(s.Transcript, wrapWidth)
			for i, line := range lines {
				panel.WriteString(textStyle.Render(line))
				if i == len(lines)-1 {
					panel.WriteString(" " + okStyle.Render("[✓]"))
				}
				panel.WriteString("\n")
			}
		}
	} else {
		panel.WriteString(dimStyle.Render("No transcriptions yet"))
	}

	logPanel := lipgloss.NewStyle().
		Width(logWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(panel.String())

	// Pad eye panel to full height (eye at top)
	eyePadded := make([]string, m.height)
	for i := range eyePadded {
		if i < len(eyeLines) {
			eyePadded[i] = eyeLines[i]
		} else {
			eyePadded[i] = strings.Repeat(" ", eyeWidth-1)
		}
	}

	eyePanel := lipgloss.NewStyle().
		Width(eyeWidth - 1).
		Height(m.height).
		Render(strings.Join(eyePadded, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, eyePanel, logPanel)
}

func (m tuiModel) statusLine() string {
	switch m.state {
	case session.StateRecording:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).
			Render(fmt.Sprintf("● REC %.1fs", m.elapsed.Seconds()))
	case session.StateTranscribing:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("45")).
			Render(fmt.Sprintf("◌ TRANSCRIBING #%d", m.sessionID))
	case session.StateInjecting:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Render("↳ PASTING")
	}
	return dimStyle.Render("○ STANDBY")
}

// historyView lists entries newest first under one header per day.
func (m tuiModel) historyView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("History") + "  ")
	switch {
	case m.filtering:
		b.WriteString(cursorStyle.Render("/"+m.filter+"█"))
	case m.filter != "":
		b.WriteString(dimStyle.Render("filter: " + m.filter))
	}
	b.WriteString("\n\n")

	width := max(m.width-4, 20)
	lastDay := ""
	for i, e := range m.entries {
		ts := e.Timestamp.Local()
		if day := ts.Format("Mon Jan 2, 2006"); day != lastDay {
			if lastDay != "" {
				b.WriteString("\n")
			}
			b.WriteString(dimStyle.Render(day) + "\n")
			lastDay = day
		}

		marker := "  "
		if i == m.cursor {
			marker = cursorStyle.Render("▶ ")
		}
		meta := fmt.Sprintf("%s #%-4d %5.1fs ", ts.Format("15:04:05"), e.ID, e.Duration.Seconds())
		room := max(width-len(meta)-2, 10)
		var body string
		switch {
		case e.Failed():
			body = warnStyle.Render(truncate("["+e.ErrorKind+"] "+e.ErrorMessage, room))
		case e.Transcript == "":
			body = dimStyle.Render("(no speech)")
		default:
			body = textStyle.Render(truncate(e.Transcript, room))
		}
		b.WriteString(marker + faintStyle.Render(meta) + body + "\n")
	}
	if len(m.entries) == 0 {
		b.WriteString(dimStyle.Render("No entries") + "\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(dimStyle.Render(m.status) + "\n")
	}
	b.WriteString(faintStyle.Render("j/k move  / filter  d delete  esc back"))
	return b.String()
}

func renderHALEye(frame int, level float64, state session.State) string {
	const charsW = 44
	const charsH = 15
	const pixW = charsW
	const pixH = charsH * 2

	centerX := float64(pixW) / 2
	centerY := float64(pixH) / 2

	recording := state == session.StateRecording
	pal := paletteIdle
	var breathe float64
	switch {
	case recording:
		pal = paletteRec
		breathe = math.Sin(float64(frame)*0.10)*0.03 + level*10.0 - 0.05
	case state.Busy():
		pal = paletteBusy
		breathe = math.Sin(float64(frame)*0.25)*0.04 - 0.04
	default:
		breathe = math.Sin(float64(frame)*0.08)*0.02 - 0.05
	}

	pixels := make([][]int, pixH)
	for i := range pixels {
		pixels[i] = make([]int, pixW)
	}

	type ring struct {
		radius     float64
		breatheAmt float64
		colorIdx   int
	}

	rings := []ring{
		{0.6, 0.10, 1},
		{1.3, 0.12, 2},
		{2.0, 0.15, 3},
		{2.8, 0.35, 4}, // outer rings react most
		{3.5, 0.40, 5},
		{4.2, 0.38, 6},
		{5.0, 0.30, 7},
		{5.8, 0.15, 8},
		{6.5, 0.03, 9},
		{7.2, 0.0, 10},
		{8.0, 0.0, 11},
		{10.0, 0.0, 12},
		{12.0, 0.0, 13},
	}

	for y := 0; y < pixH; y++ {
		for x := 0; x < pixW; x++ {
			dx := float64(x) - centerX
			dy := float64(y) - centerY
			dist := math.Sqrt(dx*dx + dy*dy)
			for _, r := range rings {
				radius := min(r.radius+breathe*r.breatheAmt*20, 10.0)
				if dist < radius {
					pixels[y][x] = r.colorIdx
					break
				}
			}
		}
	}

	// Glass reflections
	type spot struct {
		ox, oy float64
		radius float64
		color  int
	}
	const dSide, dSide2, dTop, dTop2 = 9.0, 7.2, 10.0, 8.2
	spots := []spot{
		{-dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{-dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -dTop, 0.8, 14},
		{0, -dTop2, 0.6, 15},
		{dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -2.0, 0.6, 14},
	}
	for y := 0; y < pixH; y++ {
		for x := 0; x < pixW; x++ {
			px := float64(x) - centerX
			py := float64(y) - centerY
			for _, s := range spots {
				dx := px - s.ox
				dy := py - s.oy
				rLen := math.Sqrt(s.ox*s.ox + s.oy*s.oy)
				if rLen < 0.001 {
					rLen = 1
				}
				tx, ty := -s.oy/rLen, s.ox/rLen
				dt := dx*tx + dy*ty
				dn := dx*(-ty) + dy*tx
				if (dt*dt)/9.0+dn*dn < s.radius*s.radius {
					pixels[y][x] = s.color
				}
			}
		}
	}

	var result strings.Builder
	for cy := 0; cy < charsH; cy++ {
		for cx := 0; cx < charsW; cx++ {
			top := pixels[cy*2][cx]
			bot := pixels[cy*2+1][cx]
			switch {
			case top == 0 && bot == 0:
				result.WriteString(" ")
			case top == bot:
				result.WriteString(pal.fg[top].Render("█"))
			case bot == 0:
				result.WriteString(pal.fg[top].Render("▀"))
			case top == 0:
				result.WriteString(pal.fg[bot].Render("▄"))
			default:
				result.WriteString(pal.bg[top][bot].Render("▀"))
			}
		}
		result.WriteString("\n")
	}
	return result.String()
}

// wrapText breaks text at spaces so no line exceeds width runes.
func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	width = max(width, 1)

	var lines []string
	rs := []rune(text)
	for len(rs) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if rs[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(rs[:splitAt]))
		rs = []rune(strings.TrimLeft(string(rs[splitAt:]), " "))
	}
	if len(rs) > 0 {
		lines = append(lines, string(rs))
	}
	return lines
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
