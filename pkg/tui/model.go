// Package tui renders a live terminal view of a session: the decoded
// gamepad summary and a rolling log of received frames.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"padscope/pkg/gamepad"
	"padscope/pkg/protocol"
)

// MaxLines is the number of frame lines kept on screen.
const MaxLines = 20

type packetMsg protocol.Packet

type feedClosedMsg struct{}

type Model struct {
	feed      <-chan protocol.Packet
	title     string
	state     gamepad.State
	haveState bool
	lines     []string
	frames    uint64
	closed    bool
}

func NewModel(title string, feed <-chan protocol.Packet) Model {
	return Model{
		feed:  feed,
		title: title,
		state: *gamepad.NewState(),
	}
}

func waitForPacket(feed <-chan protocol.Packet) tea.Cmd {
	return func() tea.Msg {
		pkt, ok := <-feed
		if !ok {
			return feedClosedMsg{}
		}
		return packetMsg(pkt)
	}
}

func (m Model) Init() tea.Cmd {
	return waitForPacket(m.feed)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case packetMsg:
		m.apply(protocol.Packet(msg))
		return m, waitForPacket(m.feed)
	case feedClosedMsg:
		m.closed = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) apply(pkt protocol.Packet) {
	switch pkt.Kind {
	case protocol.KindFrame:
		m.frames++
		line := fmt.Sprintf("%s %-24s %s",
			pkt.Timestamp.Format("15:04:05.000"), pkt.Type, protocol.HexDump(pkt.Payload))
		m.lines = append(m.lines, strings.TrimRight(line, " "))
		if len(m.lines) > MaxLines {
			m.lines = m.lines[len(m.lines)-MaxLines:]
		}
	case protocol.KindState:
		if st, ok := pkt.Data.(gamepad.State); ok {
			m.state = st
			m.haveState = true
		}
	}
}

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(m.title)
	fmt.Fprintf(&sb, "  frames:%d\n\n", m.frames)
	if m.haveState {
		sb.WriteString(m.state.String())
	} else {
		sb.WriteString("waiting for input state...")
	}
	sb.WriteString("\n\n")
	for _, line := range m.lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if m.closed {
		sb.WriteString("\nfeed closed\n")
	} else {
		sb.WriteString("\nq to quit\n")
	}
	return sb.String()
}

// Lines returns the frame log, oldest first.
func (m Model) Lines() []string {
	return append([]string(nil), m.lines...)
}

// Run drives the view until the user quits, the feed closes or ctx is
// cancelled.
func Run(ctx context.Context, model Model, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(model, opts...)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-stop:
		}
	}()
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
