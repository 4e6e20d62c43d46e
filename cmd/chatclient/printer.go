package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"text/tabwriter"

	"github.com/peerchat/chat-client/internal/chat"
	"github.com/peerchat/chat-client/internal/session"
)

// printer renders session events on the terminal. Events are ignored until
// the interactive loop starts.
type printer struct {
	mu          sync.Mutex
	w           io.Writer
	view        chat.View
	interactive atomic.Bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) Notify(ev session.Event) {
	if !p.interactive.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case session.EventMessageReceived:
		name := ev.Message.SenderID
		if ev.Conversation != nil && ev.Conversation.DisplayName != "" {
			name = ev.Conversation.DisplayName
		}
		if ev.Open {
			fmt.Fprintf(p.w, "[%s] %s\n", name, ev.Message.Content)
		} else {
			fmt.Fprintf(p.w, "* %s: %d unread\n", name, ev.Conversation.UnreadCount)
		}
	case session.EventActiveChanged:
		if ev.Conversation == nil {
			fmt.Fprintln(p.w, "-- conversation closed")
			return
		}
		fmt.Fprintf(p.w, "-- chatting with %s\n", ev.Conversation.DisplayName)
	case session.EventHistoryLoaded:
		p.history(ev.Conversation)
	case session.EventSendFailed:
		fmt.Fprintf(p.w, "! not sent: %s\n", ev.Error)
	case session.EventStateChanged:
		if ev.State == session.StateUnauthenticated.String() {
			fmt.Fprintln(p.w, "! session expired, log in again")
		}
	}
}

func (p *printer) history(conv *chat.Conversation) {
	if p.view == nil || conv == nil {
		return
	}
	for _, m := range p.view.Messages() {
		who := conv.DisplayName
		if m.IsMine(conv.PeerID) {
			who = "you"
		}
		fmt.Fprintf(p.w, "%s [%s] %s\n", m.Timestamp.Local().Format("Jan 2 15:04"), who, m.Content)
	}
}

func (p *printer) conversations(list []chat.Conversation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(list) == 0 {
		fmt.Fprintln(p.w, "no conversations")
		return
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tNAME\tUNREAD\tLAST")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.PeerID, c.DisplayName, c.UnreadCount, preview(c.LastMessageText))
	}
	tw.Flush()
}

func (p *printer) users(list []chat.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tNAME\tFOLLOWING\tWORK")
	for _, u := range list {
		work := u.CurrentWorking.Role
		if u.CurrentWorking.Organization != "" {
			work += " @ " + u.CurrentWorking.Organization
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", u.UserID, u.DisplayName, u.IsFollowing, work)
	}
	tw.Flush()
}

func (p *printer) println(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, a...)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 40 {
		return string(r[:37]) + "..."
	}
	return s
}
