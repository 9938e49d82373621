package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/workspace-chat/backend/internal/model"
	"github.com/workspace-chat/backend/internal/session"
)

// viewState is the part of a view the printer reads.
type viewState interface {
	Messages() []model.Message
	Typers() []string
	Notices() []session.Notice
}

// printer writes view changes to a terminal, each message at most once.
type printer struct {
	w   io.Writer
	now func() time.Time
	loc *time.Location

	printed    map[string]bool
	typers     string
	lastNotice time.Time
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:       w,
		now:     time.Now,
		loc:     time.Local,
		printed: make(map[string]bool),
	}
}

// render prints notices, then messages not printed before, then the typing
// line when it changed.
func (p *printer) render(v viewState) {
	for _, n := range v.Notices() {
		if !n.At.After(p.lastNotice) {
			continue
		}
		p.lastNotice = n.At
		p.infof("%s", n.String())
	}

	for _, msg := range v.Messages() {
		if p.printed[msg.ID] {
			continue
		}
		p.message(msg)
	}

	if line := typingLine(v.Typers()); line != p.typers {
		p.typers = line
		if line != "" {
			fmt.Fprintln(p.w, line)
		}
	}
}

// message prints one message as "[15:04] name: body (3 minutes ago)".
func (p *printer) message(msg model.Message) {
	p.printed[msg.ID] = true
	name := msg.Sender.Name
	if name == "" {
		name = msg.Sender.ID
	}
	fmt.Fprintf(p.w, "[%s] %s: %s (%s)\n",
		msg.CreatedAt.In(p.loc).Format("15:04"),
		name,
		msg.Body,
		humanize.RelTime(msg.CreatedAt, p.now(), "ago", "from now"),
	)
}

func (p *printer) pagination(pg model.Pagination) {
	fmt.Fprintf(p.w, "-- page %d of %d, %s messages --\n",
		pg.PageNumber, pg.TotalPages, humanize.Comma(int64(pg.TotalCount)))
}

func (p *printer) infof(format string, args ...any) {
	fmt.Fprintf(p.w, "* "+format+"\n", args...)
}

func (p *printer) errorf(format string, args ...any) {
	fmt.Fprintf(p.w, "! "+format+"\n", args...)
}

func typingLine(typers []string) string {
	if len(typers) == 0 {
		return ""
	}
	return strings.Join(typers, ", ") + " typing..."
}
