package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/srg/blecentral/internal/central"
)

// console prints manager notices. The manager calls it from one goroutine.
type console struct {
	out io.Writer

	header *color.Color
	id     *color.Color
	msg    *color.Color
	ready  *color.Color
	fail   *color.Color
	dim    *color.Color
}

var _ central.Observer = (*console)(nil)

func newConsole(out io.Writer, colors bool) *console {
	c := &console{
		out:    out,
		header: color.New(color.Bold),
		id:     color.New(color.FgCyan),
		msg:    color.New(color.FgWhite, color.Bold),
		ready:  color.New(color.FgGreen),
		fail:   color.New(color.FgRed),
		dim:    color.New(color.Faint),
	}
	for _, col := range []*color.Color{c.header, c.id, c.msg, c.ready, c.fail, c.dim} {
		if colors {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

func (c *console) OnPeripheralListChanged(peripherals []central.PeripheralInfo) {
	fmt.Fprintln(c.out, c.header.Sprintf("Peripherals (%d):", len(peripherals)))
	for _, p := range peripherals {
		fmt.Fprintf(c.out, "  %-20s %s %s\n",
			p.DisplayName(),
			c.id.Sprintf("[%s]", p.ID),
			c.dim.Sprintf("%d dBm, %s", p.RSSI, p.State))
	}
}

func (c *console) OnMessageReceived(id central.Identity, text string) {
	fmt.Fprintf(c.out, "%s %s\n", c.id.Sprintf("%s >", id), c.msg.Sprint(text))
}

func (c *console) OnReadyToSend(id central.Identity) {
	fmt.Fprintf(c.out, "%s %s\n", c.id.Sprint(id), c.ready.Sprint("ready"))
}

func (c *console) OnError(id central.Identity, err error) {
	if id == "" {
		fmt.Fprintf(c.out, "%s %v\n", c.fail.Sprint("error:"), err)
		return
	}
	fmt.Fprintf(c.out, "%s %s %v\n", c.fail.Sprint("error:"), c.id.Sprintf("[%s]", id), err)
}
