package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// InstanceData is what the header shows about the running client.
type InstanceData struct {
	Instance string
	Server   string
	User     string
	Status   string
	Contacts int
	Online   int
}

// InstanceInfo displays client metadata in the header.
type InstanceInfo struct {
	*tview.TextView
	theme *Theme
}

// NewInstanceInfo creates a new instance info panel.
func NewInstanceInfo(theme *Theme) *InstanceInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &InstanceInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the instance info.
func (ii *InstanceInfo) Update(data *InstanceData) {
	ii.Clear()
	if data == nil {
		return
	}

	fg := ColorName(ii.theme.FgColor)
	ct := ColorName(ii.theme.CounterColor)

	_, _ = fmt.Fprintf(ii,
		"[%s::b]Instance:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Server:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]     [%s]%s[-]\n"+
			"[%s::b]Status:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]Online:[-:-:-]   [%s]%d/%d[-]",
		fg, ct, tview.Escape(data.Instance),
		fg, ct, tview.Escape(data.Server),
		fg, ct, tview.Escape(data.User),
		fg, ct, data.Status,
		fg, ct, data.Online, data.Contacts,
	)
}
