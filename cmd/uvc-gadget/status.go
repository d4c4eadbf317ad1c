//go:build linux

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/kevmo314/go-uvc-gadget"
	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
	"github.com/rivo/tview"
)

var statusColumns = []string{"ID", "Function", "Role", "State", "Output", "Frames", "Repeated", "Dropped", "Recoveries"}

// runStatus shows the registry's instances until ctx is done or the user
// quits.
func runStatus(ctx context.Context, registry *uvc.Registry, logView *tview.TextView) error {
	app := tview.NewApplication()

	table := tview.NewTable().SetFixed(1, 0)
	table.SetBorder(true).SetTitle("Instances")

	logView.SetChangedFunc(func() { app.Draw() })

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				app.Stop()
				return
			case <-ticker.C:
				app.QueueUpdateDraw(func() { fillStatus(table, registry) })
			}
		}
	}()

	fillStatus(table, registry)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 1, true).
		AddItem(logView, 12, 0, false)
	return app.SetRoot(root, true).Run()
}

func fillStatus(table *tview.Table, registry *uvc.Registry) {
	table.Clear()
	for col, name := range statusColumns {
		table.SetCell(0, col, tview.NewTableCell(name).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}

	row := 1
	registry.ForEach(func(inst *uvc.Instance) {
		stats := inst.Stats()
		fourcc, w, h := inst.Output()
		output := "-"
		if fourcc != 0 {
			output = fmt.Sprintf("%s %dx%d", formats.FormatFromFourCC(fourcc), w, h)
		}
		cells := []string{
			strconv.Itoa(inst.ID()),
			inst.Function.Name,
			inst.Function.Role.String(),
			inst.State().String(),
			output,
			strconv.FormatUint(stats.Frames, 10),
			strconv.FormatUint(stats.Repeated, 10),
			strconv.FormatUint(stats.Dropped, 10),
			strconv.FormatUint(inst.BufferStats().Recoveries, 10),
		}
		for col, text := range cells {
			table.SetCell(row, col, tview.NewTableCell(text))
		}
		row++
	})
}
