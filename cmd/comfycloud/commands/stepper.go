package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/comfycloud/lazymodels/pkg/events"
)

var (
	stepActive = color.New(color.FgBlue)
	stepDone   = color.New(color.FgGreen)
	stepFailed = color.New(color.FgRed)
)

// newStepPrinter returns callbacks that render provisioning pipeline steps
// to stdout, colored when attached to a terminal.
func newStepPrinter() *events.Callbacks {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
	return &events.Callbacks{
		OnStep: func(step string, state events.StepState) {
			switch state {
			case events.StepActive:
				stepActive.Printf("◉ %s...\n", step)
			case events.StepDone:
				stepDone.Printf("● %s\n", step)
			case events.StepFailed:
				stepFailed.Printf("✕ %s\n", step)
			default:
				fmt.Printf("○ %s\n", step)
			}
		},
	}
}
