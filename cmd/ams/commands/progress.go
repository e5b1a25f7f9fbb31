package commands

import "github.com/pterm/pterm"

// barEmitter renders destroy progress as a pterm progress bar
type barEmitter struct {
	bar *pterm.ProgressbarPrinter
}

func newBarEmitter(title string, total int) (*barEmitter, error) {
	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(title).
		WithRemoveWhenDone(false).
		Start()
	if err != nil {
		return nil, err
	}
	return &barEmitter{bar: bar}, nil
}

func (e *barEmitter) EmitStage(stage string, message string) {
	e.bar.UpdateTitle(message)
}

func (e *barEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	e.bar.Add(count)
}

func (e *barEmitter) EmitComplete(summary map[string]interface{}) {
	e.bar.Stop()
	pterm.Success.Printf("Processed %v Assets (%v failed, %v already gone)\n",
		summary["assets"], summary["failed"], summary["already_gone"])
}

func (e *barEmitter) EmitError(stage string, err error) {
	pterm.Error.Printf("%s: %v\n", stage, err)
}

func (e *barEmitter) EmitInfo(message string) {
	pterm.Info.Println(message)
}
