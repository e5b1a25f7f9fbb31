// Package pulse holds infrastructure shared by long-running AMS operations.
package pulse

// ProgressEmitter receives progress updates during long-running operations,
// such as destroying a list of assets. Implementations render them (a CLI
// progress bar) or drop them.
type ProgressEmitter interface {
	// EmitStage announces the start of a processing stage
	EmitStage(stage string, message string)

	// EmitProgress announces that count more items were processed
	EmitProgress(count int, metadata map[string]interface{})

	// EmitComplete announces successful completion with summary
	EmitComplete(summary map[string]interface{})

	// EmitError announces an error during processing
	EmitError(stage string, err error)

	// EmitInfo emits general informational message
	EmitInfo(message string)
}

// NopEmitter discards all progress updates
type NopEmitter struct{}

func (NopEmitter) EmitStage(string, string)                 {}
func (NopEmitter) EmitProgress(int, map[string]interface{}) {}
func (NopEmitter) EmitComplete(map[string]interface{})      {}
func (NopEmitter) EmitError(string, error)                  {}
func (NopEmitter) EmitInfo(string)                          {}

// OrNop returns e, or a NopEmitter when e is nil
func OrNop(e ProgressEmitter) ProgressEmitter {
	if e == nil {
		return NopEmitter{}
	}
	return e
}
