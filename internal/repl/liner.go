package repl

import (
	"errors"
	"fmt"
	"os"

	"github.com/peterh/liner"
)

// Terminal is a LineReader backed by liner with a persistent history file.
type Terminal struct {
	state       *liner.State
	historyPath string
}

// NewTerminal puts the terminal into line-editing mode and loads history from
// historyPath when it exists. An empty historyPath disables persistence.
func NewTerminal(historyPath string) *Terminal {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetMultiLineMode(true)
	t := &Terminal{state: state, historyPath: historyPath}
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}
	return t
}

func (t *Terminal) Prompt(prompt string) (string, error) {
	line, err := t.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", ErrAborted
	}
	return line, err
}

func (t *Terminal) AppendHistory(line string) {
	t.state.AppendHistory(line)
}

// Close writes history and restores the terminal.
func (t *Terminal) Close() error {
	var saveErr error
	if t.historyPath != "" {
		if f, err := os.Create(t.historyPath); err != nil {
			saveErr = fmt.Errorf("save history: %w", err)
		} else {
			if _, err := t.state.WriteHistory(f); err != nil {
				saveErr = fmt.Errorf("save history: %w", err)
			}
			_ = f.Close()
		}
	}
	if err := t.state.Close(); err != nil {
		return err
	}
	return saveErr
}
