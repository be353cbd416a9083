package narrate

import (
	"fmt"
	"io"
	"os"

	"select2speak/src/clipboard"
)

type ClipboardTarget struct{}

func (ClipboardTarget) OnSuccess(text string) error {
	return clipboard.Write(text)
}

func (ClipboardTarget) OnFailure(err error) error {
	return nil
}

// StdoutTarget prints transcripts, one pass per line group.
type StdoutTarget struct {
	Writer io.Writer
}

func (t StdoutTarget) OnSuccess(text string) error {
	w := t.Writer
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

func (t StdoutTarget) OnFailure(err error) error {
	return nil
}
