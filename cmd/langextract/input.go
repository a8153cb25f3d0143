package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hurttlocker/langextract/internal/ingest"
)

// inputFlags select where a command's text comes from.
type inputFlags struct {
	text string
	file string
}

// readInput returns --text, the text of --file, or stdin when neither is set
// and stdin is not a terminal.
func readInput(ctx context.Context, in inputFlags, eng *ingest.Engine, stdin io.Reader) (string, error) {
	switch {
	case in.text != "" && in.file != "":
		return "", errors.New("use either --text or --file, not both")
	case in.text != "":
		return in.text, nil
	case in.file != "":
		return eng.ExtractFile(ctx, in.file)
	}
	if f, ok := stdin.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", errors.New("no input: pass --text, --file, or pipe text on stdin")
		}
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("no input: pass --text, --file, or pipe text on stdin")
	}
	return text, nil
}
