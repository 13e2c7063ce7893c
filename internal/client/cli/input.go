package cli

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/term"
)

// Terminal seams; tests replace them to avoid touching the real tty.
var (
	isTerminal = term.IsTerminal
	getSize    = term.GetSize
	readFile   = os.ReadFile
)

const (
	defaultWidth = 60
	// maxImageBytes bounds images read from disk for sendimg.
	maxImageBytes = 5 << 20
)

var ErrNotImage = errors.New("file is not an image")

// GetSimpleText prints a prompt to w and reads one trimmed line from sc.
// A last line without a newline is returned as is; no line at all yields
// io.EOF.
//
//	Prompt text
//	> _
func GetSimpleText(sc *bufio.Scanner, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(sc.Text()), nil
}

func isInteractive() bool {
	return isTerminal(int(os.Stdin.Fd()))
}

// terminalWidth returns the stdout width, or defaultWidth when stdout is
// not a terminal.
func terminalWidth() int {
	w, _, err := getSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// LoadImage reads an image file and encodes it as a base64 data URI.
func LoadImage(path string) (string, error) {
	data, err := readFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrNotImage, path)
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("%s is larger than %d bytes", path, maxImageBytes)
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w: %s is %s", ErrNotImage, path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
