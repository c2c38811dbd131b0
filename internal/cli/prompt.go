package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForValue asks for a value on stdin, returning def when the user
// enters nothing.
func PromptForValue(label, def string) string {
	return promptFrom(os.Stdin, os.Stdout, label, def)
}

func promptFrom(in io.Reader, out io.Writer, label, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		log.Warn().Err(err).Str("prompt", label).Msg("Failed to read input, using default")
		return def
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}
