package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// printResult writes v as indented JSON, or text() when --format=text.
func printResult(w io.Writer, v any, text func() string) {
	if formatFlag == "text" {
		fmt.Fprintln(w, text())
		return
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}
