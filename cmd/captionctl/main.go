// Command captionctl applies the caption algebra used by the subtitles
// service to local SRT files: reformatting, shifting, merging, validating.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
