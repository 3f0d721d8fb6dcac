package theme

import (
	"fmt"
	"io"
	"os"
)

// Banner returns the CLI banner: a heartbeat trace under the name.
func Banner() string {
	const cyan = "\033[36m"
	const red = "\033[31m"
	const yellow = "\033[33m"
	const reset = "\033[0m"

	art := "" +
		"   ◆  " + cyan + "W O R K O U T N E T" + reset + "  ◆\n" +
		red + "  ──────╮  ╭─╮      ╭╮  ╭──────\n" + reset +
		red + "        ╰╮╭╯ ╰╮ ╭╮ ╭╯╰╮╭╯\n" + reset +
		red + "         ╰╯   ╰─╯╰─╯  ╰╯\n" + reset +
		yellow + "   ───────────────────────────\n" + reset +
		"   wrist-worn activity classifier ♥\n"
	return art
}

// PrintBanner prints the banner to stdout.
func PrintBanner() { FprintBanner(os.Stdout) }

// FprintBanner prints the banner to w.
func FprintBanner(w io.Writer) { fmt.Fprint(w, Banner()) }
