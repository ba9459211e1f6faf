package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _   _ ____       _ _            _
 | | | |  _ \  ___| (_) ___ _ __ | |_
 | |_| | |_) |/ __| | |/ _ \ '_ \| __|
 |  _  |  _ <| (__| | |  __/ | | | |_
 |_| |_|_| \_\\___|_|_|\___|_| |_|\__|

`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  HR development backend - Version %s\x1b[0m\n\n", Version)
}
