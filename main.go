// The main package for the scrinshotd executable.
package main

import (
	"github.com/scrinshot/scrinshotd/cmd"
)

func main() {
	cmd.Execute()
}
