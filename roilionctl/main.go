// Command roilionctl is an operator tool for the contact api: it tries spam rules against
// messages, checks form fields and issues visitor tokens.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
