// SPDX-License-Identifier: MIT
package main

import cmd "github.com/skaphos/labmirror/cmd/labmirror"

var execute = cmd.Execute

func main() {
	execute()
}
