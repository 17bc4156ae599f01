// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/cfgweave/cfgweave/cmd/cfgweave"

func main() {
	cmd.Execute()
}
