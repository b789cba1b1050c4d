// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/i11/cosh/cmd/cosh"

func main() {
	cmd.Execute()
}
