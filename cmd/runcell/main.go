// SPDX-License-Identifier: EPL-2.0

package main

func main() {
	Execute()
}
