// Command clawbox manages per-developer macOS VMs: clone, provision,
// bidirectional source sync, and lifecycle teardown.
package main

func main() {
	Execute()
}
