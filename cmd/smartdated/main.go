// Command smartdated serves recurring-date rules over HTTP and runs the periodic
// "apply changes" job that writes effective instances back to their owning entities.
package main

func main() {
	Execute()
}
