// Command tabula compiles .schema files into code, diagrams, and editor
// diagnostics.
package main

func main() {
	Execute()
}
