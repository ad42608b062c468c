// Command pandocbridge streams documents through a conversion engine.
//
//	pandocbridge convert --from html --to gfm --engine html page.html
//	pandocbridge convert --output-dir out --seekable -j 4 *.md
//	pandocbridge serve --listen :8080
package main

func main() {
	execute()
}
