package format

import (
	"fmt"
	"io"
)

// Printer writes formatted lines to the operator's terminal
type Printer struct {
	*Formatter
	out io.Writer
}

func NewPrinter(out io.Writer, opts Options) *Printer {
	return &Printer{Formatter: New(opts), out: out}
}

func (p *Printer) Writer() io.Writer {
	return p.out
}

func (p *Printer) Println(text string) {
	fmt.Fprintln(p.out, text)
}

func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *Printer) Successln(text string) {
	p.Println(p.Success(text))
}

func (p *Printer) Errorln(text string) {
	p.Println(p.Error(text))
}

func (p *Printer) Noticeln(text string) {
	p.Println(p.Notice(text))
}

func (p *Printer) Warnln(text string) {
	p.Println(p.Warning(text))
}
