package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

func (k statusKind) label() string {
	switch k {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (k statusKind) color() string {
	switch k {
	case statusOK:
		return "\x1b[32m"
	case statusWarn:
		return "\x1b[33m"
	case statusError:
		return "\x1b[31m"
	default:
		return "\x1b[34m"
	}
}

const colorReset = "\x1b[0m"

// statusPrinter writes the aligned sections of `scanwatch status`. Color is
// applied to the [OK]/[WARN]/[ERROR] tag only, and dropped entirely when the
// output is not a terminal.
type statusPrinter struct {
	out   io.Writer
	color bool
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out, color: isTerminal(out)}
}

func (p *statusPrinter) section(title string) {
	fmt.Fprintf(p.out, "%s\n", title)
}

func (p *statusPrinter) line(label string, kind statusKind, message string) {
	tag := "[" + kind.label() + "]"
	if p.color {
		tag = kind.color() + tag + colorReset
	}
	if message == "" {
		fmt.Fprintf(p.out, "  %-16s %s\n", label+":", tag)
		return
	}
	fmt.Fprintf(p.out, "  %-16s %s %s\n", label+":", tag, message)
}

func (p *statusPrinter) text(message string) {
	fmt.Fprintf(p.out, "  %s\n", message)
}

func (p *statusPrinter) blank() {
	fmt.Fprintln(p.out)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
