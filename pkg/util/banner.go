package util

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
)

// ANSI 颜色
const (
	ColorReset  = "\x1b[0m"
	ColorRed    = "\x1b[1;31m"
	ColorGreen  = "\x1b[1;32m"
	ColorYellow = "\x1b[1;33m"
	ColorBlue   = "\x1b[1;34m"
	ColorCyan   = "\x1b[1;36m"
)

var colors = map[string]string{
	"red":    ColorRed,
	"green":  ColorGreen,
	"yellow": ColorYellow,
	"blue":   ColorBlue,
	"cyan":   ColorCyan,
}

func colorCode(name string) string {
	if c, ok := colors[name]; ok {
		return c
	}
	return ColorReset
}

// PrintBanner 将 ASCII banner 和版本号以同一种颜色写入 w
func PrintBanner(w io.Writer, text, version, color string) {
	ansi := colorCode(color)
	for _, line := range figure.NewFigure(text, "", true).Slicify() {
		fmt.Fprintln(w, ansi+line+ColorReset)
	}
	fmt.Fprintf(w, "%s%s %s%s\n\n", ansi, text, version, ColorReset)
}
