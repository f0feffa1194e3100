package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const defaultWidth = 80

// Console 会话输出：样式、Markdown 渲染与分隔线
// Console is the session output: styles, Markdown rendering and separators
type Console struct {
	out      io.Writer
	theme    Theme
	markdown bool
	tty      bool
	width    int
}

type Options struct {
	// Plain disables colors and Markdown even on a terminal.
	Plain bool
	Width int
}

// NewConsole 检测终端能力并创建控制台
// NewConsole creates a console, detecting terminal capabilities of out
func NewConsole(out io.Writer, opts Options) *Console {
	c := &Console{out: out, theme: PlainTheme(), width: opts.Width}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.tty = true
		if c.width <= 0 {
			if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
				c.width = w
			}
		}
	}
	if c.tty && !opts.Plain && os.Getenv("NO_COLOR") == "" {
		c.theme = DarkTheme()
		c.markdown = true
	}
	if c.width <= 0 {
		c.width = defaultWidth
	}
	return c
}

func (c *Console) Width() int { return c.width }

func (c *Console) Theme() Theme { return c.theme }

func (c *Console) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *Console) Println(args ...any) {
	_, _ = fmt.Fprintln(c.out, args...)
}

func (c *Console) styled(style func(...string) string, msg string) {
	_, _ = fmt.Fprintf(c.out, "\n%s\n", style(msg))
}

func (c *Console) Info(msg string)    { c.styled(c.theme.InfoStyle.Render, msg) }
func (c *Console) Success(msg string) { c.styled(c.theme.SuccessStyle.Render, msg) }
func (c *Console) Warn(msg string)    { c.styled(c.theme.WarningStyle.Render, msg) }
func (c *Console) Error(msg string)   { c.styled(c.theme.ErrorStyle.Render, msg) }
func (c *Console) Muted(msg string)   { c.styled(c.theme.MutedStyle.Render, msg) }

// Errorf prints a formatted error line.
func (c *Console) Errorf(format string, args ...any) {
	c.Error(fmt.Sprintf(format, args...))
}

// Assistant prints a model reply under an "Assistant:" label.
func (c *Console) Assistant(text string) {
	_, _ = fmt.Fprintf(c.out, "\n%s\n", c.theme.TitleStyle.Render("Assistant:"))
	if c.markdown {
		_, _ = fmt.Fprintf(c.out, "%s\n", RenderMarkdown(text, min(c.width, 100)))
		return
	}
	_, _ = fmt.Fprintf(c.out, "\n%s\n\n", indent(strings.TrimSpace(text), 2))
}

// Command shows a shell command proposed for execution.
func (c *Console) Command(cmd string) {
	_, _ = fmt.Fprintf(c.out, "\n%s\n", c.theme.CommandStyle.Render(cmd))
}

// Code prints a fenced code block.
func (c *Console) Code(lang, src string) {
	block := "```" + lang + "\n" + strings.TrimRight(src, "\n") + "\n```"
	if c.markdown {
		_, _ = fmt.Fprintf(c.out, "%s\n", RenderMarkdown(block, c.width))
		return
	}
	_, _ = fmt.Fprintf(c.out, "%s\n", block)
}

// JSON pretty prints v.
func (c *Console) JSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		c.Errorf("Error: %v", err)
		return
	}
	c.Code("json", string(data))
}

// Panel draws body inside a titled border.
func (c *Console) Panel(title, body string) {
	if title != "" {
		_, _ = fmt.Fprintf(c.out, "\n%s\n", c.theme.TitleStyle.Render(title))
	}
	_, _ = fmt.Fprintf(c.out, "%s\n", c.theme.PanelStyle.Render(body))
}

// Separator fills the line with dashes up to a right-aligned info label.
func (c *Console) Separator(info string) {
	_, _ = fmt.Fprintf(c.out, "\n%s\n", c.theme.MutedStyle.Render(SeparatorLine(c.width, info)))
}

// SeparatorLine returns dashes followed by info so the whole line is width cells wide.
func SeparatorLine(width int, info string) string {
	fill := width - runewidth.StringWidth(info)
	if fill < 0 {
		fill = 0
	}
	return strings.Repeat("-", fill) + info
}

// Status prints a transient progress note and returns a func that clears it.
// Off a terminal it prints nothing.
func (c *Console) Status(msg string) func() {
	if !c.tty {
		return func() {}
	}
	_, _ = fmt.Fprint(c.out, c.theme.WarningStyle.Render(msg))
	return func() {
		_, _ = fmt.Fprint(c.out, "\r\x1b[K")
	}
}
