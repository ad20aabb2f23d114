package command

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"SharedBoard/internal/export"
	"SharedBoard/internal/pages"
	"SharedBoard/internal/raster"
	"SharedBoard/internal/session"
	"SharedBoard/internal/state"
)

var (
	errQuit  = errors.New("quit")
	errUsage = errors.New("usage")
)

const consoleHelp = `commands:
  status | roster | undo | redo | clear
  line|rect|ellipse x0 y0 x1 y1 [color] [size] [fill]
  stroke x0 y0 x1 y1 [x2 y2 ...] [color=#hex] [size=N] [mode=draw|erase|highlight]
  image <file> x y [w h]
  page add [pattern [color]] | page remove <id> | page goto <id> | page list
  bg <pattern> [color]
  viewport <w> <h>
  mode host-only|all|custom | allow <guest> | deny <guest>
  name <text> | request on|off
  export <file.pdf>
  quit`

// runConsole executes one command per input line until quit or ctx ends.
// When input runs out the board keeps running until ctx ends.
func runConsole(ctx context.Context, in io.Reader, out *printer, b *board) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c := &console{board: b, out: out}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			err := c.exec(line)
			switch {
			case errors.Is(err, errQuit):
				return nil
			case errors.Is(err, errUsage):
				out.printf("%v\n", err)
			case err != nil:
				out.printf("error: %v\n", err)
			}
		}
	}
}

type console struct {
	board *board
	out   *printer
}

func usage(text string) error { return fmt.Errorf("%w: %s", errUsage, text) }

func (c *console) exec(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	b := c.board
	switch cmd, rest := strings.ToLower(args[0]), args[1:]; cmd {
	case "quit", "exit":
		return errQuit
	case "help", "?":
		c.out.printf("%s\n", consoleHelp)
	case "status":
		s := b.Status()
		undo, redo := b.Counts()
		c.out.printf("role %s, phase %s, code %q, locked %v, guests %d, undo %d, redo %d\n",
			s.Role, s.Phase, s.Code, s.Locked, s.Guests, undo, redo)
	case "roster":
		r := b.Roster()
		c.out.printf("mode %s, %d guest(s)\n", r.Mode, r.Total)
		for _, g := range r.Guests {
			c.out.printf("  %d %s id=%s canDraw=%v requesting=%v\n", g.Index, g.DisplayName, g.ID, g.CanDraw, g.Requesting)
		}
	case "undo":
		_, err := b.RequestUndo()
		return err
	case "redo":
		_, err := b.RequestRedo()
		return err
	case "clear":
		_, err := b.Clear()
		return err
	case "line", "rect", "ellipse":
		return c.shape(state.ShapeKind(cmd), rest)
	case "stroke":
		return c.stroke(rest)
	case "image":
		return c.image(rest)
	case "page":
		return c.page(rest)
	case "bg":
		if len(rest) == 0 {
			return usage("bg <pattern> [color]")
		}
		return b.SetBackground(pages.ResolveBackground(rest[0], at(rest, 1), ""))
	case "viewport":
		nums, err := floats(rest)
		if err != nil || len(nums) != 2 {
			return usage("viewport <w> <h>")
		}
		return b.SetViewport(int(nums[0]), int(nums[1]))
	case "mode":
		mode, err := session.ParseAccessMode(at(rest, 0))
		if err != nil {
			return err
		}
		return b.SetAccessMode(mode)
	case "allow", "deny":
		if len(rest) == 0 {
			return usage(cmd + " <guest>")
		}
		return b.SetGuestCanDraw(strings.Join(rest, " "), cmd == "allow")
	case "name":
		return b.SetGuestName(strings.Join(rest, " "))
	case "request":
		switch at(rest, 0) {
		case "on":
			return b.SetRequestDraw(true)
		case "off":
			return b.SetRequestDraw(false)
		}
		return usage("request on|off")
	case "export":
		if len(rest) != 1 {
			return usage("export <file.pdf>")
		}
		list, _ := b.Pages()
		if err := export.WritePDFFile(rest[0], list, export.Options{Title: "SharedBoard " + b.Status().Code}); err != nil {
			return err
		}
		c.out.printf("exported %d page(s) to %s\n", len(list), rest[0])
	default:
		return usage(fmt.Sprintf("unknown command %q, try help", cmd))
	}
	return nil
}

func (c *console) shape(kind state.ShapeKind, args []string) error {
	if len(args) < 4 {
		return usage(string(kind) + " x0 y0 x1 y1 [color] [size] [fill]")
	}
	p, err := floats(args[:4])
	if err != nil {
		return usage(err.Error())
	}
	def := state.DefaultStyle(kind)
	style := state.ShapeStyle{Color: def.Color, Size: def.Size}
	if v := at(args, 4); v != "" {
		style.Color = v
	}
	if v := at(args, 5); v != "" {
		if style.Size, err = strconv.ParseFloat(v, 64); err != nil {
			return usage("size must be a number")
		}
	}
	if v := at(args, 6); v != "" && v != "none" {
		style.Fill = &v
	}

	d, err := c.board.BeginAction(state.ActionShape)
	if err != nil {
		return err
	}
	if err := c.board.SetShape(d, kind, state.Point{X: p[0], Y: p[1]}, state.Point{X: p[2], Y: p[3]}, style); err != nil {
		c.board.AbandonAction(d)
		return err
	}
	_, err = c.board.CommitAction(d)
	return err
}

func (c *console) stroke(args []string) error {
	def := state.ToolDefaults["pen"]
	tmpl := state.Segment{Color: def.Color, Size: def.Size, Mode: state.ModeDraw}
	var coords []string
	for _, a := range args {
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			coords = append(coords, a)
			continue
		}
		switch key {
		case "color":
			tmpl.Color = value
		case "size":
			size, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return usage("size must be a number")
			}
			tmpl.Size = size
		case "mode":
			tmpl.Mode = state.DrawMode(value)
		default:
			return usage("unknown option " + key)
		}
	}
	p, err := floats(coords)
	if err != nil || len(p) < 4 || len(p)%2 != 0 {
		return usage("stroke x0 y0 x1 y1 [x2 y2 ...]")
	}

	d, err := c.board.BeginAction(state.ActionStroke)
	if err != nil {
		return err
	}
	for i := 2; i+1 < len(p); i += 2 {
		seg := tmpl
		seg.X0, seg.Y0, seg.X1, seg.Y1 = p[i-2], p[i-1], p[i], p[i+1]
		if _, err := c.board.AppendSegment(d, seg, false); err != nil {
			return err
		}
	}
	_, err = c.board.CommitAction(d)
	return err
}

func (c *console) image(args []string) error {
	if len(args) != 3 && len(args) != 5 {
		return usage("image <file> x y [w h]")
	}
	pos, err := floats(args[1:])
	if err != nil {
		return usage(err.Error())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	dataURL := "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
	img := state.Image{DataURL: dataURL, X: pos[0], Y: pos[1]}
	if len(pos) == 4 {
		img.Width, img.Height = pos[2], pos[3]
	} else {
		decoded, err := raster.DecodeDataURL(dataURL)
		if err != nil {
			return err
		}
		img.Width, img.Height = float64(decoded.Bounds().Dx()), float64(decoded.Bounds().Dy())
	}

	d, err := c.board.BeginAction(state.ActionImage)
	if err != nil {
		return err
	}
	if err := c.board.SetImage(d, img); err != nil {
		c.board.AbandonAction(d)
		return err
	}
	a, err := c.board.CommitAction(d)
	if err == nil && a == nil {
		return errors.New("image was not accepted")
	}
	return err
}

func (c *console) page(args []string) error {
	b := c.board
	switch at(args, 0) {
	case "add":
		bg := pages.DefaultBackground()
		if len(args) > 1 {
			bg = pages.ResolveBackground(args[1], at(args, 2), "")
		}
		return b.AddPage(bg, "")
	case "remove", "rm":
		if len(args) != 2 {
			return usage("page remove <id>")
		}
		return b.RemovePage(args[1])
	case "goto":
		if len(args) != 2 {
			return usage("page goto <id>")
		}
		return b.SwitchActivePage(args[1])
	case "list", "":
		list, active := b.Pages()
		for i, p := range list {
			mark := " "
			if p.ID == active {
				mark = "*"
			}
			c.out.printf("%s %d %s %s %s\n", mark, i+1, p.ID, p.Background.Pattern, p.Background.Color)
		}
		return nil
	}
	return usage("page add|remove|goto|list")
}

func at(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func floats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", a)
		}
		out[i] = v
	}
	return out, nil
}
