package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"

	"github.com/mrpasztoradam/goadsdev"
	"github.com/mrpasztoradam/goadsdev/internal/ads"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

// Console is the interactive operator prompt of a running device.
type Console struct {
	device *goadsdev.Device
	rl     *readline.Instance
	out    io.Writer
}

// NewConsole creates the prompt. Attach must be called before Run.
func NewConsole() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ads> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("list"),
			readline.PcItem("get"),
			readline.PcItem("set"),
			readline.PcItem("state"),
			readline.PcItem("sessions"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Attach binds the console to the device it operates on.
func (c *Console) Attach(d *goadsdev.Device) {
	c.device = d
}

// Stderr returns a writer that keeps log output off the prompt line.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Close releases the terminal; a pending Run returns.
func (c *Console) Close() error {
	return c.rl.Close()
}

// Run reads commands until the user quits, input ends or ctx is cancelled.
// Quitting calls cancel.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()
	for {
		if ctx.Err() != nil {
			return
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if ctx.Err() == nil {
				fmt.Fprintln(c.out, "Exiting...")
				cancel()
			}
			return
		}

		if c.exec(line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// exec runs one command line and reports whether the console should exit.
func (c *Console) exec(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "list", "ls":
		c.cmdList(args)
	case "get", "g":
		c.cmdGet(args)
	case "set", "s":
		c.cmdSet(args)
	case "state":
		c.cmdState(args)
	case "sessions":
		c.cmdSessions()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
ADS Device Commands:
  list [filter]        - List symbols, optionally those whose name contains filter
  get <symbol>         - Read a symbol value
  set <symbol> <value> - Write a symbol value (arrays comma separated)
  state [name [dev]]   - Show or change the ADS state, e.g. "state stop"
  sessions             - Show open client sessions
  help                 - Show this help
  quit                 - Stop the device`)
}

func (c *Console) cmdList(args []string) {
	db := c.device.Database()
	list := db.Symbols()
	if len(args) > 0 {
		list = db.Find(args[0])
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No symbols")
		return
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tGROUP\tOFFSET\tSIZE")
	for _, sym := range list {
		fmt.Fprintf(tw, "%s\t%s\t0x%X\t%d\t%d\n", sym.Name, sym.TypeName(), sym.IndexGroup(), sym.Offset, sym.Size())
	}
	tw.Flush()
}

func (c *Console) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: get <symbol>")
		return
	}
	sym, err := c.device.Database().ResolveByName(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	v, err := sym.Read()
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s = %s\n", sym.Name, formatValue(sym, v))
}

func (c *Console) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: set <symbol> <value>")
		return
	}
	sym, err := c.device.Database().ResolveByName(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	v, err := symbols.ParseValue(sym.Type, sym.ArrayLength, strings.Join(args[1:], " "))
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := sym.Write(v); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.cmdGet(args[:1])
}

func (c *Console) cmdState(args []string) {
	if len(args) == 0 {
		st := c.device.State()
		fmt.Fprintf(c.out, "ADS state: %s (%d), device state: %d\n", st.ADSState, uint16(st.ADSState), st.DeviceState)
		return
	}

	state, ok := ads.ParseADSState(strings.ToLower(args[0]))
	if !ok {
		fmt.Fprintf(c.out, "Unknown state: %s\n", args[0])
		return
	}
	devState := c.device.State().DeviceState
	if len(args) > 1 {
		n, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			fmt.Fprintf(c.out, "Invalid device state: %s\n", args[1])
			return
		}
		devState = uint16(n)
	}
	if err := c.device.SetState(state, devState); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "ADS state: %s\n", state)
}

func (c *Console) cmdSessions() {
	sessions := c.device.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(c.out, "No open sessions")
		return
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPEER\tREMOTE\tREQUESTS\tFAILURES\tHANDLES\tAGE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.ID, s.Peer, s.Remote, s.Requests, s.Failures, s.Handles,
			time.Since(s.Created).Truncate(time.Second))
	}
	tw.Flush()
}

func formatValue(sym *symbols.Symbol, v any) string {
	if raw, ok := v.([]byte); ok && sym.Type == symbols.DataTypeString {
		return strconv.Quote(ads.CString(raw))
	}
	return fmt.Sprint(v)
}
