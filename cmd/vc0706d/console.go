package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/CACTUS-Mission/cFS-VC0706/internal/ccsds"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/msg"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/swbus"
)

const consolePipeName = "VC0706_CONSOLE_PIPE"

// console stands in for the ground station: it sends commands typed at a
// prompt and prints the telemetry that comes back.
type console struct {
	bus  *swbus.Bus
	pipe *swbus.Pipe
	rl   *readline.Instance
	out  io.Writer
}

func newConsole(bus *swbus.Bus, depth int) (*console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "vc0706> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsoleOutput(bus, depth, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsoleOutput(bus *swbus.Bus, depth int, out io.Writer) *console {
	p := bus.CreatePipe(consolePipeName, depth)
	p.Subscribe(msg.HKTlmMID)
	p.Subscribe(msg.ImageCmdMID)
	return &console{bus: bus, pipe: p, out: out}
}

// Run reads commands until EOF, quit or ctx is done. Leaving the prompt
// calls cancel.
func (c *console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	go c.watch(ctx)

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
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
		if quit := c.execute(line); quit {
			cancel()
			return
		}
	}
}

// watch prints telemetry until ctx is done.
func (c *console) watch(ctx context.Context) {
	defer c.pipe.Delete()
	for {
		pkt, err := c.pipe.Receive(ctx, -1)
		if err != nil {
			return
		}
		c.show(pkt)
	}
}

func (c *console) show(pkt ccsds.Packet) {
	switch pkt.MsgID() {
	case msg.HKTlmMID:
		hk, err := msg.DecodeHK(pkt)
		if err != nil {
			fmt.Fprintln(c.out, err)
			return
		}
		fmt.Fprintf(c.out, "HK seq=%d cmd=%d err=%d last=%q\n",
			pkt.Sequence(), hk.CommandCount, hk.CommandErrorCount, hk.Filename)
	case msg.ImageCmdMID:
		cmd, err := msg.DecodeImageCmd(pkt)
		if err != nil {
			fmt.Fprintln(c.out, err)
			return
		}
		fmt.Fprintf(c.out, "IMAGE cc=%d %s\n", cmd.Code, cmd.Name)
	}
}

// execute runs one command line and reports whether the console should exit.
func (c *console) execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	args := parts[1:]
	switch strings.ToLower(parts[0]) {
	case "help", "?":
		c.printHelp()
	case "noop", "n":
		c.send(msg.NoArgsCmd(msg.CmdMID, msg.NoopCC))
	case "reset", "r":
		c.send(msg.NoArgsCmd(msg.CmdMID, msg.ResetCountersCC))
	case "hk", "h":
		c.send(msg.NoArgsCmd(msg.SendHKMID, 0))
	case "send", "s":
		c.cmdSend(args)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help')\n", parts[0])
	}
	return false
}

// cmdSend sends an arbitrary command: send <mid> <cc> [payload bytes].
func (c *console) cmdSend(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: send <mid> <cc> [payload length]")
		return
	}
	mid, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid mid: %s\n", args[0])
		return
	}
	cc, err := strconv.ParseUint(args[1], 0, 7)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid command code: %s\n", args[1])
		return
	}
	n := 0
	if len(args) > 2 {
		if n, err = strconv.Atoi(args[2]); err != nil || n < 0 {
			fmt.Fprintf(c.out, "Invalid payload length: %s\n", args[2])
			return
		}
	}
	pkt := ccsds.NewCommand(ccsds.MsgID(mid), uint8(cc), n)
	pkt.GenerateChecksum()
	c.send(pkt)
}

func (c *console) send(pkt ccsds.Packet) {
	n := c.bus.Send(pkt)
	if n == 0 {
		fmt.Fprintf(c.out, "No subscriber for %s\n", pkt.MsgID())
	}
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, `Commands:
  noop, n                 send a no-op command
  reset, r                reset the command counters
  hk, h                   request housekeeping telemetry
  send, s <mid> <cc> [n]  send a command with n payload bytes
  help, ?                 show this help
  quit, q                 stop the application`)
}
