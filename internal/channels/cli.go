package channels

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/amberseal/amberseal/internal/bus"
)

var cliExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// CLIChannel wires the terminal (stdin/stdout) into the channel manager so
// that interactive console input reaches the agent via the bus and agent
// replies are printed to stdout.
type CLIChannel struct {
	Base
	replies chan bus.OutboundMessage
}

// NewCLIChannel creates a CLIChannel.
func NewCLIChannel(b *bus.MessageBus) *CLIChannel {
	return &CLIChannel{
		Base:    NewBase(bus.ChannelCLI, b, nil),
		replies: make(chan bus.OutboundMessage, 16),
	}
}

func (c *CLIChannel) Name() string { return bus.ChannelCLI }

// Start runs the stdin REPL: reads lines, dispatches them to the agent via the
// inbound bus, and prints each reply routed back through Send.
// Blocks until ctx is cancelled or stdin is closed.
func (c *CLIChannel) Start(ctx context.Context) error {
	fmt.Printf("CLI channel ready. Type 'exit' or press Ctrl+C to quit.\n\n")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")

		scanDone := make(chan bool, 1)
		go func() {
			scanDone <- scanner.Scan()
		}()

		select {
		case ok := <-scanDone:
			if !ok {
				fmt.Println("\nGoodbye!")
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if cliExitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		c.HandleMessage("user", "direct", line, nil, nil)
		c.waitForReply(ctx)
	}
}

// waitForReply blocks until the agent delivers a non-progress reply, then
// prints it. An empty final reply means the message tool already displayed
// the answer, so there is nothing left to print.
func (c *CLIChannel) waitForReply(ctx context.Context) {
	for {
		select {
		case msg := <-c.replies:
			if isProgress(msg) {
				fmt.Printf("  ↳ %s\n", msg.Content)
				continue
			}
			if msg.Content != "" {
				fmt.Printf("\n🦭 amberseal\n%s\n\n", msg.Content)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// Send delivers an outbound agent reply to the CLI by handing it to the Start
// loop, which prints to stdout.
func (c *CLIChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.replies <- msg

	return nil
}
