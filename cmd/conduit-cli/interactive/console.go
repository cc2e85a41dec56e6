// Package interactive provides the interactive command-line interface
// for the conduit bridge.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/conduit-mq/conduit-go/pkg/bridge"
)

// commandTimeout bounds each subscription operation issued from the prompt.
const commandTimeout = 5 * time.Second

// Console handles interactive mode for conduit-cli.
type Console struct {
	bridge *bridge.Bridge
	rl     *readline.Instance
}

// New creates a new interactive console around a bridge.
func New(b *bridge.Bridge) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "conduit> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := &Console{
		bridge: b,
		rl:     rl,
	}
	c.registerListeners()

	return c, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// registerListeners prints every bridge event above the prompt.
func (c *Console) registerListeners() {
	events := c.bridge.Events()

	events.OnMessage(func(channel, payload string) {
		fmt.Fprintf(c.rl.Stdout(), "[message] %s: %s\n", channel, payload)
	})
	events.OnPMessage(func(pattern, channel, payload string) {
		fmt.Fprintf(c.rl.Stdout(), "[pmessage] %s (%s): %s\n", channel, pattern, payload)
	})
	events.OnSubscribe(func(channel string, count int) {
		fmt.Fprintf(c.rl.Stdout(), "[subscribe] %s (total %d)\n", channel, count)
	})
	events.OnUnsubscribe(func(channel string, count int) {
		fmt.Fprintf(c.rl.Stdout(), "[unsubscribe] %s (total %d)\n", channel, count)
	})
	events.OnPSubscribe(func(pattern string, count int) {
		fmt.Fprintf(c.rl.Stdout(), "[psubscribe] %s (total %d)\n", pattern, count)
	})
	events.OnPUnsubscribe(func(pattern string, count int) {
		fmt.Fprintf(c.rl.Stdout(), "[punsubscribe] %s (total %d)\n", pattern, count)
	})
	events.OnReconnecting(func(attempt int, delay time.Duration) {
		if delay > 0 {
			fmt.Fprintf(c.rl.Stdout(), "[reconnecting] attempt %d after %s\n", attempt, delay)
			return
		}
		fmt.Fprintf(c.rl.Stdout(), "[reconnecting] attempt %d\n", attempt)
	})
	events.OnReady(func() {
		fmt.Fprintln(c.rl.Stdout(), "[ready]")
	})
	events.OnError(func(err error) {
		fmt.Fprintf(c.rl.Stdout(), "[error] %v\n", err)
	})
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "subscribe", "sub":
			c.cmdSubscribe(ctx, args)

		case "unsubscribe", "unsub":
			c.cmdUnsubscribe(ctx, args)

		case "psubscribe", "psub":
			c.cmdPSubscribe(ctx, args)

		case "punsubscribe", "punsub":
			c.cmdPUnsubscribe(ctx, args)

		case "publish", "pub":
			c.cmdPublish(ctx, args)

		case "channels", "ch":
			c.cmdChannels()

		case "status":
			c.cmdStatus()

		case "history":
			c.cmdHistory()

		case "check":
			c.cmdCheck(args)

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Conduit Bridge Commands:
  Subscriptions:
    subscribe <channel...>    - Subscribe to exact channels
    unsubscribe [channel...]  - Unsubscribe (no args = all channels)
    psubscribe <pattern...>   - Subscribe to glob patterns (e.g. news.*)
    punsubscribe [pattern...] - Unsubscribe patterns (no args = all)

  Publishing:
    publish <channel> <text>  - Publish a message

  Inspection:
    channels           - List active channels and patterns
    status             - Show connection and subscription state
    history            - Show recent subscription state snapshots
    check <command>    - Test a command against the subscriber-mode guard

  General:
    help               - Show this help
    quit               - Exit`)
}

// cmdSubscribe handles the subscribe command.
func (c *Console) cmdSubscribe(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: subscribe <channel...>")
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	count, err := c.bridge.Subscribe(opCtx, args...)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Subscribed, %d total\n", count)
}

// cmdUnsubscribe handles the unsubscribe command.
func (c *Console) cmdUnsubscribe(ctx context.Context, args []string) {
	opCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	count, err := c.bridge.Unsubscribe(opCtx, args...)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Unsubscribed, %d total\n", count)
}

// cmdPSubscribe handles the psubscribe command.
func (c *Console) cmdPSubscribe(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: psubscribe <pattern...>")
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	count, err := c.bridge.PSubscribe(opCtx, args...)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Subscribed, %d total\n", count)
}

// cmdPUnsubscribe handles the punsubscribe command.
func (c *Console) cmdPUnsubscribe(ctx context.Context, args []string) {
	opCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	count, err := c.bridge.PUnsubscribe(opCtx, args...)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Unsubscribed, %d total\n", count)
}

// cmdPublish handles the publish command.
func (c *Console) cmdPublish(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: publish <channel> <text>")
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	payload := strings.Join(args[1:], " ")
	receivers, err := c.bridge.Publish(opCtx, args[0], []byte(payload))
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Published to %s, %d receiver(s)\n", args[0], receivers)
}

// cmdChannels lists the active subscription set.
func (c *Console) cmdChannels() {
	channels := c.bridge.SubscribedChannels()
	patterns := c.bridge.SubscribedPatterns()

	if len(channels) == 0 && len(patterns) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No active subscriptions")
		return
	}
	for _, ch := range channels {
		fmt.Fprintf(c.rl.Stdout(), "  channel  %s\n", ch)
	}
	for _, p := range patterns {
		fmt.Fprintf(c.rl.Stdout(), "  pattern  %s\n", p)
	}
}

// cmdStatus shows connection and subscription state.
func (c *Console) cmdStatus() {
	fmt.Fprintf(c.rl.Stdout(), "Connection:      %s\n", c.bridge.ConnectionState())
	fmt.Fprintf(c.rl.Stdout(), "Subscriptions:   %d\n", c.bridge.SubscriptionCount())
	fmt.Fprintf(c.rl.Stdout(), "Subscriber mode: %v\n", c.bridge.SubscriberMode())
}

// cmdHistory shows the retained subscription snapshots.
func (c *Console) cmdHistory() {
	history := c.bridge.History()
	if len(history) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No history yet")
		return
	}
	for _, snap := range history {
		fmt.Fprintf(c.rl.Stdout(), "  %s  total=%d channels=%v patterns=%v\n",
			snap.TakenAt.Format(time.TimeOnly), snap.Total, snap.Channels, snap.Patterns)
	}
}

// cmdCheck tests a command name against the subscriber-mode guard.
func (c *Console) cmdCheck(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: check <command>")
		return
	}
	if err := c.bridge.CheckCommand(args[0]); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Rejected: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Allowed: %s\n", strings.ToLower(args[0]))
}
