package main

import (
	"chat-relay/domain/chat"
	"chat-relay/infrastructure/grpc/client"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Config struct {
	RelayAddr string        `envconfig:"RELAY_ADDR" default:"localhost:8080"`
	Token     string        `envconfig:"RELAY_TOKEN"`
	Timeout   time.Duration `envconfig:"RELAY_TIMEOUT" default:"10s"`
	// RELAY_COLOURS enables colorized output when listening
	Colours bool `envconfig:"RELAY_COLOURS" default:"true"`
}

const usage = `usage: client <command> [args]

commands:
  register <username> <password>   create an account and print its token
  login <username> <password>      print a fresh token
  post <text>                      post a message (needs RELAY_TOKEN)
  list                             print the whole history
  search [-limit n] <query>        full-text search over the history
  listen                           print messages as they are posted
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if len(args) == 0 {
		return errors.New(usage)
	}

	c, err := client.Dial(config.RelayAddr)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	c = c.WithToken(config.Token)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, args := args[0], args[1:]
	if command == "listen" {
		return listen(ctx, c, out, config.Colours)
	}

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	switch command {
	case "register", "login":
		if len(args) != 2 {
			return errors.New(usage)
		}
		var token string
		if command == "register" {
			token, err = c.Register(ctx, args[0], args[1])
		} else {
			token, err = c.Login(ctx, args[0], args[1])
		}
		if err != nil {
			return describe(err)
		}
		_, err = fmt.Fprintln(out, token)
		return err
	case "post":
		message, err := c.Post(ctx, strings.Join(args, " "))
		if err != nil {
			return describe(err)
		}
		_, err = fmt.Fprintf(out, "posted #%d\n", message.ID)
		return err
	case "list":
		messages, err := c.List(ctx)
		if err != nil {
			return describe(err)
		}
		printTable(out, messages)
		return nil
	case "search":
		fs := flag.NewFlagSet("search", flag.ContinueOnError)
		limit := fs.Int("limit", 0, "maximum number of results")
		if err := fs.Parse(args); err != nil {
			return err
		}
		messages, err := c.Search(ctx, strings.Join(fs.Args(), " "), *limit)
		if err != nil {
			return describe(err)
		}
		printTable(out, messages)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

// listen prints every message posted after the subscription, until interrupted.
func listen(ctx context.Context, c *client.ChatClient, out io.Writer, colours bool) error {
	sub, err := c.Subscribe(ctx)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(out, "listening (session %s)\n", sub.SessionID)

	for {
		m, err := sub.Recv()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return describe(err)
		}
		author := string(m.Author)
		if colours {
			author = color.New(color.FgGreen, color.OpBold).Render(author)
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), author, m.Text)
	}
}

func printTable(out io.Writer, messages []chat.Message) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Author", "Created At", "Text"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	for _, m := range messages {
		table.Append([]string{
			fmt.Sprintf("%d", m.ID),
			string(m.Author),
			m.CreatedAt.Local().Format(time.DateTime),
			m.Text,
		})
	}
	table.Render()
}

func describe(err error) error {
	if s, ok := status.FromError(err); ok {
		return fmt.Errorf("%s: %s", s.Code(), s.Message())
	}
	return err
}
