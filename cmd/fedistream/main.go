// fedistream tails a Mastodon-compatible streaming feed to stdout.
//
// Examples:
//
//	fedistream public --instance mastodon.example
//	fedistream hashtag golang --instance mastodon.example --token $TOKEN
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cecil-the-coder/fediverse-kit/pkg/client"
	"github.com/cecil-the-coder/fediverse-kit/pkg/streaming"
)

var (
	flagInstance string
	flagToken    string
	flagPolling  bool
)

func main() {
	root := &cobra.Command{
		Use:           "fedistream",
		Short:         "Tail a fediverse streaming feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagInstance, "instance", "", "instance host, e.g. mastodon.example")
	root.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("FEDIVERSE_TOKEN"), "access token (defaults to $FEDIVERSE_TOKEN)")
	root.PersistentFlags().BoolVar(&flagPolling, "polling", false, "force the chunked-HTTP transport")

	root.AddCommand(
		feedCommand("public", "Federated public timeline", func(c *client.Client, _ []string) (*streaming.Session, error) {
			return c.StreamPublic()
		}, cobra.NoArgs),
		feedCommand("local", "Instance-local public timeline", func(c *client.Client, _ []string) (*streaming.Session, error) {
			return c.StreamPublicLocal()
		}, cobra.NoArgs),
		feedCommand("user", "Home timeline and notifications", func(c *client.Client, _ []string) (*streaming.Session, error) {
			return c.StreamUser()
		}, cobra.NoArgs),
		feedCommand("direct", "Direct-message conversations", func(c *client.Client, _ []string) (*streaming.Session, error) {
			return c.StreamDirect()
		}, cobra.NoArgs),
		feedCommand("hashtag <tag>", "Statuses carrying a hashtag", func(c *client.Client, args []string) (*streaming.Session, error) {
			return c.StreamHashtag(args[0])
		}, cobra.ExactArgs(1)),
		feedCommand("list <id>", "Statuses from a list's members", func(c *client.Client, args []string) (*streaming.Session, error) {
			return c.StreamList(args[0])
		}, cobra.ExactArgs(1)),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func feedCommand(use, short string, open func(*client.Client, []string) (*streaming.Session, error), args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			if flagInstance == "" {
				return fmt.Errorf("--instance is required")
			}
			c, err := client.New(client.Config{
				Instance:      flagInstance,
				AccessToken:   flagToken,
				DisableSocket: flagPolling,
			})
			if err != nil {
				return err
			}
			session, err := open(c, argv)
			if err != nil {
				return err
			}
			return tail(cmd.Context(), session)
		},
	}
}

func tail(parent context.Context, session *streaming.Session) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Stop()

	for {
		select {
		case ev := <-session.Events():
			printEvent(ev)
		case <-session.Done():
			return session.Err()
		case <-ctx.Done():
			return nil
		}
	}
}

func printEvent(ev streaming.Event) {
	switch ev.Type {
	case streaming.EventUpdate:
		fmt.Printf("update  %s  @%s  %s\n", ev.Status.ID, ev.Status.Account.Acct, ev.Status.Content)
	case streaming.EventNotification:
		fmt.Printf("notify  %s  %s from @%s\n", ev.Notification.ID, ev.Notification.Type, ev.Notification.Account.Acct)
	case streaming.EventDelete:
		fmt.Printf("delete  %d\n", ev.DeletedID)
	case streaming.EventConversation:
		fmt.Printf("direct  %s  (%d participants)\n", ev.Conversation.ID, len(ev.Conversation.Accounts))
	case streaming.EventFiltersChanged:
		fmt.Println("filters changed")
	}
}
