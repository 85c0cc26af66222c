package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/conversation"
	"github.com/effective-security/azurellm/pkg/llmutils"
	"github.com/effective-security/azurellm/pkg/store"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("question is required")
	}
	retrieved, err := readContext(c.String("context"))
	if err != nil {
		return err
	}

	f, err := newFactory(c)
	if err != nil {
		return err
	}
	defer closeFactory(f)

	chat, err := f.ChatModel()
	if err != nil {
		return err
	}
	answer, err := conversation.AnswerWithContext(c.Context, chat, question, retrieved)
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, llmutils.EnsureEndsWithNewline(answer))
	return nil
}

// readContext returns the value, or the content of the file for @file values.
func readContext(value string) (string, error) {
	name, ok := strings.CutPrefix(value, "@")
	if !ok {
		return value, nil
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return "", errors.Wrapf(err, "unable to read context file %q", name)
	}
	return string(b), nil
}

func newStore(c *cli.Context) (store.MessageStore, func(), error) {
	u := c.String("redis-url")
	if u == "" {
		return store.NewMemoryStore(), func() {}, nil
	}
	opts, err := redis.ParseURL(u)
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid Redis URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(c.Context).Err(); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "unable to connect to Redis")
	}
	return store.NewRedisStore(client, c.String("redis-prefix")), func() { _ = client.Close() }, nil
}

func converseCommand(c *cli.Context) error {
	st, closeStore, err := newStore(c)
	if err != nil {
		return err
	}
	defer closeStore()

	f, err := newFactory(c)
	if err != nil {
		return err
	}
	defer closeFactory(f)

	chat, err := f.ChatModel()
	if err != nil {
		return err
	}

	session := conversation.NewSession(chat,
		conversation.WithSystemPrompt(c.String("system")),
		conversation.WithChatID(c.String("chat-id")),
		conversation.WithStore(st),
	)

	out := c.App.Writer
	fmt.Fprintf(out, "Chat: %s\n", session.ID())

	scanner := bufio.NewScanner(c.App.Reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := session.Reset(c.Context); err != nil {
				return err
			}
			fmt.Fprintln(out, "History cleared")
			continue
		case "/history":
			history, err := session.History(c.Context)
			if err != nil {
				return err
			}
			llmutils.PrintMessages(out, history)
			continue
		}

		reply, err := session.Send(c.Context, line)
		if err != nil {
			// the turn is not stored, the user can retry
			logger.ContextKV(c.Context, xlog.ERROR, "reason", "send", "chat", session.ID(), "err", err.Error())
			fmt.Fprintf(c.App.ErrWriter, "ERROR: %s\n", err.Error())
			continue
		}
		fmt.Fprintf(out, "AI: %s", llmutils.EnsureEndsWithNewline(reply))
	}
	return errors.Wrap(scanner.Err(), "failed to read input")
}
