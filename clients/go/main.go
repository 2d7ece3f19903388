// Command chat is a command line client for the chat server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rooksgc/rooksgc-dev-server/clients/go/chat"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := chat.NewClient(os.Getenv("CHAT_URL"))
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "register":
		need(5, "chat register <name> <email> <password>")
		s, err := client.Register(ctx, os.Args[2], os.Args[3], os.Args[4])
		exitOnError(err)
		exitOnError(client.SaveToken())
		fmt.Printf("Registered as %d\n", s.User.ID)

	case "login":
		need(4, "chat login <email> <password>")
		s, err := client.Login(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		exitOnError(client.SaveToken())
		fmt.Printf("Logged in as %s (%d)\n", s.User.Name, s.User.ID)

	case "me":
		me, err := client.Me(ctx)
		exitOnError(err)
		printJSON(me)

	case "channels":
		me, err := client.Me(ctx)
		exitOnError(err)
		channels, err := client.Channels(ctx, me.ID)
		exitOnError(err)
		for _, ch := range channels {
			fmt.Printf("  %d  %s (%d members)\n", ch.ID, ch.Name, len(ch.Members))
		}

	case "create":
		need(3, "chat create <name> [description]")
		desc := ""
		if len(os.Args) > 3 {
			desc = os.Args[3]
		}
		id, err := client.CreateChannel(ctx, os.Args[2], desc)
		exitOnError(err)
		fmt.Printf("Created channel %d\n", id)

	case "add":
		need(4, "chat add <channel_id> <email>")
		added, err := client.AddChannelMember(ctx, parseID(os.Args[2]), os.Args[3])
		exitOnError(err)
		fmt.Printf("Added %s\n", added.Name)

	case "read":
		need(3, "chat read <channel_id>")
		page, err := client.ChannelMessages(ctx, parseID(os.Args[2]), 20, 0)
		exitOnError(err)
		for i := len(page.Messages) - 1; i >= 0; i-- {
			msg := page.Messages[i]
			ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
			fmt.Printf("[%s] %d: %s\n", ts, msg.FromID, msg.Text)
		}

	case "post":
		need(4, "chat post <channel_id> <message>")
		id, err := client.PostMessage(ctx, parseID(os.Args[2]), os.Args[3])
		exitOnError(err)
		fmt.Printf("Posted: %s\n", id)

	case "search":
		need(4, "chat search <channel_id> <query>")
		results, err := client.Search(ctx, parseID(os.Args[2]), os.Args[3])
		exitOnError(err)
		for _, msg := range results {
			fmt.Printf("[%d] %s\n", msg.FromID, msg.Text)
		}

	case "invite":
		need(3, "chat invite <email> [text]")
		text := ""
		if len(os.Args) > 3 {
			text = os.Args[3]
		}
		res, err := client.Invite(ctx, os.Args[2], text)
		exitOnError(err)
		if res.ContactAdded {
			fmt.Printf("%s added to contacts\n", res.Contact.Name)
		} else {
			fmt.Println("Invite sent")
		}

	case "accept":
		need(3, "chat accept <inviter_id>")
		u, err := client.Accept(ctx, parseID(os.Args[2]))
		exitOnError(err)
		fmt.Printf("%s added to contacts\n", u.Name)

	case "listen":
		listen(ctx, client)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// listen subscribes to every channel of the caller and prints events.
func listen(ctx context.Context, client *chat.Client) {
	me, err := client.Me(ctx)
	exitOnError(err)
	conn, err := client.Connect(ctx)
	exitOnError(err)
	defer conn.Close()

	exitOnError(conn.Send(models.EventChannelsSubscribe, me.Channels))
	for {
		ev, err := conn.Next(0)
		exitOnError(err)
		fmt.Printf("%s %s\n", ev.Event, ev.Data)
	}
}

func usage() {
	fmt.Println(`chat - command line client for the chat server

Usage: chat <command> [options]

Commands:
  register <name> <email> <password>   Create an account
  login <email> <password>             Log in and save the token
  me                                   Show the current user
  channels                             List your channels
  create <name> [description]          Create a channel
  add <channel_id> <email>             Add a user to a channel
  read <channel_id>                    Read channel history
  post <channel_id> <message>          Post to a channel
  search <channel_id> <query>          Search channel history
  invite <email> [text]                Invite a user to your contacts
  accept <inviter_id>                  Accept a contact invite
  listen                               Stream live events
  health                               Check server health

Environment:
  CHAT_URL      Server URL (default: http://localhost:8080)
  CHAT_CONFIG   Config directory (default: ~/.rooksgc)`)
}

func need(n int, usage string) {
	if len(os.Args) < n {
		fmt.Fprintln(os.Stderr, "Usage:", usage)
		os.Exit(1)
	}
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	exitOnError(err)
	return id
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
