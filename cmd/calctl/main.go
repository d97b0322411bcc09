package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sharmaanmol256/new-calendar/pkg/client"
)

func main() {
	app := &cli.App{
		Name:  "calctl",
		Usage: "talk to the calendar service from a terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:5000", EnvVars: []string{"CALENDAR_SERVER"}},
			&cli.StringFlag{Name: "email", EnvVars: []string{"CALENDAR_EMAIL"}, Usage: "account returned by the sign-in redirect"},
		},
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "print the Google consent URL",
				Action: func(c *cli.Context) error {
					u, err := newClient(c).AuthURL(c.Context)
					if err != nil {
						return err
					}
					fmt.Println(u)
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "report whether the session is usable",
				Action: func(c *cli.Context) error {
					ok, err := newClient(c).Check(c.Context)
					if err != nil {
						return err
					}
					fmt.Println("authenticated:", ok)
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "revoke and forget stored tokens",
				Action: func(c *cli.Context) error {
					return newClient(c).Logout(c.Context)
				},
			},
			eventsCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func eventsCommand() *cli.Command {
	inputFlags := []cli.Flag{
		&cli.StringFlag{Name: "summary", Required: true},
		&cli.StringFlag{Name: "description"},
		&cli.TimestampFlag{Name: "start", Layout: time.RFC3339, Required: true},
		&cli.DurationFlag{Name: "duration", Value: time.Hour},
		&cli.StringSliceFlag{Name: "attendee"},
		&cli.StringFlag{Name: "tz"},
	}

	return &cli.Command{
		Name:  "events",
		Usage: "list and change events",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "show upcoming events",
				Action: func(c *cli.Context) error {
					events, err := newClient(c).ListEvents(c.Context)
					if err != nil {
						return err
					}
					printEvents(events)
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "create an event",
				Flags: inputFlags,
				Action: func(c *cli.Context) error {
					ev, err := newClient(c).CreateEvent(c.Context, eventInput(c))
					if err != nil {
						return err
					}
					fmt.Println("created", ev.ID)
					return nil
				},
			},
			{
				Name:      "update",
				Usage:     "replace an event",
				ArgsUsage: "<event-id>",
				Flags:     inputFlags,
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("event id is required", 2)
					}
					ev, err := newClient(c).UpdateEvent(c.Context, id, eventInput(c))
					if err != nil {
						return err
					}
					fmt.Println("updated", ev.ID)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "delete an event",
				ArgsUsage: "<event-id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("event id is required", 2)
					}
					return newClient(c).DeleteEvent(c.Context, id)
				},
			},
			{
				Name:  "watch",
				Usage: "re-fetch the event list periodically",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "interval", Value: client.DefaultWatchInterval},
				},
				Action: func(c *cli.Context) error {
					err := newClient(c).Watch(c.Context, c.Duration("interval"), func(events []client.Event, err error) {
						if err != nil {
							fmt.Fprintln(os.Stderr, "fetch failed:", err)
							return
						}
						fmt.Printf("--- %s\n", time.Now().Format(time.Kitchen))
						printEvents(events)
					})
					if err == context.Canceled {
						return nil
					}
					return err
				},
			},
		},
	}
}

func newClient(c *cli.Context) *client.Client {
	return client.New(c.String("server"), c.String("email"), nil)
}

func eventInput(c *cli.Context) client.EventInput {
	start := *c.Timestamp("start")
	end := start.Add(c.Duration("duration"))
	return client.EventInput{
		Summary:       c.String("summary"),
		Description:   c.String("description"),
		StartDateTime: start.Format(time.RFC3339),
		EndDateTime:   end.Format(time.RFC3339),
		Attendees:     c.StringSlice("attendee"),
		TimeZone:      c.String("tz"),
	}
}

func printEvents(events []client.Event) {
	if len(events) == 0 {
		fmt.Println("no upcoming events")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tSUMMARY")
	for _, ev := range events {
		start := ev.Start.DateTime
		if start == "" {
			start = ev.Start.Date
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", ev.ID, start, strings.TrimSpace(ev.Summary))
	}
	w.Flush()
}
