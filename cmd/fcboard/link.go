package main

import (
	"context"
	"encoding/hex"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/flightboard/cmd/fcboard/console"
	"github.com/mklimuk/flightboard/link"
	"github.com/mklimuk/flightboard/pkg/config"
)

var portFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "port",
		Aliases: []string{"p"},
		Usage:   "serial device, overrides the configured one",
	},
	&cli.IntFlag{
		Name:  "baud",
		Usage: "baud rate, overrides the configured one",
	},
}

var linkCmd = cli.Command{
	Name:  "link",
	Usage: "radio link over a serial port",
	Subcommands: cli.Commands{
		&linkSendCmd,
		&linkListenCmd,
	},
}

var linkSendCmd = cli.Command{
	Name:      "send",
	Usage:     "send one packet and print the reply",
	ArgsUsage: "[hex payload]",
	Flags: append([]cli.Flag{
		&cli.UintFlag{
			Name:    "type",
			Aliases: []string{"t"},
			Value:   0x01,
			Usage:   "packet type",
		},
		&cli.DurationFlag{
			Name:  "wait",
			Value: time.Second,
			Usage: "how long to wait for a reply, 0 to not wait",
		},
	}, portFlags...),
	Action: func(c *cli.Context) error {
		payload, err := hex.DecodeString(c.Args().First())
		if err != nil {
			return console.Fail("invalid payload", err)
		}
		if c.Uint("type") > 0xFF {
			return console.Exit("packet type must fit in a byte")
		}
		p := link.Packet{Type: byte(c.Uint("type")), Payload: payload}

		l, stop, err := startLink(c)
		if err != nil {
			return err
		}
		defer stop()

		if err := l.Send(c.Context, p); err != nil {
			return console.Fail("could not send packet", err)
		}
		console.PInfof(console.PictoSatellite, "sent %s", console.White(p))
		wait := c.Duration("wait")
		if wait <= 0 {
			return nil
		}
		select {
		case reply := <-l.Inbound():
			console.PInfof(console.PictoSatellite, "received %s", console.Green(reply))
		case <-time.After(wait):
			console.Warnf("no reply within %s", wait)
		case <-c.Context.Done():
		}
		return nil
	},
}

var linkListenCmd = cli.Command{
	Name:  "listen",
	Usage: "print incoming packets until interrupted",
	Flags: portFlags,
	Action: func(c *cli.Context) error {
		ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
		defer cancel()
		c.Context = ctx

		l, stop, err := startLink(c)
		if err != nil {
			return err
		}
		defer stop()

		for {
			select {
			case <-ctx.Done():
				printLinkStats(l.Stats())
				return nil
			case p := <-l.Inbound():
				console.PInfof(console.PictoSatellite, "%s %s", time.Now().Format(time.TimeOnly), console.White(p))
			}
		}
	},
}

func serialConfig(c *cli.Context, cfg config.Config) link.SerialConfig {
	sc := cfg.Link
	if port := c.String("port"); port != "" {
		sc.Name = port
	}
	if baud := c.Int("baud"); baud > 0 {
		sc.Baud = baud
	}
	return sc
}

// startLink opens the serial port and runs a link on it until stop is called.
func startLink(c *cli.Context) (*link.Link, func(), error) {
	sc := serialConfig(c, configFrom(c))
	port, err := link.OpenSerial(sc)
	if err != nil {
		return nil, nil, console.Fail("serial port error", err)
	}
	l := link.New(port, link.WithEOFIsIdle(), link.WithHandoffDepth(4))
	ctx, cancel := context.WithCancel(c.Context)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := l.Run(ctx); err != nil {
			console.Errorf("link stopped: %s", err)
		}
	}()
	return l, func() {
		cancel()
		<-done
	}, nil
}
