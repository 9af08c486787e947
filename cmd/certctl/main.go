// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// certctl dials an issuance engine directly and issues one grant per
// invocation, entirely bypassing the HTTP adapter — useful for operators
// and for scripting against cmd/certissuerd without standing up the HTTP
// adapter process.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/stockvault/certissuer/fault"
	"github.com/stockvault/certissuer/wire"
)

var version = "zero"

func main() {
	app := cli.NewApp()
	app.Name = "certctl"
	app.Version = version
	app.HideVersion = true
	app.Usage = "issue certificate grants directly against a certissuerd engine"

	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "connect, c",
			Value: "127.0.0.1:9800",
			Usage: "engine `HOST:PORT` to connect to",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "grant",
			Usage:     "grant shares of a class to a holder",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "class, s", Usage: "*share class tag"},
				cli.StringFlag{Name: "holder, n", Usage: "*holder name"},
				cli.Uint64Flag{Name: "amount, a", Value: 1, Usage: "quantity to grant"},
			},
			Action: runGrant,
		},
		{
			Name:  "version",
			Usage: "display certctl version",
			Action: func(c *cli.Context) error {
				fmt.Fprintf(c.App.Writer, "%s\n", version)
				return nil
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}

func runGrant(c *cli.Context) error {
	class := c.String("class")
	holder := c.String("holder")
	amount := c.Uint64("amount")

	if class == "" {
		return fmt.Errorf("grant: --class is required")
	}
	if holder == "" {
		return fmt.Errorf("grant: --holder is required")
	}
	if amount == 0 || amount > 0xFFFFFFFF {
		return fmt.Errorf("grant: --amount must be between 1 and %d", uint32(0xFFFFFFFF))
	}

	conn, err := net.DialTimeout("tcp", c.GlobalString("connect"), 5*time.Second)
	if err != nil {
		return fmt.Errorf("grant: connect failed: %s", err)
	}
	defer conn.Close()

	payload, err := wire.EncodeRequest(&wire.Request{ClassTag: class, Amount: uint32(amount), HolderName: holder})
	if err != nil {
		return fmt.Errorf("grant: encode failed: %s", err)
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		return fmt.Errorf("grant: write failed: %s", err)
	}

	replyPayload, err := wire.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("grant: read failed: %s", err)
	}
	reply, err := wire.DecodeReply(replyPayload)
	if err != nil {
		return fmt.Errorf("grant: malformed reply: %s", err)
	}

	if reply.Reason != fault.ReasonOK {
		return fmt.Errorf("grant: rejected: %s", reply.Reason)
	}

	fmt.Fprintf(c.App.Writer, "%s-%d\n", class, reply.CertificateNumber)
	return nil
}
