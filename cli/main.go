//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/lvp/cli/flags"
	"github.com/mongoose-os/lvp/version"
)

const (
	envPrefix = "LVP_"
)

var (
	versionFlag = flag.Bool("version", false, "Print version and exit")
	helpFull    = flag.Bool("helpfull", false, "Show full help, including logging flags")
)

var boardFlags = []string{"target", "board", "clock-pin", "data-pin", "reset-pin", "reset-active-high", "lock-file"}

var (
	// put all commands here
	commands = []command{
		{"flash", flash, `Program a hex file into the target: flash <file.hex>`, nil, boardFlags},
		{"erase", erase, `Bulk erase the target`, nil, boardFlags},
		{"info", info, `Print device and revision IDs, configuration and a memory dump`, nil, boardFlags},
		{"read", read, `Read words from the target memory`, []string{"address"}, append([]string{"count"}, boardFlags...)},
	}
)

type command struct {
	name     string
	handler  handler
	short    string
	required []string
	optional []string
}

type handler func(ctx context.Context) error

func run(ctx context.Context) error {
	for _, c := range commands {
		if c.name == flag.Arg(0) {
			// check required flags
			if err := checkFlags(c.required); err != nil {
				return errors.Trace(err)
			}
			// run the handler
			if err := c.handler(ctx); err != nil {
				return errors.Trace(err)
			}
			return nil
		}
	}
	printUsage()
	if cmd := flag.Arg(0); cmd != "" && cmd != "help" {
		return errors.Errorf("unknown command %q", cmd)
	}
	return nil
}

func main() {
	initFlags()
	flag.Parse()
	if err := flags.ParseEnv(flag.CommandLine, envPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if *helpFull {
		setLogFlagsHidden(false)
		printUsage()
		return
	} else if *versionFlag {
		fmt.Printf("%s\n%s", "The low-voltage ICSP programmer", version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		glog.Infof("Error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		glog.Flush()
		os.Exit(1)
	}
	glog.Flush()
}
