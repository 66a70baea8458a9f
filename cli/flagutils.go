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
	goflag "flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/lvp/cli/flags"
	"github.com/mongoose-os/lvp/common/multierror"
	"github.com/mongoose-os/lvp/version"
)

// glog registers these on the standard flag set. They only show up with
// --helpfull.
var logFlags = []string{
	"alsologtostderr",
	"log_backtrace_at",
	"log_dir",
	"logbufsecs",
	"logtostderr",
	"stderrthreshold",
	"v",
	"vmodule",
}

func initFlags() {
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	setLogFlagsHidden(true)
	flag.Usage = printUsage
}

func printUsage() {
	usage(os.Stderr, append([]string{os.Args[0]}, flag.Args()...))
}

func setLogFlagsHidden(hidden bool) {
	for _, name := range logFlags {
		if f := flag.Lookup(name); f != nil {
			f.Hidden = hidden
		}
	}
}

func checkFlags(fs []string) error {
	var errs error
	for _, req := range fs {
		f := flag.Lookup(req)
		if f == nil {
			errs = multierror.Append(errs, errors.Errorf("--%s is required", req))
		} else if !f.Changed {
			errs = multierror.Append(errs, errors.Errorf("--%s (or $%s) is required\t\t%s",
				f.Name, flags.EnvName(f.Name, envPrefix), f.Usage))
		}
	}
	return errs
}

// printFlag writes one line of flag help, naming the environment variable
// that can stand in for it.
func printFlag(w io.Writer, opt string, name string) {
	f := flag.Lookup(name)
	arg := "<" + f.Value.Type() + ">"
	if f.Value.Type() == "bool" {
		arg = ""
	}
	fmt.Fprintf(w, "  --%s %s\t%s. %s, $%s, default: %q\n",
		name, arg, f.Usage, opt, flags.EnvName(name, envPrefix), f.DefValue)
}

func commandUsage(w io.Writer, prog string, c *command) {
	fmt.Fprintf(w, "%s %s FLAGS\n", prog, c.name)
	fmt.Fprintf(w, "\n%s\n", c.short)
	fmt.Fprintf(w, "\nFlags:\n")
	for _, name := range c.required {
		printFlag(w, "Required", name)
	}
	for _, name := range c.optional {
		printFlag(w, "Optional", name)
	}
}

func usage(out io.Writer, args []string) {
	w := tabwriter.NewWriter(out, 0, 0, 1, ' ', 0)
	defer w.Flush()

	if len(args) == 3 && args[1] == "help" {
		for i := range commands {
			if commands[i].name == args[2] {
				commandUsage(w, args[0], &commands[i])
				return
			}
		}
	}

	fmt.Fprintf(w, "Low-voltage ICSP programmer %s.\n", version.GetVersion())
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  %s <command> [flags]\n", args[0])
	fmt.Fprintf(w, "\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\t\t%s\n", color.New(color.FgCyan).Sprint(c.name), c.short)
	}

	fmt.Fprintf(w, "\nGlobal Flags:\n")
	if *helpFull {
		fmt.Fprintf(w, "%s", flag.CommandLine.FlagUsages())
	} else {
		printFlag(w, "Optional", "target")
		printFlag(w, "Optional", "board")
	}
	fmt.Fprintf(w, "\nRun \"%s help <command>\" for command flags, --helpfull for logging flags.\n", args[0])
}
