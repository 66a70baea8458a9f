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
package flags

import (
	"os"
	"strings"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"
)

var (
	Target = flag.String("target", "pic16f188xx", "Target device family: pic16f188xx or dspic33ep")
	Board  = flag.String("board", "", "Board description file (YAML) with the programmer pin map")

	ClockPin        = flag.String("clock-pin", "", "GPIO driving the ICSP clock line (overrides the board file)")
	DataPin         = flag.String("data-pin", "", "GPIO driving the ICSP data line (overrides the board file)")
	ResetPin        = flag.String("reset-pin", "", "GPIO driving the target reset line (overrides the board file)")
	ResetActiveHigh = flag.Bool("reset-active-high", false, "The target is held in reset while the reset GPIO is high")
	LockFile        = flag.String("lock-file", "", "Lock file guarding the programmer pins (overrides the board file)")

	Address = flag.Uint32("address", 0, "Start address for read, in device words")
	Count   = flag.Int("count", 16, "Number of words to read")
)

// ParseEnv iterates through all non-set flags in the given FlagSet,
// checks if there is an environment variable with the uppercased flag name
// prepended with the given envPrefix, and if so, sets flag value to the
// environment variable value.
//
// It should be called after Parse is called for the given FlagSet.
func ParseEnv(fs *flag.FlagSet, envPrefix string) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	var err error
	fs.VisitAll(func(f *flag.Flag) {
		if set[f.Name] || err != nil {
			return
		}
		name := EnvName(f.Name, envPrefix)
		if v := os.Getenv(name); v != "" {
			if serr := fs.Set(f.Name, v); serr != nil {
				err = errors.Annotatef(serr, "%s", name)
			}
		}
	})
	return err
}

func EnvName(flagName, envPrefix string) string {
	return envPrefix + strings.ToUpper(strings.Replace(flagName, "-", "_", -1))
}
