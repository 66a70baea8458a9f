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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/lvp/cli/board"
	"github.com/mongoose-os/lvp/cli/flags"
	"github.com/mongoose-os/lvp/cli/ourutil"
	"github.com/mongoose-os/lvp/common/ihex"
	"github.com/mongoose-os/lvp/common/multierror"
	"github.com/mongoose-os/lvp/flash/icsp"
	"github.com/mongoose-os/lvp/flash/icsp/dspic33e"
	"github.com/mongoose-os/lvp/flash/icsp/pic16f1"
)

func newDevice(target string, p *icsp.Port) (icsp.Device, error) {
	switch strings.ToLower(target) {
	case pic16f1.Profile.Name, "pic16f1":
		return pic16f1.New(p), nil
	case dspic33e.Profile.Name, "dspic33e":
		return dspic33e.New(p), nil
	}
	return nil, errors.NotSupportedf("target %q", target)
}

func boardConfig() (*board.Config, error) {
	cfg := board.DefaultConfig()
	if *flags.Board != "" {
		var err error
		if cfg, err = board.LoadConfig(*flags.Board); err != nil {
			return nil, errors.Trace(err)
		}
	}
	for _, o := range []struct {
		v   string
		dst *string
	}{
		{*flags.ClockPin, &cfg.Clock},
		{*flags.DataPin, &cfg.Data},
		{*flags.ResetPin, &cfg.Reset},
		{*flags.LockFile, &cfg.LockFile},
	} {
		if o.v != "" {
			*o.dst = o.v
		}
	}
	if flag.CommandLine.Changed("reset-active-high") {
		cfg.ResetActiveHigh = *flags.ResetActiveHigh
	}
	return cfg, nil
}

// withEngine opens the board, runs f and closes the board.
func withEngine(f func(eng *icsp.Engine) error) (err error) {
	cfg, err := boardConfig()
	if err != nil {
		return errors.Trace(err)
	}
	b, err := board.Open(cfg)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()
	dev, err := newDevice(*flags.Target, b.Port())
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(f(icsp.NewEngine(dev)))
}

func flash(ctx context.Context) error {
	fname := flag.Arg(1)
	if fname == "" {
		return errors.Errorf("hex file is required")
	}
	img, err := ihex.ParseFile(fname)
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Loaded %s: %d bytes in %d records", fname, img.Size(), len(img.Records))
	if img.Start != 0 {
		ourutil.Reportf("Entry point: 0x%06x", img.Start)
	}
	return withEngine(func(eng *icsp.Engine) error {
		start := time.Now()
		if err := program(ctx, eng, img); err != nil {
			return errors.Trace(err)
		}
		st := eng.Stats()
		if st.Rows+st.ConfigRows == 0 {
			ourutil.Reportf("Nothing to program, all rows are blank")
			return nil
		}
		ourutil.Successf("Programmed %d rows and %d config rows (%d blank rows skipped) in %.2fs",
			st.Rows, st.ConfigRows, st.BlankRows, time.Since(start).Seconds())
		return nil
	})
}

// program feeds the image into the engine, part by part. Records less than
// a row apart are merged, with the gap filled as erased memory. The session
// is closed even if programming fails or ctx is cancelled.
func program(ctx context.Context, eng *icsp.Engine, img *ihex.Image) (err error) {
	defer func() {
		if lerr := eng.ProgramLastRow(); err == nil {
			err = errors.Trace(lerr)
		}
	}()
	parts := img.Parts(0xff, int(eng.Profile().RowBytes()))
	for i, p := range parts {
		if err := ctx.Err(); err != nil {
			return errors.Annotatef(err, "interrupted at part %d", i)
		}
		if err := eng.PackRow(p.Addr, p.Data); err != nil {
			return errors.Annotatef(err, "part %d (0x%06x)", i, p.Addr)
		}
		glog.V(2).Infof("part %d/%d: 0x%06x, %d bytes", i+1, len(parts), p.Addr, len(p.Data))
	}
	return nil
}

func erase(ctx context.Context) error {
	return withEngine(func(eng *icsp.Engine) error {
		ourutil.Reportf("Erasing %s...", eng.Profile().Name)
		if err := eng.Erase(); err != nil {
			return errors.Trace(err)
		}
		ourutil.Successf("Done")
		return nil
	})
}

func info(ctx context.Context) error {
	return withEngine(func(eng *icsp.Engine) error {
		return errors.Trace(writeInfo(eng, os.Stdout))
	})
}

func writeInfo(eng *icsp.Engine, w io.Writer) error {
	buf := make([]byte, icsp.InfoSegmentSize)
	for seg := 0; seg < eng.InfoSegments(); seg++ {
		if err := eng.GetInfo(buf, seg); err != nil {
			return errors.Trace(err)
		}
		if _, err := w.Write(bytes.TrimRight(buf, " ")); err != nil {
			return errors.Trace(err)
		}
	}
	_, err := fmt.Fprintln(w)
	return errors.Trace(err)
}

func read(ctx context.Context) error {
	return withEngine(func(eng *icsp.Engine) error {
		return errors.Trace(writeWords(eng, os.Stdout, *flags.Address, *flags.Count))
	})
}

func writeWords(eng *icsp.Engine, w io.Writer, addr uint32, n int) error {
	words, err := eng.ReadWords(addr, n)
	if err != nil {
		return errors.Trace(err)
	}
	for _, v := range words {
		ourutil.Freportf(w, "%06X: %06X", addr, v)
		addr += eng.Profile().AddrStep
	}
	return nil
}
