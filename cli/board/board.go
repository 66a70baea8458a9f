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

// Package board maps the ICSP lines onto host GPIOs.
package board

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flock "github.com/theckman/go-flock"
	"gopkg.in/yaml.v2"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/mongoose-os/lvp/common/multierror"
	"github.com/mongoose-os/lvp/flash/icsp"
)

// Config is the board description file.
type Config struct {
	Clock           string `yaml:"clock"`
	Data            string `yaml:"data"`
	Reset           string `yaml:"reset"`
	ResetActiveHigh bool   `yaml:"reset_active_high"`
	// Optional status LEDs: BusyLED is lit during a session, IdleLED
	// otherwise.
	BusyLED  string `yaml:"busy_led"`
	IdleLED  string `yaml:"idle_led"`
	LockFile string `yaml:"lock_file"`
}

// DefaultConfig is a Raspberry Pi header pin map.
func DefaultConfig() *Config {
	return &Config{
		Clock:    "GPIO23",
		Data:     "GPIO24",
		Reset:    "GPIO25",
		LockFile: filepath.Join(os.TempDir(), "lvp.lock"),
	}
}

// ParseConfig reads a board description on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	c := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, errors.Annotatef(err, "invalid board description")
	}
	return c, nil
}

func LoadConfig(fname string) (*Config, error) {
	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", fname)
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs error
	used := map[string]string{}
	for _, p := range []struct{ what, name string }{
		{"clock", c.Clock},
		{"data", c.Data},
		{"reset", c.Reset},
		{"busy_led", c.BusyLED},
		{"idle_led", c.IdleLED},
	} {
		if p.name == "" {
			if p.what == "busy_led" || p.what == "idle_led" {
				continue
			}
			errs = multierror.Append(errs, errors.Errorf("%s pin is not set", p.what))
			continue
		}
		if other, ok := used[p.name]; ok {
			errs = multierror.Append(errs, errors.Errorf("%s and %s share %s", other, p.what, p.name))
		}
		used[p.name] = p.what
	}
	if c.LockFile == "" {
		errs = multierror.Append(errs, errors.Errorf("lock_file is not set"))
	}
	return errs
}

var (
	hostInit = func() error {
		_, err := host.Init()
		return err
	}
	pinByName = gpioreg.ByName
)

// Board is an open pin map. Only one Board per lock file can be open at a
// time, across processes.
type Board struct {
	cfg  *Config
	lock *flock.Flock
	port *icsp.Port
	leds *leds
}

func Open(c *Config) (*Board, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	lock := flock.NewFlock(c.LockFile)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, errors.Annotatef(err, "failed to lock %s", c.LockFile)
	}
	if !ok {
		return nil, errors.Errorf("programmer is busy (%s is locked)", c.LockFile)
	}
	b, err := open(c, lock)
	if err != nil {
		lock.Unlock()
		return nil, errors.Trace(err)
	}
	return b, nil
}

func open(c *Config, lock *flock.Flock) (*Board, error) {
	if err := hostInit(); err != nil {
		return nil, errors.Annotatef(err, "failed to initialize GPIO drivers")
	}
	pins := map[string]gpio.PinIO{}
	for _, name := range []string{c.Clock, c.Data, c.Reset, c.BusyLED, c.IdleLED} {
		if name == "" {
			continue
		}
		p := pinByName(name)
		if p == nil {
			return nil, errors.NotFoundf("GPIO %s", name)
		}
		pins[name] = p
	}
	b := &Board{
		cfg:  c,
		lock: lock,
		leds: &leds{busy: pins[c.BusyLED], idle: pins[c.IdleLED]},
	}
	b.port = &icsp.Port{
		Clock:           pins[c.Clock],
		Data:            pins[c.Data],
		Reset:           pins[c.Reset],
		Delay:           icsp.SpinDelay{},
		ResetActiveHigh: c.ResetActiveHigh,
	}
	if b.leds.busy != nil || b.leds.idle != nil {
		b.port.Status = b.leds
		b.leds.Busy(false)
	}
	glog.V(1).Infof("board: clock=%s data=%s reset=%s", c.Clock, c.Data, c.Reset)
	return b, nil
}

func (b *Board) Port() *icsp.Port {
	return b.port
}

// Close floats the ICSP lines, turns the LEDs off and releases the lock.
func (b *Board) Close() error {
	var errs error
	for _, p := range []gpio.PinIO{b.port.Clock, b.port.Data, b.port.Reset} {
		if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
			errs = multierror.Append(errs, errors.Annotatef(err, "%s", p))
		}
	}
	for _, p := range []gpio.PinIO{b.leds.busy, b.leds.idle} {
		if p == nil {
			continue
		}
		if err := p.Out(gpio.Low); err != nil {
			errs = multierror.Append(errs, errors.Annotatef(err, "%s", p))
		}
	}
	if err := b.lock.Unlock(); err != nil {
		errs = multierror.Append(errs, errors.Annotatef(err, "failed to unlock %s", b.cfg.LockFile))
	}
	return errs
}

type leds struct {
	busy, idle gpio.PinIO
}

func (l *leds) Busy(on bool) {
	for _, s := range []struct {
		p  gpio.PinIO
		on bool
	}{{l.busy, on}, {l.idle, !on}} {
		if s.p == nil {
			continue
		}
		if err := s.p.Out(gpio.Level(s.on)); err != nil {
			glog.Warningf("%s: %s", s.p, err)
		}
	}
}
