/*
 *
 * Copyright 2025 The shmbus Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Command shmbus runs one participant of a shared-memory latest-message
// exchange group, or inspects and cleans up the group's regions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/shmbus/shmbus/internal/driver"
	"github.com/shmbus/shmbus/internal/exchange"
)

type runCmd struct {
	index       int
	dir         string
	metricsAddr string
	minSleep    time.Duration
	maxSleep    time.Duration
	verbose     bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run one exchange participant until interrupted" }
func (*runCmd) Usage() string {
	return `run -index <i> [-dir <path>] [-metrics <addr>] [-v]:
  Publish into region <i> and poll every peer's latest message.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.index, "index", -1, "participant index of this process")
	f.StringVar(&c.dir, "dir", "", "region directory (default /dev/shm, falling back to the temp dir)")
	f.StringVar(&c.metricsAddr, "metrics", "", "expose prometheus metrics on this address")
	f.DurationVar(&c.minSleep, "min-sleep", time.Microsecond, "lower bound of the randomized inter-round sleep")
	f.DurationVar(&c.maxSleep, "max-sleep", time.Second, "upper bound of the randomized inter-round sleep")
	f.BoolVar(&c.verbose, "v", false, "debug logging")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := logrus.New()
	if c.verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if c.index < 0 || c.index >= exchange.NumProcesses {
		fmt.Fprintf(os.Stderr, "index must be in [0, %d)\n", exchange.NumProcesses)
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := driver.Run(ctx, driver.Config{
		Index:       c.index,
		Dir:         c.dir,
		MinInterval: c.minSleep,
		MaxInterval: c.maxSleep,
		MetricsAddr: c.metricsAddr,
		Logger:      log,
	})
	if err != nil {
		log.WithError(err).Error("driver stopped")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type inspectCmd struct {
	index int
	dir   string
}

func (*inspectCmd) Name() string     { return "inspect" }
func (*inspectCmd) Synopsis() string { return "dump the state of one process's region" }
func (*inspectCmd) Usage() string {
	return `inspect -index <i> [-dir <path>]:
  Print the slot table of region <i>.
`
}

func (c *inspectCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.index, "index", -1, "participant index of the region to inspect")
	f.StringVar(&c.dir, "dir", "", "region directory")
}

func (c *inspectCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.index < 0 || c.index >= exchange.NumProcesses {
		fmt.Fprintf(os.Stderr, "index must be in [0, %d)\n", exchange.NumProcesses)
		return subcommands.ExitFailure
	}
	dir := c.dir
	if dir == "" {
		dir = exchange.DefaultDir()
	}

	region, err := exchange.OpenRegion(dir, c.index)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer region.Close()

	st := region.Container().Snapshot()
	fmt.Printf("region:       %s\n", region.Path())
	if st.CurrentSlotID == 0 {
		fmt.Println("current slot: none (no message published)")
	} else {
		fmt.Printf("current slot: %d\n", st.CurrentSlotID-1)
	}
	fmt.Println("slot  used_by     writer  readers     value")
	for i := 0; i < exchange.SlotCount; i++ {
		fmt.Printf("%4d  0x%08x  %-6v  0x%08x  %d\n",
			i, st.UsedBy[i], st.WriterHeld(i), st.Readers(i), st.Values[i])
	}
	return subcommands.ExitSuccess
}

type cleanCmd struct {
	dir string
}

func (*cleanCmd) Name() string     { return "clean" }
func (*cleanCmd) Synopsis() string { return "remove all region files of the group" }
func (*cleanCmd) Usage() string {
	return `clean [-dir <path>]:
  Remove every region file. Run only when the whole group is stopped.
`
}

func (c *cleanCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dir, "dir", "", "region directory")
}

func (c *cleanCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	dir := c.dir
	if dir == "" {
		dir = exchange.DefaultDir()
	}
	status := subcommands.ExitSuccess
	for i := 0; i < exchange.NumProcesses; i++ {
		if err := exchange.RemoveRegion(dir, i); err != nil {
			fmt.Fprintln(os.Stderr, err)
			status = subcommands.ExitFailure
		}
	}
	return status
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&inspectCmd{}, "")
	subcommands.Register(&cleanCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
