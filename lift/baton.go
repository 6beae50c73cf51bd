/*
 * Baton machinery: a twirly progress indicator for the long-running
 * parse and emit phases, active only when stdout is a terminal.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

const twirlInterval = 100 * time.Millisecond // Rate-limit baton twirls

// Baton is the overall state of the status line.
type Baton struct {
	sync.Mutex
	progressEnabled bool
	stream          *os.File
	start           time.Time
	lastupdate      time.Time
	twirlcount      uint8
	countfmt        string
	count           uint64
	startmsg        string
	processStart    time.Time
}

func newBaton(interactive bool) *Baton {
	me := new(Baton)
	me.progressEnabled = interactive
	me.stream = os.Stdout
	me.start = time.Now()
	return me
}

// printLogString emits a one-shot message without disturbing the
// status line.
func (baton *Baton) printLogString(str string) {
	if baton == nil {
		return
	}
	baton.Lock()
	defer baton.Unlock()
	if baton.progressEnabled {
		baton.stream.WriteString("\r\x1b[K")
	}
	baton.stream.WriteString(str)
	if !strings.HasSuffix(str, "\n") {
		baton.stream.WriteString("\n")
	}
}

// twirl spins the baton.
func (baton *Baton) twirl() {
	if baton == nil || !baton.progressEnabled {
		return
	}
	baton.Lock()
	defer baton.Unlock()
	if time.Since(baton.lastupdate) < twirlInterval {
		return
	}
	baton.twirlcount = (baton.twirlcount + 1) % 4
	baton.lastupdate = time.Now()
	baton.render()
}

func (baton *Baton) render() {
	var line strings.Builder
	line.WriteString("\r\x1b[K")
	line.WriteString(baton.startmsg)
	if baton.countfmt != "" {
		fmt.Fprintf(&line, " "+baton.countfmt, baton.count)
	}
	fmt.Fprintf(&line, " (%v) ", time.Since(baton.start).Round(time.Second))
	line.WriteByte("-\\|/"[baton.twirlcount])
	baton.stream.WriteString(line.String())
}

func (baton *Baton) startProcess(startmsg string, endmsg string) {
	if baton == nil || !baton.progressEnabled {
		return
	}
	baton.Lock()
	defer baton.Unlock()
	baton.startmsg = startmsg
	baton.processStart = time.Now()
	baton.render()
}

func (baton *Baton) endProcess() {
	if baton == nil || !baton.progressEnabled {
		return
	}
	baton.Lock()
	elapsed := time.Since(baton.processStart).Round(10 * time.Millisecond)
	msg := fmt.Sprintf("%s ...(%v)", baton.startmsg, elapsed)
	baton.startmsg = ""
	baton.Unlock()
	baton.printLogString(msg)
}

func (baton *Baton) startcounter(countfmt string, initial uint64) {
	if baton == nil || !baton.progressEnabled {
		return
	}
	baton.Lock()
	defer baton.Unlock()
	baton.countfmt = countfmt
	baton.count = initial
}

func (baton *Baton) bumpcounter() {
	if baton == nil || !baton.progressEnabled {
		return
	}
	baton.Lock()
	baton.count++
	baton.Unlock()
	baton.twirl()
}

func (baton *Baton) endcounter() {
	if baton == nil || !baton.progressEnabled {
		return
	}
	baton.Lock()
	defer baton.Unlock()
	baton.render()
	baton.countfmt = ""
	baton.count = 0
	baton.stream.WriteString("\n")
}

// Sync flushes the status line so ordinary output can follow it.
func (baton *Baton) Sync() {
	if baton == nil || !baton.progressEnabled {
		return
	}
	baton.Lock()
	defer baton.Unlock()
	baton.stream.WriteString("\r\x1b[K")
}

// end
