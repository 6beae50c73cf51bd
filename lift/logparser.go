// Streaming state-machine parser for CVS log output.
//
// The log arrives in arbitrary chunks; LogParser is an io.Writer so the
// retrieval subprocess can simply be copied into it.  Only the trailing
// partial line is ever buffered; each complete revision entry is handed
// to the consumer hook as soon as its terminating separator is seen.
//
// The format this reads is one section per RCS master:
//
//	RCS file: <path>,v
//	symbolic names:
//		<tag>: <revision>
//	----------------------------
//	revision <rev>
//	date: <date> <time>;  author: <name>;  state: <state>;  [commitid: <id>;]
//	branches: ...
//	<comment line>*
//	----------------------------   (repeats per revision)
//	===========================...  (77 equal signs, ends the section)
//
// The exact separator strings are part of the contract with cvs log.

// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	orderedset "github.com/emirpasic/gods/sets/linkedhashset"
)

// Sentinels used in RevisionRecord fields.
const deadRevision = "dead"
const unknownCommitID = "<unknown>"

// Separator lines; cvs log emits exactly these.
var revSeparator = strings.Repeat("-", 28)
var fileSeparator = strings.Repeat("=", 77)

// branchRevRE matches revisions with three or more dot-separated numeric
// components; those denote branch history and are never lifted.
var branchRevRE = regexp.MustCompile(`^[0-9]+(\.[0-9]+){2,}$`)

// RevisionRecord is one file's state as of one logged change, before
// grouping into commits.
type RevisionRecord struct {
	filename string
	revision string
	epoch    int64
	author   string
	commitid string
	state    string
	comment  []string
	tags     []string
}

type parseState int

const (
	psInitial parseState = iota
	psRCSFile
	psSkipToTags
	psProcessTags
	psSkipToRevision
	psSkipToInfos
	psSkipToBranchInfo
	psBuildCommitLog
)

func (ps parseState) String() string {
	return [...]string{"INITIAL", "RCS_FILE", "SKIP_TO_TAGS", "PROCESS_TAGS",
		"SKIP_TO_REVISION", "SKIP_TO_INFOS", "SKIP_TO_BRANCH_INFO",
		"BUILD_COMMIT_LOG"}[ps]
}

var rcsFileRE = regexp.MustCompile(`^RCS file: (.*),v`)
var tagLineRE = regexp.MustCompile("^\t([^:]+): ([0-9.]+)$")
var revisionLineRE = regexp.MustCompile(`^revision ([0-9.]+)`)
var dateFieldRE = regexp.MustCompile(`date: ([^;]+);`)
var authorFieldRE = regexp.MustCompile(`author: ([^;]+);`)
var stateFieldRE = regexp.MustCompile(`state: ([^;]+);`)
var commitidFieldRE = regexp.MustCompile(`commitid: ([^;]+);`)

// Date layouts seen in the wild: old cvs used slashed dates with an
// implied UTC, newer ones dash dates with an explicit zone.
var logDateLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// LogParser turns a CVS log text stream into RevisionRecords.
type LogParser struct {
	prefix       string
	contribs     ContribMap
	allowUnknown bool
	keepBlanks   bool
	transcode    func(string) string
	consume      func(*RevisionRecord)

	state    parseState
	partial  []byte
	lineno   int
	filename string
	filetags map[string][]string // revision -> tags, current file only
	rec      *RevisionRecord
	unknowns *orderedset.Set
}

func newLogParser(prefix string, contribs ContribMap, allowUnknown bool,
	keepBlanks bool, transcode func(string) string,
	consume func(*RevisionRecord)) *LogParser {
	lp := new(LogParser)
	lp.prefix = prefix
	lp.contribs = contribs
	lp.allowUnknown = allowUnknown
	lp.keepBlanks = keepBlanks
	lp.transcode = transcode
	lp.consume = consume
	lp.state = psInitial
	lp.filetags = make(map[string][]string)
	lp.unknowns = orderedset.New()
	return lp
}

// Write accepts the next chunk of log text.  Chunk boundaries are
// arbitrary; lines are reassembled internally.
func (lp *LogParser) Write(data []byte) (int, error) {
	lp.partial = append(lp.partial, data...)
	for {
		nl := bytes.IndexByte(lp.partial, '\n')
		if nl < 0 {
			break
		}
		line := string(lp.partial[:nl])
		lp.partial = lp.partial[nl+1:]
		if err := lp.consumeLine(strings.TrimSuffix(line, "\r")); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

// Close flushes any trailing partial line and surfaces the aggregate
// unknown-author failure.  Violations are deferred to here so one run
// reports every identity that needs a map entry, not just the first.
func (lp *LogParser) Close() error {
	if len(lp.partial) > 0 {
		line := strings.TrimSuffix(string(lp.partial), "\r")
		lp.partial = nil
		if err := lp.consumeLine(line); err != nil {
			return err
		}
	}
	if lp.unknowns.Size() > 0 {
		names := make([]string, 0, lp.unknowns.Size())
		for _, v := range lp.unknowns.Values() {
			names = append(names, v.(string))
		}
		return fmt.Errorf("authors not in the contributor map: %s",
			strings.Join(names, ", "))
	}
	return nil
}

func (lp *LogParser) parseError(line string) error {
	return fmt.Errorf("log line %d: unexpected line %q in state %v",
		lp.lineno, line, lp.state)
}

// consumeLine is the transition function of the state machine.
func (lp *LogParser) consumeLine(line string) error {
	lp.lineno++
	if logEnable(logPARSE) {
		logit("%v: %q", lp.state, line)
	}
	switch lp.state {
	case psInitial:
		if strings.HasPrefix(line, "? ") {
			// cvs log mentions of untracked files
			break
		}
		if line == "" {
			lp.state = psRCSFile
			break
		}
		if rcsFileRE.MatchString(line) {
			// cvs log output leads with the first master, no
			// blank line before it.
			return lp.startFile(line)
		}
		return lp.parseError(line)
	case psRCSFile:
		if line == "" {
			break
		}
		if rcsFileRE.MatchString(line) {
			return lp.startFile(line)
		}
		return lp.parseError(line)
	case psSkipToTags:
		if line == "symbolic names:" {
			lp.state = psProcessTags
		}
	case psProcessTags:
		if m := tagLineRE.FindStringSubmatch(line); m != nil {
			// Branch tags (magic branch numbers included) never
			// bind to mainline revisions.
			if !branchRevRE.MatchString(m[2]) {
				lp.filetags[m[2]] = append(lp.filetags[m[2]], m[1])
			}
		} else if line == revSeparator {
			lp.state = psSkipToRevision
		}
		// Anything else is the keyword-substitution/description
		// header block; not interesting.
	case psSkipToRevision:
		if m := revisionLineRE.FindStringSubmatch(line); m != nil {
			lp.rec = &RevisionRecord{
				filename: lp.filename,
				revision: m[1],
				commitid: unknownCommitID,
				tags:     lp.filetags[m[1]],
			}
			lp.state = psSkipToInfos
		}
	case psSkipToInfos:
		if err := lp.crackInfoLine(line); err != nil {
			return err
		}
		lp.state = psSkipToBranchInfo
	case psSkipToBranchInfo:
		if strings.HasPrefix(line, "branches:") {
			lp.state = psBuildCommitLog
			break
		}
		if line == revSeparator || line == fileSeparator {
			// Empty comment; unusual but representable.
			return lp.endRevision(line)
		}
		if line != "" {
			lp.addCommentLine(line)
			lp.state = psBuildCommitLog
		}
	case psBuildCommitLog:
		if line == revSeparator || line == fileSeparator {
			return lp.endRevision(line)
		}
		lp.addCommentLine(line)
	}
	return nil
}

// startFile normalizes the RCS filename and resets per-file state.
func (lp *LogParser) startFile(line string) error {
	m := rcsFileRE.FindStringSubmatch(line)
	pathname := m[1]
	// Masters of deleted files live in an Attic subdirectory; the
	// repository-relative path doesn't include it.
	pathname = strings.Replace(pathname, "/Attic/", "/", 1)
	if !strings.HasPrefix(pathname, lp.prefix) {
		return fmt.Errorf("log line %d: %s lacks the required prefix %s",
			lp.lineno, pathname, lp.prefix)
	}
	pathname = strings.TrimPrefix(strings.TrimPrefix(pathname, lp.prefix), "/")
	lp.filename = pathname
	lp.filetags = make(map[string][]string)
	lp.state = psSkipToTags
	control.baton.twirl()
	return nil
}

// crackInfoLine extracts the date/author/state/commitid fields.  The
// fields are matched independently so their order doesn't matter and
// all but the date may be absent.
func (lp *LogParser) crackInfoLine(line string) error {
	m := dateFieldRE.FindStringSubmatch(line)
	if m == nil {
		return fmt.Errorf("log line %d: no date in %q", lp.lineno, line)
	}
	when, err := parseLogDate(strings.TrimSpace(m[1]))
	if err != nil {
		return fmt.Errorf("log line %d: %v", lp.lineno, err)
	}
	lp.rec.epoch = when
	if m = authorFieldRE.FindStringSubmatch(line); m != nil {
		lp.rec.author = strings.TrimSpace(m[1])
	}
	if m = stateFieldRE.FindStringSubmatch(line); m != nil {
		lp.rec.state = strings.TrimSpace(m[1])
	}
	if m = commitidFieldRE.FindStringSubmatch(line); m != nil {
		lp.rec.commitid = strings.TrimSpace(m[1])
	}
	if lp.rec.state == deadRevision {
		lp.rec.revision = deadRevision
	}
	if !lp.allowUnknown && !lp.contribs.Has(lp.rec.author) {
		lp.unknowns.Add(lp.rec.author)
	}
	return nil
}

func (lp *LogParser) addCommentLine(line string) {
	if line == "" && !lp.keepBlanks {
		return
	}
	if lp.transcode != nil {
		line = lp.transcode(line)
	}
	lp.rec.comment = append(lp.rec.comment, line)
}

// endRevision hands the accumulated record to the consumer and picks
// the next state from the separator that ended it.
func (lp *LogParser) endRevision(separator string) error {
	lp.consume(lp.rec)
	lp.rec = nil
	if separator == fileSeparator {
		lp.state = psInitial
	} else {
		lp.state = psSkipToRevision
	}
	return nil
}

func parseLogDate(field string) (int64, error) {
	for _, layout := range logDateLayouts {
		if t, err := time.ParseInLocation(layout, field, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unparseable date %q", field)
}

// end
