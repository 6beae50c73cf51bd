// Commit reconstruction by temporal proximity.
//
// CVS checks the files of one logical commit in one at a time, so their
// per-file revision records carry timestamps that straggle over a few
// seconds and, on older servers, no commitid at all.  The grouper folds
// the record stream back into multi-file commit objects: two records
// belong together when their commitid, author, and comment text agree
// and their timestamps fall within a fixed window of each other.

// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// clumpWindow is the clustering tolerance in seconds.  Empirical: single
// commits of large file sets have been observed to straggle this far.
const clumpWindow = 15

// keyDelimiter separates the key fields; it cannot occur in a login name
// or a commitid.
const keyDelimiter = "_|||_"

// commitKey builds the synthetic grouping key.  The epoch is zero-padded
// to fixed width so that lexicographic key order is chronological order;
// the emitter relies on this.
func commitKey(epoch int64, commitid string, author string) string {
	return fmt.Sprintf("%010d%s%s%s%s", epoch, keyDelimiter, commitid, keyDelimiter, author)
}

// FileChange is one file's role in a reconstructed commit.
type FileChange struct {
	revision string
	filename string
	tags     []string
}

// CommitObject is a reconstructed atomic multi-file change.  Comment and
// date are fixed by the record that minted the object; only files grows.
type CommitObject struct {
	key      string
	epoch    int64
	author   string
	commitid string
	comment  string
	date     string
	files    []FileChange
}

// Grouper owns the commit map and the tag registry for one parse pass.
// Its memory footprint scales with distinct commits and files, not with
// the raw size of the log.
type Grouper struct {
	commits   map[string]*CommitObject
	tagEpochs map[string]int64 // tag name -> earliest epoch seen
}

func newGrouper() *Grouper {
	gr := new(Grouper)
	gr.commits = make(map[string]*CommitObject)
	gr.tagEpochs = make(map[string]int64)
	return gr
}

// clump assigns one revision record to a commit object, minting a new
// one if nothing within the window matches.
func (gr *Grouper) clump(rec *RevisionRecord) {
	if branchRevRE.MatchString(rec.revision) {
		// Branch revisions are non-mainline history; drop them here
		// so they can never reach a commit's file list.
		if logEnable(logCLUMP) {
			logit("discarding branch revision %s of %s", rec.revision, rec.filename)
		}
		return
	}
	if rec.state == deadRevision {
		rec.revision = deadRevision
	}
	if rec.commitid == "" {
		rec.commitid = unknownCommitID
	}
	comment := strings.Join(rec.comment, "\n")
	var target *CommitObject
	// Scan order is -15..+15 ascending, first match wins.  Matching on
	// the comment text as well guards against unrelated commits merging
	// when commitids are absent and an author is busy.
	for i := -clumpWindow; i <= clumpWindow; i++ {
		key := commitKey(rec.epoch+int64(i), rec.commitid, rec.author)
		if commit, ok := gr.commits[key]; ok && commit.comment == comment {
			target = commit
			break
		}
	}
	if target == nil {
		key := commitKey(rec.epoch, rec.commitid, rec.author)
		// The scan can come up empty with the offset-0 slot already
		// taken: same second, same author, commitid absent, different
		// comment.  Probe forward for a free slot rather than clobber
		// the occupant and lose its file list.
		for bump := int64(1); ; bump++ {
			if _, taken := gr.commits[key]; !taken {
				break
			}
			key = commitKey(rec.epoch+bump, rec.commitid, rec.author)
		}
		target = &CommitObject{
			key:      key,
			epoch:    rec.epoch,
			author:   rec.author,
			commitid: rec.commitid,
			comment:  comment,
			date:     rfc3339(time.Unix(rec.epoch, 0)),
		}
		gr.commits[key] = target
		if logEnable(logCLUMP) {
			logit("new commit %s", key)
		}
	} else if logEnable(logCLUMP) {
		logit("%s rev %s joins commit %s", rec.filename, rec.revision, target.key)
	}
	// Prepend, don't append.  Within one master the log runs newest
	// first; prepending puts each commit's files back in the order the
	// masters were declared once the whole structure is flattened.
	target.files = append([]FileChange{{
		revision: rec.revision,
		filename: rec.filename,
		tags:     rec.tags,
	}}, target.files...)
	for _, tag := range rec.tags {
		if old, ok := gr.tagEpochs[tag]; !ok || rec.epoch < old {
			gr.tagEpochs[tag] = rec.epoch
		}
	}
	control.baton.twirl()
}

// sortedKeys returns the commit keys in chronological (= lexicographic)
// order.
func (gr *Grouper) sortedKeys() []string {
	keys := make([]string, 0, len(gr.commits))
	for key := range gr.commits {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// dump renders the reconstructed commits as text, for the parse operation.
func (gr *Grouper) dump() string {
	var out strings.Builder
	for _, key := range gr.sortedKeys() {
		commit := gr.commits[key]
		fmt.Fprintf(&out, "commit %s\n", key)
		fmt.Fprintf(&out, "Author: %s\nDate: %s\n", commit.author, commit.date)
		for _, line := range strings.Split(commit.comment, "\n") {
			fmt.Fprintf(&out, "    %s\n", line)
		}
		for _, change := range commit.files {
			fmt.Fprintf(&out, "\t%-8s %s", change.revision, change.filename)
			if len(change.tags) > 0 {
				fmt.Fprintf(&out, " (%s)", strings.Join(change.tags, " "))
			}
			out.WriteString("\n")
		}
		out.WriteString("\n")
	}
	return out.String()
}

// end
