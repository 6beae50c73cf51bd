// The emitter walks the reconstructed commits in chronological order and
// replays them into a git repository, one commit in flight at a time.
// Each commit depends on the working-tree state its predecessor left
// behind, so there is no parallelism to be had here.
//
// All the actual VCS work is delegated to subprocesses: cvs checks file
// contents out of the source repository, git stages and commits them.
// Everything else - ordering, added/updated/removed classification,
// squashing, the watermark - is this module's logic.

// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	shutil "github.com/termie/go-shutil"
)

const emptyLogMessage = "*** empty log message ***"

// Emitter turns grouped commits into an ordered sequence of git commits.
type Emitter struct {
	destdir    string
	grouper    *Grouper
	module     string
	cvsroot    string
	squashDate int64
	baseline   map[string]string // filename -> last known live revision
	created    int
	script     []string // dry-run trace of planned actions

	// Pending squash aggregate.
	squashPending bool
	squashFiles   map[string]string
	squashAuthors []string // first-seen order
	squashCounts  map[string]int
	squashFirst   int64
	squashLast    int64
}

func newEmitter(destdir string, grouper *Grouper) (*Emitter, error) {
	em := new(Emitter)
	em.destdir = destdir
	em.grouper = grouper
	em.module = cvsModule
	if em.module == "" {
		em.module = filepath.Base(prefix)
	}
	em.cvsroot = cvsRoot
	var err error
	em.squashDate, err = parseDateOrEpoch(squashSpec)
	if err != nil {
		return nil, err
	}
	em.baseline = make(map[string]string)
	em.squashFiles = make(map[string]string)
	em.squashCounts = make(map[string]int)
	return em, nil
}

// emitAll replays every grouped commit, oldest first.  It returns the
// number of downstream commits genuinely created (a squash commit counts
// as one).  On a permanent failure the destination is left as the last
// successful commit put it; re-running with -w resumes from there.
func (em *Emitter) emitAll() (count int, err error) {
	defer func(e *error) {
		if thrown := catch("emit", recover()); thrown != nil {
			*e = thrown
		}
	}(&err)

	if !dryrun {
		if err := os.MkdirAll(em.destdir, 0755); err != nil {
			return 0, err
		}
	}
	if !exists(filepath.Join(em.destdir, ".git")) {
		em.action("git", "init", "-q")
	}

	keys := em.grouper.sortedKeys()
	control.baton.startcounter("commit %d", 0)
	regular := 0
	for _, key := range keys {
		commit := em.grouper.commits[key]
		if len(commit.files) == 0 {
			panic(throw("emit", "commit %s has no files; this is a grouping bug", key))
		}
		if em.squashDate > 0 && commit.epoch <= em.squashDate {
			em.accumulateSquash(commit)
			continue
		}
		// First commit past the threshold flushes the aggregate
		// before anything newer is emitted.
		em.flushSquash()
		if maxCommits > 0 && regular >= maxCommits {
			if logEnable(logEMIT) {
				logit("stopping at the %d-commit limit", maxCommits)
			}
			break
		}
		// Only commits that actually land count against the cap;
		// no-op and watermark-skipped ones are free.
		if em.emitCommit(commit) {
			regular++
			control.baton.bumpcounter()
		}
	}
	// Histories that never cross the threshold still get their squash.
	em.flushSquash()
	control.baton.endcounter()
	return em.created, nil
}

// classify sorts a commit's files into added/updated/removed against the
// running baseline, advancing the baseline as it goes.
func (em *Emitter) classify(commit *CommitObject) (added, updated, removed []FileChange) {
	for _, change := range commit.files {
		_, seen := em.baseline[change.filename]
		switch {
		case !seen && change.revision == deadRevision:
			// Born and deleted on a branch that never reached
			// the mainline; nothing to do.
			if logEnable(logEMIT) {
				logit("ignoring %s, never alive on the mainline", change.filename)
			}
		case !seen:
			added = append(added, change)
			em.baseline[change.filename] = change.revision
		case change.revision == deadRevision:
			removed = append(removed, change)
			delete(em.baseline, change.filename)
		default:
			updated = append(updated, change)
			em.baseline[change.filename] = change.revision
		}
	}
	return added, updated, removed
}

// emitCommit materializes one reconstructed commit as a git commit,
// reporting whether a downstream commit was actually created.
func (em *Emitter) emitCommit(commit *CommitObject) bool {
	added, updated, removed := em.classify(commit)
	if len(added)+len(updated)+len(removed) == 0 {
		if logEnable(logWARN) {
			logit("commit %s touches no mainline files, skipped", commit.key)
		}
		return false
	}
	if commit.epoch <= watermark {
		// Already converted in an earlier run; the baseline still
		// had to be advanced to keep later classification honest.
		if logEnable(logEMIT) {
			logit("commit %s is below the watermark, not re-emitted", commit.key)
		}
		return false
	}
	staged := newOrderedStringSet()
	for _, change := range append(added, updated...) {
		em.materialize(change)
		staged.Add(change.filename)
	}
	if len(staged) > 0 {
		em.action(append([]string{"git", "add", "--"}, staged...)...)
	}
	if len(removed) > 0 {
		words := []string{"git", "rm", "-q", "--"}
		for _, change := range removed {
			words = append(words, change.filename)
		}
		em.action(words...)
	}
	message := commit.comment
	if message == "" {
		message = emptyLogMessage
	}
	em.createCommit(commit.author, commit.epoch, message)
	if logEnable(logEMIT) {
		logit("emitted %s: %d added, %d updated, %d removed",
			commit.key, len(added), len(updated), len(removed))
	}
	return true
}

// accumulateSquash folds a below-threshold commit into the pending
// aggregate, advancing the baseline exactly as regular emission would.
func (em *Emitter) accumulateSquash(commit *CommitObject) {
	em.squashPending = true
	if em.squashFirst == 0 || commit.epoch < em.squashFirst {
		em.squashFirst = commit.epoch
	}
	if commit.epoch > em.squashLast {
		em.squashLast = commit.epoch
	}
	if _, ok := em.squashCounts[commit.author]; !ok {
		em.squashAuthors = append(em.squashAuthors, commit.author)
	}
	em.squashCounts[commit.author]++
	added, updated, removed := em.classify(commit)
	for _, change := range append(added, updated...) {
		em.squashFiles[change.filename] = change.revision
	}
	for _, change := range removed {
		delete(em.squashFiles, change.filename)
	}
}

// flushSquash emits the pending aggregate as one synthetic commit.
func (em *Emitter) flushSquash() {
	if !em.squashPending {
		return
	}
	em.squashPending = false
	filenames := make([]string, 0, len(em.squashFiles))
	for filename := range em.squashFiles {
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)
	if len(filenames) == 0 {
		// Every file in the window ended dead; there is no tree to
		// assemble and git would reject an empty commit.
		if logEnable(logEMIT) {
			logit("squash window left no live files, nothing to assemble")
		}
		return
	}
	// Contributors in descending order of commit count, first-seen
	// order breaking ties.
	authors := make([]string, len(em.squashAuthors))
	copy(authors, em.squashAuthors)
	sort.SliceStable(authors, func(i, j int) bool {
		return em.squashCounts[authors[i]] > em.squashCounts[authors[j]]
	})
	var message strings.Builder
	fmt.Fprintf(&message, "Assemble the %s tree as of %s.\n\n", em.module,
		rfc3339(time.Unix(em.squashLast, 0)))
	fmt.Fprintf(&message, "Squash of the history from %s to %s.\nAuthors:\n",
		rfc3339(time.Unix(em.squashFirst, 0)), rfc3339(time.Unix(em.squashLast, 0)))
	for _, author := range authors {
		fmt.Fprintf(&message, "  %s (%d)\n", author, em.squashCounts[author])
	}
	if logEnable(logEMIT) {
		logit("flushing squash of %d files spanning [%d,%d]",
			len(filenames), em.squashFirst, em.squashLast)
	}
	if em.squashLast <= watermark {
		return
	}
	staged := newOrderedStringSet()
	for _, filename := range filenames {
		em.materialize(FileChange{revision: em.squashFiles[filename], filename: filename})
		staged.Add(filename)
	}
	if len(staged) > 0 {
		em.action(append([]string{"git", "add", "--"}, staged...)...)
	}
	em.createCommit(authors[0], em.squashLast, message.String())
}

// materialize checks one file revision out of CVS into the destination
// tree.  Retrieval is retried on the transient anoncvs failure; any other
// failure is permanent and aborts the run.
func (em *Emitter) materialize(change FileChange) {
	words := []string{"cvs", "-Q"}
	if em.cvsroot != "" {
		words = append(words, "-d", em.cvsroot)
	}
	words = append(words, "co", "-p")
	if forceBinary {
		words = append(words, "-kb")
	}
	words = append(words, "-r", change.revision, path.Join(em.module, change.filename))
	dest := filepath.Join(em.destdir, change.filename)
	if dryrun {
		em.plan(shellquote.Join(words...) + " >" + change.filename)
		return
	}
	err := anoncvsRetry.run("retrieving "+change.filename, func() (string, error) {
		if logEnable(logCOMMANDS) {
			logit("capturing %s", shellquote.Join(words...))
		}
		tmp, err := ioutil.TempFile("", "cvslift")
		if err != nil {
			return "", err
		}
		defer os.Remove(tmp.Name())
		cmd := exec.Command(words[0], words[1:]...)
		cmd.Stdout = tmp
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			tmp.Close()
			return stderr.String(), err
		}
		tmp.Close()
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return "", err
		}
		// shutil carries the permission bits across, so executables
		// stay executable in the converted tree.
		_, err = shutil.Copy(tmp.Name(), dest, false)
		return "", err
	})
	if err != nil {
		panic(throw("emit", "%v", err))
	}
}

// createCommit runs git commit with the author attribution in its
// environment.  The committer identity is left to the git configuration;
// both dates are pinned to the reconstructed epoch.
func (em *Emitter) createCommit(author string, epoch int64, message string) {
	name, email := contribmap.Resolve(author)
	gitdate := fmt.Sprintf("%d +0000", epoch)
	env := []string{
		"GIT_AUTHOR_NAME=" + name,
		"GIT_AUTHOR_EMAIL=" + email,
		"GIT_AUTHOR_DATE=" + gitdate,
		"GIT_COMMITTER_DATE=" + gitdate,
	}
	words := []string{"git", "commit", "-q", "-m", message}
	if dryrun {
		em.plan(strings.Join(env, " ") + " " + shellquote.Join(words...))
		em.created++
		return
	}
	if err := runInDirWithEnv(em.destdir, env, words...); err != nil {
		panic(throw("emit", "creating commit: %v", err))
	}
	em.created++
}

// action runs a staging command in the destination tree, or records it
// in dry-run mode.  Staging failures are always permanent.
func (em *Emitter) action(words ...string) {
	if dryrun {
		em.plan(shellquote.Join(words...))
		return
	}
	if err := runInDirWithEnv(em.destdir, nil, words...); err != nil {
		panic(throw("emit", "executing %q: %v", shellquote.Join(words...), err))
	}
}

func (em *Emitter) plan(line string) {
	em.script = append(em.script, line)
	announce("+ %s", line)
}

// end
