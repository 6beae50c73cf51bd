package main

import (
	"strings"
	"testing"

	difflib "github.com/ianbruene/go-difflib/difflib"
)

func record(filename string, revision string, epoch int64, author string,
	commitid string, comment ...string) *RevisionRecord {
	return &RevisionRecord{
		filename: filename,
		revision: revision,
		epoch:    epoch,
		author:   author,
		commitid: commitid,
		comment:  comment,
	}
}

func TestCommitKeyEncoding(t *testing.T) {
	assertEqual(t, commitKey(42, "<unknown>", "fred"),
		"0000000042_|||_<unknown>_|||_fred")
	// Zero-padding is what makes string order chronological order.
	assertTrue(t, commitKey(999, "x", "a") < commitKey(1000, "x", "a"))
}

func TestWindowClustering(t *testing.T) {
	gr := newGrouper()
	gr.clump(record("a.c", "1.1", 1000, "fred", "", "change"))
	gr.clump(record("b.c", "1.4", 1015, "fred", "", "change"))
	assertIntEqual(t, len(gr.commits), 1)

	// Same pair in reverse arrival order clusters identically.
	gr = newGrouper()
	gr.clump(record("b.c", "1.4", 1015, "fred", "", "change"))
	gr.clump(record("a.c", "1.1", 1000, "fred", "", "change"))
	assertIntEqual(t, len(gr.commits), 1)

	// 16 seconds apart is outside the window.
	gr = newGrouper()
	gr.clump(record("a.c", "1.1", 1000, "fred", "", "change"))
	gr.clump(record("b.c", "1.4", 1016, "fred", "", "change"))
	assertIntEqual(t, len(gr.commits), 2)
}

func TestCommentCollisionGuard(t *testing.T) {
	// Identical author, absent commitid, one second apart: without the
	// comment check these would merge wrongly.
	gr := newGrouper()
	gr.clump(record("a.c", "1.1", 1000, "fred", "", "fix a typo"))
	gr.clump(record("b.c", "1.4", 1001, "fred", "", "rewrite the parser"))
	assertIntEqual(t, len(gr.commits), 2)
}

func TestSameSecondCollisionKeepsBoth(t *testing.T) {
	// Identical epoch, author, and absent commitid with differing
	// comments: both commits must survive with their file lists intact.
	gr := newGrouper()
	gr.clump(record("a.c", "1.1", 1000, "fred", "", "fix a typo"))
	gr.clump(record("b.c", "1.4", 1000, "fred", "", "rewrite the parser"))
	assertIntEqual(t, len(gr.commits), 2)

	// A later record still finds the displaced commit through the
	// window scan.
	gr.clump(record("c.c", "1.2", 1003, "fred", "", "rewrite the parser"))
	assertIntEqual(t, len(gr.commits), 2)
	total := 0
	for _, commit := range gr.commits {
		total += len(commit.files)
		if commit.comment == "fix a typo" {
			assertIntEqual(t, len(commit.files), 1)
			assertEqual(t, commit.files[0].filename, "a.c")
		} else {
			assertIntEqual(t, len(commit.files), 2)
		}
	}
	assertIntEqual(t, total, 3)
}

func TestDifferentAuthorsNeverMerge(t *testing.T) {
	gr := newGrouper()
	gr.clump(record("a.c", "1.1", 1000, "fred", "", "change"))
	gr.clump(record("b.c", "1.4", 1000, "wilma", "", "change"))
	assertIntEqual(t, len(gr.commits), 2)
}

func TestBranchExclusion(t *testing.T) {
	gr := newGrouper()
	gr.clump(record("a.c", "1.2.2.1", 1000, "fred", "", "branch work"))
	gr.clump(record("a.c", "1.14.2.3.4.1", 1000, "fred", "", "deep branch"))
	assertIntEqual(t, len(gr.commits), 0)
	gr.clump(record("a.c", "1.2", 1000, "fred", "", "mainline"))
	assertIntEqual(t, len(gr.commits), 1)
	for _, commit := range gr.commits {
		for _, change := range commit.files {
			assertTrue(t, !branchRevRE.MatchString(change.revision))
		}
	}
}

func TestDeadStateNormalization(t *testing.T) {
	gr := newGrouper()
	rec := record("a.c", "1.3", 1000, "fred", "", "remove it")
	rec.state = deadRevision
	gr.clump(rec)
	commit := gr.commits[commitKey(1000, unknownCommitID, "fred")]
	if commit == nil {
		t.Fatal("commit not found under the canonical offset-0 key")
	}
	assertEqual(t, commit.files[0].revision, deadRevision)
}

func TestFilePrependOrder(t *testing.T) {
	gr := newGrouper()
	gr.clump(record("first.c", "1.1", 1000, "fred", "", "change"))
	gr.clump(record("second.c", "1.1", 1002, "fred", "", "change"))
	gr.clump(record("third.c", "1.1", 1004, "fred", "", "change"))
	assertIntEqual(t, len(gr.commits), 1)
	for _, commit := range gr.commits {
		// Prepend on arrival: the first-discovered file ends up last.
		assertEqual(t, commit.files[0].filename, "third.c")
		assertEqual(t, commit.files[1].filename, "second.c")
		assertEqual(t, commit.files[2].filename, "first.c")
	}
}

func TestCommitidDiscrimination(t *testing.T) {
	// Matching commitids group even with a gap inside the window;
	// different commitids at the same instant never do.
	gr := newGrouper()
	gr.clump(record("a.c", "1.1", 1000, "fred", "aaa", "change"))
	gr.clump(record("b.c", "1.1", 1009, "fred", "aaa", "change"))
	gr.clump(record("c.c", "1.1", 1000, "fred", "bbb", "change"))
	assertIntEqual(t, len(gr.commits), 2)
}

func TestTagRegistryKeepsEarliestEpoch(t *testing.T) {
	gr := newGrouper()
	early := record("a.c", "1.1", 1000, "fred", "", "change")
	early.tags = []string{"RELEASE_1_0"}
	late := record("b.c", "1.5", 9000, "fred", "", "another change")
	late.tags = []string{"RELEASE_1_0", "NIGHTLY"}
	gr.clump(late)
	gr.clump(early)
	if gr.tagEpochs["RELEASE_1_0"] != 1000 {
		t.Errorf("expected earliest epoch 1000, saw %d", gr.tagEpochs["RELEASE_1_0"])
	}
	if gr.tagEpochs["NIGHTLY"] != 9000 {
		t.Errorf("expected epoch 9000, saw %d", gr.tagEpochs["NIGHTLY"])
	}
}

func TestChronologicalKeyOrder(t *testing.T) {
	gr := newGrouper()
	gr.clump(record("a.c", "1.3", 5000, "fred", "", "third"))
	gr.clump(record("a.c", "1.1", 1000, "fred", "", "first"))
	gr.clump(record("a.c", "1.2", 3000, "wilma", "", "second"))
	keys := gr.sortedKeys()
	assertIntEqual(t, len(keys), 3)
	var last int64 = -1
	for _, key := range keys {
		epoch := gr.commits[key].epoch
		assertTrue(t, epoch > last)
		last = epoch
	}
}

func TestDumpFormat(t *testing.T) {
	gr := newGrouper()
	rec := record("hello.c", "1.1", 1087646410, "fred", "a1b2c3", "hello world")
	rec.tags = []string{"START"}
	gr.clump(rec)
	expected := strings.Join([]string{
		"commit 1087646410_|||_a1b2c3_|||_fred",
		"Author: fred",
		"Date: 2004-06-19T12:00:10Z",
		"    hello world",
		"\t1.1      hello.c (START)",
		"",
		"",
	}, "\n")
	saw := gr.dump()
	if saw != expected {
		text, _ := difflib.GetUnifiedDiffString(difflib.LineDiffParams{
			A:        difflib.SplitLines(expected),
			B:        difflib.SplitLines(saw),
			FromFile: "expected",
			ToFile:   "saw",
			Context:  3,
		})
		t.Errorf("dump mismatch:\n%s", text)
	}
}

// end
