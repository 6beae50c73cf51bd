package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeMapFile(t *testing.T, contents string) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "cvslift-contrib")
	if err != nil {
		t.Fatal(err)
	}
	fn := filepath.Join(dir, "project.map")
	if err := ioutil.WriteFile(fn, []byte(contents), userReadWriteMode); err != nil {
		t.Fatal(err)
	}
	return fn
}

func TestContribMapParsing(t *testing.T) {
	fn := writeMapFile(t, strings.Join([]string{
		"# contributor map",
		"",
		"fred = Fred Flintstone <fred@bedrock.example>",
		"wilma=Wilma Flintstone <wilma@bedrock.example> America/Chicago",
		"barney = Barney Rubble <barney>",
	}, "\n")+"\n")
	defer os.RemoveAll(filepath.Dir(fn))

	cm, err := NewContribMap(fn)
	if err != nil {
		t.Fatal(err)
	}
	assertIntEqual(t, len(cm), 3)
	assertTrue(t, cm.Has("fred"))
	assertBool(t, cm.Has("pebbles"), false)
	assertEqual(t, cm["fred"].fullname, "Fred Flintstone")
	assertEqual(t, cm["fred"].email, "fred@bedrock.example")
	assertEqual(t, cm["fred"].tz, "")
	assertEqual(t, cm["wilma"].tz, "America/Chicago")

	name, email := cm.Resolve("fred")
	assertEqual(t, name, "Fred Flintstone")
	assertEqual(t, email, "fred@bedrock.example")
	name, email = cm.Resolve("pebbles")
	assertEqual(t, name, "pebbles")
	assertEqual(t, email, "pebbles")
}

func TestContribMapIllFormedLine(t *testing.T) {
	fn := writeMapFile(t, "fred = Fred Flintstone\n")
	defer os.RemoveAll(filepath.Dir(fn))

	_, err := NewContribMap(fn)
	if err == nil {
		t.Fatal("expected a parse failure")
	}
	assertTrue(t, strings.Contains(err.Error(), ":1: ill-formed map line"))
}

func TestContribMapMissingFile(t *testing.T) {
	_, err := NewContribMap("/nonexistent/project.map")
	if err == nil {
		t.Fatal("expected an open failure")
	}
}

func TestContribMapSuffix(t *testing.T) {
	cm := ContribMap{
		"fred":  {name: "fred", fullname: "Fred Flintstone", email: "fred"},
		"wilma": {name: "wilma", fullname: "Wilma Flintstone", email: "wilma@bedrock.example"},
	}
	cm.Suffix("bedrock.example")
	assertEqual(t, cm["fred"].email, "fred@bedrock.example")
	// Already-qualified addresses are left alone.
	assertEqual(t, cm["wilma"].email, "wilma@bedrock.example")
}

func TestNilContribMap(t *testing.T) {
	var cm ContribMap
	assertBool(t, cm.Has("fred"), false)
	name, email := cm.Resolve("fred")
	assertEqual(t, name, "fred")
	assertEqual(t, email, "fred")
}

// end
