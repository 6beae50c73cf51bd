package main

import (
	"bytes"
	"strings"
	"testing"
	"text/template"
)

func TestMakefileTemplateInvocation(t *testing.T) {
	var out bytes.Buffer
	tmpl := template.Must(template.New("Makefile").Parse(makefileTemplate))
	err := tmpl.Execute(&out, liftParts{
		Project: "groff",
		CvsHost: "cvs.example.com",
		Module:  "groff",
	})
	if err != nil {
		t.Fatal(err)
	}
	text := out.String()
	assertTrue(t, strings.Contains(text, "CVS_HOST = cvs.example.com"))
	assertTrue(t, strings.Contains(text, "CVS_MODULE = groff"))
	// The operation must lead the generated command line; everything
	// after it is flag territory.
	assertTrue(t, strings.Contains(text, "cvslift convert -A groff.map"))
	assertTrue(t, !strings.Contains(text, "$(LIFT_OPTIONS) convert"))
}

func TestParseDateOrEpoch(t *testing.T) {
	n, err := parseDateOrEpoch("1087646410")
	if err != nil || n != 1087646410 {
		t.Errorf("epoch form: %d, %v", n, err)
	}
	n, err = parseDateOrEpoch("2004-06-19T12:00:10Z")
	if err != nil || n != 1087646410 {
		t.Errorf("RFC3339 form: %d, %v", n, err)
	}
	n, err = parseDateOrEpoch("")
	if err != nil || n != 0 {
		t.Errorf("empty form: %d, %v", n, err)
	}
	if _, err := parseDateOrEpoch("June 19th"); err == nil {
		t.Error("expected a date parse failure")
	}
}

// end
