// cvslift translates the history of a CVS module into a git repository.
package main

// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	shlex "github.com/anmitsu/go-shlex"
	readline "github.com/chzyer/readline"
	shellquote "github.com/kballard/go-shellquote"
	terminal "golang.org/x/crypto/ssh/terminal"
	ianaindex "golang.org/x/text/encoding/ianaindex"
)

var version = "1.2"

/*
 * Logging and responding.  The same bitmask scheme as reposurgeon's,
 * cut down to the classes this tool actually has.
 */

const (
	logSHOUT    uint = 1 << iota // Errors and urgent messages
	logWARN                      // Exceptional condition, probably not a bug
	logPARSE                     // Log-parser state transitions
	logCLUMP                     // Commit-grouping decisions
	logEMIT                      // Emitter classification and squash logic
	logCOMMANDS                  // Show subprocess commands as they run
)

var logtags = map[string]uint{
	"shout":    logSHOUT,
	"warn":     logWARN,
	"parse":    logPARSE,
	"clump":    logCLUMP,
	"emit":     logEMIT,
	"commands": logCOMMANDS,
}

// Control is the global run context.
type Control struct {
	logmask uint
	logfp   io.Writer
	baton   *Baton
}

var control Control

func (ctx *Control) init() {
	ctx.logmask = (logWARN << 1) - 1
	ctx.logfp = os.Stderr
	ctx.baton = newBaton(terminal.IsTerminal(int(os.Stdout.Fd())) && !quiet)
}

func logEnable(logbits uint) bool {
	return (control.logmask & logbits) != 0
}

func logit(msg string, args ...interface{}) {
	content := fmt.Sprintf(msg, args...)
	fmt.Fprintf(control.logfp, "%s: %s\n", rfc3339(time.Now()), content)
}

func croak(msg string, args ...interface{}) {
	content := fmt.Sprintf(msg, args...)
	os.Stderr.WriteString("cvslift: " + content + "\n")
	os.Exit(1)
}

func announce(msg string, args ...interface{}) {
	if !quiet {
		content := fmt.Sprintf(msg, args...)
		os.Stdout.WriteString("cvslift: " + content + "\n")
	}
}

func complain(msg string, args ...interface{}) {
	if !quiet {
		content := fmt.Sprintf(msg, args...)
		os.Stderr.WriteString("cvslift: " + content + "\n")
	}
}

/*
 * Exceptions, for unwinding out of the emitter's side-effect machinery.
 */

type exception struct {
	class   string
	message string
}

func (e exception) Error() string {
	return e.message
}

func throw(class string, msg string, args ...interface{}) *exception {
	// We could call panic() in here but we leave it at the callsite
	// to clue the compiler in that no return after is required.
	e := new(exception)
	e.class = class
	e.message = fmt.Sprintf(msg, args...)
	return e
}

func catch(accept string, x interface{}) *exception {
	// Because recover() returns interface{}.
	// Return us to the world of type safety.
	if x == nil {
		return nil
	}
	if err, ok := x.(*exception); ok {
		if err.class == accept {
			return err
		}
	}
	panic(x)
}

/*
 * Filesystem and subprocess helpers.
 */

const userReadWriteMode = 0644

func exists(pathname string) bool {
	_, err := os.Stat(pathname)
	return !os.IsNotExist(err)
}

func isdir(pathname string) bool {
	st, err := os.Stat(pathname)
	return err == nil && st.Mode().IsDir()
}

func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// runShellProcessOrDie either executes a command or dies noisily.
func runShellProcessOrDie(dcmd string, legend string) {
	if legend != "" {
		legend = " " + legend
	}
	if logEnable(logCOMMANDS) {
		logit("executing '%s'%s", dcmd, legend)
	}
	cmd := exec.Command("sh", "-c", "("+dcmd+")")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err != nil {
		croak("executing %q: %v", dcmd, err)
	}
}

// captureFromProcess runs a specified command, capturing the combined output.
func captureFromProcess(command string) (string, error) {
	if logEnable(logCOMMANDS) {
		logit("%s: capturing %s", rfc3339(time.Now()), command)
	}
	cmd := exec.Command("sh", "-c", command)
	content, err := cmd.CombinedOutput()
	if logEnable(logCOMMANDS) {
		control.baton.printLogString(string(content))
	}
	return string(content), err
}

// readFromProcess feeds a command's standard output back to the caller.
func readFromProcess(command string) (io.ReadCloser, *exec.Cmd, error) {
	if logEnable(logCOMMANDS) {
		logit("%s: reading from '%s'", rfc3339(time.Now()), command)
	}
	cmd := exec.Command("sh", "-c", command)
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	err = cmd.Start()
	if err != nil {
		return nil, nil, err
	}
	// Pass back cmd so we can call Wait on it and get the error status.
	return stdout, cmd, err
}

// runInDirWithEnv execs argv directly (no shell) in a directory with extra
// environment entries; used for git commits, which need author/date env.
func runInDirWithEnv(dir string, env []string, words ...string) error {
	if logEnable(logCOMMANDS) {
		logit("executing '%s' in %s", shellquote.Join(words...), dir)
	}
	cmd := exec.Command(words[0], words[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

/*
 * Retry machinery for flaky external retrieval.  The only failure mode
 * known to be transient is the anoncvs "no such system user" lossage,
 * which clears when the server-side user database catches up.
 */

type retryPolicy struct {
	maxTries  int           // 0 means keep trying until the caller's patience runs out
	interval  time.Duration // pause between attempts
	transient func(output string) bool
}

var anoncvsRetry = retryPolicy{
	maxTries: 0,
	interval: 10 * time.Second,
	transient: func(output string) bool {
		return strings.Contains(output, "no such system user")
	},
}

// run retries attempt until it succeeds, fails permanently, or the
// attempt budget is exhausted.
func (rp retryPolicy) run(legend string, attempt func() (string, error)) error {
	for tries := 0; ; tries++ {
		output, err := attempt()
		if err == nil {
			return nil
		}
		if !rp.transient(output) {
			return fmt.Errorf("%s: %v", legend, err)
		}
		if rp.maxTries > 0 && tries+1 >= rp.maxTries {
			return fmt.Errorf("%s: still failing after %d attempts: %v", legend, tries+1, err)
		}
		if logEnable(logWARN) {
			logit("%s: transient failure, retrying: %v", legend, err)
		}
		time.Sleep(rp.interval)
	}
}

/*
 * Option state.
 */

var allowUnknown bool
var dryrun bool
var forceBinary bool
var keepBlanks bool
var quiet bool
var verbose bool

var authormapFile string
var codec string
var cvsModule string
var cvsRoot string
var debugSpec string
var hostSuffix string
var logCommand string
var maxCommits int
var prefix string
var squashSpec string
var watermark int64

// parseDateOrEpoch accepts either an RFC3339 timestamp or a raw epoch count.
func parseDateOrEpoch(spec string) (int64, error) {
	if spec == "" || spec == "0" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(spec, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, spec)
	if err != nil {
		return 0, fmt.Errorf("ill-formed date %q: %v", spec, err)
	}
	return t.Unix(), nil
}

// newCommentDecoder makes a comment-transcoding hook from an IANA charset name.
func newCommentDecoder(name string) (func(string) string, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("can't set up codec %s: %v", name, err)
	}
	decoder := enc.NewDecoder()
	return func(txt string) string {
		out, err := decoder.Bytes([]byte(txt))
		if err != nil {
			if logEnable(logWARN) {
				logit("decode error during transcoding: %v", err)
			}
			return txt
		}
		return string(out)
	}, nil
}

func input(prompt string) string {
	rl, err := readline.New(prompt)
	if err != nil {
		croak("reading input: %v", err)
	}
	defer rl.Close()
	line, _ := rl.Readline()
	return strings.TrimSpace(line)
}

func makeStub(name string, contents string) {
	fp, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY, userReadWriteMode)
	if err != nil {
		croak("creating %s: %v", name, err)
	}
	defer fp.Close()
	fp.WriteString(contents)
}

type liftParts struct {
	Project string
	CvsHost string
	Module  string
}

var makefileTemplate = `# Makefile for the {{.Project}} conversion using cvslift
#
# Steps to using this:
# 1. Make sure cvslift is on your $PATH.
# 2. Check CVS_HOST and CVS_MODULE below; edit if the guesses are wrong.
# 3. Fill in {{.Project}}.map with contributor identities; every CVS login
#    that appears in the history needs a line like
#        login = Full Name <email>
#    Run 'make' once and cvslift will list the logins it can't resolve.
# 4. Run 'make' to build the converted repository in {{.Project}}-git.
#
CVS_HOST = {{.CvsHost}}
CVS_MODULE = {{.Module}}
CVSROOT = :pserver:anonymous@$(CVS_HOST):/cvsroot/{{.Project}}
PREFIX = /cvsroot/{{.Project}}/$(CVS_MODULE)
LIFT_OPTIONS =

default: {{.Project}}-git

{{.Project}}-git: {{.Project}}.map
	cvslift convert -A {{.Project}}.map -p $(PREFIX) -R $(CVSROOT) $(LIFT_OPTIONS) {{.Project}}-git

clean:
	rm -fr {{.Project}}-git *~
`

// initialize generates the stub conversion workflow, prompting for
// whatever the command line didn't supply.
func initialize(args []string) {
	var squishy liftParts
	if len(args) < 1 {
		croak("initialize requires a project name.")
	}
	squishy.Project = args[0]
	args = args[1:]
	if len(args) == 0 {
		squishy.CvsHost = input("cvslift: what host is the CVS repository on? ")
	} else {
		squishy.CvsHost, args = args[0], args[1:]
	}
	if len(args) == 0 {
		squishy.Module = input("cvslift: what is the module name? ")
	} else {
		squishy.Module = args[0]
	}
	if squishy.Module == "" {
		squishy.Module = squishy.Project
	}
	if exists("Makefile") {
		complain("a Makefile already exists here.")
	} else {
		t := template.Must(template.New("Makefile").Parse(makefileTemplate))
		fp, err := os.OpenFile("Makefile", os.O_CREATE|os.O_WRONLY, userReadWriteMode)
		if err != nil {
			croak("creating Makefile: %v", err)
		}
		defer fp.Close()
		if err := t.Execute(fp, squishy); err != nil {
			croak("executing template: %v", err)
		}
	}
	if exists(squishy.Project + ".map") {
		complain("a project map file already exists here.")
	} else {
		name, email := whoami()
		makeStub(squishy.Project+".map",
			fmt.Sprintf("# Contributor map for %s\n# One line per CVS login, like so:\n%s = %s <%s>\n",
				squishy.Project, os.Getenv("USER"), name, email))
	}
}

// runPipeline parses the log stream and returns the filled grouper.
func runPipeline() *Grouper {
	if authormapFile != "" {
		var err error
		contribmap, err = NewContribMap(authormapFile)
		if err != nil {
			croak("%v", err)
		}
		if hostSuffix != "" {
			contribmap.Suffix(hostSuffix)
		}
	}
	var transcode func(string) string
	if codec != "" {
		var err error
		transcode, err = newCommentDecoder(codec)
		if err != nil {
			croak("%v", err)
		}
	}
	grouper := newGrouper()
	parser := newLogParser(prefix, contribmap, allowUnknown, keepBlanks, transcode, grouper.clump)

	var source io.ReadCloser
	var cmd *exec.Cmd
	if logCommand == "-" {
		source = os.Stdin
	} else {
		if _, err := shlex.Split(logCommand, true); err != nil {
			croak("ill-formed log command %q: %v", logCommand, err)
		}
		var err error
		source, cmd, err = readFromProcess(logCommand)
		if err != nil {
			croak("can't spawn log command: %v", err)
		}
	}
	control.baton.startProcess("cvslift: parsing log", "done")
	if _, err := io.Copy(parser, source); err != nil {
		croak("reading log stream: %v", err)
	}
	source.Close()
	if cmd != nil {
		if err := cmd.Wait(); err != nil {
			croak("log command failed: %v", err)
		}
	}
	if err := parser.Close(); err != nil {
		croak("%v", err)
	}
	control.baton.endProcess()
	return grouper
}

func convert(args []string) {
	if len(args) != 1 {
		croak("convert requires exactly one destination-directory argument.")
	}
	destdir, err := filepath.Abs(args[0])
	if err != nil {
		croak("resolving destination: %v", err)
	}
	grouper := runPipeline()
	emitter, err := newEmitter(destdir, grouper)
	if err != nil {
		croak("%v", err)
	}
	created, err := emitter.emitAll()
	if err != nil {
		croak("%v", err)
	}
	announce("created %d commits", created)
}

// dump is the parse operation: reconstruct commits and print them.
func dump() {
	grouper := runPipeline()
	os.Stdout.WriteString(grouper.dump())
}

func main() {
	flags := flag.NewFlagSet("cvslift", flag.ExitOnError)

	flags.BoolVar(&allowUnknown, "k", false, "let authors missing from the map pass through")
	flags.BoolVar(&dryrun, "n", false, "report planned commits without touching anything")
	flags.BoolVar(&forceBinary, "B", false, "force binary (-kb) file retrieval")
	flags.BoolVar(&keepBlanks, "b", false, "preserve blank lines inside comments")
	flags.BoolVar(&quiet, "q", false, "run as quietly as possible")
	flags.BoolVar(&verbose, "v", false, "show subcommands and diagnostics")

	flags.StringVar(&authormapFile, "A", "", "contributor map file")
	flags.StringVar(&codec, "e", "", "IANA name of the comment character encoding")
	flags.StringVar(&cvsModule, "M", "", "CVS module name (default: last component of prefix)")
	flags.StringVar(&cvsRoot, "R", os.Getenv("CVSROOT"), "CVS repository root")
	flags.StringVar(&debugSpec, "d", "", "comma-separated log classes to enable")
	flags.StringVar(&hostSuffix, "H", "", "host to complete bare usernames in the map with")
	flags.StringVar(&logCommand, "c", "cvs -Q log -b", "log retrieval command, - for stdin")
	flags.IntVar(&maxCommits, "m", 0, "stop after this many regular commits (0 = no limit)")
	flags.StringVar(&prefix, "p", "", "repository path prefix to strip from RCS filenames")
	flags.StringVar(&squashSpec, "s", "", "squash commits at or before this date into one")
	flags.Int64Var(&watermark, "w", 0, "skip execution of commits at or before this epoch")

	explain := func() {
		print(`
cvslift commands:

convert <destdir> - convert the CVS history into a git repository at destdir
parse - reconstruct commits from the log and dump them as text
initialize <project> [host] [module] - generate Makefile and map stubs
version - report software version

cvslift options:
`)
		flags.PrintDefaults()
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "cvslift: requires an operation argument.\n")
		explain()
	}
	operation := os.Args[1]

	flags.Parse(os.Args[2:])

	control.init()
	if verbose {
		control.logmask |= logCOMMANDS
	}
	for _, tag := range strings.Split(debugSpec, ",") {
		if tag == "" {
			continue
		}
		bits, ok := logtags[tag]
		if !ok {
			croak("no such log class as %s", tag)
		}
		control.logmask |= bits
	}

	if (operation == "convert" || operation == "parse") && prefix == "" {
		croak("a path prefix (-p) is required for %s.", operation)
	}

	args := flags.Args()
	if operation == "help" {
		explain()
	} else if operation == "initialize" {
		initialize(args)
	} else if operation == "convert" {
		convert(args)
	} else if operation == "parse" {
		dump()
	} else if operation == "version" {
		fmt.Println(version)
	} else {
		fmt.Fprintf(os.Stderr, "cvslift: unknown operation %q\n", operation)
		explain()
	}
	control.baton.Sync()
}

// end
