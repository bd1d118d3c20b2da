package entry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RefKind classifies a source reference.
type RefKind string

const (
	RefCode     RefKind = "code"     // path:L10-L20
	RefMarkdown RefKind = "markdown" // path#heading:L10-L20
	RefCommit   RefKind = "commit"   // commit <hash>
	RefPR       RefKind = "pr"       // PR #123
	RefFunction RefKind = "function" // path::symbol
	RefUnknown  RefKind = "unknown"
)

// Ref is a parsed source reference.
type Ref struct {
	Kind   RefKind
	Path   string // file path for file-based kinds
	Anchor string // heading, symbol, commit hash, or PR token
	Lines  string // "L10-L20" or "L10", empty if absent
}

var (
	refCommitRe = regexp.MustCompile(`^commit\s+[0-9a-f]{7,40}$`)
	refPRRe     = regexp.MustCompile(`^PR\s*#\d+$`)
	refMDRe     = regexp.MustCompile(`^.+#.+:L\d+(-L\d+)?$`)
	refCodeRe   = regexp.MustCompile(`^.+:L\d+(-L\d+)?$`)
	refFuncRe   = regexp.MustCompile(`^.+::.+$`)
	lineTailRe  = regexp.MustCompile(`:L(\d+)(-L\d+)?$`)
	lineRangeRe = regexp.MustCompile(`^L(\d+)(?:-L(\d+))?$`)
)

// ParseRef parses a normalized source reference. Order matters: markdown
// anchors contain a '#' before the ':L' tail, so they are matched before
// plain code references.
func ParseRef(src string) Ref {
	switch {
	case refCommitRe.MatchString(src):
		fields := strings.Fields(src)
		return Ref{Kind: RefCommit, Anchor: fields[1]}
	case refPRRe.MatchString(src):
		return Ref{Kind: RefPR, Anchor: src}
	case refMDRe.MatchString(src):
		hash := strings.Index(src, "#")
		path, rest := src[:hash], src[hash+1:]
		if m := lineTailRe.FindStringIndex(rest); m != nil {
			return Ref{Kind: RefMarkdown, Path: path, Anchor: rest[:m[0]], Lines: rest[m[0]+1:]}
		}
		return Ref{Kind: RefMarkdown, Path: path, Anchor: rest}
	case refFuncRe.MatchString(src):
		parts := strings.SplitN(src, "::", 2)
		return Ref{Kind: RefFunction, Path: parts[0], Anchor: parts[1]}
	case refCodeRe.MatchString(src):
		if m := lineTailRe.FindStringIndex(src); m != nil {
			return Ref{Kind: RefCode, Path: src[:m[0]], Lines: src[m[0]+1:]}
		}
	}
	return Ref{Kind: RefUnknown, Path: src}
}

// SourceStatus is the outcome of a source verification.
type SourceStatus string

const (
	SourceOK   SourceStatus = "OK"
	SourceWarn SourceStatus = "WARN"
	SourceFail SourceStatus = "FAIL"
	SourceSkip SourceStatus = "SKIP"
)

// SourceCheck is the result of verifying one source reference.
type SourceCheck struct {
	Source  string
	Kind    RefKind
	Status  SourceStatus
	Message string
}

// VerifySource checks whether a source reference still resolves against the
// project root. PR references are informational and always pass; commit
// references are checked through git when available. All filesystem and git
// failures degrade to WARN/SKIP, never to an error return.
func VerifySource(src, projectRoot string) SourceCheck {
	ref := ParseRef(src)
	check := SourceCheck{Source: src, Kind: ref.Kind}

	switch ref.Kind {
	case RefPR:
		check.Status = SourceOK
		check.Message = "PR reference (informational, not verified)"
		return check
	case RefCommit:
		return verifyCommit(ref.Anchor, projectRoot, check)
	case RefUnknown:
		check.Status = SourceWarn
		check.Message = fmt.Sprintf("unknown source format: %s", src)
		return check
	}

	full := filepath.Join(projectRoot, ref.Path)
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		check.Status = SourceFail
		check.Message = fmt.Sprintf("file not found: %s", ref.Path)
		return check
	}
	if err != nil {
		check.Status = SourceSkip
		check.Message = fmt.Sprintf("cannot access path: %v", err)
		return check
	}
	if info.IsDir() {
		check.Status = SourceWarn
		check.Message = fmt.Sprintf("path is a directory: %s", ref.Path)
		return check
	}

	switch ref.Kind {
	case RefCode:
		return verifyLines(full, ref.Lines, check)
	case RefMarkdown:
		return verifyHeading(full, ref.Anchor, check)
	case RefFunction:
		return verifySymbol(full, ref.Anchor, check)
	}
	check.Status = SourceOK
	return check
}

func verifyCommit(hash, projectRoot string, check SourceCheck) SourceCheck {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "cat-file", "-t", hash)
	cmd.Dir = projectRoot
	out, err := cmd.Output()
	switch {
	case err == nil && strings.TrimSpace(string(out)) == "commit":
		check.Status = SourceOK
		check.Message = fmt.Sprintf("commit %s verified", hash)
	case errorIsNotFound(err) || ctx.Err() != nil:
		check.Status = SourceSkip
		check.Message = "git not available"
	default:
		check.Status = SourceFail
		check.Message = fmt.Sprintf("commit %s not found in git", hash)
	}
	return check
}

func errorIsNotFound(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) && execErr.Err == exec.ErrNotFound
}

func verifyLines(path, lineRange string, check SourceCheck) SourceCheck {
	data, err := os.ReadFile(path)
	if err != nil {
		check.Status = SourceWarn
		check.Message = fmt.Sprintf("cannot read file: %v", err)
		return check
	}
	total := bytes.Count(data, []byte("\n")) + 1

	if lineRange == "" {
		check.Status = SourceOK
		check.Message = fmt.Sprintf("file exists (%d lines)", total)
		return check
	}

	m := lineRangeRe.FindStringSubmatch(lineRange)
	if m == nil {
		check.Status = SourceWarn
		check.Message = fmt.Sprintf("cannot parse line range: %s", lineRange)
		return check
	}
	end, _ := strconv.Atoi(m[1])
	if m[2] != "" {
		end, _ = strconv.Atoi(m[2])
	}
	if end > total {
		check.Status = SourceWarn
		check.Message = fmt.Sprintf("line range %s beyond end of file (%d lines)", lineRange, total)
		return check
	}
	check.Status = SourceOK
	check.Message = fmt.Sprintf("lines %s present", lineRange)
	return check
}

func verifyHeading(path, heading string, check SourceCheck) SourceCheck {
	data, err := os.ReadFile(path)
	if err != nil {
		check.Status = SourceWarn
		check.Message = fmt.Sprintf("cannot read file: %v", err)
		return check
	}
	want := normalizeHeading(heading)
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		if normalizeHeading(strings.TrimLeft(trimmed, "# ")) == want {
			check.Status = SourceOK
			check.Message = fmt.Sprintf("heading %q found", heading)
			return check
		}
	}
	check.Status = SourceWarn
	check.Message = fmt.Sprintf("heading %q not found", heading)
	return check
}

func normalizeHeading(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "-")
}

func verifySymbol(path, symbol string, check SourceCheck) SourceCheck {
	data, err := os.ReadFile(path)
	if err != nil {
		check.Status = SourceWarn
		check.Message = fmt.Sprintf("cannot read file: %v", err)
		return check
	}
	if bytes.Contains(data, []byte(symbol)) {
		check.Status = SourceOK
		check.Message = fmt.Sprintf("symbol %q present", symbol)
		return check
	}
	check.Status = SourceFail
	check.Message = fmt.Sprintf("symbol %q not found", symbol)
	return check
}
