package entry

import "strings"

// defaultAllowedCommands are the read-only tools a verify command may start
// with when no project-level allow-list is configured.
var defaultAllowedCommands = []string{"grep", "rg", "find", "wc", "head", "tail", "echo", "ls", "cat", "test"}

// deniedFragments are shell fragments that make a verify command unsafe to
// run automatically: anything that writes, mutates permissions, or touches
// repository state.
var deniedFragments = []string{
	">>", ">", "rm ", "mv ", "cp ", "tee ", "chmod ", "chown ",
	"git push", "git commit", "git checkout", "git reset",
	"sed -i", "truncate ", "dd ",
}

// CheckVerifyCommand statically lints an entry's verify command.
// It returns SKIP for an empty command, FAIL for commands containing denied
// fragments, WARN for commands starting with a tool outside the allow-list,
// and OK otherwise. It never executes the command.
func CheckVerifyCommand(command string, allowed []string) (SourceStatus, string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return SourceSkip, "no verify command"
	}
	lower := strings.ToLower(command)
	for _, frag := range deniedFragments {
		if strings.Contains(lower, frag) {
			return SourceFail, "verify command contains unsafe fragment " + strings.TrimSpace(frag)
		}
	}
	if allowed == nil {
		allowed = defaultAllowedCommands
	}
	head := firstWord(lower)
	for _, tool := range allowed {
		if head == tool {
			return SourceOK, ""
		}
	}
	return SourceWarn, "verify command uses tool outside allow-list: " + head
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
