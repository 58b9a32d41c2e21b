package launch

import "strings"

// Command is the worker argument vector plus the rendering shown to operators.
type Command struct {
	Args     []string `json:"args"`
	Readable string   `json:"readable"`
}

func NewCommand(args ...string) Command {
	copied := append([]string(nil), args...)
	return Command{
		Args:     copied,
		Readable: Render(copied),
	}
}

func (c Command) Empty() bool {
	return len(c.Args) == 0 || strings.TrimSpace(c.Args[0]) == ""
}

// Render joins args into a POSIX shell command line.
func Render(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, Quote(arg))
	}
	return strings.Join(quoted, " ")
}

func Quote(value string) string {
	if value == "" {
		return "''"
	}
	if !needsQuoting(value) {
		return value
	}
	replacer := strings.NewReplacer("'", `'"'"'`)
	return "'" + replacer.Replace(value) + "'"
}

func needsQuoting(value string) bool {
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_./=:,+@%", r):
		default:
			return true
		}
	}
	return false
}
