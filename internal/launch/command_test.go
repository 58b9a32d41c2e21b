package launch

import "testing"

func TestRenderQuotesOnlyWhenNeeded(t *testing.T) {
	command := NewCommand("/usr/bin/python3", "-u", "-m", "lerobot.scripts.lerobot_calibrate", "--robot.id=my arm", "--robot.port=/dev/ttyACM0", "")
	want := "/usr/bin/python3 -u -m lerobot.scripts.lerobot_calibrate '--robot.id=my arm' --robot.port=/dev/ttyACM0 ''"
	if command.Readable != want {
		t.Fatalf("expected %q, got %q", want, command.Readable)
	}
}

func TestQuoteEscapesSingleQuotes(t *testing.T) {
	if got := Quote("it's"); got != `'it'"'"'s'` {
		t.Fatalf("unexpected quoting %q", got)
	}
}

func TestNewCommandCopiesArgs(t *testing.T) {
	args := []string{"echo", "hi"}
	command := NewCommand(args...)
	args[1] = "changed"
	if command.Args[1] != "hi" {
		t.Fatalf("expected command to own its args, got %v", command.Args)
	}
	if (Command{}).Empty() != true {
		t.Fatalf("expected zero command to be empty")
	}
}
