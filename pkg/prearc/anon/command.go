package anon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Command runs an external anonymizer binary against staged files. The
// script body is written to a temporary file and passed by path; the tool is
// expected to rewrite the target in place.
type Command struct {
	// Path is the anonymizer executable.
	Path string
}

// NewCommand returns a Service backed by the executable at path.
func NewCommand(path string) *Command {
	return &Command{Path: path}
}

// Enabled implements Service.
func (c *Command) Enabled() bool { return c.Path != "" }

// Anonymize implements Service.
func (c *Command) Anonymize(ctx context.Context, path, project, subject, label string, inPlace bool, configID int64, script string) error {
	tmp, err := os.CreateTemp("", "anon-script-*.das")
	if err != nil {
		return fmt.Errorf("writing anonymization script: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(script); err != nil {
		tmp.Close()
		return fmt.Errorf("writing anonymization script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing anonymization script: %w", err)
	}

	args := []string{
		"-s", tmp.Name(),
		"-c", strconv.FormatInt(configID, 10),
		"-p", project,
		"-u", subject,
		"-l", label,
	}
	if inPlace {
		args = append(args, "-i")
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, c.Path, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("anonymizer %s: %w: %s", c.Path, err, out)
	}
	return nil
}
